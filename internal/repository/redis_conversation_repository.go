package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gemini-chat-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// redisConversationRepository 以每个用户一个键的方式在 Redis 中保存对话。
// 单键的 SET/DEL 天然满足整体覆盖语义。
type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewRedisConversationRepository 创建一个 Redis 后端的对话仓储。
func NewRedisConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(uid string) string {
	return fmt.Sprintf("conversation:%s", uid)
}

// Load 从 Redis 获取对话历史记录；键不存在时返回空对话。
func (r *redisConversationRepository) Load(ctx context.Context, uid string) ([]model.Message, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(uid)).Result()
	if err == redis.Nil {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get conversation: %v", ErrStorage, err)
	}
	var messages []model.Message
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal conversation: %v", ErrStorage, err)
	}
	return messages, nil
}

// Replace 在 Redis 中整体覆盖对话历史记录。
func (r *redisConversationRepository) Replace(ctx context.Context, uid string, messages []model.Message) error {
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal conversation: %v", ErrStorage, err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(uid), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to set conversation: %v", ErrStorage, err)
	}
	return nil
}

// Delete 删除该用户的对话；键不存在时 DEL 本身即为空操作。
func (r *redisConversationRepository) Delete(ctx context.Context, uid string) error {
	if err := r.redisClient.Del(ctx, conversationKey(uid)).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete conversation: %v", ErrStorage, err)
	}
	return nil
}
