// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gemini-chat-go/internal/model"
)

// ErrStorage 表示持久化介质不可读或不可写（表文件损坏、磁盘故障等）。
// 对单个请求而言是致命错误，但进程应继续服务其他请求。
var ErrStorage = errors.New("conversation storage unavailable")

// ConversationRepository 定义了对话历史记录的操作接口。
// 一个用户的对话始终作为整体读出与写回，仓储层不做局部合并。
type ConversationRepository interface {
	// Load 返回指定用户的完整对话历史；用户不存在时返回空对话而非错误。
	Load(ctx context.Context, uid string) ([]model.Message, error)
	// Replace 以新的完整对话原子地覆盖指定用户的历史记录。
	Replace(ctx context.Context, uid string, messages []model.Message) error
	// Delete 删除指定用户的对话历史；不存在时为无副作用的空操作。
	Delete(ctx context.Context, uid string) error
}

// fileConversationRepository 将整张对话表持久化为单个 JSON 文件。
// 结构与人类可读格式均与表文件布局约定一致：uid -> [{role, parts}]。
type fileConversationRepository struct {
	mu   sync.Mutex // 串行化所有表级的读-改-写区间，防止交错写坏表文件
	path string
}

// NewFileConversationRepository 创建一个文件后端的对话仓储。
// 表文件不存在时先写入一张空表，保证后续读取总能成功。
func NewFileConversationRepository(path string) (ConversationRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: failed to create store directory: %v", ErrStorage, err)
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeTableFile(path, map[string][]model.Message{}); err != nil {
			return nil, err
		}
	}
	return &fileConversationRepository{path: path}, nil
}

// Load 读取整张表并返回该用户对话的深拷贝。
func (r *fileConversationRepository) Load(ctx context.Context, uid string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := r.readTable()
	if err != nil {
		return nil, err
	}
	messages, ok := table[uid]
	if !ok {
		return []model.Message{}, nil
	}
	return model.CloneMessages(messages), nil
}

// Replace 以读-改-写的方式整体覆盖该用户的对话，写回前先落盘。
func (r *fileConversationRepository) Replace(ctx context.Context, uid string, messages []model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := r.readTable()
	if err != nil {
		return err
	}
	table[uid] = model.CloneMessages(messages)
	return writeTableFile(r.path, table)
}

// Delete 从表中移除该用户的对话。
func (r *fileConversationRepository) Delete(ctx context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := r.readTable()
	if err != nil {
		return err
	}
	if _, ok := table[uid]; !ok {
		return nil
	}
	delete(table, uid)
	return writeTableFile(r.path, table)
}

// readTable 读取并解析表文件。文件缺失按空表处理，解析失败视为存储故障。
func (r *fileConversationRepository) readTable() (map[string][]model.Message, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]model.Message{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read table file: %v", ErrStorage, err)
	}
	table := map[string][]model.Message{}
	if len(data) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: corrupt table file %s: %v", ErrStorage, r.path, err)
	}
	return table, nil
}

// writeTableFile 先写临时文件并 fsync，再原子地重命名覆盖，
// 保证成功返回后即使进程立刻崩溃也不会丢失本次更新。
func writeTableFile(path string, table map[string][]model.Message) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal table: %v", ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to write temp file: %v", ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to sync temp file: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to close temp file: %v", ErrStorage, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to replace table file: %v", ErrStorage, err)
	}
	return nil
}
