package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/repository"
	"gemini-chat-go/pkg/gemini"
	"gemini-chat-go/pkg/imagefetch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockGemini 以函数字段定制行为，并记录每次收到的完整 contents。
type mockGemini struct {
	generateFunc func(ctx context.Context, contents []model.Message) (string, error)

	mu    sync.Mutex
	calls [][]model.Message
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []model.Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, model.CloneMessages(contents))
	m.mu.Unlock()
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents)
	}
	return "mock reply", nil
}

func (m *mockGemini) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockFetcher struct {
	fetchFunc func(ctx context.Context, url string) (*model.InlineData, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (*model.InlineData, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, url)
	}
	return &model.InlineData{MimeType: "image/jpeg", Data: "aW1hZ2U="}, nil
}

func newTestChatService(t *testing.T, g gemini.Client, f imagefetch.Fetcher) (ChatService, repository.ConversationRepository) {
	t.Helper()
	repo, err := repository.NewFileConversationRepository(filepath.Join(t.TempDir(), "convo.json"))
	require.NoError(t, err)
	if g == nil {
		g = &mockGemini{}
	}
	if f == nil {
		f = &mockFetcher{}
	}
	return NewChatService(repo, g, f), repo
}

func TestChatAppendsExactlyOneUserAndOneModelTurn(t *testing.T) {
	g := &mockGemini{generateFunc: func(ctx context.Context, contents []model.Message) (string, error) {
		return "Hi! How can I help?", nil
	}}
	svc, repo := newTestChatService(t, g, nil)

	result, err := svc.Chat(context.Background(), "42", "Hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help?", result.Reply)

	stored, err := repo.Load(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, model.RoleUser, stored[0].Role)
	assert.Equal(t, "Hello", stored[0].Parts[0].Text)
	assert.Equal(t, model.RoleModel, stored[1].Role)
	assert.Equal(t, "Hi! How can I help?", stored[1].Parts[0].Text)

	// 响应视图以这轮的 user/model 两条消息收尾
	require.Len(t, result.Conversation, 2)
	assert.Equal(t, model.RoleUser, result.Conversation[0].Role)
	assert.Equal(t, model.RoleModel, result.Conversation[1].Role)
}

func TestChatRemoteFailurePersistsNothing(t *testing.T) {
	g := &mockGemini{}
	svc, repo := newTestChatService(t, g, nil)

	// 先留下一轮成功的历史
	_, err := svc.Chat(context.Background(), "42", "first", "")
	require.NoError(t, err)
	g.generateFunc = func(ctx context.Context, contents []model.Message) (string, error) {
		return "", fmt.Errorf("%w: connection refused", gemini.ErrRemoteCall)
	}

	_, err = svc.Chat(context.Background(), "42", "second", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, gemini.ErrRemoteCall)

	// 失败的那轮不能留下孤儿用户消息，历史回到请求前的状态
	stored, loadErr := repo.Load(context.Background(), "42")
	require.NoError(t, loadErr)
	require.Len(t, stored, 2)
	assert.Equal(t, "first", stored[0].Parts[0].Text)
}

func TestChatImageFetchFailureDegradesToTextOnly(t *testing.T) {
	f := &mockFetcher{fetchFunc: func(ctx context.Context, url string) (*model.InlineData, error) {
		return nil, fmt.Errorf("%w: timeout", imagefetch.ErrFetch)
	}}
	svc, repo := newTestChatService(t, nil, f)

	result, err := svc.Chat(context.Background(), "42", "what is in this picture", "http://example.com/cat.jpg")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Reply)

	stored, err := repo.Load(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Len(t, stored[0].Parts, 1, "degraded user turn must be text-only")
	assert.Equal(t, "what is in this picture", stored[0].Parts[0].Text)
}

func TestChatAttachesFetchedImageAfterText(t *testing.T) {
	svc, repo := newTestChatService(t, nil, nil)

	_, err := svc.Chat(context.Background(), "42", "describe", "http://example.com/cat.jpg")
	require.NoError(t, err)

	stored, err := repo.Load(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, stored[0].Parts, 2)
	assert.Equal(t, "describe", stored[0].Parts[0].Text)
	require.NotNil(t, stored[0].Parts[1].InlineData)
	assert.Equal(t, "aW1hZ2U=", stored[0].Parts[1].InlineData.Data)
}

func TestChatEmptyModelReplyStoresPlaceholder(t *testing.T) {
	g := &mockGemini{generateFunc: func(ctx context.Context, contents []model.Message) (string, error) {
		return "", nil
	}}
	svc, repo := newTestChatService(t, g, nil)

	result, err := svc.Chat(context.Background(), "42", "Hello", "")
	require.NoError(t, err)
	assert.Equal(t, NoResponsePlaceholder, result.Reply)

	stored, err := repo.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, NoResponsePlaceholder, stored[1].Parts[0].Text)
}

func TestChatSendsFullHistoryEveryTurn(t *testing.T) {
	g := &mockGemini{}
	svc, _ := newTestChatService(t, g, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Chat(ctx, "42", fmt.Sprintf("turn %d", i), "")
		require.NoError(t, err)
	}

	require.Equal(t, 3, g.callCount())
	// 第 n 轮上送的 contents 含此前 n-1 轮的 2(n-1) 条消息加本轮用户消息
	assert.Len(t, g.calls[0], 1)
	assert.Len(t, g.calls[1], 3)
	assert.Len(t, g.calls[2], 5)
}

func TestChatResponseViewIsBoundedToTenMessages(t *testing.T) {
	svc, repo := newTestChatService(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := svc.Chat(ctx, "42", fmt.Sprintf("turn %d", i), "")
		require.NoError(t, err)
	}

	result, err := svc.Chat(ctx, "42", "final", "")
	require.NoError(t, err)
	assert.Len(t, result.Conversation, responseWindowSize)

	// 存储侧不受响应窗口限制
	stored, err := repo.Load(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, stored, 16)

	// 窗口是历史的尾部：最后一条是本轮模型回复
	last := result.Conversation[len(result.Conversation)-1]
	assert.Equal(t, model.RoleModel, last.Role)
}

func TestClearRemovesAllHistory(t *testing.T) {
	svc, repo := newTestChatService(t, nil, nil)
	ctx := context.Background()

	_, err := svc.Chat(ctx, "42", "remember me", "")
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "42"))

	stored, err := repo.Load(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestConcurrentChatsSameUserLoseNoUpdates(t *testing.T) {
	g := &mockGemini{generateFunc: func(ctx context.Context, contents []model.Message) (string, error) {
		time.Sleep(10 * time.Millisecond) // 扩大竞争窗口
		return "ok", nil
	}}
	svc, repo := newTestChatService(t, g, nil)
	ctx := context.Background()

	const turns = 5
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Chat(ctx, "42", fmt.Sprintf("concurrent %d", i), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := repo.Load(ctx, "42")
	require.NoError(t, err)
	require.Len(t, stored, turns*2, "every turn's pair must survive")
	// 串行化后的历史严格交替 user/model
	for i, msg := range stored {
		if i%2 == 0 {
			assert.Equal(t, model.RoleUser, msg.Role, "message %d", i)
		} else {
			assert.Equal(t, model.RoleModel, msg.Role, "message %d", i)
		}
	}
}

func TestConcurrentChatsDistinctUsersDoNotInterfere(t *testing.T) {
	g := &mockGemini{generateFunc: func(ctx context.Context, contents []model.Message) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	}}
	svc, repo := newTestChatService(t, g, nil)
	ctx := context.Background()

	const users = 6
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("user-%d", i)
			_, err := svc.Chat(ctx, uid, "hello from "+uid, "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < users; i++ {
		uid := fmt.Sprintf("user-%d", i)
		stored, err := repo.Load(ctx, uid)
		require.NoError(t, err)
		require.Len(t, stored, 2, "conversation for %s", uid)
		assert.Equal(t, "hello from "+uid, stored[0].Parts[0].Text)
	}
}

func TestChatStorageFailureSurfacesError(t *testing.T) {
	svc := NewChatService(&failingRepo{}, &mockGemini{}, &mockFetcher{})

	_, err := svc.Chat(context.Background(), "42", "Hello", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrStorage)
}

// failingRepo 模拟持久化介质不可用。
type failingRepo struct{}

func (r *failingRepo) Load(ctx context.Context, uid string) ([]model.Message, error) {
	return nil, fmt.Errorf("%w: disk gone", repository.ErrStorage)
}

func (r *failingRepo) Replace(ctx context.Context, uid string, messages []model.Message) error {
	return errors.New("should not be reached")
}

func (r *failingRepo) Delete(ctx context.Context, uid string) error {
	return errors.New("should not be reached")
}
