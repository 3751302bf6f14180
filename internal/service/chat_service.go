package service

import (
	"context"
	"sync"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/repository"
	"gemini-chat-go/pkg/gemini"
	"gemini-chat-go/pkg/imagefetch"
	"gemini-chat-go/pkg/log"

	"github.com/qmuntal/stateless"
)

// 响应里返回的对话尾部窗口大小。只影响响应视图，完整历史仍整体持久化并整体上送。
const responseWindowSize = 10

// 单次请求的中继状态机状态。
type relayState stateless.State

var (
	stateStart              relayState = "Start"
	stateHistoryLoaded      relayState = "HistoryLoaded"
	stateUserTurnAssembled  relayState = "UserTurnAssembled"
	stateImageAttached      relayState = "ImageAttached"
	stateImageSkipped       relayState = "ImageSkipped"
	stateModelCalled        relayState = "ModelCalled"
	stateModelTurnAssembled relayState = "ModelTurnAssembled"
	statePersisted          relayState = "Persisted"
	stateResponded          relayState = "Responded"
	stateAborted            relayState = "Aborted"
)

// 推动状态机前进的触发器。
type relayTrigger stateless.Trigger

var (
	triggerHistoryLoaded     relayTrigger = "HistoryLoaded"
	triggerUserTurnAssembled relayTrigger = "UserTurnAssembled"
	triggerImageAttached     relayTrigger = "ImageAttached"
	triggerImageSkipped      relayTrigger = "ImageSkipped"
	triggerModelCalled       relayTrigger = "ModelCalled"
	triggerModelTurnBuilt    relayTrigger = "ModelTurnBuilt"
	triggerPersisted         relayTrigger = "Persisted"
	triggerResponded         relayTrigger = "Responded"
	triggerAborted           relayTrigger = "Aborted"
)

// ChatResult 是一轮成功对话的结果。
type ChatResult struct {
	Reply        string
	Conversation []model.Message
}

// ChatService 定义了对话中继的业务接口。
type ChatService interface {
	// Chat 执行一轮完整的对话：载入历史、拼装用户消息（可选附图）、
	// 调用模型、拼装回复并整体持久化，返回回复与历史的尾部视图。
	Chat(ctx context.Context, uid, prompt, imgURL string) (*ChatResult, error)
	// Clear 清空指定用户的全部对话历史。
	Clear(ctx context.Context, uid string) error
}

type chatService struct {
	conversationRepo repository.ConversationRepository
	geminiClient     gemini.Client
	imageFetcher     imagefetch.Fetcher
	assembler        *MessageAssembler

	// 每个 uid 一把锁，持锁范围覆盖 载入→持久化 全程，
	// 保证同一用户的并发请求串行化、不同用户完全并行。
	locksMu   sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(conversationRepo repository.ConversationRepository, geminiClient gemini.Client, imageFetcher imagefetch.Fetcher) ChatService {
	return &chatService{
		conversationRepo: conversationRepo,
		geminiClient:     geminiClient,
		imageFetcher:     imageFetcher,
		assembler:        NewMessageAssembler(),
		userLocks:        make(map[string]*sync.Mutex),
	}
}

// lockFor 返回该 uid 对应的互斥锁，没有就惰性创建。
func (s *chatService) lockFor(uid string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.userLocks[uid]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[uid] = l
	}
	return l
}

// newRelayMachine 构建单次请求的状态机：
// Start → HistoryLoaded → UserTurnAssembled → (ImageAttached | ImageSkipped)
// → ModelCalled → ModelTurnAssembled → Persisted → Responded，
// 任一非终态遇到致命错误进入 Aborted。
func newRelayMachine() *stateless.StateMachine {
	sm := stateless.NewStateMachine(stateStart)
	sm.Configure(stateStart).
		Permit(triggerHistoryLoaded, stateHistoryLoaded).
		Permit(triggerAborted, stateAborted)
	sm.Configure(stateHistoryLoaded).
		Permit(triggerUserTurnAssembled, stateUserTurnAssembled).
		Permit(triggerAborted, stateAborted)
	sm.Configure(stateUserTurnAssembled).
		Permit(triggerImageAttached, stateImageAttached).
		Permit(triggerImageSkipped, stateImageSkipped).
		Permit(triggerAborted, stateAborted)
	sm.Configure(stateImageAttached).
		Permit(triggerModelCalled, stateModelCalled).
		Permit(triggerAborted, stateAborted)
	sm.Configure(stateImageSkipped).
		Permit(triggerModelCalled, stateModelCalled).
		Permit(triggerAborted, stateAborted)
	sm.Configure(stateModelCalled).
		Permit(triggerModelTurnBuilt, stateModelTurnAssembled).
		Permit(triggerAborted, stateAborted)
	sm.Configure(stateModelTurnAssembled).
		Permit(triggerPersisted, statePersisted).
		Permit(triggerAborted, stateAborted)
	sm.Configure(statePersisted).
		Permit(triggerResponded, stateResponded)
	return sm
}

// advance 推动状态机；非法迁移意味着流水线编码错误，只记录不中断。
func advance(sm *stateless.StateMachine, trigger relayTrigger) {
	if err := sm.Fire(stateless.Trigger(trigger)); err != nil {
		log.Errorf("relay state machine: illegal transition on %v: %v", trigger, err)
	}
}

// abort 将状态机切入 Aborted 终态并记录原因。
func abort(sm *stateless.StateMachine, uid string, err error) {
	advance(sm, triggerAborted)
	log.Infow("chat turn aborted", "uid", uid, "error", err)
}

// Chat 实现一轮对话的完整流水线。
func (s *chatService) Chat(ctx context.Context, uid, prompt, imgURL string) (*ChatResult, error) {
	lock := s.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()

	sm := newRelayMachine()

	// 1. 载入该用户的完整对话历史
	conversation, err := s.conversationRepo.Load(ctx, uid)
	if err != nil {
		abort(sm, uid, err)
		return nil, err
	}
	advance(sm, triggerHistoryLoaded)

	// 2. 拼装用户消息（先文本）
	userTurn := s.assembler.BuildUserTurn(prompt, nil)
	advance(sm, triggerUserTurnAssembled)

	// 3. 可选的图片抓取：失败只降级为纯文本，不中断本轮
	if imgURL != "" {
		media, fetchErr := s.imageFetcher.Fetch(ctx, imgURL)
		if fetchErr != nil {
			log.Warnf("Error loading image: %v", fetchErr)
			advance(sm, triggerImageSkipped)
		} else {
			userTurn.Parts = append(userTurn.Parts, model.Part{InlineData: media})
			advance(sm, triggerImageAttached)
		}
	} else {
		advance(sm, triggerImageSkipped)
	}

	conversation = append(conversation, userTurn)

	// 4. 整段历史上送模型。失败则本轮什么都不持久化，
	//    下次载入回到请求前的状态，不会留下无回复的孤儿用户消息。
	reply, err := s.geminiClient.GenerateContent(ctx, s.assembler.BuildContents(conversation))
	if err != nil {
		abort(sm, uid, err)
		return nil, err
	}
	advance(sm, triggerModelCalled)

	// 5. 拼装模型回复（空回复替换为占位文案）
	modelTurn := s.assembler.BuildModelTurn(reply)
	conversation = append(conversation, modelTurn)
	advance(sm, triggerModelTurnBuilt)

	// 6. 用户消息与模型回复作为一次写入整体落盘
	if err := s.conversationRepo.Replace(ctx, uid, conversation); err != nil {
		abort(sm, uid, err)
		return nil, err
	}
	advance(sm, triggerPersisted)

	result := &ChatResult{
		Reply:        modelTurn.Parts[0].Text,
		Conversation: tailView(conversation, responseWindowSize),
	}
	advance(sm, triggerResponded)
	return result, nil
}

// Clear 删除该用户的全部历史；与进行中的对话轮共用同一把用户锁。
func (s *chatService) Clear(ctx context.Context, uid string) error {
	lock := s.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()
	return s.conversationRepo.Delete(ctx, uid)
}

// tailView 返回对话最后 n 条消息的视图。
func tailView(messages []model.Message, n int) []model.Message {
	if len(messages) > n {
		return messages[len(messages)-n:]
	}
	return messages
}
