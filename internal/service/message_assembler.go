// Package service 包含了应用的业务逻辑层。
package service

import (
	"gemini-chat-go/internal/model"
)

// NoResponsePlaceholder 是模型未返回任何可用文本时写入历史的固定占位文案。
const NoResponsePlaceholder = "No response from Gemini."

// MessageAssembler 负责把输入拼装为对话消息，以及把完整历史映射为出站请求内容。
type MessageAssembler struct{}

// NewMessageAssembler 创建一个新的 MessageAssembler。
func NewMessageAssembler() *MessageAssembler {
	return &MessageAssembler{}
}

// BuildUserTurn 构造一条用户消息：文本 Part 在前，内联媒体（如有）追加在后。
func (a *MessageAssembler) BuildUserTurn(prompt string, media *model.InlineData) model.Message {
	parts := []model.Part{model.NewTextPart(prompt)}
	if media != nil {
		parts = append(parts, model.Part{InlineData: media})
	}
	return model.Message{Role: model.RoleUser, Parts: parts}
}

// BuildModelTurn 构造一条模型回复消息；回复为空时落一条固定占位文案而非失败。
func (a *MessageAssembler) BuildModelTurn(reply string) model.Message {
	if reply == "" {
		reply = NoResponsePlaceholder
	}
	return model.Message{Role: model.RoleModel, Parts: []model.Part{model.NewTextPart(reply)}}
}

// BuildContents 把存储的完整对话按原有顺序与内容逐条映射为出站请求的 contents。
// 每轮都整体上送，不做截断或摘要。
func (a *MessageAssembler) BuildContents(conversation []model.Message) []model.Message {
	contents := make([]model.Message, 0, len(conversation))
	for _, msg := range conversation {
		contents = append(contents, model.Message{Role: msg.Role, Parts: msg.Parts})
	}
	return contents
}
