// Package model 包含了应用的数据模型定义。
package model

// 对话角色常量：Gemini 的多轮对话只区分 "user" 与 "model" 两种角色。
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// InlineData 代表以 base64 编码内联在请求体中的二进制媒体内容。
// 字段名与 Gemini v1beta 接口的 snake_case 载荷保持一致。
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Part 代表一条消息中的单个内容单元，文本与内联媒体二选一。
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// Message 代表对话历史中的一轮消息，Parts 的顺序有语义（文本在前，媒体在后）。
// 不变量：一条 Message 至少包含一个 Part。
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextPart 构造一个纯文本 Part。
func NewTextPart(text string) Part {
	return Part{Text: text}
}

// NewInlineDataPart 构造一个内联媒体 Part。
func NewInlineDataPart(mimeType, data string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: data}}
}

// CloneMessages 返回消息切片的深拷贝，避免仓储层与调用方共享可变引用。
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	cloned := make([]Message, len(messages))
	for i, m := range messages {
		parts := make([]Part, len(m.Parts))
		for j, p := range m.Parts {
			parts[j] = p
			if p.InlineData != nil {
				data := *p.InlineData
				parts[j].InlineData = &data
			}
		}
		cloned[i] = Message{Role: m.Role, Parts: parts}
	}
	return cloned
}
