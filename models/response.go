package models

// ModelResponse Bedrock InvokeModel 返回体，可能是三种形态之一：
// 图像生成 {"images":[...]}、模型报错 {"error":...}、
// 文本生成 {"output":{"message":{"content":[{"text":...}]}}}。
type ModelResponse struct {
	Images []string       `json:"images,omitempty"`
	Error  *string        `json:"error,omitempty"`
	Output *MessageOutput `json:"output,omitempty"`
}

type MessageOutput struct {
	Message MessageBody `json:"message"`
}

type MessageBody struct {
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Text string `json:"text"`
}

// PromptRequest Nova 文本模型的 InvokeModel 请求体
type PromptRequest struct {
	Messages []PromptMessage `json:"messages"`
}

type PromptMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}
