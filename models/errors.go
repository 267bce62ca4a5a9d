package models

import "errors"

// 用户可见的固定提示文案，与前端展示保持一致
const NotAppropriateMessage = "Image <b>Not Appropriate</b>"

const RateLimitMessage = `<div style='text-align: center;'>Rate limit exceeded. Check back later, use the
            <a href='https://docs.aws.amazon.com/bedrock/latest/userguide/playgrounds.html'>Bedrock Playground</a> or
            try it out without an AWS account on <a href='https://partyrock.aws/'>PartyRock</a>.</div>`

// ErrContentRejected 安全过滤器拒绝，硬闸门：后续不得调用生成模型
var ErrContentRejected = errors.New(NotAppropriateMessage)

// ErrRateLimitExceeded 配额不足，直接作为可渲染结果返回给调用方
var ErrRateLimitExceeded = errors.New(RateLimitMessage)

// ValidationError 输入缺失或非法，本地校验产生
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// GenerationError 远端模型返回语义错误或意外响应形态
type GenerationError struct {
	Detail string
}

func (e *GenerationError) Error() string { return "Generation error: " + e.Detail }

// TransientServiceError 远端调用的网络/客户端错误
type TransientServiceError struct {
	Err error
}

func (e *TransientServiceError) Error() string { return "Client error: " + e.Err.Error() }

func (e *TransientServiceError) Unwrap() error { return e.Err }

// ClassificationError 安全分类服务重试耗尽或响应无法解析
type ClassificationError struct {
	Message string
}

func (e *ClassificationError) Error() string { return e.Message }
