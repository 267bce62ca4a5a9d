package worker

import (
	"context"
	"encoding/base64"
	"log"

	"github.com/HatmanStack/canvas-demo/logic"
	"github.com/HatmanStack/canvas-demo/models"
	"github.com/HatmanStack/canvas-demo/pkg/queue"
)

// GenerationProcessor 把队列里的生成任务交给网关执行
type GenerationProcessor struct {
	queue   queue.MessageQueue
	gateway *logic.Gateway
}

func NewGenerationProcessor(q queue.MessageQueue, g *logic.Gateway) *GenerationProcessor {
	return &GenerationProcessor{queue: q, gateway: g}
}

// Start 开始消费，阻塞直到队列关闭
func (p *GenerationProcessor) Start() {
	if err := p.queue.Consume(p.process); err != nil {
		log.Fatalf("Failed to consume generation tasks: %v", err)
	}
}

// process 执行一条生成任务。成功返回 base64 PNG，
// 前端可直接拼 data URL 展示。
func (p *GenerationProcessor) process(ctx context.Context, job models.GenerationJob) (string, error) {
	image, err := p.gateway.GenerateImage(ctx, job.Task, job.Config)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(image), nil
}
