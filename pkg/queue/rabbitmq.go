package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/HatmanStack/canvas-demo/dao/store"
	"github.com/HatmanStack/canvas-demo/models"
	"github.com/HatmanStack/canvas-demo/pkg/sse"
)

// GenerateFunc 由 worker 注入的生成执行函数，
// 成功返回可直接展示的结果（base64 PNG），失败返回分类后的错误。
type GenerateFunc func(ctx context.Context, job models.GenerationJob) (string, error)

// MessageQueue 生成任务队列最小接口
type MessageQueue interface {
	Publish(b []byte, priority int) error
	Consume(fn GenerateFunc) error
	Close() error
}

var (
	rabbitOnce     sync.Once
	rabbitInstance MessageQueue
	rabbitInitErr  error
)

// InitRabbitMQ 使用单例模式初始化 RabbitMQ（首次调用生效，后续调用忽略）
func InitRabbitMQ(dsn string) error {
	rabbitOnce.Do(func() {
		inst, err := newAMQPQueue(dsn)
		if err != nil {
			rabbitInitErr = err
			log.Printf("failed to init AMQP queue: %v", err)
			return
		}
		rabbitInstance = inst
	})
	return rabbitInitErr
}

// GetRabbitMQ 返回单例的 MessageQueue，如果未初始化或初始化失败会返回错误
func GetRabbitMQ() (MessageQueue, error) {
	if rabbitInstance == nil {
		if rabbitInitErr != nil {
			return nil, rabbitInitErr
		}
		return nil, errors.New("rabbitmq not initialized; call InitRabbitMQ")
	}
	return rabbitInstance, nil
}

// --- AMQP 实现 ---------------------------------------------------------

type amqpQueue struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
}

func newAMQPQueue(dsn string) (MessageQueue, error) {
	conn, err := amqp.Dial(dsn)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// 死信交换机与队列：非法消息和重试耗尽的消息都进 DLQ
	dlxName := "generation_dlq_exchange"
	dlqName := "generation_dlq"

	if err := ch.ExchangeDeclare(dlxName, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.QueueBind(dlqName, dlqName, dlxName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxName,
		"x-dead-letter-routing-key": dlqName,
		"x-max-priority":            10,
	}

	q, err := ch.QueueDeclare(
		"generation_tasks",
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// 生成任务较耗资源，prefetch 与消费者并发数保持一致
	_ = ch.Qos(5, 0, false)

	return &amqpQueue{conn: conn, ch: ch, queueName: q.Name}, nil
}

func (q *amqpQueue) Publish(b []byte, priority int) error {
	return q.ch.Publish(
		"", q.queueName, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         b,
			DeliveryMode: amqp.Persistent,
			Priority:     uint8(priority),
		},
	)
}

// publishWithHeaders 带 header 重新发布（用于重试计数）
func (q *amqpQueue) publishWithHeaders(b []byte, headers amqp.Table) error {
	return q.ch.Publish("", q.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         b,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Priority:     5,
	})
}

// Consume 消费生成任务。每条消息在独立 goroutine 中处理，
// 并发数由信号量限制；瞬时错误按 x-attempts 计数重试，
// 永久错误（输入非法、内容拒绝、配额不足、模型语义错误）不重试，
// 错误文案直接作为任务结果写回，调用方可直接渲染。
func (q *amqpQueue) Consume(fn GenerateFunc) error {
	deliveries, err := q.ch.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	concurrency := 5
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for d := range deliveries {
		sem <- struct{}{}
		wg.Add(1)

		go func(del amqp.Delivery) {
			defer func() { <-sem; wg.Done() }()

			var job models.GenerationJob
			if err := json.Unmarshal(del.Body, &job); err != nil {
				log.Printf("Invalid generation task payload: %v", err)
				_ = del.Nack(false, false) // 进入DLQ
				return
			}

			ctx := context.Background()

			// 更新任务状态为处理中
			job.Status = models.StatusProcessing
			if err := store.SaveJob(ctx, job); err != nil {
				log.Printf("Failed to update task status to processing, task id: %s: %v", job.TaskID, err)
				_ = del.Nack(false, true) // 重试
				return
			}

			result, err := fn(ctx, job)
			if err != nil {
				if isPermanent(err) {
					log.Printf("Permanent error in generation, task id: %s: %v", job.TaskID, err)
					job.Status = models.StatusFailed
					job.Result = err.Error() // 可渲染的错误文案
					_ = store.SaveJob(ctx, job)
					notify(job)
					_ = del.Ack(false)
					return
				}

				attempts := attemptCount(del.Headers)
				maxRetries := 3
				if attempts >= maxRetries {
					log.Printf("Generation task exceeded retries, task id: %s: %v", job.TaskID, err)
					job.Status = models.StatusFailed
					job.Result = err.Error()
					_ = store.SaveJob(ctx, job)
					notify(job)
					_ = del.Nack(false, false) // 进入DLQ
					return
				}

				newHeaders := amqp.Table{"x-attempts": attempts + 1}
				for k, v := range del.Headers {
					if k != "x-attempts" {
						newHeaders[k] = v
					}
				}
				if err := q.publishWithHeaders(del.Body, newHeaders); err != nil {
					log.Printf("Failed to republish message for retry, task id: %s: %v", job.TaskID, err)
					_ = del.Nack(false, false)
					return
				}
				log.Printf("Requeued generation task for retry #%d, task id: %s", attempts+1, job.TaskID)
				_ = del.Ack(false)
				return
			}

			job.Status = models.StatusCompleted
			job.Result = result
			if err := store.SaveJob(ctx, job); err != nil {
				log.Printf("Failed to update task result, task id: %s: %v", job.TaskID, err)
				if del.Redelivered {
					_ = del.Nack(false, false)
				} else {
					_ = del.Nack(false, true)
				}
				return
			}

			notify(job)
			_ = del.Ack(false)
			log.Printf("Generation task completed, task id: %s", job.TaskID)
		}(d)
	}

	wg.Wait()
	return nil
}

// isPermanent 判断错误是否不可重试
func isPermanent(err error) bool {
	var ve *models.ValidationError
	var ge *models.GenerationError
	return errors.As(err, &ve) ||
		errors.As(err, &ge) ||
		errors.Is(err, models.ErrContentRejected) ||
		errors.Is(err, models.ErrRateLimitExceeded)
}

func attemptCount(headers amqp.Table) int {
	h, ok := headers["x-attempts"]
	if !ok {
		return 0
	}
	switch v := h.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// notify 通过 SSE 按 task_id 推送任务终态
func notify(job models.GenerationJob) {
	hub := sse.GetHub()
	if hub == nil {
		return
	}
	hub.Publish(sse.Event{
		Code:   200,
		TaskID: job.TaskID,
		Status: job.Status,
		Result: job.Result,
		At:     time.Now().Unix(),
	})
}

func (q *amqpQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
