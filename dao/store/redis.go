package store

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/HatmanStack/canvas-demo/models"
)

var Client *redis.Client

// 任务结果保留 24 小时
const jobTTL = 24 * time.Hour

func Init(addr string) error {
	Client = redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return Client.Ping(context.Background()).Err()
}

func GetRedis() *redis.Client {
	return Client
}

// SaveJob 将任务信封写入 redis hash，HSet 与 Expire 放在同一个 pipeline 里
func SaveJob(ctx context.Context, job models.GenerationJob) error {
	key := "task:" + job.TaskID
	fields := map[string]interface{}{
		"task_type":  string(job.Task.Type),
		"status":     job.Status,
		"result":     job.Result,
		"priority":   job.Priority,
		"created_at": job.CreatedAt,
	}
	pipe := Client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetJob 读取任务状态与结果
func GetJob(ctx context.Context, taskID string) (models.GenerationResponse, error) {
	key := "task:" + taskID
	hash, err := Client.HGetAll(ctx, key).Result()
	if err != nil {
		return models.GenerationResponse{}, err
	}
	if len(hash) == 0 {
		return models.GenerationResponse{}, redis.Nil
	}
	return models.GenerationResponse{
		TaskID: taskID,
		Status: hash["status"],
		Result: hash["result"],
	}, nil
}
