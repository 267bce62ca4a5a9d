package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HatmanStack/canvas-demo/config"
	"github.com/HatmanStack/canvas-demo/controller"
	"github.com/HatmanStack/canvas-demo/dao/mysql"
	"github.com/HatmanStack/canvas-demo/dao/object"
	"github.com/HatmanStack/canvas-demo/dao/store"
	"github.com/HatmanStack/canvas-demo/logic"
	"github.com/HatmanStack/canvas-demo/pkg/bedrock"
	"github.com/HatmanStack/canvas-demo/pkg/queue"
	"github.com/HatmanStack/canvas-demo/pkg/safety"
	"github.com/HatmanStack/canvas-demo/pkg/sse"
	"github.com/HatmanStack/canvas-demo/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Redis：任务状态 + 配额账本
	if err := store.Init(cfg.RedisAddr); err != nil {
		log.Fatalf("Failed to init Redis: %v", err)
	}

	// MySQL：审计索引
	if err := mysql.Init(cfg.MySQLDSN); err != nil {
		log.Fatalf("Failed to init MySQL: %v", err)
	}
	defer mysql.Close()

	ctx := context.Background()

	invoker, err := bedrock.NewClient(ctx, cfg.AWSID, cfg.AWSSecret, cfg.ModelRegion, cfg.InvokeTimeout)
	if err != nil {
		log.Fatalf("Failed to init model client: %v", err)
	}

	audit, err := object.NewAuditStore(ctx, cfg.AWSID, cfg.AWSSecret, cfg.BucketRegion, cfg.Bucket)
	if err != nil {
		log.Fatalf("Failed to init audit store: %v", err)
	}

	// 未配置 HF_TOKEN 时跳过内容安全检查
	var filter logic.SafetyChecker
	if cfg.HFToken != "" {
		filter = safety.NewFilter(cfg.HFToken)
	} else {
		zap.L().Warn("HF_TOKEN not set, content safety filter disabled")
	}

	ledger := store.NewLedger(store.GetRedis(), cfg.RateLimit)

	gateway := logic.NewGateway(invoker, cfg.ImageModelID, cfg.PromptModelID, ledger, audit, filter, cfg.SeedsPath)
	controller.Init(gateway)

	// 初始化单例 RabbitMQ 并启动消费者
	if err := queue.InitRabbitMQ(cfg.AMQPDSN); err != nil {
		log.Fatalf("Failed to init RabbitMQ: %v", err)
	}
	rabbitMQ, err := queue.GetRabbitMQ()
	if err != nil {
		log.Fatalf("Failed to get RabbitMQ instance: %v", err)
	}
	defer rabbitMQ.Close()

	processor := worker.NewGenerationProcessor(rabbitMQ, gateway)
	go processor.Start()

	r := gin.Default()

	// 初始化并启动 SSE hub
	sseHub := sse.NewHub()
	sse.SetDefaultHub(sseHub)
	go sseHub.Run()

	r.GET("/events", sse.ServeSSE)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/generate", controller.SubmitGenerationTask)
		v1.GET("/generate/:task_id", controller.GetGenerationResult)
		v1.POST("/generate/sync", controller.GenerateImageSync)
		v1.POST("/generate/sync/json", controller.GenerateImageSyncJSON)
		v1.POST("/prompt", controller.GeneratePromptHandler)
		v1.GET("/audit", controller.ListAuditRecords)
	}

	if err := r.Run(cfg.Addr); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
