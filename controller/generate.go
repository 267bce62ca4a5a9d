package controller

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HatmanStack/canvas-demo/dao/store"
	"github.com/HatmanStack/canvas-demo/logic"
	"github.com/HatmanStack/canvas-demo/models"
	"github.com/HatmanStack/canvas-demo/pkg/queue"
)

var gateway *logic.Gateway

// Init 注入生成网关，必须在注册路由前调用
func Init(g *logic.Gateway) {
	gateway = g
}

// SubmitRequest 异步生成任务的提交体
type SubmitRequest struct {
	Task     models.GenerationTask        `json:"task" binding:"required"`
	Config   models.ImageGenerationConfig `json:"config"`
	Priority int                          `json:"priority"`
}

// SubmitGenerationTask 提交生成任务
// @Summary 提交图像生成任务
// @Description 任务进入队列异步执行，返回 task_id。结果通过轮询或 SSE 获取。
// @Tags Generation
// @Accept json
// @Produce json
// @Param request body SubmitRequest true "生成任务"
// @Success 202 {object} map[string]string "task_id 与状态"
// @Failure 400 {object} map[string]string "invalid request"
// @Failure 500 {object} map[string]string "server error"
// @Router /api/v1/generate [post]
func SubmitGenerationTask(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zap.L().Error("submit with invalid param", zap.Error(err))
		if _, ok := err.(validator.ValidationErrors); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	job := models.GenerationJob{
		TaskID:    uuid.New().String(),
		Task:      req.Task,
		Config:    req.Config,
		Priority:  req.Priority,
		Status:    models.StatusPending,
		CreatedAt: time.Now().Unix(),
	}

	// 保存初始状态
	if err := store.SaveJob(c.Request.Context(), job); err != nil {
		zap.L().Error("failed to store task", zap.String("task_id", job.TaskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}

	// 发送到消息队列
	mq, err := queue.GetRabbitMQ()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get message queue"})
		return
	}
	b, err := json.Marshal(job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serialize task"})
		return
	}
	if err := mq.Publish(b, job.Priority); err != nil {
		zap.L().Error("failed to publish task", zap.String("task_id", job.TaskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": job.TaskID, "status": "submitted"})
}

// GetGenerationResult 查询任务状态与结果
// @Summary 查询生成任务结果
// @Tags Generation
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} models.GenerationResponse
// @Failure 404 {object} map[string]string "task not found"
// @Router /api/v1/generate/:task_id [get]
func GetGenerationResult(c *gin.Context) {
	taskID := c.Param("task_id")
	resp, err := store.GetJob(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		zap.L().Error("failed to get task", zap.String("task_id", taskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GenerateImageSync 同步生成图像
// @Summary 同步生成图像
// @Description 阻塞等待生成结果。成功返回 image/png 字节；
// 失败返回 200 + 可直接渲染的错误文案（限流 / 内容拒绝 / 输入非法等）。
// @Tags Generation
// @Accept json
// @Produce png
// @Param request body SubmitRequest true "生成任务"
// @Success 200 {string} binary "PNG bytes or error message"
// @Router /api/v1/generate/sync [post]
func GenerateImageSync(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	image, err := gateway.GenerateImage(c.Request.Context(), req.Task, req.Config)
	if err != nil {
		// 错误即文案，调用方直接展示
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", image)
}

// GenerateImageSyncJSON 同步生成并以 JSON 返回 base64 结果（前端拼 data URL 用）
func GenerateImageSyncJSON(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	image, err := gateway.GenerateImage(c.Request.Context(), req.Task, req.Config)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": base64.StdEncoding.EncodeToString(image)})
}
