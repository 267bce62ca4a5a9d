package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GeneratePromptHandler 随机生成图像提示词
// @Summary 生成图像提示词
// @Description 从种子概念随机抽取并用文本模型扩写成完整提示词，不占用图像配额
// @Tags Prompt
// @Produce json
// @Success 200 {object} map[string]string "prompt 文本"
// @Failure 500 {object} map[string]string "server error"
// @Router /api/v1/prompt [post]
func GeneratePromptHandler(c *gin.Context) {
	prompt, err := gateway.GeneratePrompt(c.Request.Context())
	if err != nil {
		zap.L().Error("failed to generate prompt", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}
