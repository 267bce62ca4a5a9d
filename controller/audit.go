package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HatmanStack/canvas-demo/dao/mysql"
)

// ListAuditRecords 查询最近的生成审计记录
// @Summary 最近的生成审计记录
// @Tags Audit
// @Produce json
// @Param limit query int false "返回条数，默认 20，最大 100"
// @Success 200 {array} mysql.AuditRecord
// @Failure 500 {object} map[string]string "server error"
// @Router /api/v1/audit [get]
func ListAuditRecords(c *gin.Context) {
	limit := 20
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	records, err := mysql.RecentAuditRecords(limit)
	if err != nil {
		zap.L().Error("failed to list audit records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
