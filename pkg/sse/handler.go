package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServeSSE 处理 SSE（Server-Sent Events）连接
// @Summary 订阅任务事件流（SSE）
// @Description 建立 SSE 长连接接收任务完成推送。通过查询参数 `task_id` 指定订阅的任务，例如 `/events?task_id=xxx`。生成任务进入终态（completed/failed）后推送消息。
// @Tags SSE
// @Accept  json
// @Produce text/event-stream
// @Param task_id query string true "Task ID / topic to subscribe"
// @Success 200 {string} string "event stream"
// @Failure 400 {string} string "missing topic"
// @Failure 500 {string} string "server error"
// @Router /events [get]
func ServeSSE(c *gin.Context) {
	topic := c.Query("task_id")
	if topic == "" {
		c.String(http.StatusBadRequest, "missing topic")
		return
	}

	h := GetHub()
	if h == nil {
		c.String(http.StatusInternalServerError, "sse hub not initialized")
		return
	}

	// SSE 必要的响应头，确保浏览器或代理以流式方式处理
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// 每个连接专用的事件通道（缓冲 16）
	msgCh := make(chan Event, 16)
	h.Subscribe(msgCh, topic)
	defer h.Unsubscribe(msgCh, topic)

	notify := c.Request.Context().Done()
	// 发送一个注释作为初次握手 / 保活 ping
	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-notify:
			return
		case ev := <-msgCh:
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", b)
			log.Printf("Sent event for task %s", topic)
			flusher.Flush()
		}
	}
}
