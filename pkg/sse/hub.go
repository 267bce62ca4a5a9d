package sse

// Event 推送给订阅者的任务终态事件
type Event struct {
	Code   int    `json:"code"`
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	At     int64  `json:"at"`
}

// Hub 按 task_id 把任务终态事件分发给 SSE 连接。
// topics 只被 Run 这一个 goroutine 访问，
// 三个控制通道就是全部的同步手段。
type Hub struct {
	// task_id -> 订阅该任务的连接通道集合。
	// 通道的所有者（SSE handler）负责关闭，Hub 只负责发送。
	topics map[string]map[chan Event]bool

	subscribe   chan subscription
	unsubscribe chan subscription
	events      chan Event
}

type subscription struct {
	ch     chan Event
	taskID string
}

var defaultHub *Hub

// NewHub 创建事件 Hub。events 通道带缓冲（100），
// 缓冲短时突发的发布，避免 worker 被阻塞。
func NewHub() *Hub {
	return &Hub{
		topics:      make(map[string]map[chan Event]bool),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		events:      make(chan Event, 100),
	}
}

// SetDefaultHub sets the package-level default hub
func SetDefaultHub(h *Hub) {
	defaultHub = h
}

// GetHub returns the default hub (may be nil if not set)
func GetHub() *Hub {
	return defaultHub
}

// Run 启动分发循环，独占 topics，应在单独的 goroutine 中运行：
//
//	hub := sse.NewHub()
//	go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.subscribe:
			subs, ok := h.topics[s.taskID]
			if !ok {
				subs = make(map[chan Event]bool)
				h.topics[s.taskID] = subs
			}
			subs[s.ch] = true
		case s := <-h.unsubscribe:
			if subs, ok := h.topics[s.taskID]; ok {
				delete(subs, s.ch)
				if len(subs) == 0 {
					delete(h.topics, s.taskID)
				}
			}
		case ev := <-h.events:
			for ch := range h.topics[ev.TaskID] {
				select {
				case ch <- ev:
				default:
					// 订阅方不读就丢弃，分发循环不能被单个慢连接拖住
				}
			}
		}
	}
}

// Publish 向订阅了该任务的所有连接推送终态事件
func (h *Hub) Publish(ev Event) {
	h.events <- ev
}

// Subscribe 为某个任务注册订阅通道。
// 调用方应提供有缓冲的通道，并在连接结束时取消订阅。
func (h *Hub) Subscribe(ch chan Event, taskID string) {
	h.subscribe <- subscription{ch: ch, taskID: taskID}
}

// Unsubscribe 取消某个通道对任务的订阅
func (h *Hub) Unsubscribe(ch chan Event, taskID string) {
	h.unsubscribe <- subscription{ch: ch, taskID: taskID}
}
