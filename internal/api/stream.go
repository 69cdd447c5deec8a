package api

import (
	"sync"

	"ransomguard/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	streamAlerts = "alerts"
	streamEvents = "events"
)

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type subscriber struct {
	stream  string
	channel chan wsMessage
}

// Hub fans persisted records out to connected WebSocket clients. Slow
// clients lose messages instead of blocking the pipeline.
type Hub struct {
	logger *logrus.Logger

	mu   sync.RWMutex
	subs map[*subscriber]bool
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]bool),
	}
}

func (h *Hub) subscribe(stream string) *subscriber {
	sub := &subscriber{
		stream:  stream,
		channel: make(chan wsMessage, 64),
	}
	h.mu.Lock()
	h.subs[sub] = true
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	if h.subs[sub] {
		delete(h.subs, sub)
		close(sub.channel)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(stream string, msg wsMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.stream != stream {
			continue
		}
		select {
		case sub.channel <- msg:
		default:
			h.logger.Debug("Dropping streamed message for slow client")
		}
	}
}

// BroadcastAlert pushes a new alert to all alert-stream clients.
func (h *Hub) BroadcastAlert(alert model.Alert) {
	h.broadcast(streamAlerts, wsMessage{Type: "new_alert", Data: alert})
}

// BroadcastFileEvent pushes a new file event to all event-stream clients.
func (h *Hub) BroadcastFileEvent(event model.FileEvent) {
	h.broadcast(streamEvents, wsMessage{Type: "new_file_event", Data: event})
}
