package realtime

import (
	"log"
	"sync"
)

// BoardHub рассылает снимки доски всем подписчикам этой доски.
type BoardHub struct {
	mu     sync.RWMutex
	boards map[string]map[*Conn]struct{}
}

func NewBoardHub() *BoardHub {
	return &BoardHub{
		boards: make(map[string]map[*Conn]struct{}),
	}
}

func (h *BoardHub) Register(boardID string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.boards[boardID] == nil {
		h.boards[boardID] = make(map[*Conn]struct{})
	}
	h.boards[boardID][conn] = struct{}{}
}

func (h *BoardHub) Unregister(boardID string, conn *Conn) {
	h.mu.Lock()
	if conns, ok := h.boards[boardID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.boards, boardID)
		}
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// Subscribers: число подключений к доске.
func (h *BoardHub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[boardID])
}

// Publish пишет payload каждому подписчику; тех, кто не принял кадр, отключает.
func (h *BoardHub) Publish(boardID string, payload interface{}) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.boards[boardID]))
	for conn := range h.boards[boardID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(payload); err != nil {
			log.Printf("[hub] drop subscriber of board %s: %v", boardID, err)
			h.Unregister(boardID, conn)
		}
	}
}

// CloseBoard отключает всех подписчиков закрытой доски.
func (h *BoardHub) CloseBoard(boardID string) {
	h.mu.Lock()
	conns := h.boards[boardID]
	delete(h.boards, boardID)
	h.mu.Unlock()

	for conn := range conns {
		_ = conn.Close()
	}
}
