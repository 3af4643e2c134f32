package http

import (
	"sync"
)

// StreamManager fans out serialized step events to SSE subscribers of a thread.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // ThreadID -> set of channels
	dropped     int
}

// NewStreamManager creates an empty manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
	}
}

// Subscribe registers a buffered channel for threadID. The returned func
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(threadID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[threadID]; !ok {
		sm.subscribers[threadID] = make(map[chan string]struct{})
	}
	sm.subscribers[threadID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[threadID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, threadID)
				}
			}
		})
	}
}

// Broadcast delivers msg to every subscriber of threadID. Slow subscribers
// with a full buffer miss the message.
func (sm *StreamManager) Broadcast(threadID, msg string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for ch := range sm.subscribers[threadID] {
		select {
		case ch <- msg:
		default:
			sm.dropped++
		}
	}
}

// Subscribers returns the number of subscribers of threadID.
func (sm *StreamManager) Subscribers(threadID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[threadID])
}

// Dropped returns how many messages were skipped for slow subscribers.
func (sm *StreamManager) Dropped() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.dropped
}
