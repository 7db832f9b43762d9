// ============================================================================
// Event Stream - 外部事件來源與 task 之間的橋樑
// ============================================================================
//
// Package: internal/events
// 文件: stream.go
// 功能: 有界事件佇列 + 單一 waker，生產者只記錄事件並喚醒，從不直接執行 task
//
// 流程:
//   producer goroutine ──Push──→ [ring buffer] ──Poll──→ consumer task
//                          │                        │
//                          └── waker.Wake() ←───────┘ (Pending 時登記 waker)
//
// 規則:
//   1. 緩衝區滿時丟棄事件並計數，生產者永不阻塞
//   2. waker 被取出後才喚醒，連續 Push 只會產生一次喚醒，
//      不會讓同一個 task id 塞滿 ReadyQueue
//   3. 消費者在 Pending 前必須重新登記 waker
//
// ============================================================================

package events

import (
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/spacetime-runtime/internal/task"
)

// DefaultCapacity 預設事件緩衝區大小
const DefaultCapacity = 100

// Stream 有界事件佇列
type Stream[E any] struct {
	mu    sync.Mutex
	buf   []E
	head  int
	size  int
	waker *task.Waker

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewStream 建立事件佇列；capacity <= 0 時使用 DefaultCapacity
func NewStream[E any](capacity int) *Stream[E] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stream[E]{buf: make([]E, capacity)}
}

// Push 記錄事件並喚醒已登記的消費者
//
// 返回值：
//   - bool: false 表示緩衝區已滿，事件被丟棄
func (s *Stream[E]) Push(event E) bool {
	s.mu.Lock()
	if s.size == len(s.buf) {
		s.mu.Unlock()
		s.dropped.Add(1)
		return false
	}
	s.buf[(s.head+s.size)%len(s.buf)] = event
	s.size++
	w := s.waker
	s.waker = nil
	s.mu.Unlock()

	s.pushed.Add(1)
	w.Wake()
	return true
}

// Poll 取出下一個事件；沒有事件時登記 w 並回傳 false
func (s *Stream[E]) Poll(w *task.Waker) (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		s.waker = w
		var zero E
		return zero, false
	}
	event := s.buf[s.head]
	var zero E
	s.buf[s.head] = zero
	s.head = (s.head + 1) % len(s.buf)
	s.size--
	return event, true
}

// Len 目前緩衝的事件數
func (s *Stream[E]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Pushed 已接受的事件總數
func (s *Stream[E]) Pushed() uint64 { return s.pushed.Load() }

// Dropped 因緩衝區滿而丟棄的事件總數
func (s *Stream[E]) Dropped() uint64 { return s.dropped.Load() }

// Consume 回傳一個永不完成的 computation：
// 每次被喚醒時處理所有已緩衝事件，處理完後登記 waker 並暫停
func Consume[E any](s *Stream[E], handle func(E)) task.Computation {
	return task.Func(func(w *task.Waker) task.Poll {
		for {
			event, ok := s.Poll(w)
			if !ok {
				return task.Pending
			}
			handle(event)
		}
	})
}
