// ============================================================================
// Spacetime Ready Queue - 有界就緒佇列
// ============================================================================
//
// Package: internal/executor
// 文件: ready_queue.go
// 功能: 固定容量的任務 ID 佇列（FIFO），可從任何 goroutine 推入
//
// 設計要點:
//   1. 環形緩衝區，容量在建立時固定（預設 100）
//   2. Push 超過容量時回傳 ErrQueueFull，由呼叫者決定是否視為致命錯誤
//   3. notify channel（容量 1）讓執行器在佇列為空時休眠，
//      檢查與等待之間推入的 ID 不會遺失喚醒
//
// 並發安全:
//   - sync.Mutex 保護緩衝區
//   - 生產者（waker、事件來源、Spawner）與消費者（執行器迴圈）可同時操作
//
// ============================================================================

package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// DefaultQueueCapacity 預設的就緒佇列容量
const DefaultQueueCapacity = 100

// ReadyQueue 有界、並發安全的任務 ID 佇列
type ReadyQueue struct {
	mu     sync.Mutex
	buf    []types.TaskID // 環形緩衝區
	head   int            // 下一個要取出的位置
	size   int            // 目前元素數量
	notify chan struct{}  // 推入時發送的喚醒訊號
}

// NewReadyQueue 建立指定容量的就緒佇列
//
// 參數：
//   - capacity: 佇列容量，<= 0 時使用 DefaultQueueCapacity
//
// 返回值：
//   - *ReadyQueue: 空佇列
func NewReadyQueue(capacity int) *ReadyQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &ReadyQueue{
		buf:    make([]types.TaskID, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push 將任務 ID 推入佇列尾端
//
// 返回值：
//   - error: 佇列已滿時回傳 ErrQueueFull
func (q *ReadyQueue) Push(id types.TaskID) error {
	q.mu.Lock()
	if q.size == len(q.buf) {
		q.mu.Unlock()
		return fmt.Errorf("%w: capacity %d, task %d", ErrQueueFull, len(q.buf), id)
	}
	q.buf[(q.head+q.size)%len(q.buf)] = id
	q.size++
	q.mu.Unlock()

	// 非阻塞通知；已有待處理訊號時直接略過
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop 取出佇列頭端的任務 ID
func (q *ReadyQueue) Pop() (types.TaskID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return 0, false
	}
	id := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return id, true
}

// Len 目前佇列中的 ID 數量
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap 佇列容量
func (q *ReadyQueue) Cap() int {
	return len(q.buf)
}

// IsEmpty 佇列是否為空
func (q *ReadyQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Wait 在佇列為空時阻塞，直到有 ID 推入或 ctx 結束
//
// 檢查在鎖內完成；檢查之後才推入的 ID 會在 notify 留下訊號，
// 所以 select 一定會被喚醒。殘留的舊訊號最多造成一次空轉。
//
// 返回值：
//   - bool: false 表示 ctx 已結束
func (q *ReadyQueue) Wait(ctx context.Context) bool {
	q.mu.Lock()
	if q.size > 0 {
		q.mu.Unlock()
		return true
	}
	q.mu.Unlock()

	select {
	case <-q.notify:
		return true
	case <-ctx.Done():
		return false
	}
}
