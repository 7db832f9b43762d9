// ============================================================================
// Spacetime Task Set - 停放中任務的集合
// ============================================================================
//
// Package: internal/executor
// 文件: task_set.go
// 功能: 以 TaskID 為鍵保存所有停放（Parked）中的任務
//
// 所有權規則:
//   - 任務閒置時由 TaskSet 獨佔
//   - 執行器取出（Remove）後由單一 Resume 呼叫獨佔
//   - 同一 ID 永遠只有一個實例：不是在集合中，就是正在執行
//
// 並發安全:
//   - Executor、Spawner、Registry 共用同一個 *TaskSet
//   - 使用 sync.RWMutex 保護，讀操作使用 RLock
//
// ============================================================================

package executor

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ChuLiYu/spacetime-runtime/internal/task"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// TaskSet 停放中任務的並發安全集合
type TaskSet struct {
	mu    sync.RWMutex
	tasks map[types.TaskID]*task.Task
}

// NewTaskSet 建立空的任務集合
func NewTaskSet() *TaskSet {
	return &TaskSet{
		tasks: make(map[types.TaskID]*task.Task),
	}
}

// Insert 加入任務
//
// 返回值：
//   - error: ID 已存在時回傳 ErrDuplicateTask
func (s *TaskSet) Insert(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("%w: task %d", ErrDuplicateTask, t.ID)
	}
	s.tasks[t.ID] = t
	return nil
}

// Remove 取出任務並轉移所有權給呼叫者
func (s *TaskSet) Remove(id types.TaskID) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return nil, false
	}
	delete(s.tasks, id)
	return t, true
}

// Contains 檢查任務是否停放中
func (s *TaskSet) Contains(id types.TaskID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.tasks[id]
	return exists
}

// Len 停放中的任務數量
func (s *TaskSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// IDs 依序回傳所有停放中的任務 ID
func (s *TaskSet) IDs() []types.TaskID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]types.TaskID, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
