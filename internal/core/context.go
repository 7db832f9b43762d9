// ============================================================================
// ReducerContext - 能力物件
// ============================================================================
//
// Package: internal/core
// 文件: context.go
// 功能: 每次 reducer 呼叫都會得到一個 ReducerContext，帶著呼叫者模組與存取等級
//
// 存取規則:
//   目標模組 == 自身模組 || 存取等級 == Admin，否則回傳 ErrAccessDenied
//
//   ┌──────────────────┬────────────┬──────────────┐
//   │ 操作             │ Standard   │ Admin        │
//   ├──────────────────┼────────────┼──────────────┤
//   │ 自身模組讀寫     │ 允許       │ 允許         │
//   │ 其他模組讀寫     │ 拒絕       │ 允許         │
//   │ GetModulesID     │ 拒絕       │ 允許         │
//   │ InsertModule     │ 拒絕       │ 允許         │
//   │ CallReducer      │ 不檢查     │ 不檢查       │
//   └──────────────────┴────────────┴──────────────┘
//
// ============================================================================

package core

import (
	"fmt"
	"log/slog"

	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// ReducerContext 單次 reducer 呼叫的能力物件
type ReducerContext struct {
	registry  *Registry
	moduleID  types.ModuleID
	reducerID types.ReducerID
	access    types.AccessLevel
	taskID    types.TaskID
}

func newReducerContext(r *Registry, moduleID types.ModuleID, reducerID types.ReducerID, access types.AccessLevel, taskID types.TaskID) *ReducerContext {
	return &ReducerContext{
		registry:  r,
		moduleID:  moduleID,
		reducerID: reducerID,
		access:    access,
		taskID:    taskID,
	}
}

// ModuleID 呼叫者所屬模組
func (c *ReducerContext) ModuleID() types.ModuleID { return c.moduleID }

// ReducerID 被呼叫的 reducer
func (c *ReducerContext) ReducerID() types.ReducerID { return c.reducerID }

// TaskID 承載此次呼叫的 task
func (c *ReducerContext) TaskID() types.TaskID { return c.taskID }

// AccessLevel 呼叫時模組的存取等級
func (c *ReducerContext) AccessLevel() types.AccessLevel { return c.access }

// IsAdmin 是否為 Admin 等級
func (c *ReducerContext) IsAdmin() bool { return c.access == types.AccessAdmin }

// Logger 帶有模組與 task 屬性的 logger
func (c *ReducerContext) Logger() *slog.Logger {
	return c.registry.logger.With(
		"moduleID", c.moduleID,
		"reducerID", c.reducerID,
		"taskID", c.taskID)
}

// check 檢查是否可以存取 target 模組
func (c *ReducerContext) check(target types.ModuleID) error {
	if target == c.moduleID || c.IsAdmin() {
		return nil
	}
	return c.deny(fmt.Sprintf("module %d cannot access module %d", c.moduleID, target))
}

func (c *ReducerContext) requireAdmin(op string) error {
	if c.IsAdmin() {
		return nil
	}
	return c.deny(fmt.Sprintf("%s requires admin (module %d)", op, c.moduleID))
}

func (c *ReducerContext) deny(detail string) error {
	c.registry.recorder.RecordAccessDenied()
	c.registry.logger.Warn("Access denied", "moduleID", c.moduleID, "taskID", c.taskID, "detail", detail)
	return fmt.Errorf("%w: %s", ErrAccessDenied, detail)
}

// ============================================================================
// 查詢
// ============================================================================

// GetModulesID 列出所有模組 ID（僅 Admin）
func (c *ReducerContext) GetModulesID() ([]types.ModuleID, error) {
	if err := c.requireAdmin("get_modules_id"); err != nil {
		return nil, err
	}
	return c.registry.GetModulesID(), nil
}

// GetModuleInfos 取得模組描述
func (c *ReducerContext) GetModuleInfos(moduleID types.ModuleID) (types.ModuleInfo, error) {
	if err := c.check(moduleID); err != nil {
		return types.ModuleInfo{}, err
	}
	return c.registry.GetModuleInfos(moduleID)
}

// ============================================================================
// 變更
// ============================================================================

// CallReducer 排程任一模組的 reducer，不做存取檢查
func (c *ReducerContext) CallReducer(moduleID types.ModuleID, reducerID types.ReducerID) error {
	return c.registry.CallReducer(moduleID, reducerID)
}

// InsertModule 建立新模組（僅 Admin）
func (c *ReducerContext) InsertModule(name string, access types.AccessLevel) (types.ModuleID, error) {
	if err := c.requireAdmin("insert_module"); err != nil {
		return 0, err
	}
	return c.registry.InsertModule(name, access), nil
}

// DeleteModule 刪除模組
func (c *ReducerContext) DeleteModule(moduleID types.ModuleID) error {
	if err := c.check(moduleID); err != nil {
		return err
	}
	c.registry.DeleteModule(moduleID)
	return nil
}

// InsertReducer 在模組中註冊 reducer
func (c *ReducerContext) InsertReducer(moduleID types.ModuleID, name string, constructor Constructor) (types.ReducerID, error) {
	if err := c.check(moduleID); err != nil {
		return 0, err
	}
	return c.registry.InsertReducer(moduleID, name, constructor)
}

// DeleteReducer 移除 reducer
func (c *ReducerContext) DeleteReducer(moduleID types.ModuleID, reducerID types.ReducerID) error {
	if err := c.check(moduleID); err != nil {
		return err
	}
	c.registry.DeleteReducer(moduleID, reducerID)
	return nil
}

// DeleteTable 移除資料表
func (c *ReducerContext) DeleteTable(moduleID types.ModuleID, tableID types.TableID) error {
	if err := c.check(moduleID); err != nil {
		return err
	}
	c.registry.DeleteTable(moduleID, tableID)
	return nil
}
