// ============================================================================
// Spacetime Module - 模組命名空間
// ============================================================================
//
// Package: internal/core
// 文件: module.go
// 功能: 擁有 reducer 集合、資料表集合、存取等級與單調遞增的 ID 計數器
//
// ID 規則:
//   - nextReducerID / nextTableID 只增不減，刪除後也不重用
//   - reducer 與 table 的 ID 只在所屬模組內唯一
//
// 並發安全:
//   Module 不自行加鎖，所有操作都經由 Registry 的互斥鎖
//
// ============================================================================

package core

import (
	"maps"
	"slices"

	"github.com/ChuLiYu/spacetime-runtime/internal/table"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// Module 隔離的命名空間
type Module struct {
	id            types.ModuleID
	name          string
	access        types.AccessLevel
	reducers      map[types.ReducerID]*Reducer
	tables        map[types.TableID]table.Base
	nextReducerID types.ReducerID
	nextTableID   types.TableID
}

// NewModule 建立空模組
func NewModule(id types.ModuleID, name string, access types.AccessLevel) *Module {
	return &Module{
		id:       id,
		name:     name,
		access:   access,
		reducers: make(map[types.ReducerID]*Reducer),
		tables:   make(map[types.TableID]table.Base),
	}
}

// ID 模組識別碼
func (m *Module) ID() types.ModuleID { return m.id }

// Name 模組名稱
func (m *Module) Name() string { return m.name }

// AccessLevel 模組存取等級
func (m *Module) AccessLevel() types.AccessLevel { return m.access }

// InsertReducer 註冊 reducer 並回傳新的 ReducerID
func (m *Module) InsertReducer(name string, constructor Constructor) types.ReducerID {
	id := m.nextReducerID
	m.nextReducerID++
	m.reducers[id] = &Reducer{
		ID:          id,
		ModuleID:    m.id,
		Name:        name,
		constructor: constructor,
	}
	return id
}

// DeleteReducer 移除 reducer，不存在時不做任何事
func (m *Module) DeleteReducer(id types.ReducerID) {
	delete(m.reducers, id)
}

// Reducer 查詢 reducer
func (m *Module) Reducer(id types.ReducerID) (*Reducer, bool) {
	r, ok := m.reducers[id]
	return r, ok
}

// ReducerByName 依名稱查詢 reducer（名稱不保證唯一，回傳 ID 最小者）
func (m *Module) ReducerByName(name string) (*Reducer, bool) {
	for _, id := range slices.Sorted(maps.Keys(m.reducers)) {
		if r := m.reducers[id]; r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// AddTable 在模組中建立型別為 T 的資料表
// T 無法安全複製時 panic（table.ErrUncloneableRow），不消耗 TableID
func AddTable[T any](m *Module, name string) types.TableID {
	id := m.nextTableID
	t := table.New[T](id, name)
	m.nextTableID++
	m.tables[id] = t
	return id
}

// DeleteTable 移除資料表，不存在時不做任何事
func (m *Module) DeleteTable(id types.TableID) {
	delete(m.tables, id)
}

// Table 查詢型別抹除的資料表
func (m *Module) Table(id types.TableID) (table.Base, bool) {
	t, ok := m.tables[id]
	return t, ok
}

// Infos 回傳模組的不可變描述快照（依 ID 排序，不含資料列內容）
func (m *Module) Infos() types.ModuleInfo {
	info := types.ModuleInfo{
		ID:          m.id,
		Name:        m.name,
		AccessLevel: m.access,
		Reducers:    make([]types.ReducerInfo, 0, len(m.reducers)),
		Tables:      make([]types.TableInfo, 0, len(m.tables)),
	}
	for _, id := range slices.Sorted(maps.Keys(m.reducers)) {
		info.Reducers = append(info.Reducers, m.reducers[id].Info())
	}
	for _, id := range slices.Sorted(maps.Keys(m.tables)) {
		info.Tables = append(info.Tables, m.tables[id].Info())
	}
	return info
}
