// ============================================================================
// Spacetime Table - 模組內的型別化資料表
// ============================================================================
//
// Package: internal/table
// 文件: table.go
// 功能: 以自動遞增 RowID 為鍵、保存單一具體型別資料列的有序儲存
//
// 設計理念:
//   1. Table[T] 在建立時固定資料列型別 T，整個生命週期不變
//   2. Base 介面抹除型別，讓 Module 能同時持有不同型別的資料表
//   3. 取得型別化存取只能透過 As[T]，型別不符時回傳 false
//
// 資料列規則:
//   - Insert 指派 nextRowID 後遞增，RowID 永不重用
//   - Insert 與 Update 儲存傳入值的副本，呼叫者之後的修改不影響資料表
//   - Get 回傳獨立副本，不會與儲存內容共用別名
//
// 複製策略（New 時決定）:
//   - T 或 *T 實作 Cloner[T]：使用 Clone
//   - T 不含任何參考（指標、slice、map、chan、func、interface）：值複製即可
//   - 其他情況：New 直接 panic（ErrUncloneableRow），屬於結構定義錯誤
//   - Update 保留 RowID；不存在時回傳 not found，絕不隱式插入
//   - Delete 把被移除的值轉交給呼叫者
//
// 並發安全:
//   Table 本身不加鎖，由持有它的 Registry 互斥鎖保護
//
// ============================================================================

package table

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// ErrUncloneableRow 資料列型別含有參考卻沒有 Clone 方法
var ErrUncloneableRow = errors.New("row type holds references but implements no Clone")

// Cloner 由含有指標、slice 或 map 的資料列型別實作，
// 讓資料表能在存取邊界做深拷貝。接收者可以是 T 或 *T。
type Cloner[T any] interface {
	Clone() T
}

// Base 型別抹除後的資料表介面
type Base interface {
	ID() types.TableID
	Name() string
	Len() int
	RowType() reflect.Type
	Info() types.TableInfo
}

// Row 帶有 RowID 的資料列副本
type Row[T any] struct {
	ID    types.RowID
	Value T
}

// Table 單一型別資料列的有序儲存
type Table[T any] struct {
	id        types.TableID
	name      string
	rows      map[types.RowID]T
	nextRowID types.RowID
	clone     func(T) T
}

// New 建立空資料表
//
// T 含有參考但 T 與 *T 都沒有實作 Cloner[T] 時 panic，
// 錯誤包裝 ErrUncloneableRow。
func New[T any](id types.TableID, name string) *Table[T] {
	return &Table[T]{
		id:    id,
		name:  name,
		rows:  make(map[types.RowID]T),
		clone: clonerFor[T](),
	}
}

// As 將型別抹除的資料表還原為 *Table[T]
func As[T any](b Base) (*Table[T], bool) {
	t, ok := b.(*Table[T])
	return t, ok
}

// ID 資料表識別碼
func (t *Table[T]) ID() types.TableID { return t.id }

// Name 資料表名稱
func (t *Table[T]) Name() string { return t.name }

// Len 目前資料列數量
func (t *Table[T]) Len() int { return len(t.rows) }

// RowType 資料列的具體型別
func (t *Table[T]) RowType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Info 回傳描述資訊（不含資料列內容）
func (t *Table[T]) Info() types.TableInfo {
	return types.TableInfo{
		ID:      t.id,
		Name:    t.name,
		RowType: t.RowType().String(),
		Rows:    len(t.rows),
	}
}

// Insert 插入資料列並回傳新 RowID
func (t *Table[T]) Insert(value T) types.RowID {
	rowID := t.nextRowID
	t.nextRowID++
	t.rows[rowID] = t.clone(value)
	return rowID
}

// Get 回傳資料列的獨立副本
func (t *Table[T]) Get(rowID types.RowID) (T, bool) {
	value, ok := t.rows[rowID]
	if !ok {
		var zero T
		return zero, false
	}
	return t.clone(value), true
}

// Update 取代既有資料列並回傳舊值
//
// 返回值：
//   - T: 原本的值
//   - bool: false 表示 RowID 不存在，資料表不會被修改
func (t *Table[T]) Update(rowID types.RowID, value T) (T, bool) {
	previous, ok := t.rows[rowID]
	if !ok {
		var zero T
		return zero, false
	}
	t.rows[rowID] = t.clone(value)
	return previous, true
}

// Delete 移除資料列並把值轉交給呼叫者
func (t *Table[T]) Delete(rowID types.RowID) (T, bool) {
	value, ok := t.rows[rowID]
	if !ok {
		var zero T
		return zero, false
	}
	delete(t.rows, rowID)
	return value, true
}

// Rows 依 RowID 排序回傳所有資料列的副本
func (t *Table[T]) Rows() []Row[T] {
	ids := make([]types.RowID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Row[T], 0, len(ids))
	for _, id := range ids {
		out = append(out, Row[T]{ID: id, Value: t.clone(t.rows[id])})
	}
	return out
}

// clonerFor 選出 T 的複製函式
func clonerFor[T any]() func(T) T {
	var zero T
	if _, ok := any(zero).(Cloner[T]); ok {
		return func(v T) T { return any(v).(Cloner[T]).Clone() }
	}
	if _, ok := any(&zero).(Cloner[T]); ok {
		return func(v T) T { return any(&v).(Cloner[T]).Clone() }
	}

	rowType := reflect.TypeOf((*T)(nil)).Elem()
	if holdsReferences(rowType) {
		panic(fmt.Errorf("%w: %s", ErrUncloneableRow, rowType))
	}
	return func(v T) T { return v }
}

var timeType = reflect.TypeOf(time.Time{})

// holdsReferences 判斷值複製後是否仍與原值共用記憶體
// time.Time 內的 *Location 不可變，視為純值
func holdsReferences(rt reflect.Type) bool {
	if rt == timeType {
		return false
	}
	switch rt.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return rt.Len() > 0 && holdsReferences(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if holdsReferences(rt.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
