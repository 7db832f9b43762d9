// Package types 定義了 spacetime-runtime 系統中使用的核心領域模型
package types

import "fmt"

// ModuleID 模組唯一識別碼（全域單調遞增）
type ModuleID uint64

// ReducerID reducer 識別碼，只在所屬模組內唯一
type ReducerID uint64

// TableID 資料表識別碼，只在所屬模組內唯一
type TableID uint64

// RowID 資料列識別碼，只在所屬資料表內唯一，刪除後不會重用
type RowID uint64

// TaskID 任務識別碼，只在單一 Executor 內唯一
type TaskID uint64

// AccessLevel 模組存取等級
type AccessLevel int

// 定義存取等級常數
const (
	AccessStandard AccessLevel = iota // 標準：只能存取自己的模組
	AccessAdmin                       // 管理員：可存取所有模組
)

// String 回傳存取等級的文字表示
func (a AccessLevel) String() string {
	switch a {
	case AccessAdmin:
		return "admin"
	case AccessStandard:
		return "standard"
	default:
		return fmt.Sprintf("AccessLevel(%d)", int(a))
	}
}

// ParseAccessLevel 解析設定檔中的存取等級字串
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch s {
	case "admin", "Admin":
		return AccessAdmin, nil
	case "standard", "Standard", "":
		return AccessStandard, nil
	default:
		return AccessStandard, fmt.Errorf("unknown access level %q", s)
	}
}

// ReducerInfo reducer 的描述資訊（不含建構函式）
type ReducerInfo struct {
	ID       ReducerID `json:"id"`
	ModuleID ModuleID  `json:"module_id"`
	Name     string    `json:"name"`
}

// TableInfo 資料表的描述資訊（永遠不包含資料列內容）
type TableInfo struct {
	ID      TableID `json:"id"`
	Name    string  `json:"name"`
	RowType string  `json:"row_type"`
	Rows    int     `json:"rows"`
}

// ModuleInfo 模組的不可變快照，供具權限的呼叫者做內省
type ModuleInfo struct {
	ID          ModuleID      `json:"id"`
	Name        string        `json:"name"`
	AccessLevel AccessLevel   `json:"access_level"`
	Reducers    []ReducerInfo `json:"reducers"`
	Tables      []TableInfo   `json:"tables"`
}
