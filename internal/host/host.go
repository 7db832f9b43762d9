// ============================================================================
// Spacetime Host - 系統啟動與事件來源
// ============================================================================
//
// Package: internal/host
// 文件: host.go
// 功能: 依設定建立 Registry，註冊 System 模組與設定中的模組，
//       連接計時器與鍵盤事件來源，送出初始 reducer 呼叫後進入排程迴圈
//
// 啟動流程 (Boot):
//   1. 建立 Registry（佇列容量、metrics recorder、logger）
//   2. 註冊 System 模組 (Admin)
//      - keyboard:  把鍵盤事件回顯到輸出
//      - clock:     把計時器 tick 累計到 uptime 資料表
//      - inventory: 列舉所有模組並記錄摘要
//   3. 註冊設定中的模組，各自帶有 describe reducer 與 calls 資料表
//   4. 對上述 reducer 各送出一次 CallReducer
//   5. 以系統 task 排入 boot-report，在第一輪排程結束前記錄初始呼叫結果
//
// 執行 (Run):
//   ┌──────────────┐ Push  ┌──────────────┐ Wake ┌─────────────┐
//   │ ticker / stdin│ ────→ │ events.Stream│ ───→ │ ReadyQueue  │
//   └──────────────┘       └──────────────┘      └─────────────┘
//                                                       ↓
//                                              Registry.Run (單一 goroutine)
//
//   事件來源 goroutine 只記錄事件並喚醒，從不直接執行 task。
//
// ============================================================================

package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/spacetime-runtime/internal/config"
	"github.com/ChuLiYu/spacetime-runtime/internal/core"
	"github.com/ChuLiYu/spacetime-runtime/internal/events"
	"github.com/ChuLiYu/spacetime-runtime/internal/task"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// SystemModuleName System 模組名稱
const SystemModuleName = "System"

// Uptime uptime 資料表的資料列
type Uptime struct {
	Ticks    uint64
	LastTick time.Time
}

// Calls 設定模組 calls 資料表的資料列，記錄 describe 被呼叫的次數
type Calls struct {
	Count int
}

// Options 啟動選項
type Options struct {
	Input    io.Reader     // 鍵盤事件來源，nil 表示不讀取
	Output   io.Writer     // keyboard reducer 的回顯輸出
	Recorder core.Recorder // nil 表示不收集指標
	Logger   *slog.Logger
}

// Host 持有 Registry 與事件來源
type Host struct {
	cfg      *config.Config
	opts     Options
	registry *core.Registry
	logger   *slog.Logger

	keys  *events.Stream[rune]
	ticks *events.Stream[events.Tick]

	systemID    types.ModuleID
	uptimeTable types.TableID
	uptimeRow   types.RowID
}

// Boot 建立 Registry 並完成註冊與初始呼叫，但尚未開始排程
func Boot(cfg *config.Config, opts Options) (*Host, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	regOpts := []core.Option{
		core.WithQueueCapacity(cfg.Scheduler.QueueCapacity),
		core.WithLogger(opts.Logger),
	}
	if opts.Recorder != nil {
		regOpts = append(regOpts, core.WithRecorder(opts.Recorder))
	}

	h := &Host{
		cfg:      cfg,
		opts:     opts,
		registry: core.New(regOpts...),
		keys:     events.NewStream[rune](events.DefaultCapacity),
		ticks:    events.NewStream[events.Tick](events.DefaultCapacity),
	}
	h.logger = h.registry.Logger()

	seeds, err := h.registerSystem()
	if err != nil {
		return nil, fmt.Errorf("failed to register system module: %w", err)
	}
	for _, m := range cfg.Modules {
		id, err := h.registerConfigured(m)
		if err != nil {
			return nil, fmt.Errorf("failed to register module %q: %w", m.Name, err)
		}
		seeds = append(seeds, id)
	}

	for _, s := range seeds {
		if err := h.registry.CallReducer(s.module, s.reducer); err != nil {
			return nil, fmt.Errorf("failed to seed reducer call: %w", err)
		}
	}
	h.registry.SpawnSystem("boot-report", task.Once(h.reportBoot))

	h.logger.Info("Host booted",
		"modules", len(h.registry.GetModulesID()),
		"seeded", len(seeds),
		"capacity", cfg.Scheduler.QueueCapacity)
	return h, nil
}

// reportBoot 排在所有初始呼叫之後，執行時它們都已被 resume 過一次
func (h *Host) reportBoot() {
	stats := h.registry.Stats()
	h.logger.Info("Boot reducers resumed",
		"completed", stats.Completed,
		"parked", stats.Parked,
		"spawned", stats.Spawned)
}

type seed struct {
	module  types.ModuleID
	reducer types.ReducerID
}

// registerSystem 註冊 System 模組、uptime 資料表與三個 reducer
func (h *Host) registerSystem() ([]seed, error) {
	r := h.registry
	h.systemID = r.InsertModule(SystemModuleName, types.AccessAdmin)

	tableID, err := core.InsertTable[Uptime](r, h.systemID, "uptime")
	if err != nil {
		return nil, err
	}
	h.uptimeTable = tableID
	if h.uptimeRow, err = core.InsertTableRow(r, h.systemID, tableID, Uptime{}); err != nil {
		return nil, err
	}

	reducers := []struct {
		name string
		ctor core.Constructor
		seed bool
	}{
		{"keyboard", h.keyboardReducer, h.opts.Input != nil},
		{"clock", h.clockReducer, true},
		{"inventory", inventoryReducer, true},
	}

	var seeds []seed
	for _, red := range reducers {
		id, err := r.InsertReducer(h.systemID, red.name, red.ctor)
		if err != nil {
			return nil, err
		}
		if red.seed {
			seeds = append(seeds, seed{h.systemID, id})
		}
	}
	return seeds, nil
}

// registerConfigured 註冊設定中的模組與其 describe reducer
func (h *Host) registerConfigured(m config.ModuleConfig) (seed, error) {
	level, err := m.AccessLevel()
	if err != nil {
		return seed{}, err
	}
	r := h.registry
	id := r.InsertModule(m.Name, level)

	calls, err := core.InsertTable[Calls](r, id, "calls")
	if err != nil {
		return seed{}, err
	}
	row, err := core.InsertTableRow(r, id, calls, Calls{})
	if err != nil {
		return seed{}, err
	}

	reducerID, err := r.InsertReducer(id, "describe", describeReducer(calls, row))
	if err != nil {
		return seed{}, err
	}
	return seed{id, reducerID}, nil
}

// Run 啟動事件來源並執行排程迴圈，ctx 取消時返回
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		events.RunTicker(ctx, h.cfg.Scheduler.TickInterval.Std(), h.ticks)
		return nil
	})
	if h.opts.Input != nil {
		// a blocked stdin read cannot be interrupted, so this goroutine is
		// not waited for
		go func() {
			if err := events.RunReader(ctx, h.opts.Input, h.keys); err != nil {
				h.logger.Warn("Input source stopped", "error", err)
			}
		}()
	}
	g.Go(func() error {
		h.registry.Run(ctx)
		return nil
	})

	err := g.Wait()
	stats := h.registry.Stats()
	h.logger.Info("Host stopped",
		"spawned", stats.Spawned,
		"completed", stats.Completed,
		"parked", stats.Parked,
		"keysDropped", h.keys.Dropped(),
		"ticksDropped", h.ticks.Dropped())
	return err
}

// Registry 回傳底層 Registry
func (h *Host) Registry() *core.Registry { return h.registry }

// SystemModule 回傳 System 模組 ID
func (h *Host) SystemModule() types.ModuleID { return h.systemID }

// Keys 鍵盤事件佇列
func (h *Host) Keys() *events.Stream[rune] { return h.keys }

// Ticks 計時器事件佇列
func (h *Host) Ticks() *events.Stream[events.Tick] { return h.ticks }

// Uptime 讀取目前 uptime 資料列
func (h *Host) Uptime() (Uptime, error) {
	return core.GetTableRow[Uptime](h.registry, h.systemID, h.uptimeTable, h.uptimeRow)
}

// Modules 回傳所有模組描述，依 ID 排序
func (h *Host) Modules() ([]types.ModuleInfo, error) {
	ids := h.registry.GetModulesID()
	infos := make([]types.ModuleInfo, 0, len(ids))
	for _, id := range ids {
		info, err := h.registry.GetModuleInfos(id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ============================================================================
// Reducers
// ============================================================================

func (h *Host) keyboardReducer(*core.ReducerContext) task.Computation {
	return events.Consume(h.keys, func(r rune) {
		fmt.Fprint(h.opts.Output, string(r))
	})
}

func (h *Host) clockReducer(ctx *core.ReducerContext) task.Computation {
	uptime, err := core.OpenTable[Uptime](ctx, h.systemID, h.uptimeTable)
	if err != nil {
		ctx.Logger().Error("Clock cannot open uptime table", "error", err)
		return nil
	}
	return events.Consume(h.ticks, func(tick events.Tick) {
		if _, err := uptime.Update(h.uptimeRow, Uptime{Ticks: tick.Seq, LastTick: tick.At}); err != nil {
			ctx.Logger().Error("Clock update failed", "error", err)
		}
	})
}

func inventoryReducer(ctx *core.ReducerContext) task.Computation {
	return task.Once(func() {
		ids, err := ctx.GetModulesID()
		if err != nil {
			ctx.Logger().Error("Inventory denied", "error", err)
			return
		}
		for _, id := range ids {
			info, err := ctx.GetModuleInfos(id)
			if err != nil {
				ctx.Logger().Warn("Inventory skipped module", "target", id, "error", err)
				continue
			}
			ctx.Logger().Info("Module",
				"target", info.ID,
				"name", info.Name,
				"access", info.AccessLevel,
				"reducers", len(info.Reducers),
				"tables", len(info.Tables))
		}
	})
}

func describeReducer(calls types.TableID, row types.RowID) core.Constructor {
	return func(ctx *core.ReducerContext) task.Computation {
		return task.Once(func() {
			h, err := core.OpenTable[Calls](ctx, ctx.ModuleID(), calls)
			if err != nil {
				ctx.Logger().Error("Describe cannot open calls table", "error", err)
				return
			}
			prev, err := h.Get(row)
			if err != nil {
				ctx.Logger().Error("Describe read failed", "error", err)
				return
			}
			if _, err := h.Update(row, Calls{Count: prev.Count + 1}); err != nil {
				ctx.Logger().Error("Describe update failed", "error", err)
				return
			}

			info, err := ctx.GetModuleInfos(ctx.ModuleID())
			if err != nil {
				ctx.Logger().Error("Describe failed", "error", err)
				return
			}
			ctx.Logger().Info("Describe",
				"name", info.Name,
				"access", info.AccessLevel,
				"calls", prev.Count+1)
		})
	}
}
