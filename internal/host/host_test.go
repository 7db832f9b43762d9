package host

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/spacetime-runtime/internal/config"
	"github.com/ChuLiYu/spacetime-runtime/internal/core"
	"github.com/ChuLiYu/spacetime-runtime/internal/events"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Modules = []config.ModuleConfig{
		{Name: "Shell", Access: "standard"},
		{Name: "Monitor", Access: "admin"},
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drain(h *Host) {
	ex := h.Registry().Executor()
	for !ex.Queue().IsEmpty() {
		ex.RunReadyTasks(context.Background())
	}
}

func TestBootRegistersModules(t *testing.T) {
	h, err := Boot(testConfig(), Options{Logger: quietLogger()})
	require.NoError(t, err)

	infos, err := h.Modules()
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, SystemModuleName, infos[0].Name)
	assert.Equal(t, types.AccessAdmin, infos[0].AccessLevel)
	names := []string{}
	for _, r := range infos[0].Reducers {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"keyboard", "clock", "inventory"}, names)

	assert.Equal(t, "Shell", infos[1].Name)
	assert.Equal(t, types.AccessStandard, infos[1].AccessLevel)
	assert.Equal(t, "Monitor", infos[2].Name)
	assert.Equal(t, types.AccessAdmin, infos[2].AccessLevel)
}

func TestBootSeedsReducerCalls(t *testing.T) {
	h, err := Boot(testConfig(), Options{Logger: quietLogger()})
	require.NoError(t, err)

	// clock, inventory, two describe calls and the boot report;
	// keyboard needs input
	assert.Equal(t, uint64(5), h.Registry().Stats().Spawned)

	drain(h)
	stats := h.Registry().Stats()
	assert.Equal(t, uint64(4), stats.Completed)
	assert.Equal(t, 1, stats.Parked, "clock waits for ticks")
}

func TestBootReportRunsAfterSeeds(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	h, err := Boot(testConfig(), Options{Logger: logger})
	require.NoError(t, err)

	assert.NotContains(t, logs.String(), "Boot reducers resumed", "report waits for the scheduler")

	drain(h)
	text := logs.String()
	assert.Contains(t, text, "Boot reducers resumed")
	// the report itself is still running when it reads the counters
	assert.Contains(t, text, "completed=3")
	assert.Contains(t, text, "parked=1")
}

func TestBootRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Modules = append(cfg.Modules, config.ModuleConfig{Name: "Shell"})

	_, err := Boot(cfg, Options{Logger: quietLogger()})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestKeyboardEchoesKeystrokes(t *testing.T) {
	out := &syncBuffer{}
	h, err := Boot(testConfig(), Options{
		Input:  strings.NewReader(""),
		Output: out,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	drain(h)

	for _, r := range "ok" {
		h.Keys().Push(r)
	}
	drain(h)
	assert.Equal(t, "ok", out.String())
}

func TestClockCountsTicks(t *testing.T) {
	h, err := Boot(config.Default(), Options{Logger: quietLogger()})
	require.NoError(t, err)
	drain(h)

	now := time.Now()
	for i := uint64(1); i <= 3; i++ {
		h.Ticks().Push(events.Tick{Seq: i, At: now})
	}
	drain(h)

	up, err := h.Uptime()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), up.Ticks)
	assert.True(t, up.LastTick.Equal(now))
}

func TestDescribeCountsCalls(t *testing.T) {
	h, err := Boot(testConfig(), Options{Logger: quietLogger()})
	require.NoError(t, err)
	drain(h)

	r := h.Registry()
	shell, ok := r.ModuleByName("Shell")
	require.True(t, ok)
	describe, err := r.ReducerByName(shell, "describe")
	require.NoError(t, err)

	require.NoError(t, r.CallReducer(shell, describe))
	drain(h)

	info, err := r.GetModuleInfos(shell)
	require.NoError(t, err)
	require.Len(t, info.Tables, 1)
	calls, err := core.GetTableRow[Calls](r, shell, info.Tables[0].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, calls.Count)
}

func TestRunProcessesInputUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.TickInterval = config.Duration(time.Millisecond)
	out := &syncBuffer{}

	h, err := Boot(cfg, Options{
		Input:  strings.NewReader("hello"),
		Output: out,
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		up, err := h.Uptime()
		return err == nil && up.Ticks > 0 && out.String() == "hello"
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("host did not stop")
	}

	assert.Equal(t, uint64(0), h.Keys().Dropped())
}
