// ============================================================================
// Spacetime Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露排程器與 registry 的運行指標，支持 Prometheus 監控
//
// 指標分類:
//
//   1. 計數器 (Counter) - 累計值，只增不減：
//      - spacetime_tasks_spawned_total: 建立的 task 總數
//      - spacetime_tasks_completed_total: 完成 (Ready) 的 task 總數
//      - spacetime_tasks_suspended_total: 暫停 (Pending) 的 resume 次數
//      - spacetime_stale_wakes_total: 指向已不存在 task 的喚醒次數
//      - spacetime_reducer_calls_total{result}: reducer 呼叫，found / not_found
//      - spacetime_access_denied_total: 存取檢查失敗次數
//
//   2. 性能指標 (Histogram)：
//      - spacetime_task_resume_seconds: 單次 resume 耗時
//        * 協作式排程下，長時間不讓出的 task 會在這裡現形
//
//   3. 狀態指標 (Gauge) - 瞬時值：
//      - spacetime_ready_queue_depth: ReadyQueue 中等待的 id 數
//      - spacetime_tasks_parked: TaskSet 中暫停的 task 數
//
// Prometheus 查詢示例:
//
//   # 每秒完成 task 數
//   rate(spacetime_tasks_completed_total[1m])
//
//   # 99 分位 resume 耗時
//   histogram_quantile(0.99, spacetime_task_resume_seconds_bucket)
//
//   # 佇列接近上限（預設容量 100）
//   spacetime_ready_queue_depth > 80
//
// HTTP 端點:
//   通過 /metrics 端點暴露，默認端口: 9090
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChuLiYu/spacetime-runtime/internal/task"
)

const namespace = "spacetime"

// Collector Prometheus 指標收集器，實作 core.Recorder
type Collector struct {
	// task 生命週期
	tasksSpawned   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksSuspended prometheus.Counter
	staleWakes     prometheus.Counter

	// 效能指標
	resumeLatency prometheus.Histogram

	// 狀態指標
	queueDepth  prometheus.Gauge
	tasksParked prometheus.Gauge

	// registry
	reducerCalls *prometheus.CounterVec
	accessDenied prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollector 創建指標收集器並註冊到 reg；reg 為 nil 時使用獨立的新 registry
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		tasksSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_spawned_total",
			Help:      "Total number of tasks spawned",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks that returned Ready",
		}),
		tasksSuspended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_suspended_total",
			Help:      "Total number of resumes that returned Pending",
		}),
		staleWakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_wakes_total",
			Help:      "Total number of ready ids whose task was no longer parked",
		}),
		resumeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_resume_seconds",
			Help:      "Duration of a single task resume in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_queue_depth",
			Help:      "Current number of ids in the ready queue",
		}),
		tasksParked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_parked",
			Help:      "Current number of parked tasks",
		}),
		reducerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reducer_calls_total",
			Help:      "Total number of reducer calls by lookup result",
		}, []string{"result"}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_denied_total",
			Help:      "Total number of reducer context operations denied",
		}),
		gatherer: reg,
	}

	// 註冊所有指標
	reg.MustRegister(
		c.tasksSpawned,
		c.tasksCompleted,
		c.tasksSuspended,
		c.staleWakes,
		c.resumeLatency,
		c.queueDepth,
		c.tasksParked,
		c.reducerCalls,
		c.accessDenied,
	)

	return c
}

// RecordSpawn 記錄 task 建立
func (c *Collector) RecordSpawn() {
	c.tasksSpawned.Inc()
}

// RecordResume 記錄一次 resume 的耗時與結果
func (c *Collector) RecordResume(d time.Duration, outcome task.Poll) {
	c.resumeLatency.Observe(d.Seconds())
	if outcome == task.Ready {
		c.tasksCompleted.Inc()
	} else {
		c.tasksSuspended.Inc()
	}
}

// RecordStaleWake 記錄過期或重複的喚醒
func (c *Collector) RecordStaleWake() {
	c.staleWakes.Inc()
}

// UpdateQueueStats 更新佇列狀態統計
func (c *Collector) UpdateQueueStats(ready, parked int) {
	c.queueDepth.Set(float64(ready))
	c.tasksParked.Set(float64(parked))
}

// RecordReducerCall 記錄 reducer 呼叫結果
func (c *Collector) RecordReducerCall(found bool) {
	result := "found"
	if !found {
		result = "not_found"
	}
	c.reducerCalls.WithLabelValues(result).Inc()
}

// RecordAccessDenied 記錄存取拒絕
func (c *Collector) RecordAccessDenied() {
	c.accessDenied.Inc()
}

// Handler 回傳只暴露本收集器 registry 的 /metrics handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// StartServer 啟動 Prometheus metrics HTTP 伺服器，ctx 取消時關閉
//
// 參數：
//   - port: HTTP 伺服器端口
//
// 返回值：
//   - error: 啟動失敗的錯誤（正常關閉時為 nil）
func (c *Collector) StartServer(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
