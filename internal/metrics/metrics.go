// Package metrics 提供Prometheus监控指标
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 指标名称
const (
	httpRequestsTotal     = "nurseroster_http_requests_total"
	httpRequestDuration   = "nurseroster_http_request_duration_seconds"
	rosterGenerationTotal = "nurseroster_roster_generation_total"
	rosterGenerationTime  = "nurseroster_roster_generation_duration_seconds"
	stageDuration         = "nurseroster_solver_stage_duration_seconds"
	stageFallbackTotal    = "nurseroster_solver_stage_fallback_total"
	residualViolations    = "nurseroster_residual_violations"
	satisfactionRate      = "nurseroster_satisfaction_rate"
	coverageRate          = "nurseroster_coverage_rate"
	fairnessGini          = "nurseroster_fairness_gini"
	lnsIterationsTotal    = "nurseroster_lns_iterations_total"
	jobsActive            = "nurseroster_jobs_active"
	jobsTotal             = "nurseroster_jobs_total"
)

// MetricsRegistry 指标注册表
type MetricsRegistry struct {
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	mu         sync.RWMutex
}

// Counter 计数器
type Counter struct {
	Name   string
	Help   string
	Labels []string
	values map[string]float64
	mu     sync.RWMutex
}

// Gauge 仪表盘
type Gauge struct {
	Name   string
	Help   string
	Labels []string
	values map[string]float64
	mu     sync.RWMutex
}

// Histogram 直方图
type Histogram struct {
	Name    string
	Help    string
	Labels  []string
	Buckets []float64
	counts  map[string][]int
	sums    map[string]float64
	mu      sync.RWMutex
}

var (
	registry *MetricsRegistry
	once     sync.Once
)

// NewRegistry 创建带默认排班指标的注册表
func NewRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
	r.initDefaultMetrics()
	return r
}

// GetRegistry 获取全局注册表
func GetRegistry() *MetricsRegistry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// initDefaultMetrics 初始化默认指标
func (r *MetricsRegistry) initDefaultMetrics() {
	r.NewCounter(httpRequestsTotal, "HTTP请求总数", []string{"method", "path", "status"})
	r.NewHistogram(httpRequestDuration, "HTTP请求延迟",
		[]string{"method", "path"},
		[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0})

	// 排班生成
	r.NewCounter(rosterGenerationTotal, "排班生成次数", []string{"solver", "status"})
	r.NewHistogram(rosterGenerationTime, "排班生成耗时",
		[]string{"solver"},
		[]float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0})
	r.NewHistogram(stageDuration, "求解阶段耗时",
		[]string{"stage"},
		[]float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0})
	r.NewCounter(stageFallbackTotal, "阶段无可行解沿用上一阶段的次数", []string{"stage"})
	r.NewCounter(lnsIterationsTotal, "LNS 迭代次数", []string{"result"})

	// 结果质量
	r.NewGauge(residualViolations, "最近一次排班残留违规数", []string{"category"})
	r.NewGauge(satisfactionRate, "最近一次排班偏好满意度", []string{"category"})
	r.NewGauge(coverageRate, "最近一次排班覆盖率", []string{})
	r.NewGauge(fairnessGini, "最近一次排班基尼系数", []string{"metric_type"})

	// 后台任务
	r.NewGauge(jobsActive, "正在运行的排班任务数", []string{})
	r.NewCounter(jobsTotal, "排班任务总数", []string{"state"})
}

// NewCounter 创建计数器
func (r *MetricsRegistry) NewCounter(name, help string, labels []string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter := &Counter{
		Name:   name,
		Help:   help,
		Labels: labels,
		values: make(map[string]float64),
	}
	r.counters[name] = counter
	return counter
}

// NewGauge 创建仪表盘
func (r *MetricsRegistry) NewGauge(name, help string, labels []string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	gauge := &Gauge{
		Name:   name,
		Help:   help,
		Labels: labels,
		values: make(map[string]float64),
	}
	r.gauges[name] = gauge
	return gauge
}

// NewHistogram 创建直方图
func (r *MetricsRegistry) NewHistogram(name, help string, labels []string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	histogram := &Histogram{
		Name:    name,
		Help:    help,
		Labels:  labels,
		Buckets: buckets,
		counts:  make(map[string][]int),
		sums:    make(map[string]float64),
	}
	r.histograms[name] = histogram
	return histogram
}

// GetCounter 获取计数器
func (r *MetricsRegistry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge 获取仪表盘
func (r *MetricsRegistry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// GetHistogram 获取直方图
func (r *MetricsRegistry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// Inc 增加计数
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add 增加指定值
func (c *Counter) Add(value float64, labelValues ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[labelKey(labelValues)] += value
}

// Value 读取某组标签的当前值
func (c *Counter) Value(labelValues ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[labelKey(labelValues)]
}

// Set 设置值
func (g *Gauge) Set(value float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[labelKey(labelValues)] = value
}

// Inc 增加
func (g *Gauge) Inc(labelValues ...string) {
	g.Add(1, labelValues...)
}

// Dec 减少
func (g *Gauge) Dec(labelValues ...string) {
	g.Add(-1, labelValues...)
}

// Add 增加指定值
func (g *Gauge) Add(value float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[labelKey(labelValues)] += value
}

// Value 读取某组标签的当前值
func (g *Gauge) Value(labelValues ...string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.values[labelKey(labelValues)]
}

// Observe 记录观测值
func (h *Histogram) Observe(value float64, labelValues ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := labelKey(labelValues)
	if _, exists := h.counts[key]; !exists {
		h.counts[key] = make([]int, len(h.Buckets)+1)
	}
	// counts 按桶记录落入的次数，输出时再累加
	i := sort.SearchFloat64s(h.Buckets, value)
	h.counts[key][i]++
	h.sums[key] += value
}

// Count 某组标签的观测次数
func (h *Histogram) Count(labelValues ...string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, c := range h.counts[labelKey(labelValues)] {
		total += c
	}
	return total
}

// labelKey 生成标签键
func labelKey(labels []string) string {
	return strings.Join(labels, ",")
}

// splitLabelKey 分割标签键
func splitLabelKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, ",")
}

// formatLabels 格式化标签
func formatLabels(names []string, key string) string {
	vals := splitLabelKey(key)
	parts := make([]string, len(names))
	for i, name := range names {
		val := ""
		if i < len(vals) {
			val = vals[i]
		}
		parts[i] = fmt.Sprintf("%s=%q", name, val)
	}
	return strings.Join(parts, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// withLabels 拼接指标名与标签，extra 追加在最后
func withLabels(name string, labels []string, key, extra string) string {
	parts := make([]string, 0, 2)
	if key != "" {
		parts = append(parts, formatLabels(labels, key))
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	if len(parts) == 0 {
		return name
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// WriteTo 以 Prometheus 文本格式输出全部指标，按名称排序
func (r *MetricsRegistry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", name, c.Help, name)
		c.mu.RLock()
		for _, key := range sortedKeys(c.values) {
			fmt.Fprintf(&b, "%s %g\n", withLabels(name, c.Labels, key, ""), c.values[key])
		}
		c.mu.RUnlock()
	}

	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n", name, g.Help, name)
		g.mu.RLock()
		for _, key := range sortedKeys(g.values) {
			fmt.Fprintf(&b, "%s %g\n", withLabels(name, g.Labels, key, ""), g.values[key])
		}
		g.mu.RUnlock()
	}

	for _, name := range sortedKeys(r.histograms) {
		h := r.histograms[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s histogram\n", name, h.Help, name)
		h.mu.RLock()
		for _, key := range sortedKeys(h.counts) {
			counts := h.counts[key]
			cumulative := 0
			for i, bucket := range h.Buckets {
				cumulative += counts[i]
				le := "le=\"" + strconv.FormatFloat(bucket, 'g', -1, 64) + "\""
				fmt.Fprintf(&b, "%s %d\n", withLabels(name+"_bucket", h.Labels, key, le), cumulative)
			}
			cumulative += counts[len(h.Buckets)]
			fmt.Fprintf(&b, "%s %d\n", withLabels(name+"_bucket", h.Labels, key, `le="+Inf"`), cumulative)
			fmt.Fprintf(&b, "%s %g\n", withLabels(name+"_sum", h.Labels, key, ""), h.sums[key])
			fmt.Fprintf(&b, "%s %d\n", withLabels(name+"_count", h.Labels, key, ""), cumulative)
		}
		h.mu.RUnlock()
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Handler 返回Prometheus格式的指标HTTP处理器
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = GetRegistry().WriteTo(w)
	})
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	registry := GetRegistry()
	if counter := registry.GetCounter(httpRequestsTotal); counter != nil {
		counter.Inc(method, path, strconv.Itoa(status))
	}
	if histogram := registry.GetHistogram(httpRequestDuration); histogram != nil {
		histogram.Observe(duration.Seconds(), method, path)
	}
}
