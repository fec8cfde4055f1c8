package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectMetrics 采集任务指标，对 nil 接收者安全
type CollectMetrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	results  *prometheus.CounterVec
}

// NewCollectMetrics 创建采集指标
// collector_collect_duration_seconds：每次采集耗时，默认分桶
// collector_collect_errors_total：采集失败次数
// collector_results_exported_total：被 exporter 消费的结果数
func (m *MetricFactory) NewCollectMetrics() *CollectMetrics {
	return &CollectMetrics{
		duration: register(m.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_collect_duration_seconds",
			Help:    "Collection duration per protocol",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol"})),
		errors: register(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_collect_errors_total",
			Help: "Total collection errors per protocol",
		}, []string{"protocol"})),
		results: register(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_results_exported_total",
			Help: "Collection results consumed by the exporter per protocol",
		}, []string{"protocol"})),
	}
}

// Observe 记录一次采集
func (c *CollectMetrics) Observe(protocol string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(protocol).Observe(elapsed.Seconds())
	if err != nil {
		c.errors.WithLabelValues(protocol).Inc()
	}
}

func (c *CollectMetrics) Exported(protocol string) {
	if c != nil {
		c.results.WithLabelValues(protocol).Inc()
	}
}
