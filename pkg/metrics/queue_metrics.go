package metrics

import "github.com/prometheus/client_golang/prometheus"

// BacklogFunc 返回每个消费者的待消费数量
type BacklogFunc func() map[string]int

// backlogCollector 抓取时读取队列积压，不维护额外状态
type backlogCollector struct {
	desc *prometheus.Desc
	fn   BacklogFunc
}

func (b *backlogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.desc
}

func (b *backlogCollector) Collect(ch chan<- prometheus.Metric) {
	for name, n := range b.fn() {
		ch <- prometheus.MustNewConstMetric(b.desc, prometheus.GaugeValue, float64(n), name)
	}
}

// RegisterQueueBacklog 注册 collector_queue_backlog{consumer}
func (m *MetricFactory) RegisterQueueBacklog(fn BacklogFunc) {
	m.reg.MustRegister(&backlogCollector{
		desc: prometheus.NewDesc(
			"collector_queue_backlog",
			"Items buffered in the staged data queue that the consumer has not taken yet",
			[]string{"consumer"}, nil,
		),
		fn: fn,
	})
}
