package metrics

import "github.com/prometheus/client_golang/prometheus"

// RemotingMetrics 通信层指标。side 标签区分 manager(server) 与 collector(client)；
// 所有方法对 nil 接收者安全，未启用指标时直接传 nil
type RemotingMetrics struct {
	framesIn       *prometheus.CounterVec
	framesOut      *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	activeConns    prometheus.Gauge
	reconnects     prometheus.Counter
	pending        prometheus.Gauge
	syncTimeouts   prometheus.Counter
	dispatchMisses *prometheus.CounterVec
}

// NewRemotingMetrics 创建并注册通信层指标
func (m *MetricFactory) NewRemotingMetrics(side string) *RemotingMetrics {
	labels := prometheus.Labels{"side": side}
	return &RemotingMetrics{
		framesIn: register(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "remoting_frames_received_total",
			Help:        "Frames decoded from peers by message type",
			ConstLabels: labels,
		}, []string{"type"})),
		framesOut: register(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "remoting_frames_sent_total",
			Help:        "Frames written to peers by message type",
			ConstLabels: labels,
		}, []string{"type"})),
		decodeErrors: register(m.reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "remoting_frame_decode_errors_total",
			Help:        "Malformed frames that closed their connection",
			ConstLabels: labels,
		})),
		activeConns: register(m.reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "remoting_active_connections",
			Help:        "Currently open connections",
			ConstLabels: labels,
		})),
		reconnects: register(m.reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "remoting_connect_failures_total",
			Help:        "Failed connection attempts followed by a reconnect backoff",
			ConstLabels: labels,
		})),
		pending: register(m.reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "remoting_pending_requests",
			Help:        "Synchronous requests waiting for a response",
			ConstLabels: labels,
		})),
		syncTimeouts: register(m.reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "remoting_sync_timeouts_total",
			Help:        "Synchronous requests that timed out",
			ConstLabels: labels,
		})),
		dispatchMisses: register(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "remoting_dispatch_misses_total",
			Help:        "Requests dropped because no processor is registered for their type",
			ConstLabels: labels,
		}, []string{"type"})),
	}
}

func (r *RemotingMetrics) FrameReceived(msgType string) {
	if r != nil {
		r.framesIn.WithLabelValues(msgType).Inc()
	}
}

func (r *RemotingMetrics) FrameSent(msgType string) {
	if r != nil {
		r.framesOut.WithLabelValues(msgType).Inc()
	}
}

func (r *RemotingMetrics) DecodeError() {
	if r != nil {
		r.decodeErrors.Inc()
	}
}

func (r *RemotingMetrics) ConnOpened() {
	if r != nil {
		r.activeConns.Inc()
	}
}

func (r *RemotingMetrics) ConnClosed() {
	if r != nil {
		r.activeConns.Dec()
	}
}

func (r *RemotingMetrics) ConnectFailed() {
	if r != nil {
		r.reconnects.Inc()
	}
}

func (r *RemotingMetrics) PendingAdded() {
	if r != nil {
		r.pending.Inc()
	}
}

func (r *RemotingMetrics) PendingRemoved() {
	if r != nil {
		r.pending.Dec()
	}
}

func (r *RemotingMetrics) SyncTimeout() {
	if r != nil {
		r.syncTimeouts.Inc()
	}
}

func (r *RemotingMetrics) DispatchMiss(msgType string) {
	if r != nil {
		r.dispatchMisses.WithLabelValues(msgType).Inc()
	}
}
