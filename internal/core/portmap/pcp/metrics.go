package pcp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics PCP 请求分发器的 Prometheus 指标
//
// 所有指标使用 "natmap_pcp_" 前缀，按网关地址打标签。nil *Metrics 的方法
// 都是空操作，未启用指标时没有额外开销。
//
// 跟踪的指标：
//   - 发送的请求数（按操作码）
//   - 收到的响应数（按结果）
//   - 重传次数、超时次数、丢弃的过期报文数
//   - 队列深度
//   - 请求往返时间
type Metrics struct {
	// Requests 入队的请求数
	// Labels: gateway, opcode
	Requests *prometheus.CounterVec

	// Responses 匹配到请求的响应数
	// Labels: gateway, result=[success, <结果码文本>, protocol_error, transport_error]
	Responses *prometheus.CounterVec

	// Retransmits 重传次数
	Retransmits *prometheus.CounterVec

	// Timeouts 请求超时次数
	Timeouts *prometheus.CounterVec

	// StaleDatagrams 因 nonce 不匹配或来源错误被丢弃的报文数
	StaleDatagrams *prometheus.CounterVec

	// QueueDepth 当前排队（含在途）请求数
	QueueDepth *prometheus.GaugeVec

	// RoundTrip 从首次发送到收到响应的时间
	RoundTrip *prometheus.HistogramVec
}

// NewMetrics 创建并注册 PCP 指标
//
// registerer 为 nil 时使用 prometheus.DefaultRegisterer。同一个 registerer
// 只能注册一次，多个网关应共享同一个 *Metrics。
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "natmap_pcp_requests_total",
				Help: "Total PCP requests queued by opcode",
			},
			[]string{"gateway", "opcode"},
		),
		Responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "natmap_pcp_responses_total",
				Help: "Total PCP requests completed by result",
			},
			[]string{"gateway", "result"},
		),
		Retransmits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "natmap_pcp_retransmits_total",
				Help: "Total PCP request retransmissions",
			},
			[]string{"gateway"},
		),
		Timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "natmap_pcp_timeouts_total",
				Help: "Total PCP requests that timed out",
			},
			[]string{"gateway"},
		),
		StaleDatagrams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "natmap_pcp_stale_datagrams_total",
				Help: "Total PCP datagrams dropped without matching a request",
			},
			[]string{"gateway"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "natmap_pcp_queue_depth",
				Help: "Current number of queued PCP requests",
			},
			[]string{"gateway"},
		),
		RoundTrip: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "natmap_pcp_round_trip_seconds",
				Help:    "PCP request round trip time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"gateway"},
		),
	}

	registerer.MustRegister(
		m.Requests,
		m.Responses,
		m.Retransmits,
		m.Timeouts,
		m.StaleDatagrams,
		m.QueueDepth,
		m.RoundTrip,
	)
	return m
}

// RecordRequest 记录一次入队
func (m *Metrics) RecordRequest(gateway string, op Opcode) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(gateway, op.String()).Inc()
}

// RecordResponse 记录一次请求完成
func (m *Metrics) RecordResponse(gateway, result string, rtt time.Duration) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(gateway, result).Inc()
	if rtt > 0 {
		m.RoundTrip.WithLabelValues(gateway).Observe(rtt.Seconds())
	}
}

// RecordRetransmit 记录一次重传
func (m *Metrics) RecordRetransmit(gateway string) {
	if m == nil {
		return
	}
	m.Retransmits.WithLabelValues(gateway).Inc()
}

// RecordTimeout 记录一次超时
func (m *Metrics) RecordTimeout(gateway string) {
	if m == nil {
		return
	}
	m.Timeouts.WithLabelValues(gateway).Inc()
}

// RecordStale 记录一个被丢弃的报文
func (m *Metrics) RecordStale(gateway string) {
	if m == nil {
		return
	}
	m.StaleDatagrams.WithLabelValues(gateway).Inc()
}

// SetQueueDepth 设置当前队列深度
func (m *Metrics) SetQueueDepth(gateway string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(gateway).Set(float64(depth))
}
