package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "usage_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 计量指标
var (
	// EventsRecordedTotal 记录的用量事件总数
	EventsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_events_recorded_total",
			Help: "记录的用量事件总数",
		},
		[]string{"kind", "model"},
	)

	// TokensAccumulatedTotal 累计入账的 Token 数
	TokensAccumulatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_tokens_accumulated_total",
			Help: "累计入账的 Token 数",
		},
		[]string{"direction"}, // input / output
	)

	// QuotaDenialsTotal 存储配额拒绝次数
	QuotaDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_quota_denials_total",
			Help: "存储配额拒绝次数",
		},
	)

	// IdempotentReplaysTotal 幂等键命中（重放）次数
	IdempotentReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_idempotent_replays_total",
			Help: "幂等键命中次数",
		},
	)
)
