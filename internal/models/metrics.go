package models

import "time"

// SystemMetrics is a point-in-time summary of the service instrumentation.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	ReportWrites             uint64    `json:"reportWrites"`
	ReportWriteFailures      uint64    `json:"reportWriteFailures"`
	WebhooksDelivered        uint64    `json:"webhooksDelivered"`
	WebhooksFailed           uint64    `json:"webhooksFailed"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
