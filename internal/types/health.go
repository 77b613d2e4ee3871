package types

import "time"

// Gateway and service status values used in health reports.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	ServiceStatusUp      = "up"
	ServiceStatusDown    = "down"
)

// ServiceHealth represents the probed status of a single service.
type ServiceHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport is the dispatcher's aggregate view of the gateway and every
// known service, shaped for the GET /health response.
type HealthReport struct {
	Status  string                   `json:"status"`
	Info    map[string]ServiceHealth `json:"info"`
	Details map[string]ServiceHealth `json:"details"`
}

// HealthRecord is the persisted snapshot written by the health monitor on
// each sweep. Records are read-only after creation and feed trend analysis
// and alerting, never live dispatch decisions.
type HealthRecord struct {
	GatewayStatus   string                   `json:"gateway_status"`
	Services        map[string]ServiceHealth `json:"services"`
	ResponseTimeMS  int64                    `json:"response_time_ms"`
	UptimeSeconds   int64                    `json:"uptime_seconds"`
	TotalServices   int                      `json:"total_services"`
	HealthyServices int                      `json:"healthy_services"`
	Timestamp       time.Time                `json:"timestamp"`
}
