package http

import "github.com/fyrsmithlabs/phrasegroup/internal/telemetry"

// OptionsRequest is the request body for POST /api/v1/options.
type OptionsRequest struct {
	// ID selects the per-sentence grammar of lazily loaded tables.
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}
