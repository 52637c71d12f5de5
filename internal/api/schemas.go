package api

import (
	"github.com/keagan/reelscope/internal/analysis"
	"github.com/keagan/reelscope/internal/pipeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

type AnalyzeResponse struct {
	Metrics    analysis.Metrics `json:"metrics"`
	Thumbnails []string         `json:"thumbnails"`
}

// ReportToResponse rounds the metrics and base64-encodes the thumbnails.
func ReportToResponse(r *pipeline.Report) AnalyzeResponse {
	resp := AnalyzeResponse{
		Metrics:    r.Metrics.Rounded(),
		Thumbnails: make([]string, len(r.Thumbnails)),
	}
	for i, t := range r.Thumbnails {
		resp.Thumbnails[i] = t.Base64()
	}
	return resp
}
