package server

import (
	"github.com/gin-gonic/gin"

	"github.com/deepteams/webpconv"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, APIResponse{Success: true, Data: data, Message: "ok", Code: status})
}

func respondError(c *gin.Context, status int, message string, data any) {
	c.AbortWithStatusJSON(status, APIResponse{Success: false, Data: data, Message: message, Code: status})
}

// ReportJSON is the JSON form of a webpconv.Report.
type ReportJSON struct {
	RequestID     string         `json:"request_id,omitempty"`
	Results       []ResultJSON   `json:"results"`
	Failures      []FailureJSON  `json:"failures"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	TotalOriginal int64          `json:"total_original_bytes"`
	TotalEncoded  int64          `json:"total_webp_bytes"`
	Reduction     float64        `json:"reduction"`
	FormatCounts  map[string]int `json:"format_counts"`
}

type ResultJSON struct {
	OutputName string         `json:"output_name"`
	Stats      webpconv.Stats `json:"stats"`
}

type FailureJSON struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// NewReportJSON flattens r for encoding. requestID may be empty.
func NewReportJSON(requestID string, r *webpconv.Report) ReportJSON {
	out := ReportJSON{
		RequestID:     requestID,
		Results:       make([]ResultJSON, 0, len(r.Results)),
		Failures:      make([]FailureJSON, 0, len(r.Failures)),
		Succeeded:     r.Succeeded(),
		Failed:        r.Failed(),
		TotalOriginal: r.TotalOriginal,
		TotalEncoded:  r.TotalEncoded,
		Reduction:     r.Reduction(),
		FormatCounts:  r.FormatCounts(),
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, ResultJSON{OutputName: res.OutputName(), Stats: res.Stats})
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, FailureJSON{Filename: f.Filename, Error: f.Err.Error()})
	}
	return out
}
