package server

import (
	"encoding/json"
	"fmt"

	"github.com/standardbeagle/themescan/internal/types"
)

// Wire types shared by ScanServer and Client

// ScanIDHeader carries the id of the scan a /scan response streams
const ScanIDHeader = "X-Scan-Id"

// NDJSONContentType is the content type of a scan stream
const NDJSONContentType = "application/x-ndjson"

// PingResponse confirms server is alive
type PingResponse struct {
	Uptime  float64 `json:"uptime_seconds"`
	Version string  `json:"version"`
	BuildID string  `json:"build_id"`
	Store   string  `json:"store,omitempty"`
}

// StatusResponse lists the most recent scans, newest first
type StatusResponse struct {
	Scans  []types.ScanSummary `json:"scans"`
	Active []ActiveScan        `json:"active"`
}

// ActiveScan is a scan that is still streaming
type ActiveScan struct {
	ID        string         `json:"id"`
	Type      types.ScanType `json:"type"`
	StartedAt string         `json:"started_at"`
}

// ErrorResponse is returned for failures before a stream starts
type ErrorResponse struct {
	Error string `json:"error"`
}

// ShutdownResponse confirms shutdown
type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ScanParams are the query parameters of /scan
type ScanParams struct {
	Type    types.ScanType
	ThemeID int64
	// BatchSize and DelayMs override the configured throughput when >= 0
	BatchSize int
	DelayMs   int
}

// Frame is a decoded ScanProgress frame whose results are kept raw until
// the caller knows which shape to expect
type Frame struct {
	Progress int              `json:"progress"`
	Message  string           `json:"message,omitempty"`
	Status   types.ScanStatus `json:"status,omitempty"`
	Results  json.RawMessage  `json:"results,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// IsTerminal reports whether this frame ends the stream
func (f Frame) IsTerminal() bool {
	return f.Status.Terminal()
}

// Found decodes the results of a reference scan
func (f Frame) Found() ([]string, error) {
	if len(f.Results) == 0 || string(f.Results) == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(f.Results, &out); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return out, nil
}

// Sections decodes the results of a sections scan
func (f Frame) Sections() ([]types.SectionDescriptor, error) {
	if len(f.Results) == 0 || string(f.Results) == "null" {
		return nil, nil
	}
	var out []types.SectionDescriptor
	if err := json.Unmarshal(f.Results, &out); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return out, nil
}

// ToProgress converts the frame back into the engine's frame type.
// Results decode into []string or []SectionDescriptor depending on t.
func (f Frame) ToProgress(t types.ScanType) types.ScanProgress {
	p := types.ScanProgress{
		Progress: f.Progress,
		Message:  f.Message,
		Status:   f.Status,
		Error:    f.Error,
	}
	if t == types.ScanSections {
		if sections, err := f.Sections(); err == nil && sections != nil {
			p.Results = sections
		}
	} else if found, err := f.Found(); err == nil && found != nil {
		p.Results = found
	}
	return p
}
