package types

// ScanStatus names the state-machine phase a progress event belongs to
type ScanStatus string

const (
	StatusInit        ScanStatus = "init"
	StatusEnumerating ScanStatus = "enumerating"
	StatusListing     ScanStatus = "listing"
	StatusScanning    ScanStatus = "scanning"
	StatusMatching    ScanStatus = "matching"
	StatusDone        ScanStatus = "done"
	StatusError       ScanStatus = "error"
)

// Terminal reports whether no further events may follow a status
func (s ScanStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ScanProgress is one frame of the streaming protocol.
// Results and Error only appear on the terminal frame.
type ScanProgress struct {
	Progress int         `json:"progress"`
	Message  string      `json:"message,omitempty"`
	Status   ScanStatus  `json:"status,omitempty"`
	Results  interface{} `json:"results,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// IsTerminal reports whether this frame ends the stream
func (p ScanProgress) IsTerminal() bool {
	return p.Status.Terminal()
}

// ScanSummary is the in-memory record the server keeps for recent scans
type ScanSummary struct {
	ID          string     `json:"id"`
	Type        ScanType   `json:"type"`
	Status      ScanStatus `json:"status"`
	ThemeID     int64      `json:"theme_id"`
	Found       int        `json:"found"`
	Assets      int        `json:"assets"`
	Scanned     int        `json:"scanned"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   string     `json:"started_at"`
	DurationMs  int64      `json:"duration_ms"`
}
