package fsm

// ProcessRequest is the FSM input
type ProcessRequest struct {
	InputPath       string
	ApplyBorder     bool
	BorderColor     string
	BorderThickness int
}

// ProcessResponse is the FSM output (accumulated across transitions)
type ProcessResponse struct {
	// From Ingest
	SessionID    string
	Filename     string
	ProcessedRef string

	// From ApplyBorder
	BorderApplied bool

	// From Download
	Location string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateIngest      = "ingest"
	StateApplyBorder = "apply_border"
	StateDownload    = "download"
	StateComplete    = "complete"
	StateFailed      = "failed"
)
