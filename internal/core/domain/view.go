package domain

// Phase is the lifecycle state of a view container
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseAwaiting Phase = "awaiting"
	PhaseError    Phase = "error"
)

// ImportDialog is the state of the SEC import dialog
type ImportDialog struct {
	Open    bool   `json:"open"`
	Loading bool   `json:"loading"`
	Ticker  string `json:"ticker"`
	Alert   string `json:"alert,omitempty"`
}

// DashboardState is a snapshot of the document dashboard
type DashboardState struct {
	Documents []Document   `json:"documents"`
	Uploading bool         `json:"uploading"`
	Import    ImportDialog `json:"import"`
	Phase     Phase        `json:"phase"`
	LastError string       `json:"last_error,omitempty"`
}

// ChatState is a snapshot of a chat session
type ChatState struct {
	Scope    Scope         `json:"scope"`
	Title    string        `json:"title"`
	Messages []ChatMessage `json:"messages"`
	Phase    Phase         `json:"phase"`
}

// Awaiting reports whether input should be disabled
func (s ChatState) Awaiting() bool {
	return s.Phase == PhaseAwaiting
}
