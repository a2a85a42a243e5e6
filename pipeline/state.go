package pipeline

import "time"

// State is one step of the extraction state machine.
type State string

const (
	StateIdle                       State = "Idle"
	StateTryingDirect               State = "TryingDirect"
	StateTryingBrowserCapture       State = "TryingBrowserCapture"
	StateCheckingCaptcha            State = "CheckingCaptcha"
	StateCheckingEncryption         State = "CheckingEncryption"
	StateTryingInteractionLayer     State = "TryingInteractionLayer"
	StateTryingJsExtractedEndpoints State = "TryingJsExtractedEndpoints"
	StateTryingExternalUnlocker     State = "TryingExternalUnlocker"
	StateExhausted                  State = "Exhausted"
)

// sequence is the fixed order states are visited in. A state is left for
// the next one only when it produced no accepted candidate.
var sequence = []State{
	StateTryingDirect,
	StateTryingBrowserCapture,
	StateCheckingCaptcha,
	StateCheckingEncryption,
	StateTryingInteractionLayer,
	StateTryingJsExtractedEndpoints,
	StateTryingExternalUnlocker,
}

// Attempt records one strategy tried inside a state.
type Attempt struct {
	State    State         `json:"state"`
	Strategy string        `json:"strategy"`
	Accepted bool          `json:"accepted"`
	Reason   string        `json:"reason,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}
