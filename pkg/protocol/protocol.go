// Package protocol defines the wire types exchanged between a runfleet
// agent and its controller. The protocol is plain JSON over HTTP:
//
//	POST /get-id                    register, returns a client id
//	GET  /get-actions/{client_id}   fetch pending actions
//	POST /report-results            report captured output
//
// Action payloads are trusted verbatim: the controller is the single,
// fully trusted command source. That is a contract of the protocol, not
// an oversight; agents must not sanitize or rewrite payloads.
package protocol

// Known action types. The set is closed; anything else is reported back
// as an unknown action type.
const (
	ActionRunPy   = "runpy"   // data is inline source text
	ActionRunFile = "run"     // data is a local file path
	ActionCmd     = "cmd"     // data is a shell command line
	ActionZipFile = "zipfile" // data is a URL to a zip archive
)

// Action is one unit of work issued by the controller. Actions are
// immutable and ephemeral; the agent never persists them.
type Action struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ActionResult pairs an action with its captured output. Output combines
// stdout and stderr, or holds a synthesized message when execution could
// not proceed.
type ActionResult struct {
	Action Action `json:"action"`
	Output string `json:"output"`
}

// RegisterRequest carries the client profile sent once at registration.
type RegisterRequest struct {
	Name    string `json:"name"`
	OS      string `json:"os"`
	Version string `json:"version"`
}

type RegisterResponse struct {
	ClientID string `json:"client_id"`
}

// ActionsResponse is the body of GET /get-actions/{client_id}. A missing
// or empty actions array means no pending work.
type ActionsResponse struct {
	Actions []Action `json:"actions"`
}

// ReportRequest is the body of POST /report-results. Results preserve the
// order in which actions were received.
type ReportRequest struct {
	ClientID string         `json:"client_id"`
	Results  []ActionResult `json:"results"`
}
