package server

import (
	"encoding/json"
	"time"

	"github.com/chazu/pumpkin/pkg/bytecode"
)

// Request and response messages of the pumpkin.v1 services. They travel as
// JSON; Program fields carry the parser's AST document verbatim.

// LimitsMessage lowers the server's execution fuses for one request.
// Zero fields keep the server's value.
type LimitsMessage struct {
	MaxInstructions int `json:"max_instructions,omitempty"`
	MaxCallDepth    int `json:"max_call_depth,omitempty"`
	MaxStack        int `json:"max_stack,omitempty"`
}

// ---------------------------------------------------------------------------
// ExecutionService
// ---------------------------------------------------------------------------

type ExecuteRequest struct {
	Program json.RawMessage `json:"program"`
	Limits  *LimitsMessage  `json:"limits,omitempty"`
}

type CheckRequest struct {
	Program json.RawMessage `json:"program"`
}

type CheckResponse struct {
	Valid bool            `json:"valid"`
	Error *bytecode.Error `json:"error,omitempty"`
}

type DisassembleRequest struct {
	Program json.RawMessage `json:"program"`
}

type DisassembleResponse struct {
	Listing string          `json:"listing,omitempty"`
	Error   *bytecode.Error `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// SessionService
// ---------------------------------------------------------------------------

type CreateSessionRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

type RunRequest struct {
	SessionID string          `json:"session_id"`
	Program   json.RawMessage `json:"program"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type GlobalsResponse struct {
	Globals map[string]bytecode.Value `json:"globals"`
}

type ListSessionsRequest struct{}

type SessionInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name,omitempty"`
	Runs    int       `json:"runs"`
	Created time.Time `json:"created"`
}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type Empty struct{}

// ---------------------------------------------------------------------------
// DebugService
// ---------------------------------------------------------------------------

type StartDebugRequest struct {
	Program     json.RawMessage `json:"program"`
	Breakpoints []int           `json:"breakpoints,omitempty"`
	Limits      *LimitsMessage  `json:"limits,omitempty"`
}

type DebugRequest struct {
	DebugID string `json:"debug_id"`
}

type BreakpointsRequest struct {
	DebugID string `json:"debug_id"`
	Lines   []int  `json:"lines"`
}

// DebugStateMessage reports where a debugged program stands. Stop is empty
// until the program has been resumed or stepped.
type DebugStateMessage struct {
	DebugID     string          `json:"debug_id"`
	Stop        string          `json:"stop,omitempty"`
	Line        int             `json:"line"`
	IP          int             `json:"ip"`
	Function    string          `json:"function,omitempty"`
	Stack       []string        `json:"stack"`
	Output      []string        `json:"output"`
	Running     bool            `json:"running"`
	Breakpoints []int           `json:"breakpoints"`
	Value       *bytecode.Value `json:"value,omitempty"`
	Error       *bytecode.Error `json:"error,omitempty"`
}
