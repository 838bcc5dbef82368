package inksocket

// Action selects what the backend does with the submitted text.
type Action string

const (
	ActionComplete Action = "completion"
	ActionRewrite  Action = "rewrite"
	ActionExpand   Action = "expand"
	ActionSimplify Action = "simplify"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionComplete, ActionRewrite, ActionExpand, ActionSimplify:
		return true
	}
	return false
}

// Temperature returns the sampling temperature used for the action.
func (a Action) Temperature() float64 {
	switch a {
	case ActionComplete:
		return 0.7
	case ActionExpand:
		return 0.8
	default:
		return 0.5
	}
}

// Label returns the in-progress status label shown while the action runs.
func (a Action) Label() string {
	switch a {
	case ActionComplete:
		return "generating"
	case ActionRewrite:
		return "rewriting"
	case ActionExpand:
		return "expanding"
	case ActionSimplify:
		return "simplifying"
	default:
		return "processing"
	}
}

// StatusCode is a WebSocket close status code.
type StatusCode int

const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusAbnormalClosure StatusCode = 1006
)

// --- Requests (Client -> Server) ---

// Request is a generation request sent to the server.
type Request struct {
	Text           string  `json:"text"`
	Action         Action  `json:"action"`
	ContextBefore  *string `json:"context_before,omitempty"`
	ContextAfter   *string `json:"context_after,omitempty"`
	CursorPosition *int    `json:"cursor_position,omitempty"`
	MaxTokens      *int    `json:"max_tokens,omitempty"`
	Temperature    float64 `json:"temperature"`
}

// NewCompletionRequest creates a free-completion request.
func NewCompletionRequest(text string, maxTokens int) *Request {
	req := &Request{
		Text:        text,
		Action:      ActionComplete,
		Temperature: ActionComplete.Temperature(),
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return req
}

// NewOptimizeRequest creates a rewrite, expand or simplify request.
func NewOptimizeRequest(text string, action Action) *Request {
	return &Request{
		Text:        text,
		Action:      action,
		Temperature: action.Temperature(),
	}
}

// --- Frames (Server -> Client) ---

// Frame types that belong to a generation stream.
const (
	FrameTypeStart = "start"
	FrameTypeToken = "token"
	FrameTypeEnd   = "end"
	FrameTypeError = "error"
)

// Frame is one message received from the server.
type Frame struct {
	Type string `json:"type"`

	Token      string `json:"token,omitempty"`
	Completion string `json:"completion,omitempty"`
	Error      string `json:"error,omitempty"`

	// Informational fields some backends attach to every frame.
	Action Action `json:"action,omitempty"`
	Status string `json:"status,omitempty"`
}

// IsStart returns true if this is a start frame.
func (f *Frame) IsStart() bool {
	return f.Type == FrameTypeStart
}

// IsToken returns true if this is a token frame.
func (f *Frame) IsToken() bool {
	return f.Type == FrameTypeToken
}

// IsEnd returns true if this is an end frame.
func (f *Frame) IsEnd() bool {
	return f.Type == FrameTypeEnd
}

// IsError returns true if this is an error frame.
func (f *Frame) IsError() bool {
	return f.Type == FrameTypeError
}

// IsCompletion reports whether the frame is part of a generation stream.
func (f *Frame) IsCompletion() bool {
	return f.IsStart() || f.IsToken() || f.IsEnd() || f.IsError()
}

// IsTerminal reports whether the frame ends a generation stream.
func (f *Frame) IsTerminal() bool {
	return f.IsEnd() || f.IsError()
}
