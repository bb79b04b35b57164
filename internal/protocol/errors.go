package protocol

// Kind classifies a failure for propagation.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindProtocol     Kind = "protocol"
	KindAdmission    Kind = "admission"
	KindUpstream     Kind = "upstream"
	KindProcessing   Kind = "processing"
	KindFatalSession Kind = "fatal_session"
)

// Machine-readable error codes sent to clients.
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeNoSession          = "NO_ACTIVE_SESSION"
	CodeTurnInProgress     = "TURN_IN_PROGRESS"
	CodeAudioBufferFull    = "AUDIO_BUFFER_FULL"
	CodeSessionStartFailed = "SESSION_START_FAILED"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeRealtimeError      = "REALTIME_ERROR"
	CodeProcessingError    = "PROCESSING_ERROR"
	CodeSaveFailed         = "SAVE_FAILED"
	CodeTokenInvalid       = "TOKEN_INVALID"
)

// Error is a classified relay failure carrying its client payload.
type Error struct {
	Kind        Kind
	Code        string
	Message     string
	Recoverable bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Upstream wraps an external AI failure; the session stays usable.
func Upstream(code, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: message, Recoverable: true, Err: err}
}

// Processing wraps an unexpected internal failure; the session stays usable.
func Processing(message string, err error) *Error {
	return &Error{Kind: KindProcessing, Code: CodeProcessingError, Message: message, Recoverable: true, Err: err}
}

// Protocol reports a client message that cannot be acted on.
func Protocol(code, message string) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: message, Recoverable: true}
}

// Fatal reports a session that cannot be created at all.
func Fatal(code, message string, err error) *Error {
	return &Error{Kind: KindFatalSession, Code: code, Message: message, Recoverable: false, Err: err}
}
