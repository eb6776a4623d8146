package player

import "time"

// Namespace is the capability interface name carried in directive and event
// headers.
const Namespace = "AudioPlayer"

// Directive names addressed to this component.
const (
	NamePlay       = "Play"
	NameStop       = "Stop"
	NameClearQueue = "ClearQueue"
)

// Directive is one decoded service directive.
type Directive struct {
	Name      string
	MessageID string
	Payload   []byte // raw JSON payload
}

// Result reports directive handling back to the dispatching side. Methods may
// be called from any goroutine; implementations keep the first outcome.
type Result interface {
	SetCompleted()
	SetFailed(description string)
}

// Message is one outbound event: the header name plus the serialized envelope.
type Message struct {
	Name string
	JSON []byte
}

// MessageSender delivers outbound events to the service connection.
type MessageSender interface {
	SendMessage(msg Message)
}

// RefreshPolicy hints how long a reported state snapshot stays valid.
type RefreshPolicy string

// RefreshNever marks snapshots that stay valid until the next push.
const RefreshNever RefreshPolicy = "NEVER"

// StateReporter receives playback state snapshots, unsolicited (requestToken
// zero) or in answer to a ProvideState call.
type StateReporter interface {
	SetState(state []byte, policy RefreshPolicy, requestToken uint32) error
}

// ExceptionType classifies directives this component rejected.
type ExceptionType string

const (
	ExceptionUnexpectedInformation ExceptionType = "UNEXPECTED_INFORMATION_RECEIVED"
	ExceptionInternalError         ExceptionType = "INTERNAL_ERROR"
)

// ExceptionSender reports rejected directives back to the service.
type ExceptionSender interface {
	SendExceptionEncountered(payload []byte, errorType ExceptionType, message string)
}

// PlaybackRouter owns the mapping of the physical playback controls; the
// player switches it to the default handler when it becomes the active
// source.
type PlaybackRouter interface {
	SwitchToDefaultHandler()
}

// Context identifies the item an activity change refers to.
type Context struct {
	AudioItemID string
	Offset      time.Duration
}

// ActivityObserver is notified of every activity change.
type ActivityObserver interface {
	OnPlayerActivityChanged(activity Activity, ctx Context)
}

// Snapshot is the reportable playback state.
type Snapshot struct {
	Token                string `json:"token"`
	OffsetInMilliseconds int64  `json:"offsetInMilliseconds"`
	PlayerActivity       string `json:"playerActivity"`
}
