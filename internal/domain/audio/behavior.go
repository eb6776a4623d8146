package audio

// PlayBehavior represents how a Play directive interacts with the play queue.
type PlayBehavior string

const (
	PlayBehaviorEnqueue         PlayBehavior = "ENQUEUE"          // Append to the queue tail
	PlayBehaviorReplaceAll      PlayBehavior = "REPLACE_ALL"      // Stop playback and replace the whole queue
	PlayBehaviorReplaceEnqueued PlayBehavior = "REPLACE_ENQUEUED" // Replace everything except the active item
)

// ClearBehavior represents the scope of a ClearQueue directive.
type ClearBehavior string

const (
	ClearBehaviorClearAll      ClearBehavior = "CLEAR_ALL"      // Clear the queue and stop the active item
	ClearBehaviorClearEnqueued ClearBehavior = "CLEAR_ENQUEUED" // Clear queued items, leave the active one playing
)

// StreamFormat is the container/codec hint attached to a stream.
type StreamFormat string

const (
	// FormatMPEG is the only format the service currently delivers and the
	// default when a directive omits the field.
	FormatMPEG StreamFormat = "AUDIO_MPEG"
)

// ErrorType classifies playback failures reported to the service.
type ErrorType string

const (
	ErrorUnknown             ErrorType = "MEDIA_ERROR_UNKNOWN"
	ErrorInvalidRequest      ErrorType = "MEDIA_ERROR_INVALID_REQUEST"
	ErrorServiceUnavailable  ErrorType = "MEDIA_ERROR_SERVICE_UNAVAILABLE"
	ErrorInternalServerError ErrorType = "MEDIA_ERROR_INTERNAL_SERVER_ERROR"
	ErrorInternalDeviceError ErrorType = "MEDIA_ERROR_INTERNAL_DEVICE_ERROR"
)
