package errors

// Error codes for the placeholder bus contracts. Keep stable; used across adapters and the API.
const (
	ErrCodePublishFailed       = "placeholder.publish_failed"
	ErrCodeSubscribeFailed     = "placeholder.subscribe_failed"
	ErrCodeSerializationFailed = "placeholder.serialization_failed"
	ErrCodeInvalidPayload      = "placeholder.invalid_payload"
	ErrCodeHandlerFailed       = "placeholder.handler_failed"
	ErrCodeAlreadyStarted      = "placeholder.already_started"
	ErrCodeClosed              = "placeholder.closed"
	ErrCodeNotConnected        = "placeholder.not_connected"
	ErrCodeInvalidConfig       = "placeholder.invalid_config"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSubscribeFailed     = Code(ErrCodeSubscribeFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrInvalidPayload      = Code(ErrCodeInvalidPayload)
	ErrHandlerFailed       = Code(ErrCodeHandlerFailed)
	ErrAlreadyStarted      = Code(ErrCodeAlreadyStarted)
	ErrClosed              = Code(ErrCodeClosed)
	ErrNotConnected        = Code(ErrCodeNotConnected)
	ErrInvalidConfig       = Code(ErrCodeInvalidConfig)
)
