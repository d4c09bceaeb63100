package opcua

import "errors"

// Domain-specific errors for the OPC UA bridge.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed is returned when a session cannot be established.
	ErrConnectFailed = errors.New("opcua: connect failed")

	// ErrSecurityConfig is returned when the configured security policy,
	// mode or certificate material cannot be used.
	ErrSecurityConfig = errors.New("opcua: security configuration invalid")

	// ErrNoMatchingEndpoint is returned when the server offers no endpoint
	// for the configured security policy and mode.
	ErrNoMatchingEndpoint = errors.New("opcua: no endpoint matches security settings")

	// ErrNotConnected is returned when a write is attempted without a session.
	ErrNotConnected = errors.New("opcua: session not connected")

	// ErrWriteRejected is returned when the server refuses a write.
	ErrWriteRejected = errors.New("opcua: write rejected by server")

	// ErrInvalidPayload is returned when a command payload cannot be
	// parsed for the tag's declared type.
	ErrInvalidPayload = errors.New("opcua: invalid command payload")

	// ErrTypeMismatch is returned when a notification value cannot be
	// coerced to the tag's declared type.
	ErrTypeMismatch = errors.New("opcua: value type mismatch")

	// ErrReadOnlyTag is returned when a command targets a read-only tag.
	ErrReadOnlyTag = errors.New("opcua: tag is read-only")

	// ErrUnknownTag is returned when a command targets an unregistered path.
	ErrUnknownTag = errors.New("opcua: unknown tag")
)
