package errors

var (
	ErrInvalidArgument          = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrProcessing               = New(ERR_PROCESSING, "error processing")
	ErrConfiguration            = New(ERR_CONFIGURATION, "configuration error")
	ErrContextCanceled          = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrBlockNotFound            = New(ERR_BLOCK_NOT_FOUND, "block not found")
	ErrBlockInvalid             = New(ERR_BLOCK_INVALID, "block invalid")
	ErrBlockExists              = New(ERR_BLOCK_EXISTS, "block exists")
	ErrBlockOrphan              = New(ERR_BLOCK_ORPHAN, "block parent unknown")
	ErrHeaderInvalid            = New(ERR_HEADER_INVALID, "header invalid")
	ErrServiceError             = New(ERR_SERVICE_ERROR, "service error")
	ErrStorageError             = New(ERR_STORAGE_ERROR, "storage error")
	ErrNetworkTimeout           = New(ERR_NETWORK_TIMEOUT, "network timeout")
	ErrNetworkConnectionRefused = New(ERR_NETWORK_CONNECTION_REFUSED, "connection refused")
	ErrNetworkPeerMalicious     = New(ERR_NETWORK_PEER_MALICIOUS, "peer misbehaving")
	ErrNetworkPeerDisconnected  = New(ERR_NETWORK_PEER_DISCONNECTED, "peer disconnected")
)

// errors initialization functions

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewAuthenticationError(message string, params ...interface{}) error {
	return New(ERR_AUTHENTICATION, message, params...)
}
func NewBlockNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}
func NewBlockInvalidError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_INVALID, message, params...)
}
func NewBlockExistsError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_EXISTS, message, params...)
}
func NewBlockOrphanError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_ORPHAN, message, params...)
}
func NewHeaderInvalidError(message string, params ...interface{}) error {
	return New(ERR_HEADER_INVALID, message, params...)
}
func NewServiceUnavailableError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_UNAVAILABLE, message, params...)
}
func NewServiceNotStartedError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_NOT_STARTED, message, params...)
}
func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}
func NewStorageUnavailableError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_UNAVAILABLE, message, params...)
}
func NewStorageError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_ERROR, message, params...)
}
func NewStateInitializationError(message string, params ...interface{}) error {
	return New(ERR_STATE_INITIALIZATION, message, params...)
}
func NewStateError(message string, params ...interface{}) error {
	return New(ERR_STATE_ERROR, message, params...)
}
func NewNetworkTimeoutError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_TIMEOUT, message, params...)
}
func NewNetworkConnectionRefusedError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_CONNECTION_REFUSED, message, params...)
}
// NewNetworkPeerMaliciousError returns the concrete *Error so the caller can
// attach the peer, score and reason as data.
func NewNetworkPeerMaliciousError(message string, params ...interface{}) *Error {
	return New(ERR_NETWORK_PEER_MALICIOUS, message, params...)
}
func NewNetworkPeerDisconnectedError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_PEER_DISCONNECTED, message, params...)
}
