package config

const (
	HCType        = "Content-Type"
	HCacheControl = "Cache-Control"
	HETag         = "ETag"

	CTypeJSON        = "application/json"
	CTypeEventStream = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
	HTTPErrInvalidDocument  = "Invalid document id"
)
