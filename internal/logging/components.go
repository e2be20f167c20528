package logging

// Component constants for structured logging. These replace ad-hoc
// bracketed prefixes in log messages so output can be filtered by
// subsystem.
const (
	ComponentStartup  = "startup"
	ComponentShutdown = "shutdown"
	ComponentConvert  = "convert"
	ComponentPool     = "pool"
	ComponentServer   = "server"
	ComponentDatabase = "database"
	ComponentProfile  = "profile"
	ComponentPanel    = "panel"
)
