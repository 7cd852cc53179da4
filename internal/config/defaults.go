package config

// Default configuration values.
const (
	DefaultDir       = "./data"
	DefaultPort      = 69
	DefaultUID       = 65534
	DefaultGID       = 65534
	DefaultMode      = "rw"
	DefaultThreads   = 2
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
