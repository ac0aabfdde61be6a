package config

import "time"

const (
	DefaultStorageDir        = "./uploads"
	DefaultPort              = "9999"
	DefaultMaxUploadSize     = "16GiB"
	DefaultDebounceInterval  = 100 * time.Millisecond
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultFanoutWorkers     = 16
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"

	// EnvPrefix prefixes environment overrides, e.g. DROPZONE_MAX_UPLOAD_SIZE.
	EnvPrefix = "DROPZONE"
)

// Configuration keys shared by flags, env and viper lookups.
const (
	KeyPort          = "port"
	KeyStorageDir    = "dir"
	KeyMaxUploadSize = "max-upload-size"
	KeyDebounce      = "debounce"
	KeyHeartbeat     = "heartbeat"
	KeyFanoutWorkers = "fanout-workers"
	KeyLogLevel      = "log-level"
	KeyLogFormat     = "log-format"
)
