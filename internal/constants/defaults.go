package constants

// Server defaults
const (
	DefaultServerPort          = 9797
	DefaultReadTimeoutSec      = 15
	DefaultWriteTimeoutSec     = 15
	DefaultIdleTimeoutSec      = 60
	DefaultGracefulShutdownSec = 30
	ServerErrorChannelSize     = 1

	// Rate limiting for the capture endpoint
	DefaultRateLimitRequests  = 120
	DefaultRateLimitWindowSec = 60
)

// Database defaults
const (
	DefaultDatabaseRetryAttempts = 5
	DefaultRetryBackoffMs        = 100
	DefaultMaxBackoffMs          = 5000
	DefaultBusyTimeoutMs         = 5000
)

// Ingress capture defaults
const (
	DefaultFetchLimit   = 10
	MaxFetchLimit       = 100
	DefaultMaxBodyBytes = 1 << 20 // 1 MiB
)

// Wire transport
const (
	// WireReadLimitBytes caps one websocket frame of the wire protocol on
	// both ends. Sized for a full fetch page of maximum-size bodies plus
	// JSON and base64 overhead.
	WireReadLimitBytes = 2 * MaxFetchLimit * DefaultMaxBodyBytes
)

// Client defaults
const (
	DefaultConnectTimeoutSec  = 30
	DefaultRequestTimeoutSec  = 15
	DefaultReconnectBackoffMs = 500
	DefaultMaxReconnectMs     = 30000
)

// Encryption
const (
	EncryptionSecretEnvVar = "HYDRA_ENCRYPTION_SECRET"
	EncryptionEnabledVar   = "HYDRA_ENABLE_ENCRYPTION"
	NonceSize              = 12
	KeyIterations          = 100000
	KeySize                = 32
)
