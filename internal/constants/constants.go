package constants

import "time"

// Network defaults
const (
	DefaultHost     = "localhost:8080"
	DefaultPort     = "8080"
	UpstreamTimeout = 30 * time.Second
	DialTimeout     = 10 * time.Second
	WSBufferSize    = 131072           // 128KB WebSocket buffer
	MaxBodySize     = 100 * 1024 * 1024 // 100MB
)

// Redirect following
const (
	MaxRedirectHops    = 5
	StatusRedirectLoop = 599 // synthetic terminal status, never produced by a real upstream
)

// Session slots
const (
	DefaultSlot       = "1"
	SlotPathMarker    = "s"
	SlotQueryParam    = "acc"
	SessionQueryParam = "session"
	MaxSlotKeyLength  = 32
	MaxSlotIndex      = 99
	SlotCookieSuffix  = "_slot" // proxy-own cookie remembering the active slot per service
)

// Credential resolution
const (
	CredentialTimeout = 8 * time.Second
	EnvSheetURL       = "CREDENTIALS_SHEET_URL"
	EnvSheetCSVURL    = "CREDENTIALS_SHEET_CSV_URL"
)

// Auto-login client script
const (
	LoginPollIntervalMS = 500
	LoginMaxAttempts    = 40
)

// Rate limiting
const (
	DefaultRateLimit      = 300 // requests per window per IP
	RateLimitWindow       = time.Minute
	MaxConnectionsPerIP   = 20
	MaxAuditLogsPerMinute = 500
)

// Redis
const (
	RedisKeyPrefix = "eeproxy:ratelimit:"
	EnvRedisHost   = "REDIS_HOST"
	EnvRedisPort   = "REDIS_PORT"
	EnvRedisUser   = "REDIS_USERNAME"
	EnvRedisPass   = "REDIS_PASSWORD"
)

// API endpoints
const (
	EndpointHealth     = "/healthz"
	EndpointNewSession = "/api/session/new"
)

const AppName = "eeproxy"

// Messages
const (
	MsgMethodNotAllowed  = "Method not allowed"
	MsgUnknownService    = "Unknown service"
	MsgRateLimitExceeded = "Rate limit exceeded"
	MsgRedirectLoop      = "Upstream redirect loop"
)
