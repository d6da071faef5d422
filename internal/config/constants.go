package config

import "time"

const (
	// Quiescence window: how long assistant output must stay unchanged
	// before a live turn is considered final.
	QuiescenceWindow = 3000 * time.Millisecond

	// Minimum assistant content length before a turn may be persisted.
	MinAssistantContentLen = 50

	// Placeholder rendered while the model is still thinking.
	// Turns still showing it are never persisted.
	LoadingPlaceholder = "Hold on"

	// Session title limits
	TitleMaxLen         = 50
	DefaultSessionTitle = "New Chat"

	// AI request timeout
	RequestTimeout = 90 * time.Second

	// Web search
	SearchTimeout       = 15 * time.Second
	SearchCacheDuration = 10 * time.Minute

	// History sent to the model per request
	MaxHistoryMessages = 40

	// Server timeouts
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 15 * time.Second

	// Database pool sizing
	DBMaxConns = 20
	DBMinConns = 5
)
