package main

import "time"

// Chat model and generation defaults
const (
	// Gemini chat model
	DefaultChatModel = "gemini-2.5-flash"
	// OpenAI-compatible chat model
	DefaultOpenAIModel = "gpt-4o-mini"
	// Embedding model used by the vector knowledge retriever
	DefaultEmbeddingModel = "gemini-embedding-001"
	// Output dimensionality for embeddings (MRL optimized)
	EmbeddingDimension = 768

	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 500
	DefaultChatTimeout     = 60 * time.Second
)

// Session store defaults
const (
	// DefaultSessionID is used when the caller does not supply one.
	DefaultSessionID = "default"
	// Five user/assistant exchanges
	DefaultMaxHistoryTurns = 10
	DefaultMaxSessions     = 1000
	DefaultSessionIdleTTL  = 30 * time.Minute
	DefaultSweepInterval   = time.Minute
)

// Knowledge retrieval
const (
	RetrieverKeyword = "keyword"
	RetrieverVector  = "vector"

	DefaultContextDocuments = 3
	DefaultMaxContextChars  = 4000
	KnowledgeCollectionName = "portfolio_knowledge"

	// Embedding task types
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
	// Prefix to mark query tasks in the embedding function
	QueryTaskPrefix = "QUERY_TASK:"

	// UserQuestionMarker separates injected context from the first message of a session.
	UserQuestionMarker = "\n\nUser question: "
)

// Chat input limits
const (
	MaxChatMessageLength = 1000
)

// Contact listing defaults
const (
	DefaultContactLimit = 50
	MaxContactLimit     = 200
)

// AI providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	DriverNone     = "none"
)

// Server configuration constants
const (
	ServerName    = "portfolio-backend"
	ServerVersion = "1.0.0"

	DefaultPort          = 8080
	DefaultEnvironment   = "development"
	DefaultTrustedSuffix = ".vercel.app"
	MaxRequestBodyBytes  = 1 << 20
	ShutdownTimeout      = 30 * time.Second
)

// Mail relay defaults
const (
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 587
)

// CLI messages
const (
	PromptStr     = "you> "
	WelcomeMsg    = "=== Portfolio Chat ==="
	HelpMsg       = "Commands: /clear | /help | /exit. Anything else is sent to the assistant."
	UnknownCmdMsg = "Unknown command. Try: /clear, /help, /exit"
)

// Response messages
const (
	HistoryClearedMsg   = "Conversation history cleared"
	ContactReceivedMsg  = "Message received successfully! Check your email for confirmation."
	ContactUpdatedMsg   = "Contact status updated"
	RouteNotFoundMsg    = "Route not found"
	InternalErrorMsg    = "Internal server error"
	OriginNotAllowedMsg = "Not allowed by CORS"
)
