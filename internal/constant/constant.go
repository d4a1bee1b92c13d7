// Package constant defines dialect and endpoint identifiers shared across the proxy core.
package constant

const (
	// OpenAI identifies the caller-facing chat-completions dialect.
	OpenAI = "openai"

	// Gemini identifies the upstream Code Assist generateContent dialect.
	Gemini = "gemini"
)

const (
	// GeminiEndpoint is the base URL for the Google Code Assist backend.
	GeminiEndpoint = "https://cloudcode-pa.googleapis.com"

	// GeminiAPIVersion is the versioned path segment used for all upstream methods.
	GeminiAPIVersion = "v1internal"
)

const (
	// MethodLoadCodeAssist resolves the caller's existing Code Assist project, if any.
	MethodLoadCodeAssist = "loadCodeAssist"
	// MethodOnboardUser provisions a Code Assist project for first-time callers.
	MethodOnboardUser = "onboardUser"
	// MethodGenerateContent is the non-streaming completion method.
	MethodGenerateContent = "generateContent"
	// MethodStreamGenerateContent is the streaming completion method, used with ?alt=sse.
	MethodStreamGenerateContent = "streamGenerateContent"
)

// DefaultProjectSentinel is sent as the placeholder project during onboarding,
// per the upstream handshake contract.
const DefaultProjectSentinel = "default-project"

// DefaultTier is used when no allowed tier is marked default.
const DefaultTier = "free-tier"
