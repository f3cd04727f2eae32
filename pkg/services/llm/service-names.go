package llm

type ServiceName string

// Text Models
const (
	// ModelGemini15Flash is Google's Gemini 1.5 Flash model.
	ModelGemini15Flash ServiceName = "gemini-1.5-flash"
	// ModelGemini15Pro is Google's Gemini 1.5 Pro model.
	ModelGemini15Pro ServiceName = "gemini-1.5-pro"
	// ModelClaude35Sonnet is Anthropic's Claude 3.5 Sonnet model.
	ModelClaude35Sonnet ServiceName = "claude-3-5-sonnet@20240620"
	// ModelGPT4o is OpenAI's GPT-4o model.
	ModelGPT4o ServiceName = "gpt-4o"
	// ModelGPT4oMini is OpenAI's GPT-4o mini model.
	ModelGPT4oMini ServiceName = "gpt-4o-mini"
)

// Search Engines
const (
	// SearchEngineBrave is Brave's search engine.
	SearchEngineBrave ServiceName = "brave-search"
	// SearchEngineGoogle is Google's search engine.
	SearchEngineGoogle ServiceName = "google-search"
)

// Tools
const (
	ToolWebSearch   ServiceName = "tool-web-search"
	ToolXSearch     ServiceName = "tool-x-search"
	ToolYouTube     ServiceName = "tool-youtube-search"
	ToolReddit      ServiceName = "tool-reddit-search"
	ToolMovieSearch ServiceName = "tool-movie-search"
)

// Voice
const (
	// VoiceElevenLabsTTS is the ElevenLabs text to speech service.
	VoiceElevenLabsTTS ServiceName = "elevenlabs-tts"
)

func (m ServiceName) String() string {
	return string(m)
}

// Pro reports whether the model is reserved for subscribers.
func (m ServiceName) Pro() bool {
	switch m {
	case ModelClaude35Sonnet, ModelGPT4o, ModelGemini15Pro:
		return true
	default:
		return false
	}
}

// IsChatModel reports whether the service name routes to a chat provider.
func (m ServiceName) IsChatModel() bool {
	switch m {
	case ModelGemini15Flash, ModelGemini15Pro, ModelClaude35Sonnet, ModelGPT4o, ModelGPT4oMini:
		return true
	default:
		return false
	}
}
