package commands

import "time"

// CommonConfig contains configuration common to all commands
type CommonConfig struct {
	// DataDir holds the ledger database and, by default, the vector index
	DataDir string `help:"Path to data directory" default:"./_data" env:"EMAIL_DATA_DIR"`
	// LogLevel is the logging level to use
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error" env:"LOG_LEVEL"`
}

// IndexConfig locates the vector index and collection
type IndexConfig struct {
	DBPath         string `name:"db-path" help:"Path to the vector index directory" default:"./_data/chroma_db" env:"EMAIL_DB_PATH"`
	CollectionName string `help:"Collection to read from or write to" default:"outlook_emails" env:"EMAIL_COLLECTION"`
}

// EmbeddingConfig contains common flag definitions for embedding configuration
type EmbeddingConfig struct {
	// Provider is the embedding provider to use
	Provider string `help:"Embedding provider to use" default:"ollama" enum:"ollama,openai,lmstudio,llamacpp,gemini" env:"EMBEDDING_PROVIDER"`

	OllamaEndpoint string `help:"Ollama OpenAI-compatible endpoint" default:"http://localhost:11434/v1" env:"OLLAMA_ENDPOINT"`
	OllamaModel    string `help:"Ollama embedding model" default:"nomic-embed-text" env:"OLLAMA_EMBEDDING_MODEL"`

	OpenAIAPIKey   string `name:"openai-api-key" help:"OpenAI API key" env:"OPENAI_API_KEY"`
	OpenAIEndpoint string `name:"openai-endpoint" help:"OpenAI-compatible endpoint" env:"OPENAI_ENDPOINT"`
	OpenAIModel    string `name:"openai-model" help:"OpenAI embedding model" default:"text-embedding-3-small" env:"OPENAI_EMBEDDING_MODEL"`

	LMStudioEndpoint string `name:"lmstudio-endpoint" help:"LM Studio endpoint" default:"http://localhost:1234/v1" env:"LMSTUDIO_ENDPOINT"`
	LMStudioModel    string `name:"lmstudio-model" help:"LM Studio embedding model" default:"text-embedding-nomic-embed-text-v1.5" env:"LMSTUDIO_EMBEDDING_MODEL"`

	LlamaCppURL   string `name:"llamacpp-url" help:"llama.cpp server URL" default:"http://localhost:8080" env:"LLAMACPP_URL"`
	LlamaCppModel string `name:"llamacpp-model" help:"llama.cpp embedding model name" env:"LLAMACPP_EMBEDDING_MODEL"`

	GeminiAPIKey string `help:"Google Gemini API key" env:"GEMINI_API_KEY"`
	GeminiModel  string `help:"Gemini embedding model" default:"text-embedding-004" env:"GEMINI_EMBEDDING_MODEL"`

	// Task prefixes default to what the model family expects; Gemini uses task types instead
	DocumentPrefix string `name:"document-prefix" help:"Text prepended to emails before embedding (default depends on the model)" env:"EMBEDDING_DOCUMENT_PREFIX"`
	QueryPrefix    string `name:"query-prefix" help:"Text prepended to search queries before embedding (default depends on the model)" env:"EMBEDDING_QUERY_PREFIX"`
	NoTaskPrefixes bool   `name:"no-task-prefixes" help:"Embed text without any task prefixes" default:"false" env:"EMBEDDING_NO_TASK_PREFIXES"`
}

// LLMConfig selects the language model used to interpret queries
type LLMConfig struct {
	UseLLM       bool          `name:"use-llm" help:"Use a language model to parse the query, falling back to regex parsing" default:"false" env:"EMAIL_USE_LLM"`
	LLMProvider  string        `name:"llm-provider" help:"Language model backend" default:"ollama" enum:"ollama,openai,openrouter,gemini" env:"LLM_PROVIDER"`
	LLMModel     string        `name:"llm-model" help:"Model used for query parsing" default:"llama3.1:latest" env:"LLM_MODEL"`
	LLMURL       string        `name:"llm-url" help:"Endpoint for the language model (Ollama generate URL or OpenAI-compatible base URL)" default:"http://localhost:11434/api/generate" env:"LLM_URL"`
	LLMTimeout   time.Duration `name:"llm-timeout" help:"Timeout for a single language model call" default:"20s" env:"LLM_TIMEOUT"`
	LLMAPIKey    string        `name:"llm-api-key" help:"API key for the openai and openrouter backends" env:"LLM_API_KEY"`
	LLMGeminiKey string        `name:"llm-gemini-key" help:"API key for the gemini backend" env:"GEMINI_API_KEY"`
}
