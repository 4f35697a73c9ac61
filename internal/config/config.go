package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr string
	// GitHub Gist (record store)
	GistBaseURL string
	GistID      string
	GithubToken string
	// OpenAI
	OpenAIBaseURL string
	OpenAIKey     string
	OpenAIModel   string
	AssistantID   string
	VectorStoreID string
	// Slack-facing settings
	SlackBaseURL       string
	SlackBotToken      string
	SlackSigningSecret string
	ReportChannelID    string
	// Redis - event dedup for the at-least-once transport
	RedisURL string
	// Hot-reloadable snapshot source
	SnapshotPath string
	AskWorkers   int
}

func Load() Config {
	return Config{
		Addr:               getenv("BOT_ADDR", ":3000"),
		GistBaseURL:        getenv("GIST_BASE_URL", "https://api.github.com"),
		GistID:             getenv("GIST_ID", ""),
		GithubToken:        getenv("GITHUB_TOKEN", ""),
		OpenAIBaseURL:      getenv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIKey:          getenv("OPENAI_API_KEY", ""),
		OpenAIModel:        getenv("OPENAI_MODEL", "gpt-4o-mini"),
		AssistantID:        getenv("OPENAI_ASSISTANT_ID", ""),
		VectorStoreID:      getenv("OPENAI_VECTOR_STORE_ID", ""),
		SlackBaseURL:       getenv("SLACK_BASE_URL", "https://slack.com"),
		SlackBotToken:      getenv("SLACK_BOT_TOKEN", ""),
		SlackSigningSecret: getenv("SLACK_SIGNING_SECRET", ""),
		ReportChannelID:    getenv("CHANNEL_ID", ""),
		// Redis - empty disables dedup (events processed as delivered)
		RedisURL:     getenv("REDIS_URL", ""),
		SnapshotPath: getenv("PULSE_CONFIG_PATH", "./config.json"),
		AskWorkers:   getenvInt("PULSE_ASK_WORKERS", 4),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
