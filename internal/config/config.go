package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Review service
	APIBaseURL string
	APIToken   string
	// Guest mode: set ClientToken to review via a shared client link
	ClientToken string
	GuestName   string
	// Push channel: "redis" or "ws"
	PushBackend string
	RedisURL    string
	PushWSURL   string
	// Shareable link base for client review URLs
	ShareBaseURL string
	ProjectID    int64
}

func Load() Config {
	return Config{
		APIBaseURL:   getenv("SCREENROOM_API_URL", "http://localhost:5000"),
		APIToken:     getenv("SCREENROOM_API_TOKEN", ""),
		ClientToken:  getenv("SCREENROOM_CLIENT_TOKEN", ""),
		GuestName:    getenv("SCREENROOM_GUEST_NAME", ""),
		PushBackend:  getenv("SCREENROOM_PUSH_BACKEND", "ws"),
		RedisURL:     getenv("REDIS_URL", "redis://localhost:6379/0"),
		PushWSURL:    getenv("SCREENROOM_PUSH_WS_URL", "ws://localhost:5000/socket"),
		ShareBaseURL: getenv("SCREENROOM_SHARE_URL", "http://localhost:5173"),
		ProjectID:    int64(getenvInt("SCREENROOM_PROJECT_ID", 0)),
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
