// Package config loads the process configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DeepgramAPIKey string
	OpenAIAPIKey   string
	GroqAPIKey     string

	// AgentBackend selects the reply generator: "openai" or "groq".
	AgentBackend string
	AgentModel   string

	Voice    string
	Language string

	EnergyThreshold float64
	PauseDuration   time.Duration
	BargeIn         bool

	// RecordingDir, when set, stores each utterance as a WAV file there.
	RecordingDir string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription and synthesis will not work")
	}

	backend := os.Getenv("AGENT_BACKEND")
	if backend == "" {
		backend = "openai"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	groqKey := os.Getenv("GROQ_API_KEY")
	if backend == "openai" && openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - reply generation will not work")
	}
	if backend == "groq" && groqKey == "" {
		log.Println("Warning: GROQ_API_KEY not set - reply generation will not work")
	}

	return Config{
		DeepgramAPIKey: deepgramKey,
		OpenAIAPIKey:   openAIKey,
		GroqAPIKey:     groqKey,

		AgentBackend: backend,
		AgentModel:   os.Getenv("AGENT_MODEL"),

		Voice:    os.Getenv("VOICE"),
		Language: os.Getenv("LANGUAGE"),

		EnergyThreshold: floatEnv("ENERGY_THRESHOLD", 300),
		PauseDuration:   durationEnv("PAUSE_DURATION", 500*time.Millisecond),
		BargeIn:         boolEnv("BARGE_IN", true),

		RecordingDir: os.Getenv("RECORDING_DIR"),
	}
}

func floatEnv(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return value
}

func boolEnv(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return value
}
