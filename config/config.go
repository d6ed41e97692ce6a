package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"song-recognition/db"
	"song-recognition/logger"
	"song-recognition/provider"
	"song-recognition/wav"
)

// Config stores the application configuration.
type Config struct {
	Provider    provider.Settings
	AudioSource wav.AudioSource
	FFmpegPath  string
	DB          db.Config

	LogLevel logger.LogLevel
	LogFile  string

	ConnectivityProbe    string
	ConnectivityInterval time.Duration

	YouTubeAPIKey string
	// SettingsFile is an optional dotenv file watched for provider changes
	SettingsFile string
}

// lookupFunc is os.LookupEnv or a lookup into a parsed settings file.
type lookupFunc func(key string) (string, bool)

func mapLookup(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	return get(os.LookupEnv, key, fallback)
}

func get(lookup lookupFunc, key, fallback string) string {
	if value, exists := lookup(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		logger.Warn("[config] invalid integer, using default", logger.String("key", key), logger.String("value", value))
	}
	return fallback
}

func getDuration(lookup lookupFunc, key string, fallback time.Duration) time.Duration {
	if value, exists := lookup(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		logger.Warn("[config] invalid duration, using default", logger.String("key", key), logger.String("value", value))
	}
	return fallback
}

// getEnvDuration gets an environment variable as a duration ("15s") or
// returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return getDuration(os.LookupEnv, key, fallback)
}

// Load loads configuration from environment variables (via .env file) or
// defaults. values already in the environment win over the .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("[config] no .env file loaded, using environment and defaults")
	}

	return &Config{
		Provider:    providerSettings(os.LookupEnv, provider.DefaultSettings()),
		AudioSource: wav.ParseAudioSource(getEnv("AUDIO_SOURCE", "microphone")),
		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		DB: db.Config{
			Type:          getEnv("DB_TYPE", "sqlite"),
			Path:          getEnv("DB_PATH", "data/recordings.db"),
			MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:       getEnv("MONGO_DB", "song_recognition"),
			RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		LogLevel:             logger.LogLevel(strings.ToLower(getEnv("LOG_LEVEL", "info"))),
		LogFile:              getEnv("LOG_FILE", ""),
		ConnectivityProbe:    getEnv("CONNECTIVITY_PROBE", "amp.shazam.com:443"),
		ConnectivityInterval: getEnvDuration("CONNECTIVITY_INTERVAL", 15*time.Second),
		YouTubeAPIKey:        getEnv("YOUTUBE_API_KEY", ""),
		SettingsFile:         getEnv("SETTINGS_FILE", ""),
	}
}

// providerSettings overlays the provider keys found by lookup on base.
// invalid values keep the base value.
func providerSettings(lookup lookupFunc, base provider.Settings) provider.Settings {
	settings := base

	if value, ok := lookup("PROVIDER"); ok {
		if kind, err := provider.ParseKind(value); err == nil {
			settings.Active = kind
		} else {
			logger.Warn("[config] invalid provider", logger.ErrorField(err))
		}
	}

	settings.AudDToken = get(lookup, "AUDD_API_TOKEN", settings.AudDToken)

	if value, ok := lookup("TEST_PROVIDER_MODE"); ok {
		if mode, err := provider.ParseTestMode(value); err == nil {
			settings.TestMode = mode
		} else {
			logger.Warn("[config] invalid test provider mode", logger.ErrorField(err))
		}
	}

	settings.TestListenDuration = getDuration(lookup, "TEST_LISTEN_DURATION", settings.TestListenDuration)
	settings.TestRecognizeDuration = getDuration(lookup, "TEST_RECOGNIZE_DURATION", settings.TestRecognizeDuration)
	return settings
}

// ReadProviderSettings reads the provider keys from a dotenv file on top of
// base.
func ReadProviderSettings(path string, base provider.Settings) (provider.Settings, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return base, err
	}
	return providerSettings(mapLookup(values), base), nil
}
