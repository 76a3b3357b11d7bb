package config

import (
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	DBPath     string
	LogFile    string
	LogLevel   string
	StatsToken string

	UpstreamTimeout time.Duration
	UpstreamProxy   string
	UserAgent       string
	CookieJar       bool

	DefaultQuality             int
	AlreadyOptimalQuality      int
	MinCompressSize            int64
	MinTransparentCompressSize int64
	MaxInputBytes              int64
	MaxConcurrentTranscodes    int
}

// LoadEnvFile merges variables from a dotenv file into the process
// environment. Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func Load() *Config {
	return &Config{
		ListenAddr: getEnv("BP_LISTEN_ADDR", listenAddrFromPort()),
		DBPath:     getEnv("BP_DB_PATH", ""),
		LogFile:    getEnv("BP_LOG_FILE", ""),
		LogLevel:   getEnv("BP_LOG_LEVEL", "info"),
		StatsToken: getEnv("BP_STATS_TOKEN", ""),

		UpstreamTimeout: getEnvDuration("BP_UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamProxy:   getEnv("BP_UPSTREAM_PROXY", ""),
		UserAgent:       getEnv("BP_USER_AGENT", "Bandwidth-Hero Compressor"),
		CookieJar:       getEnv("BP_COOKIE_JAR", "true") == "true",

		DefaultQuality:             getEnvInt("BP_DEFAULT_QUALITY", 40),
		AlreadyOptimalQuality:      getEnvInt("BP_ALREADY_OPTIMAL_QUALITY", 80),
		MinCompressSize:            int64(getEnvInt("BP_MIN_COMPRESS_SIZE", 1024)),
		MinTransparentCompressSize: int64(getEnvInt("BP_MIN_TRANSPARENT_COMPRESS_SIZE", 100*1024)),
		MaxInputBytes:              int64(getEnvInt("BP_MAX_INPUT_BYTES", 0)),
		MaxConcurrentTranscodes:    getEnvInt("BP_MAX_CONCURRENT_TRANSCODES", 2*runtime.NumCPU()),
	}
}

// listenAddrFromPort keeps the PORT convention of PaaS hosts working.
func listenAddrFromPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var result int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultValue
		}
		result = result*10 + int(c-'0')
	}
	return result
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
