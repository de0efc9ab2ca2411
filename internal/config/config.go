// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds runtime settings, resolved from environment variables
// with sensible defaults.
type Config struct {
	// ServerURL is the backend base URL (http/https); the realtime
	// endpoint is derived from it.
	ServerURL string
	// SocketURL is the websocket endpoint. Derived from ServerURL when
	// unset.
	SocketURL string
	// DataDir holds the local database and cached token.
	DataDir string
	// TokenFile is the bearer token cache path.
	TokenFile string
	// SolutionFile, when set, is watched for edits and mirrored to the
	// opponent as live code updates.
	SolutionFile string
	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string
	// HistoryLimit caps how many archived results list commands show.
	HistoryLimit int
}

// Load reads configuration from the environment:
//   - CODEDUEL_SERVER_URL (default "http://localhost:8080")
//   - CODEDUEL_SOCKET_URL (default derived: ws(s)://host/ws)
//   - CODEDUEL_DATA_DIR (default "~/.codeduel")
//   - CODEDUEL_SOLUTION_FILE (optional)
//   - CODEDUEL_LOG_LEVEL (default "info")
//   - CODEDUEL_HISTORY_LIMIT (default 20)
func Load() Config {
	serverURL := getEnv("CODEDUEL_SERVER_URL", "http://localhost:8080")
	dataDir := getEnv("CODEDUEL_DATA_DIR", defaultDataDir())

	return Config{
		ServerURL:    serverURL,
		SocketURL:    getEnv("CODEDUEL_SOCKET_URL", deriveSocketURL(serverURL)),
		DataDir:      dataDir,
		TokenFile:    filepath.Join(dataDir, "token"),
		SolutionFile: getEnv("CODEDUEL_SOLUTION_FILE", ""),
		LogLevel:     getEnv("CODEDUEL_LOG_LEVEL", "info"),
		HistoryLimit: getEnvInt("CODEDUEL_HISTORY_LIMIT", 20),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codeduel"
	}
	return filepath.Join(home, ".codeduel")
}

// deriveSocketURL maps an http(s) base URL to its ws(s) counterpart.
func deriveSocketURL(serverURL string) string {
	switch {
	case len(serverURL) >= 8 && serverURL[:8] == "https://":
		return "wss://" + serverURL[8:] + "/ws"
	case len(serverURL) >= 7 && serverURL[:7] == "http://":
		return "ws://" + serverURL[7:] + "/ws"
	default:
		return serverURL + "/ws"
	}
}

// getEnv returns the environment variable value or a fallback if not set.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

// getEnvInt returns the environment variable as int or a fallback if unset or invalid.
func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}
