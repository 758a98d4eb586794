package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvAsBool parses a boolean environment variable with a default.
func GetEnvAsBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// GetEnvAsInt retrieves an environment variable as an integer with a default fallback.
func GetEnvAsInt(name string, defaultVal int) int {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsInt64 retrieves an environment variable as an int64 with a default fallback.
func GetEnvAsInt64(name string, defaultVal int64) int64 {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.ParseInt(valStr, 10, 64); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsFloat retrieves an environment variable as a float64 with a default fallback.
func GetEnvAsFloat(name string, defaultVal float64) float64 {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsSeconds reads an integer number of seconds as a time.Duration.
func GetEnvAsSeconds(name string, defaultVal time.Duration) time.Duration {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			return time.Duration(val) * time.Second
		}
	}
	return defaultVal
}

// GetEnvAsString returns the trimmed value of an environment variable or defaultVal when empty.
func GetEnvAsString(name, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		return val
	}
	return defaultVal
}

// GetEnvAsSlice retrieves an environment variable as a slice of trimmed, non-empty strings.
func GetEnvAsSlice(name string, defaultVal []string, sep string) []string {
	valStr := os.Getenv(name)
	if strings.TrimSpace(valStr) == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
