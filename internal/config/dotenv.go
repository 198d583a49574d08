package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file.
// If path is empty, it loads from ".env" in the current directory.
// If the file does not exist, it silently returns nil (not an error).
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	return godotenv.Load(path)
}

// MustLoadDotEnv loads environment variables from a .env file.
// Unlike LoadDotEnv, it returns an error if the file does not exist.
func MustLoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	return godotenv.Load(path)
}

// LoadConfig loads configuration from a .env file (optional) and environment
// variables. The .env file is loaded first if it exists; real environment
// variables win over file values (godotenv.Load does not override).
func LoadConfig(envPath string) (*AppConfig, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return nil, err
	}

	envCfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	return envCfg.ToAppConfig(), nil
}
