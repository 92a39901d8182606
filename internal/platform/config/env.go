package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotEnvOnce sync.Once

// ParseEnv loads configuration from environment variables.
//
// An optional .env file in the working directory is loaded on first use.
// Variables already present in the environment win over the file.
func ParseEnv(target any) error {
	dotEnvOnce.Do(func() {
		if err := LoadDotEnv(".env"); err != nil {
			log.Printf("config: ignore .env: %v", err)
		}
	})
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv loads the given dotenv files without overriding variables that
// are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}
