package commands

import (
	"fmt"
	"os"

	"github.com/benvon/habit-tracker/internal/config"
	"github.com/benvon/habit-tracker/internal/database"
)

// openDB loads configuration and connects. The returned func closes the pool.
func openDB() (*database.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}, nil
}
