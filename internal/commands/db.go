package commands

import (
	"fmt"

	"moltingpot/internal/config"
	"moltingpot/internal/database"
)

// openDatabase connects to DATABASE_URL and ensures the schema exists
func openDatabase() (*database.DB, *config.Config, error) {
	cfg := config.Load()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, cfg, nil
}
