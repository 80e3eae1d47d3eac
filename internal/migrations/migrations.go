package migrations

import (
	"fmt"
	"os"
	"path/filepath"
)

// MigrationsDir can be overridden in tests or by the application.
var MigrationsDir = "scripts/migrations"

// GetInitialSchema returns the initial database schema. The schema file is
// looked up relative to a few likely working directories so both the daemon
// and package tests can find it.
func GetInitialSchema() (string, error) {
	searchPaths := []string{
		filepath.Join(MigrationsDir, "001_initial_schema.sql"),
		filepath.Join("..", MigrationsDir, "001_initial_schema.sql"),
		filepath.Join("..", "..", MigrationsDir, "001_initial_schema.sql"),
	}

	for _, path := range searchPaths {
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), nil
		}
	}

	return "", fmt.Errorf("could not find schema file in any location")
}
