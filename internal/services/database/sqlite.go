package database

import (
	"fmt"
	"strings"

	"github.com/Egham-7/medchat/internal/models"
	"gorm.io/driver/sqlite"
)

func newSQLite(config models.DatabaseConfig) (*DB, error) {
	path := config.FilePath
	if path == "" {
		path = config.DSN
	}
	if path == "" {
		return nil, fmt.Errorf("file_path is required for SQLite")
	}

	// Foreign keys are off by default in SQLite; cascading chat deletes need them
	return open(sqlite.Open(path+foreignKeysParam(path)), config, "sqlite3")
}

func foreignKeysParam(path string) string {
	if strings.Contains(path, "?") {
		return "&_foreign_keys=on"
	}
	return "?_foreign_keys=on"
}
