package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Egham-7/medchat/internal/models"
)

func TestNewSQLiteMigrates(t *testing.T) {
	db, err := New(models.DatabaseConfig{
		Type:         models.SQLite,
		FilePath:     filepath.Join(t.TempDir(), "medchat.db"),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	if db.DriverName() != "sqlite3" {
		t.Fatalf("DriverName = %q", db.DriverName())
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, table := range []string{"chats", "messages", "documents", "medical_histories"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s missing after Migrate", table)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		config models.DatabaseConfig
	}{
		{name: "unsupported type", config: models.DatabaseConfig{Type: "oracle"}},
		{name: "sqlite without path", config: models.DatabaseConfig{Type: models.SQLite}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if db, err := New(tt.config); err == nil {
				db.Close()
				t.Fatal("expected an error")
			}
		})
	}
}

func TestForeignKeysParam(t *testing.T) {
	if got := foreignKeysParam("chat.db"); got != "?_foreign_keys=on" {
		t.Errorf("plain path: %q", got)
	}
	if got := foreignKeysParam("file:chat.db?cache=shared"); got != "&_foreign_keys=on" {
		t.Errorf("path with query: %q", got)
	}
}
