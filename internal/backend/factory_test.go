package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Diego-II/expense-tracker-api/internal/config"
	sqlitestore "github.com/Diego-II/expense-tracker-api/internal/infra/sqlite"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

func TestNewRecordStore_SQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.RecordStore = config.RecordStoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "expenses.db")

	store, err := NewFactory(zerolog.Nop()).NewRecordStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRecordStore() error = %v", err)
	}
	defer store.Close()

	if _, ok := store.(*sqlitestore.Store); !ok {
		t.Errorf("store = %T, want *sqlite.Store", store)
	}
}

func TestNewRecordStore_Unsupported(t *testing.T) {
	cfg := config.Defaults()
	cfg.RecordStore = "mongo"

	_, err := NewFactory(zerolog.Nop()).NewRecordStore(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported record store") {
		t.Errorf("NewRecordStore() error = %v", err)
	}
}

func TestNewRecordStore_Memory(t *testing.T) {
	cfg := config.Defaults()
	cfg.RecordStore = config.RecordStoreMemory

	store, err := NewFactory(zerolog.Nop()).NewRecordStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRecordStore() error = %v", err)
	}
	if _, ok := store.(*recordstore.MemoryStore); !ok {
		t.Errorf("store = %T, want *recordstore.MemoryStore", store)
	}
}
