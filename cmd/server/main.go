package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/emotiox/recruit/internal/api"
	dbstore "github.com/emotiox/recruit/internal/db"
	"github.com/emotiox/recruit/internal/middleware"
	"github.com/emotiox/recruit/internal/utils"
)

func main() {
	addr := utils.SafeEnv("RECRUIT_ADDR", ":8080")

	router, err := buildRouter()
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	mux := http.NewServeMux()
	router.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"name": "Recruit API",
		})
	})

	handler := middleware.CORS(middleware.SecureHeaders(middleware.WithAuth(mux)))

	log.Printf("recruit server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildRouter picks the backing store from the environment: a sqlite file
// when RECRUIT_DB is set, the in-memory store otherwise.
func buildRouter() (*api.Router, error) {
	dbPath := os.Getenv("RECRUIT_DB")
	if dbPath == "" {
		log.Printf("RECRUIT_DB not set, using in-memory store")
		return api.NewRouter(), nil
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_txlock=immediate", filepath.ToSlash(dbPath))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := dbstore.RunMigrations(sqliteDB, os.Getenv("RECRUIT_MIGRATIONS_DIR")); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store, err := dbstore.NewSQLiteStore(sqliteDB)
	if err != nil {
		return nil, fmt.Errorf("init sqlite store: %w", err)
	}
	log.Printf("using sqlite store at %s", dbPath)
	return api.NewRouterWithStore(store, store), nil
}
