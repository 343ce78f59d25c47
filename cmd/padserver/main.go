// Command padserver runs the collaborative editing server: a gin REST/
// WebSocket front end, an in-memory per-document actor pipeline, and an
// optional SQLite snapshot store for durability across restarts.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/padsync/collabcore/internal/document"
	"github.com/padsync/collabcore/internal/logging"
	"github.com/padsync/collabcore/internal/metrics"
	"github.com/padsync/collabcore/internal/session"
	"github.com/padsync/collabcore/internal/storage"
	"github.com/padsync/collabcore/internal/transport"
)

// config holds all server configuration, grounded on the teacher's flat
// env-driven Config struct in its own main.go.
type config struct {
	Port            string
	ExpiryDays      int
	SQLiteURI       string
	CleanupInterval time.Duration
}

func main() {
	_ = godotenv.Load()
	logging.Init()
	defer logging.Sync()

	cfg := config{
		Port:            getEnv("PORT", "3030"),
		ExpiryDays:      getEnvInt("EXPIRY_DAYS", 7),
		SQLiteURI:       os.Getenv("SQLITE_URI"),
		CleanupInterval: time.Duration(getEnvInt("CLEANUP_INTERVAL_HOURS", 1)) * time.Hour,
	}

	logging.Info("starting padserver on port %s", cfg.Port)
	logging.Info("document expiry: %d days", cfg.ExpiryDays)

	var db *storage.Store
	var loader func(docID string) (content, language string, ok bool)
	if cfg.SQLiteURI != "" {
		logging.Info("storage: %s", cfg.SQLiteURI)
		var err error
		db, err = storage.Open(cfg.SQLiteURI)
		if err != nil {
			logging.Error("failed to open storage: %v", err)
			os.Exit(1)
		}
		defer db.Close()
		loader = func(docID string) (string, string, bool) {
			snap, err := db.Load(docID)
			if err != nil {
				logging.Error("storage: load %s: %v", docID, err)
				return "", "", false
			}
			if snap == nil {
				return "", "", false
			}
			lang := ""
			if snap.Language != nil {
				lang = *snap.Language
			}
			return snap.Content, lang, true
		}
	} else {
		logging.Info("storage: disabled (in-memory only)")
	}

	store := document.NewStore(loader)
	m := metrics.New()
	hub := session.NewHub(store, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cleaner(ctx, store, m, cfg.ExpiryDays, cfg.CleanupInterval)
	if db != nil {
		go persister(ctx, store, db)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	transport.NewRouter(engine, store, hub, m)

	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.Port), Handler: engine}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("server shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("server: %v", err)
		os.Exit(1)
	}
}

// cleaner periodically evicts idle documents from the in-memory store and
// reports the post-eviction document count to Prometheus, on
// cleanupInterval (CLEANUP_INTERVAL_HOURS).
func cleaner(ctx context.Context, store *document.Store, m *metrics.Metrics, expiryDays int, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	expiry := time.Duration(expiryDays) * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := store.Evict(expiry)
			if len(evicted) > 0 {
				logging.Info("cleaner: evicted %d idle document(s)", len(evicted))
			}
			m.SetActiveDocuments(store.Count())
		}
	}
}

// persister periodically snapshots every tracked document's current content
// to the SQLite store, so a restart (or eviction) doesn't lose data. Errors
// are logged and skipped rather than fatal — persistence is best-effort.
func persister(ctx context.Context, store *document.Store, db *storage.Store) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range store.IDs() {
				meta, err := store.ReadOnly(id)
				if err != nil {
					continue
				}
				var lang *string
				if meta.Language != "" {
					lang = &meta.Language
				}
				otp, err := store.OTP(id)
				if err != nil {
					continue
				}
				var otpPtr *string
				if otp != "" {
					otpPtr = &otp
				}
				if err := db.Save(&storage.Snapshot{ID: id, Content: meta.Content, Language: lang, OTP: otpPtr}); err != nil {
					logging.Error("persister: save %s: %v", id, err)
				}
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
