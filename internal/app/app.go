// Package app provides application initialization and dependency wiring.
//
// App is the container that connects configuration, the database pool, the
// Gemini model clients, the vector store, and the retrieval pipeline. One
// App is created per process; Close releases everything it acquired.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nanobook/nanobook/internal/config"
	"github.com/nanobook/nanobook/internal/rag"
	"github.com/nanobook/nanobook/internal/uploads"
	"github.com/nanobook/nanobook/internal/vectorstore"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	DBPool   *pgxpool.Pool
	Vectors  *vectorstore.Store
	Pipeline *rag.Pipeline
	Uploads  *uploads.Store
}

// Close releases all resources. Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return nil
}
