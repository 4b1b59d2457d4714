package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkaneda/lotimport/internal/config"
	"github.com/mkaneda/lotimport/internal/db"
	"github.com/mkaneda/lotimport/internal/filestore"
	"github.com/mkaneda/lotimport/internal/importer"
	"github.com/mkaneda/lotimport/internal/middleware"
	"github.com/mkaneda/lotimport/internal/repository"
	"github.com/mkaneda/lotimport/migrations"

	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, migrations.FS, "."); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	files, err := filestore.New(cfg.StorageRoot)
	if err != nil {
		log.Fatalf("Failed to open file storage: %v", err)
	}

	store := repository.NewStore(conn)
	service := importer.NewService(store, files)
	pool := importer.NewPool(service, cfg.Workers, cfg.QueueSize)
	pool.Start(ctx)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := middleware.LoggingMiddleware(
		corsHandler.Handler(importer.NewHTTPHandler(service)),
	)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting import server on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	cancel()
	pool.Wait()
	log.Println("Server exited")
}
