package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"uccs/api/internal/app"
	"uccs/api/internal/brief"
	"uccs/api/internal/config"
	"uccs/api/internal/email"
	"uccs/api/internal/search"
	"uccs/api/internal/session"
	"uccs/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	// Refresh tokens live in Redis when it is reachable; Postgres otherwise.
	var service *app.Service
	redisStore := openRedis(cfg.RedisURL)
	if redisStore != nil {
		log.Printf("Using Redis for refresh token storage")
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, searchService)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		service = app.New(cfg, dataStore, searchService)
	}

	if artifacts := openArtifacts(ctx, cfg); artifacts != nil {
		service.SetArtifactStore(artifacts)
	}

	notifier := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if notifier.IsConfigured() {
		log.Printf("Sending submission confirmations from %s", cfg.SMTPFrom)
		service.SetNotifier(notifier)
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}
	go searchService.ReindexAllFromPG(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("UCCS API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openRedis(redisURL string) *session.RedisStore {
	if strings.TrimSpace(redisURL) == "" {
		return nil
	}
	redisStore, err := session.NewRedisStore(redisURL)
	if err != nil {
		log.Printf("WARNING: redis unavailable, falling back to Postgres sessions: %v", err)
		return nil
	}
	return redisStore
}

func openArtifacts(ctx context.Context, cfg config.Config) *brief.ArtifactStore {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return nil
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		log.Printf("WARNING: minio unavailable, PDF artifacts disabled: %v", err)
		return nil
	}
	artifacts := brief.NewArtifactStore(client, cfg.MinioBucket)
	if err := artifacts.EnsureBucket(ctx); err != nil {
		log.Printf("WARNING: minio bucket setup failed, PDF artifacts disabled: %v", err)
		return nil
	}
	log.Printf("Caching brief PDFs in MinIO bucket %q", cfg.MinioBucket)
	return artifacts
}
