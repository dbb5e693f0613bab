package main

import (
	"context"
	"database/sql"
	"fmt"

	"docintake/internal/config"
	"docintake/internal/database"
	"docintake/internal/database/migration"
	"docintake/internal/extraction"
	"docintake/internal/extraction/docai"
	"docintake/internal/extraction/mindee"
	"docintake/internal/repository"
	"docintake/internal/repository/memory"
	"docintake/internal/repository/postgres"
	"docintake/internal/storage"
)

// newRepository opens and migrates Postgres when it is configured. Without a
// database, records live in memory and the returned *sql.DB is nil.
func newRepository(ctx context.Context, c config.DatabaseConfig) (*sql.DB, repository.DocumentRepository, error) {
	if !c.Enabled() {
		return nil, memory.NewDocumentMemory(), nil
	}
	db, err := database.NewPostgres(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	if err := migration.EnsureMigrated(ctx, db, database.HostLabel(c)); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, postgres.NewDocumentPostgres(db), nil
}

func newScratch(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Scratch.Backend {
	case "local", "":
		return storage.NewLocal(cfg.Scratch.Dir)
	case "minio":
		return storage.NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown scratch backend %q", cfg.Scratch.Backend)
	}
}

// newExtractor returns the configured vendor client and a func that releases it.
func newExtractor(ctx context.Context, c config.ExtractorConfig) (extraction.Extractor, func(), error) {
	switch c.Provider {
	case "mindee", "":
		cli, err := mindee.New(c.Mindee)
		if err != nil {
			return nil, nil, err
		}
		return cli, func() {}, nil
	case "docai":
		cli, err := docai.New(ctx, c.DocAI)
		if err != nil {
			return nil, nil, err
		}
		return cli, func() { cli.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown extractor %q", c.Provider)
	}
}

func templateOf(t config.TemplateSpec) extraction.Template {
	return extraction.Template{Account: t.Account, Name: t.Name, Version: t.Version}
}
