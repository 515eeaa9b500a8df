package main

import (
	"context"

	"github.com/metalagman/cutscan/internal/artifact"
	"github.com/metalagman/cutscan/internal/config"
	"github.com/metalagman/cutscan/internal/db"
	"github.com/metalagman/cutscan/internal/paramspace"
	"github.com/rs/zerolog/log"
)

func openStore(cfg config.Config) (*db.Store, func(), error) {
	storeDB, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, func() {}, err
	}
	version, err := db.SchemaVersion(storeDB)
	if err != nil {
		_ = storeDB.Close()
		return nil, func() {}, err
	}
	log.Debug().Str("path", cfg.DBPath).Int64("schema_version", version).Msg("ledger opened")
	return db.NewStore(storeDB), func() { _ = storeDB.Close() }, nil
}

func loadCatalog(cfg config.Config) (*paramspace.Catalog, error) {
	if cfg.SpacesFile == "" {
		return paramspace.DefaultCatalog()
	}
	return paramspace.LoadCatalogFile(cfg.SpacesFile)
}

// recordStore writes run records under root and, when configured, mirrors
// them to the object store.
func recordStore(ctx context.Context, cfg config.Config, root string) (artifact.Store, error) {
	local := artifact.NewFS(root)
	if !cfg.Mirror.Enabled() {
		return local, nil
	}
	mirror, err := artifact.NewMinIO(artifact.MinIOConfig{
		Endpoint:  cfg.Mirror.Endpoint,
		AccessKey: cfg.Mirror.AccessKey,
		SecretKey: cfg.Mirror.SecretKey,
		Region:    cfg.Mirror.Region,
		UseSSL:    cfg.Mirror.UseSSL,
		Bucket:    cfg.Mirror.Bucket,
		Prefix:    cfg.Mirror.Prefix,
		Timeout:   cfg.Mirror.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := mirror.EnsureBucket(ctx, cfg.Mirror.Region); err != nil {
		log.Warn().Err(err).Str("bucket", cfg.Mirror.Bucket).Msg("mirror bucket unavailable")
	}
	return &artifact.Mirrored{Primary: local, Mirrors: []artifact.Store{mirror}}, nil
}
