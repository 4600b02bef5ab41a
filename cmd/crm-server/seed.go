package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/audit"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/contractstatus"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/migrationlock"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

const schemaLockName = "stella-crm-schema"

// prepareDatabase migrates the schema and applies the optional catalog seed
// while holding the migration lock, so replicas starting together take turns.
func prepareDatabase(ctx context.Context, db *gorm.DB, store *pipeline.GormStore, seedPath string, logger *zap.Logger) error {
	var seed *pipeline.CatalogSeed
	if seedPath != "" {
		var err error
		if seed, err = pipeline.LoadCatalogSeed(seedPath); err != nil {
			return err
		}
	}

	locker, err := migrationlock.New(db, schemaLockName, migrationlock.WithLogger(logger.Named("migrationlock")))
	if err != nil {
		return err
	}
	return locker.WithLock(ctx, func(ctx context.Context) error {
		if err := store.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if err := audit.NewStore(db).AutoMigrate(); err != nil {
			return fmt.Errorf("migrate audit: %w", err)
		}
		if seed == nil {
			return nil
		}
		if err := seedCatalog(ctx, store, seed); err != nil {
			return err
		}
		logger.Info("catalog seeded", zap.String("path", seedPath), zap.Int("namespaces", len(seed.Namespaces)))
		return nil
	})
}

// seedCatalog applies a catalog seed file to every namespace it lists.
func seedCatalog(ctx context.Context, store *pipeline.GormStore, seed *pipeline.CatalogSeed) error {
	for _, ns := range seed.Namespaces {
		if err := contractstatus.ValidateSeeds(ns.Contract); err != nil {
			return fmt.Errorf("namespace %q: %w", ns.Name, err)
		}
		if err := store.UpsertStates(ctx, ns.Name, pipeline.KindPipeline, ns.Pipeline); err != nil {
			return fmt.Errorf("seed pipeline states of %q: %w", ns.Name, err)
		}
		if err := store.UpsertStates(ctx, ns.Name, pipeline.KindContract, ns.Contract); err != nil {
			return fmt.Errorf("seed contract statuses of %q: %w", ns.Name, err)
		}
	}
	return nil
}
