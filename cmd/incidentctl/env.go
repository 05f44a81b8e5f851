package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/store-incident-api/pkg/config"
	"github.com/noah-isme/store-incident-api/pkg/database"
	"github.com/noah-isme/store-incident-api/pkg/logger"
)

// environment holds what database-backed subcommands share.
type environment struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger *zap.Logger
}

func openEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		_ = logr.Sync()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &environment{cfg: cfg, db: db, logger: logr}, nil
}

func (e *environment) Close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}
