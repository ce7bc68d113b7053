package main

import (
	"fmt"

	"github.com/fentz26/artifactory-cleaner/internal/artifactory"
	"github.com/fentz26/artifactory-cleaner/internal/config"
	"github.com/fentz26/artifactory-cleaner/internal/discovery"
	"github.com/fentz26/artifactory-cleaner/internal/logging"
	"github.com/fentz26/artifactory-cleaner/internal/metrics"
	"go.uber.org/zap"
)

// app holds what every command needs: configuration, logging and metrics.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

// newApp loads the configuration and applies the global flags on top.
func newApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load config from %s: %w", path, err)
	}
	if endpointFlag != "" {
		cfg.Endpoint = endpointFlag
	}
	if apiKeyFlag != "" {
		cfg.APIKey = apiKeyFlag
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(logger),
	}, nil
}

// controller connects to Artifactory.
func (a *app) controller() (*discovery.Controller, error) {
	if err := a.cfg.RequireEndpoint(); err != nil {
		return nil, err
	}
	client, err := artifactory.NewClient(a.cfg.ClientConfig(), a.logger)
	if err != nil {
		return nil, err
	}
	return discovery.New(client, &a.cfg.Discovery,
		discovery.WithLogger(a.logger),
		discovery.WithMetrics(a.metrics))
}

// close writes the metrics textfile and flushes the logger.
func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("failed to write metrics", zap.Error(err))
	}
	_ = a.logger.Sync()
}
