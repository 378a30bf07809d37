package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/tuannm99/novacsv/internal"
	"github.com/tuannm99/novacsv/internal/engine"
	"github.com/tuannm99/novacsv/internal/logger"
	"github.com/tuannm99/novacsv/server/httpapi"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML config file")
		workdir = flag.String("workdir", "", "database directory (overrides storage.workdir)")
		addr    = flag.String("addr", "", "listen address (overrides server.addr)")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("server.config")
	}
	if *workdir != "" {
		cfg.Storage.Workdir = *workdir
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		logger.Log.WithError(err).Fatal("server.logger")
	}

	db, err := engine.Open(cfg.Storage.Workdir, cfg.EngineOptions())
	if err != nil {
		logger.Log.WithError(err).Fatal("server.open")
	}
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"app":     cfg.AppName,
		"workdir": cfg.Storage.Workdir,
		"tables":  len(db.ListTables()),
	}).Info("server.start")
	if err := httpapi.NewServer(cfg.Server.Addr, db, cfg.Server.Debug).Run(ctx); err != nil {
		logger.Log.WithError(err).Error("server.run")
	}
}
