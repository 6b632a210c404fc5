package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	_ "github.com/runfleet/runfleet/pkg/logutil"
	"github.com/runfleet/runfleet/pkg/server"
	"github.com/runfleet/runfleet/pkg/util/contextutil"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func main() {
	var (
		listenAddr  = flag.String("listen", "127.0.0.1:5000", "controller API listen address")
		storagePath = flag.String("storage", "./runfleet.kv", "pebble directory for the client registry and action queues")
		historyPath = flag.String("history", "./runfleet.db", "sqlite file for the result history")
	)
	flag.Parse()

	logger := slog.Default()
	ctx := contextutil.SetupSignals(context.Background())

	ctrl, err := server.New(server.Config{
		HTTPListenAddr: *listenAddr,
		StoragePath:    *storagePath,
		HistoryPath:    *historyPath,
	})
	if err != nil {
		logger.With("err", err).Error("failed to build controller")
		os.Exit(1)
	}

	logger.With("addr", *listenAddr).Info("runfleet controller starting...")
	if err := ctrl.Run(ctx); err != nil {
		logger.With("err", err).Error("controller exited with error")
		os.Exit(1)
	}
	logger.Info("runfleet controller stopped")
}
