// Package server implements the runfleet controller: the HTTP service
// agents register with, poll for actions, and report results to. It is
// composed of dskit services wired through a module manager.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/runfleet/runfleet/pkg/protocol"
	"github.com/runfleet/runfleet/pkg/storage"
)

// The modules that make up the controller.
const (
	All     = "all"
	Storage = "storage"
	History = "history"
	API     = "api"
)

type Config struct {
	// HTTPListenAddr is where the controller API listens, e.g. "127.0.0.1:5000".
	HTTPListenAddr string

	// StoragePath is the pebble directory for the registry and queues.
	// Empty means in-memory.
	StoragePath string

	// HistoryPath is the sqlite file for the result history. Empty means
	// in-memory.
	HistoryPath string
}

type Controller struct {
	logger *slog.Logger
	cfg    Config

	mm         *modules.Manager
	serviceMap map[string]services.Service

	store    *StorageService
	registry storage.KeyValue[ClientRecord]
	queues   storage.KeyValue[[]protocol.Action]
	history  *HistoryService
	api      *APIService
}

func New(cfg Config) (*Controller, error) {
	c := &Controller{
		logger: slog.Default(),
		cfg:    cfg,
	}
	if err := c.setupModuleManager(); err != nil {
		return nil, err
	}
	return c, nil
}

// APIHandler is available after module init; tests use it to drive the
// controller without a listener.
func (c *Controller) APIHandler() *APIService {
	return c.api
}

func (c *Controller) setupModuleManager() error {
	mm := modules.NewManager(log.NewLogfmtLogger(os.Stderr))
	mm.RegisterModule(All, nil)

	mm.RegisterModule(Storage, func() (services.Service, error) {
		storeSvc, err := NewStorageService(
			c.logger.With("service", Storage),
			c.cfg.StoragePath,
		)
		if err != nil {
			return nil, err
		}
		c.store = storeSvc
		c.registry = storage.NewJSONKV[ClientRecord](
			c.logger.With("store", "clients"),
			storeSvc.KeyValue("clients"),
		)
		c.queues = storage.NewJSONKV[[]protocol.Action](
			c.logger.With("store", "queues"),
			storeSvc.KeyValue("queues"),
		)
		return storeSvc, nil
	}, modules.UserInvisibleModule)

	mm.RegisterModule(History, func() (services.Service, error) {
		historySvc, err := NewHistoryService(
			c.logger.With("service", History),
			c.cfg.HistoryPath,
		)
		if err != nil {
			return nil, err
		}
		c.history = historySvc
		return historySvc, nil
	}, modules.UserInvisibleModule)

	mm.RegisterModule(API, func() (services.Service, error) {
		c.api = NewAPIService(
			c.logger.With("service", API),
			c.cfg.HTTPListenAddr,
			c.registry,
			c.queues,
			c.history,
		)
		return c.api, nil
	})

	deps := map[string][]string{
		All: {API},
		API: {Storage, History},
	}
	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	c.mm = mm
	return nil
}

func (c *Controller) Run(ctx context.Context) error {
	svcMap, err := c.mm.InitModuleServices(All)
	if err != nil {
		return err
	}
	c.serviceMap = svcMap

	mgr, err := services.NewManager(slices.Collect(maps.Values(svcMap))...)
	if err != nil {
		c.logger.With("err", err).Error("failed to start service manager")
		return err
	}

	servicesFailed := func(service services.Service) {
		mgr.StopAsync()

		for m, s := range svcMap {
			if s == service {
				c.logger.With(
					"module", m,
				).With(
					"error", service.FailureCase(),
				).Error("module failed")
				return
			}
		}
		c.logger.With("module", "unknown").With("error", service.FailureCase()).Error("module failed")
	}

	mgr.AddListener(services.NewManagerListener(
		func() {},
		func() {},
		servicesFailed,
	))

	go func() {
		<-ctx.Done()
		mgr.StopAsync()
	}()

	var stopErr error
	if err := mgr.StartAsync(ctx); err == nil {
		stopErr = mgr.AwaitStopped(context.Background())
	}
	if stopErr != nil {
		return stopErr
	}

	if failed := mgr.ServicesByState()[services.Failed]; len(failed) > 0 {
		for _, f := range failed {
			if f.FailureCase() != modules.ErrStopProcess {
				return fmt.Errorf("services failed")
			}
		}
	}
	return nil
}
