package server

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/grafana/dskit/services"
	"github.com/runfleet/runfleet/pkg/storage"
	runfleetpebble "github.com/runfleet/runfleet/pkg/storage/pebble"
)

// StorageService owns the pebble database holding the client registry
// and the pending-action queues. An empty path opens an in-memory store,
// used by tests.
type StorageService struct {
	logger *slog.Logger
	db     *pebble.DB
	broker storage.KVBroker

	services.Service
	storagePath string
}

var _ services.Service = (*StorageService)(nil)
var _ storage.KVBroker = (*StorageService)(nil)

func NewStorageService(
	logger *slog.Logger,
	storagePath string,
) (*StorageService, error) {
	opts := &pebble.Options{}
	if storagePath == "" {
		opts.FS = vfs.NewMem()
	}
	kvDb, err := pebble.Open(storagePath, opts)
	if err != nil {
		logger.With("err", err).Error("failed to start KV store")
		return nil, err
	}
	s := &StorageService{
		logger:      logger,
		storagePath: storagePath,
		db:          kvDb,
		broker:      runfleetpebble.NewKVBroker(kvDb),
	}

	s.Service = services.NewBasicService(nil, s.running, s.stopping)
	return s, nil
}

func (s *StorageService) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *StorageService) stopping(_ error) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *StorageService) KeyValue(prefix string) storage.KV {
	return s.broker.KeyValue(prefix)
}
