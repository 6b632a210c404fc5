// Package identity persists the client identity token assigned by the
// controller. The token is written once after first registration and is
// immutable for the life of the installation.
package identity

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// DefaultFile is the well-known identity file next to the agent's
// working directory.
const DefaultFile = "client_id.txt"

// Store reads and writes the single-line identity file. A missing,
// unreadable or blank file is "no identity", never an error the caller
// has to handle.
type Store struct {
	logger *slog.Logger
	path   string
}

func NewStore(logger *slog.Logger, path string) *Store {
	if path == "" {
		path = DefaultFile
	}
	return &Store{
		logger: logger,
		path:   path,
	}
}

// Load returns the persisted identity token, or "" when none is held.
func (s *Store) Load() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.With("err", err).With("file", s.path).Warn("identity file unreadable, treating as unregistered")
		}
		return ""
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		s.logger.With("file", s.path).Warn("identity file is blank, treating as unregistered")
		return ""
	}
	s.logger.With("client_id", id).Debug("loaded persisted identity")
	return id
}

// Save writes the token atomically. There is no delete or rotate path;
// identity is permanent once assigned.
func (s *Store) Save(id string) error {
	if err := atomic.WriteFile(s.path, strings.NewReader(id)); err != nil {
		return fmt.Errorf("writing identity file %s: %w", s.path, err)
	}
	s.logger.With("client_id", id).With("file", s.path).Info("persisted identity")
	return nil
}
