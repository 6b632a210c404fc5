package agent

import (
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
)

// Profile is the registration-time metadata sent to the controller.
// Computed once at process start, read-only afterwards.
type Profile struct {
	Name    string
	OS      string
	Version string
}

// NewProfile builds the profile for this host. An empty name defaults to
// the local host name.
func NewProfile(logger *slog.Logger, name string) Profile {
	if name == "" {
		if hn, err := os.Hostname(); err == nil {
			name = hn
		} else {
			logger.With("err", err).Warn("failed to resolve host name")
			name = "unknown"
		}
	}

	osFamily := runtime.GOOS
	version := ""
	if info, err := host.Info(); err == nil {
		if info.OS != "" {
			osFamily = info.OS
		}
		version = info.KernelVersion
		if version == "" {
			version = info.PlatformVersion
		}
	} else {
		logger.With("err", err).Warn("failed to read host info")
	}

	return Profile{
		Name:    name,
		OS:      osFamily,
		Version: version,
	}
}
