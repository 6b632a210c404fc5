package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/grafana/dskit/services"
	"github.com/runfleet/runfleet/pkg/agent"
	"github.com/runfleet/runfleet/pkg/executor"
	"github.com/runfleet/runfleet/pkg/identity"
	"github.com/runfleet/runfleet/pkg/protocol"
	"github.com/runfleet/runfleet/pkg/server"
	"github.com/runfleet/runfleet/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startController(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := server.NewStorageService(slog.Default(), "")
	require.NoError(t, err)
	require.NoError(t, services.StartAndAwaitRunning(t.Context(), store))
	t.Cleanup(func() { services.StopAndAwaitTerminated(context.Background(), store) })

	history, err := server.NewHistoryService(slog.Default(), "")
	require.NoError(t, err)
	require.NoError(t, services.StartAndAwaitRunning(t.Context(), history))
	t.Cleanup(func() { services.StopAndAwaitTerminated(context.Background(), history) })

	api := server.NewAPIService(
		slog.Default(),
		"",
		storage.NewJSONKV[server.ClientRecord](slog.Default(), store.KeyValue("clients")),
		storage.NewJSONKV[[]protocol.Action](slog.Default(), store.KeyValue("queues")),
		history,
	)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// The full loop: register, enqueue through the admin surface, poll,
// execute, report, and read the recorded output back.
func TestAgentControllerRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-interpreter test is unix only")
	}

	srv := startController(t)
	idFile := filepath.Join(t.TempDir(), "client_id.txt")

	a := agent.New(agent.Config{
		Logger: slog.Default(),
		Controller: agent.NewClient(agent.ClientConfig{
			ServerURL: srv.URL,
		}),
		Store: identity.NewStore(slog.Default(), idFile),
		Runner: executor.New(executor.Config{
			Interpreter: "sh",
			WorkDir:     t.TempDir(),
		}),
		Profile: agent.Profile{Name: "integration-host", OS: "linux", Version: "test"},
	})
	require.NoError(t, a.StartAsync(t.Context()))
	require.NoError(t, a.AwaitRunning(t.Context()))
	t.Cleanup(func() {
		a.StopAsync()
		a.AwaitTerminated(context.Background())
	})

	// the startup cycle registered and persisted the identity
	data, err := os.ReadFile(idFile)
	require.NoError(t, err)
	clientID := strings.TrimSpace(string(data))
	require.NotEmpty(t, clientID)

	// queue an action for the agent
	body, err := json.Marshal(protocol.Action{Type: protocol.ActionCmd, Data: "echo integration-ok"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/clients/"+clientID+"/actions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// next cycle fetches, executes and reports
	a.Cycle(t.Context())

	resp, err = http.Get(srv.URL + "/clients/" + clientID + "/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var results struct {
		Results []server.ResultRecord `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results.Results, 1)
	assert.Equal(t, protocol.ActionCmd, results.Results[0].ActionType)
	assert.Contains(t, results.Results[0].Output, "integration-ok")

	// queue drained: another cycle reports nothing new
	a.Cycle(t.Context())
	resp, err = http.Get(srv.URL + "/clients/" + clientID + "/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	var again struct {
		Results []server.ResultRecord `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&again))
	assert.Len(t, again.Results, 1)
}
