package agent_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/runfleet/runfleet/pkg/agent"
	"github.com/runfleet/runfleet/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRegister(t *testing.T) {
	var got protocol.RegisterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/get-id", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(protocol.RegisterResponse{ClientID: "abc123"})
	}))
	defer srv.Close()

	c := agent.NewClient(agent.ClientConfig{ServerURL: srv.URL})
	id, err := c.Register(t.Context(), agent.Profile{Name: "host-1", OS: "linux", Version: "6.1"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	assert.Equal(t, protocol.RegisterRequest{Name: "host-1", OS: "linux", Version: "6.1"}, got)
}

func TestClientRegisterNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "registration closed", http.StatusForbidden)
	}))
	defer srv.Close()

	c := agent.NewClient(agent.ClientConfig{ServerURL: srv.URL})
	_, err := c.Register(t.Context(), agent.Profile{Name: "host-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "registration closed")
}

func TestClientRegisterEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.RegisterResponse{})
	}))
	defer srv.Close()

	c := agent.NewClient(agent.ClientConfig{ServerURL: srv.URL})
	_, err := c.Register(t.Context(), agent.Profile{Name: "host-1"})
	require.Error(t, err)
}

func TestClientGetActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/get-actions/abc123", r.URL.Path)
		json.NewEncoder(w).Encode(protocol.ActionsResponse{Actions: []protocol.Action{
			{Type: protocol.ActionCmd, Data: "echo hi"},
			{Type: protocol.ActionRunPy, Data: "print('x')"},
		}})
	}))
	defer srv.Close()

	c := agent.NewClient(agent.ClientConfig{ServerURL: srv.URL})
	actions, err := c.GetActions(t.Context(), "abc123")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, protocol.Action{Type: protocol.ActionCmd, Data: "echo hi"}, actions[0])
}

func TestClientGetActionsAbsentArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := agent.NewClient(agent.ClientConfig{ServerURL: srv.URL})
	actions, err := c.GetActions(t.Context(), "abc123")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestClientReportResults(t *testing.T) {
	var got protocol.ReportRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/report-results", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := agent.NewClient(agent.ClientConfig{ServerURL: srv.URL})
	results := []protocol.ActionResult{
		{Action: protocol.Action{Type: protocol.ActionCmd, Data: "echo hi"}, Output: "hi\n"},
	}
	require.NoError(t, c.ReportResults(t.Context(), "abc123", results))
	assert.Equal(t, "abc123", got.ClientID)
	assert.Equal(t, results, got.Results)
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get-actions/x", r.URL.Path)
		json.NewEncoder(w).Encode(protocol.ActionsResponse{})
	}))
	defer srv.Close()

	c := agent.NewClient(agent.ClientConfig{ServerURL: srv.URL + "/"})
	_, err := c.GetActions(t.Context(), "x")
	require.NoError(t, err)
}
