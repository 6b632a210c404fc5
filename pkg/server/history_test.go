package server_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/grafana/dskit/services"
	"github.com/runfleet/runfleet/pkg/protocol"
	"github.com/runfleet/runfleet/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) *server.HistoryService {
	t.Helper()
	h, err := server.NewHistoryService(slog.Default(), "")
	require.NoError(t, err)
	require.NoError(t, services.StartAndAwaitRunning(t.Context(), h))
	t.Cleanup(func() { services.StopAndAwaitTerminated(context.Background(), h) })
	return h
}

func TestHistoryRecordsInOrder(t *testing.T) {
	h := newTestHistory(t)

	batch := []protocol.ActionResult{
		{Action: protocol.Action{Type: protocol.ActionCmd, Data: "first"}, Output: "one"},
		{Action: protocol.Action{Type: protocol.ActionCmd, Data: "second"}, Output: "two"},
		{Action: protocol.Action{Type: protocol.ActionRunFile, Data: "third.py"}, Output: "three"},
	}
	require.NoError(t, h.Record(t.Context(), "c1", batch))

	records, err := h.ByClient(t.Context(), "c1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, "c1", rec.ClientID)
		assert.Equal(t, batch[i].Action.Type, rec.ActionType)
		assert.Equal(t, batch[i].Action.Data, rec.ActionData)
		assert.Equal(t, batch[i].Output, rec.Output)
		assert.False(t, rec.ReportedAt.IsZero())
	}
}

func TestHistoryIsolatesClients(t *testing.T) {
	h := newTestHistory(t)

	require.NoError(t, h.Record(t.Context(), "c1", []protocol.ActionResult{
		{Action: protocol.Action{Type: protocol.ActionCmd, Data: "x"}, Output: "out"},
	}))

	records, err := h.ByClient(t.Context(), "c2")
	require.NoError(t, err)
	assert.Empty(t, records)
}
