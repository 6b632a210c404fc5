package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/dskit/services"
	"github.com/runfleet/runfleet/pkg/logutil"
	"github.com/runfleet/runfleet/pkg/protocol"
	"github.com/runfleet/runfleet/pkg/storage"
	"github.com/runfleet/runfleet/pkg/util"
	"github.com/samber/lo"
)

// ClientRecord is a registered agent in the controller's registry.
type ClientRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OS           string    `json:"os"`
	Version      string    `json:"version"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ClientStatus is a registry entry enriched with its pending-queue depth.
type ClientStatus struct {
	ClientRecord
	Pending int `json:"pending"`
}

// APIService serves the agent-facing protocol endpoints and the admin
// surface used to enqueue actions and inspect results.
type APIService struct {
	logger     *slog.Logger
	listenAddr string

	registry storage.KeyValue[ClientRecord]
	queues   storage.KeyValue[[]protocol.Action]
	history  *HistoryService

	// guards read-modify-write cycles on a client's queue
	queueMu sync.Mutex

	engine *gin.Engine
	srv    *http.Server

	services.Service
}

func NewAPIService(
	logger *slog.Logger,
	listenAddr string,
	registry storage.KeyValue[ClientRecord],
	queues storage.KeyValue[[]protocol.Action],
	history *HistoryService,
) *APIService {
	a := &APIService{
		logger:     logger,
		listenAddr: listenAddr,
		registry:   registry,
		queues:     queues,
		history:    history,
	}

	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())

	// agent-facing protocol
	r.POST("/get-id", a.handleRegister)
	r.GET("/get-actions/:client_id", a.handleGetActions)
	r.POST("/report-results", a.handleReportResults)

	// admin surface
	r.GET("/clients", a.handleListClients)
	r.POST("/clients/:client_id/actions", a.handleEnqueueAction)
	r.GET("/clients/:client_id/results", a.handleListResults)

	a.engine = r
	a.Service = services.NewBasicService(nil, a.running, a.stopping)
	return a
}

// Handler exposes the router, used by tests to serve the API without a
// listener.
func (a *APIService) Handler() http.Handler {
	return a.engine
}

func (a *APIService) running(ctx context.Context) error {
	a.srv = &http.Server{
		Addr:    a.listenAddr,
		Handler: a.engine,
	}
	serverDone := make(chan error, 1)
	go func() {
		a.logger.With("addr", a.listenAddr).Info("serving controller API")
		serverDone <- a.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server stopped unexpectedly: %w", err)
		}
		return nil
	}
}

func (a *APIService) stopping(_ error) error {
	if a.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.srv.Shutdown(ctx)
}

func (a *APIService) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logutil.WithMethod(a.logger, c.Request.Method).
			With("path", c.Request.URL.Path).
			With("status", c.Writer.Status()).
			With("took", time.Since(start)).
			Debug("request")
	}
}

func (a *APIService) handleRegister(c *gin.Context) {
	var req protocol.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := ClientRecord{
		ID:           util.NewClientID(),
		Name:         req.Name,
		OS:           req.OS,
		Version:      req.Version,
		RegisteredAt: time.Now().UTC(),
	}
	if err := a.registry.Put(c.Request.Context(), rec.ID, rec); err != nil {
		a.logger.With("err", err).Error("failed to store client record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register client"})
		return
	}
	a.logger.With("client_id", rec.ID).With("name", rec.Name).With("os", rec.OS).Info("registered client")
	c.JSON(http.StatusOK, protocol.RegisterResponse{ClientID: rec.ID})
}

func (a *APIService) handleGetActions(c *gin.Context) {
	clientID := c.Param("client_id")
	if !a.knownClient(c, clientID) {
		return
	}

	a.queueMu.Lock()
	defer a.queueMu.Unlock()

	actions, err := a.queues.Get(c.Request.Context(), clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.With("err", err).Error("failed to read action queue")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read action queue"})
			return
		}
		actions = nil
	}
	if len(actions) > 0 {
		// the queue is drained on delivery; results tell us what happened
		if err := a.queues.Delete(c.Request.Context(), clientID); err != nil {
			a.logger.With("err", err).Error("failed to drain action queue")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to drain action queue"})
			return
		}
		a.logger.With("client_id", clientID).With("count", len(actions)).Info("delivered actions")
	}
	c.JSON(http.StatusOK, protocol.ActionsResponse{Actions: actions})
}

func (a *APIService) handleReportResults(c *gin.Context) {
	var req protocol.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !a.knownClient(c, req.ClientID) {
		return
	}

	if err := a.history.Record(c.Request.Context(), req.ClientID, req.Results); err != nil {
		a.logger.With("err", err).Error("failed to record results")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record results"})
		return
	}
	a.logger.With("client_id", req.ClientID).With("count", len(req.Results)).Info("recorded results")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *APIService) handleListClients(c *gin.Context) {
	clients, err := a.registry.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list clients"})
		return
	}
	a.queueMu.Lock()
	statuses := lo.Map(clients, func(rec ClientRecord, _ int) ClientStatus {
		pending := 0
		if queue, err := a.queues.Get(c.Request.Context(), rec.ID); err == nil {
			pending = len(queue)
		}
		return ClientStatus{
			ClientRecord: rec,
			Pending:      pending,
		}
	})
	a.queueMu.Unlock()
	c.JSON(http.StatusOK, gin.H{"clients": statuses})
}

func (a *APIService) handleEnqueueAction(c *gin.Context) {
	clientID := c.Param("client_id")
	if !a.knownClient(c, clientID) {
		return
	}

	var action protocol.Action
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if action.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action type is required"})
		return
	}

	a.queueMu.Lock()
	defer a.queueMu.Unlock()

	queue, err := a.queues.Get(c.Request.Context(), clientID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read action queue"})
		return
	}
	queue = append(queue, action)
	if err := a.queues.Put(c.Request.Context(), clientID, queue); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue action"})
		return
	}
	a.logger.With("client_id", clientID).With("type", action.Type).Info("enqueued action")
	c.JSON(http.StatusAccepted, gin.H{"pending": len(queue)})
}

func (a *APIService) handleListResults(c *gin.Context) {
	clientID := c.Param("client_id")
	if !a.knownClient(c, clientID) {
		return
	}
	records, err := a.history.ByClient(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": records})
}

// knownClient writes a 404 and returns false when the id is not in the
// registry.
func (a *APIService) knownClient(c *gin.Context, clientID string) bool {
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
		return false
	}
	if _, err := a.registry.Get(c.Request.Context(), clientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown client"})
			return false
		}
		a.logger.With("err", err).Error("failed to read client registry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read client registry"})
		return false
	}
	return true
}
