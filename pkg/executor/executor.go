// Package executor turns controller-issued actions into locally executed
// operations with captured output. Nothing in here returns an error to
// the caller: every failure mode is folded into the result's output text
// so a bad payload can never abort a batch or kill the agent.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/runfleet/runfleet/pkg/logutil"
	"github.com/runfleet/runfleet/pkg/protocol"
)

const (
	// DefaultActionTimeout bounds a single action so a hung subordinate
	// process cannot stall the agent forever.
	DefaultActionTimeout = 5 * time.Minute

	// DefaultInterpreter runs runpy and run actions.
	DefaultInterpreter = "python3"
)

type Config struct {
	Logger *slog.Logger

	// HTTPClient performs zipfile downloads. If nil a client with a
	// bounded timeout is used.
	HTTPClient *http.Client

	// Interpreter is the program that runs runpy and run actions.
	Interpreter string

	// WorkDir is where zipfile archives are extracted. Defaults to the
	// process working directory.
	WorkDir string

	// ActionTimeout bounds each action's execution.
	ActionTimeout time.Duration
}

// Executor dispatches on the closed set of action types. At most one
// subordinate process is outstanding at any instant; Execute always
// waits for it before returning.
type Executor struct {
	logger        *slog.Logger
	httpClient    *http.Client
	interpreter   string
	workDir       string
	actionTimeout time.Duration
}

func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	interpreter := cfg.Interpreter
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = "."
	}
	actionTimeout := cfg.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = DefaultActionTimeout
	}
	return &Executor{
		logger:        logger,
		httpClient:    httpClient,
		interpreter:   interpreter,
		workDir:       workDir,
		actionTimeout: actionTimeout,
	}
}

// Execute runs one action and returns its result. An unrecognized type
// is reported in the output, not raised; no handler panics or returns an
// error past this boundary.
func (e *Executor) Execute(ctx context.Context, action protocol.Action) protocol.ActionResult {
	logutil.WithAction(e.logger, action.Type).Info("executing action")

	var output string
	switch action.Type {
	case protocol.ActionRunPy:
		output = e.runInline(ctx, action.Data)
	case protocol.ActionRunFile:
		output = e.runFile(ctx, action.Data)
	case protocol.ActionCmd:
		output = e.runShell(ctx, action.Data)
	case protocol.ActionZipFile:
		output = e.fetchArchive(ctx, action.Data)
	default:
		output = fmt.Sprintf("Unknown action type: %s", action.Type)
	}

	return protocol.ActionResult{
		Action: action,
		Output: output,
	}
}
