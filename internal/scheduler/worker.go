package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"agent_workbench/internal/remote"
	"agent_workbench/platform/config"
	"agent_workbench/platform/logger"
	"agent_workbench/platform/metrics"

	"github.com/hibiken/asynq"
)

// DocumentService receives prospectus requests.
type DocumentService interface {
	PostRaw(ctx context.Context, op, path string, body interface{}) (json.RawMessage, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	docs   DocumentService
	log    *logger.Logger
}

// NewWorker builds a worker that forwards prospectus requests to the remote
// with the service token.
func NewWorker(cfg config.SchedulerConfig, client *remote.Client, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	if cfg.GetRemoteServiceToken() == "" {
		return nil, fmt.Errorf("REMOTE_SERVICE_TOKEN is required for the prospectus worker")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetSchedulerConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		Logger: log.Asynq(),
	})

	return newWorker(server, client.As(cfg.GetRemoteServiceToken()), log), nil
}

func newWorker(server *asynq.Server, docs DocumentService, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Discard()
	}
	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		docs:   docs,
		log:    log,
	}
	mux.HandleFunc(TaskProspectusRequest, w.handleProspectusRequest)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("prospectus worker stopped", "error", err)
	}
}

func (w *Worker) handleProspectusRequest(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProspectusRequestPayload(task)
	if err != nil {
		// A malformed payload will not get better.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if _, err := w.docs.PostRaw(ctx, "create_prospectus", "/prospectus", payload); err != nil {
		metrics.ProspectusProcessed("failed")
		w.log.Error("prospectus request failed",
			"leadId", payload.LeadID,
			"agentId", payload.AgentID,
			"error", err,
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	metrics.ProspectusProcessed("sent")
	w.log.Info("prospectus requested",
		"leadId", payload.LeadID,
		"agentId", payload.AgentID,
		"products", len(payload.ProductIDs),
	)
	return nil
}
