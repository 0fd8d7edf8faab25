package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/task"
)

// JobHandler runs one execution job.
type JobHandler interface {
	Handle(ctx context.Context, job task.Job) error
}

// Handler adapts a JobHandler to asynq.
type Handler struct {
	jobs   JobHandler
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(jobs JobHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "queue_handler")),
	}
}

// ProcessTask implements asynq.Handler. Errors are never retried: a job
// that fails to run has already been debited and must not run twice.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger.With(slog.String("task_type", t.Type()))
	if id, ok := asynq.GetTaskID(ctx); ok {
		log = log.With(slog.String("job_id", id))
	}

	var job task.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		log.Error("malformed job payload", slog.String("error", err.Error()))
		return fmt.Errorf("decode job: %v: %w", err, asynq.SkipRetry)
	}

	started := time.Now()
	log.Debug("job started")
	if err := h.jobs.Handle(logger.WithLogger(ctx, log), job); err != nil {
		log.Error("job failed",
			slog.Duration("duration", time.Since(started)),
			slog.String("error", err.Error()))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log.Debug("job completed", slog.Duration("duration", time.Since(started)))
	return nil
}

// Server drains the execution queue.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewServer creates a Server that runs every execution job on jobs.
func NewServer(cfg config.QueueConfig, jobs JobHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	q := cfg.Name
	if q == "" {
		q = "default"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	logger = logger.With(slog.String("component", "queue_server"))

	mux := asynq.NewServeMux()
	mux.Handle(TypeExecuteTask, NewHandler(jobs, logger))

	server := asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{q: 1},
		Logger:      asynqLogger{logger: logger},
	})
	return &Server{server: server, mux: mux, logger: logger}
}

// Start begins processing in the background.
func (s *Server) Start() error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("start queue server: %w", err)
	}
	s.logger.Info("queue server started")
	return nil
}

// Shutdown waits for active jobs and stops the server.
func (s *Server) Shutdown() {
	s.server.Shutdown()
	s.logger.Info("queue server stopped")
}

// asynqLogger adapts asynq.Logger to slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal logs at error level; asynq decides whether the process exits.
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
