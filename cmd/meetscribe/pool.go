package main

import (
	"time"

	"github.com/sjawhar/meetscribe/internal/config"
	"github.com/sjawhar/meetscribe/internal/observe"
	"github.com/sjawhar/meetscribe/internal/server"
	"github.com/sjawhar/meetscribe/internal/worker"
)

// newPool builds the background pool. Task outcomes feed the metrics and
// failures are pushed to dashboard subscribers.
func newPool(cfg config.Config, metrics *observe.Metrics, hub *server.Hub) *worker.Pool {
	return worker.New(cfg.Workers,
		worker.WithTimeout(cfg.ParsedFinalizeTimeout()),
		worker.WithObserver(func(name string, elapsed time.Duration, err error) {
			metrics.RecordTask(name, elapsed, err)
			hub.TaskFailed(name, err)
		}),
	)
}
