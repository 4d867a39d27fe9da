package jqrender

import (
	"log/slog"
	"time"
)

// The helpers below accept a nil logger, which disables logging.

func logPoolStarted(l *slog.Logger, workers, queueSize int, timeout time.Duration) {
	if l == nil {
		return
	}
	l.Info("evaluation pool started",
		slog.Int("workers", workers),
		slog.Int("queue_size", queueSize),
		slog.Duration("default_timeout", timeout),
	)
}

func logWorkerFailed(l *slog.Logger, worker int, failed int, cause any) {
	if l == nil {
		return
	}
	l.Warn("worker failed, restarting",
		slog.Int("worker_id", worker),
		slog.Int("failed_requests", failed),
		slog.Any("cause", cause),
	)
}

func logLateReply(l *slog.Logger, id uint64, worker int) {
	if l == nil {
		return
	}
	l.Debug("discarding late reply",
		slog.Uint64("request_id", id),
		slog.Int("worker_id", worker),
	)
}

func logRequestTimedOut(l *slog.Logger, id uint64, worker int, timeout time.Duration) {
	if l == nil {
		return
	}
	l.Debug("request timed out",
		slog.Uint64("request_id", id),
		slog.Int("worker_id", worker),
		slog.Duration("timeout", timeout),
	)
}

func logPoolClosed(l *slog.Logger, abandoned int) {
	if l == nil {
		return
	}
	l.Info("evaluation pool closed", slog.Int("abandoned_requests", abandoned))
}
