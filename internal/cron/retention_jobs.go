package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// Default retention windows, in days.
const (
	notificationRetentionDays = 60
	outboxRetentionDays       = 14
)

type readNotificationsPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type outboxRetentionRepo interface {
	DeleteDeliveredBefore(ctx context.Context, cutoff time.Time, terminalAttempts int) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger        *logger.Logger
	Repository    readNotificationsPruner
	RetentionDays int
}

// OutboxRetentionJobParams configure pruning of published or parked outbox rows.
// Rows whose attempts reached TerminalAttempts count as parked.
type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	Repository       outboxRetentionRepo
	RetentionDays    int
	TerminalAttempts int
}

// NewNotificationCleanupJob prunes inbox entries the recipient has already read.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newPruneJob(params.Logger, "notification-cleanup", params.RetentionDays, notificationRetentionDays,
		func(ctx context.Context, cutoff time.Time) (int64, map[string]any, error) {
			n, err := params.Repository.DeleteReadBefore(ctx, cutoff)
			return n, nil, err
		})
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.TerminalAttempts <= 0 {
		return nil, fmt.Errorf("terminal attempt count required")
	}
	return newPruneJob(params.Logger, "outbox-retention", params.RetentionDays, outboxRetentionDays,
		func(ctx context.Context, cutoff time.Time) (int64, map[string]any, error) {
			n, err := params.Repository.DeleteDeliveredBefore(ctx, cutoff, params.TerminalAttempts)
			return n, map[string]any{"terminal_attempts": params.TerminalAttempts}, err
		})
}

type pruneFunc func(ctx context.Context, cutoff time.Time) (deleted int64, fields map[string]any, err error)

// pruneJob deletes rows older than a rolling cutoff of retention days.
type pruneJob struct {
	name      string
	logg      *logger.Logger
	retention int
	prune     pruneFunc
	now       func() time.Time
}

func newPruneJob(logg *logger.Logger, name string, days, fallback int, prune pruneFunc) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if days <= 0 {
		days = fallback
	}
	return &pruneJob{name: name, logg: logg, retention: days, prune: prune, now: time.Now}, nil
}

func (j *pruneJob) Name() string { return j.name }

func (j *pruneJob) cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.retention)
}

func (j *pruneJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	deleted, fields, err := j.prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	if len(fields) > 0 {
		logCtx = j.logg.WithFields(logCtx, fields)
	}
	j.logg.Info(logCtx, "cron.retention_pruned")
	return nil
}
