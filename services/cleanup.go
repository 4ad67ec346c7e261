package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/prepvox/backend/repository"
)

// TokenCleanupJob sweeps expired refresh tokens on a cron schedule so the
// tokens table does not grow with every login forever.
type TokenCleanupJob struct {
	repo     *repository.GORMRepository
	schedule string
	cron     *cron.Cron
}

func NewTokenCleanupJob(repo *repository.GORMRepository, schedule string) *TokenCleanupJob {
	return &TokenCleanupJob{
		repo:     repo,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep and starts the scheduler.
func (j *TokenCleanupJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return err
	}
	j.cron.Start()
	slog.Info("Token cleanup job scheduled", "schedule", j.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (j *TokenCleanupJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *TokenCleanupJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := j.repo.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		slog.Error("Token cleanup sweep failed", "error", err)
		return
	}
	slog.Info("Token cleanup sweep finished", "removed", removed)
}
