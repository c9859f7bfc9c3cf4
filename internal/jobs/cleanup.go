package jobs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/config"
	"github.com/openclaw/wagate/internal/database"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/repository"
)

const cleanupTimeout = 30 * time.Second

// SessionReaper tears down sessions stuck before READY.
type SessionReaper interface {
	ReapStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type CleanupOptions struct {
	PendingSessionTTL time.Duration
	AuditRetention    time.Duration
	UploadDir         string
	StaleUploadAge    time.Duration
}

type CleanupJob struct {
	sessions  SessionReaper
	db        TxRunner
	auditRepo repository.AuditRepository
	opts      CleanupOptions
	interval  time.Duration
	done      chan struct{}
}

// NewCleanupJob builds the periodic cleanup. db and auditRepo may be nil when
// no audit database is configured.
func NewCleanupJob(
	sessions SessionReaper,
	db TxRunner,
	auditRepo repository.AuditRepository,
	opts CleanupOptions,
	interval time.Duration,
) *CleanupJob {
	if opts.StaleUploadAge <= 0 {
		opts.StaleUploadAge = config.StaleUploadAge
	}
	return &CleanupJob{
		sessions:  sessions,
		db:        db,
		auditRepo: auditRepo,
		opts:      opts,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if j.sessions != nil && j.opts.PendingSessionTTL > 0 {
		j.runCleanup(ctx, "stale sessions", func(ctx context.Context) (int64, error) {
			return j.sessions.ReapStale(ctx, j.opts.PendingSessionTTL)
		})
	}
	if j.db != nil && j.auditRepo != nil && j.opts.AuditRetention > 0 {
		j.runCleanup(ctx, "audit events", j.purgeAudit)
	}
	if j.opts.UploadDir != "" {
		j.runCleanup(ctx, "staged uploads", j.removeStaleUploads)
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

// purgeAudit deletes expired audit rows and records the purge in the same
// transaction.
func (j *CleanupJob) purgeAudit(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.opts.AuditRetention)
	var count int64
	err := j.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := j.auditRepo.WithTx(tx)
		n, err := repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return err
		}
		count = n
		if n == 0 {
			return nil
		}
		return repo.Create(ctx, model.CreateAuditEventParams{
			Type:    "audit_purge",
			Details: map[string]any{"count": n, "cutoff": cutoff.UTC().Format(time.RFC3339)},
		})
	})
	return count, err
}

func (j *CleanupJob) removeStaleUploads(ctx context.Context) (int64, error) {
	entries, err := os.ReadDir(j.opts.UploadDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-j.opts.StaleUploadAge)
	var count int64
	for _, entry := range entries {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.opts.UploadDir, entry.Name())); err == nil {
			count++
		}
	}
	return count, nil
}
