package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/motorledger/motorledger/internal/backup"
	"github.com/motorledger/motorledger/internal/ledger"
)

// Tasks bundles the task handlers with their dependencies.
type Tasks struct {
	coord     *ledger.Coordinator
	backups   *backup.Service
	backupDir string
	logger    *slog.Logger
}

// NewTasks constructs the task handler set.
func NewTasks(coord *ledger.Coordinator, backups *backup.Service, backupDir string, logger *slog.Logger) *Tasks {
	return &Tasks{coord: coord, backups: backups, backupDir: backupDir, logger: logger}
}

// Handlers returns the registrations for the worker mux.
func (t *Tasks) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskTypeDueRefresh, Handler: t.HandleDueRefresh},
		{Type: TaskTypeSnapshot, Handler: t.HandleSnapshot},
	}
}

// HandleDueRefresh walks the due payment collection and updates any record
// whose derived status drifted since it was written. Status depends on the
// calendar day, so overnight a pending payment can become overdue without
// any write touching it.
func (t *Tasks) HandleDueRefresh(ctx context.Context, task *asynq.Task) error {
	var payload DueRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	recs, err := t.coord.List(ctx, ledger.KindDuePayment)
	if err != nil {
		return fmt.Errorf("jobs: list due payments: %w", err)
	}
	refreshed := 0
	for _, rec := range recs {
		due, ok := rec.(*ledger.DuePayment)
		if !ok {
			continue
		}
		status := ledger.DeriveDueStatus(due.DueDate, due.DueAmount, due.Total, asOf)
		if status == due.Status {
			continue
		}
		due.Status = status
		if _, err := t.coord.Update(ctx, due); err != nil {
			t.logger.Warn("due refresh update failed",
				slog.Int64("id", due.ID), slog.Any("error", err))
			continue
		}
		refreshed++
	}
	t.logger.Info("due refresh complete",
		slog.Int("checked", len(recs)), slog.Int("refreshed", refreshed))
	return nil
}

// HandleSnapshot writes a timestamped snapshot artifact into the backup
// directory.
func (t *Tasks) HandleSnapshot(ctx context.Context, task *asynq.Task) error {
	var payload SnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	var (
		data []byte
		err  error
		ext  string
	)
	if payload.Format == "json" {
		data, err = t.backups.SnapshotJSON(ctx)
		ext = ".json"
	} else {
		data, err = t.backups.SnapshotWorkbook(ctx)
		ext = ".xlsx"
	}
	if err != nil {
		return fmt.Errorf("jobs: build snapshot: %w", err)
	}

	if err := os.MkdirAll(t.backupDir, 0o755); err != nil {
		return fmt.Errorf("jobs: create backup dir: %w", err)
	}
	name := "motorledger-" + time.Now().Format("20060102-150405") + ext
	path := filepath.Join(t.backupDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("jobs: write snapshot: %w", err)
	}
	t.logger.Info("snapshot written", slog.String("path", path), slog.Int("bytes", len(data)))
	return nil
}
