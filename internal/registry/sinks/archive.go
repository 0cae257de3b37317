package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/progress"
	"github.com/JakeFAU/progressd/internal/registry"
	"github.com/JakeFAU/progressd/internal/store"
)

// ArchiveSink writes one immutable JSON report per finished task to a blob
// archive. Keys are content-addressed, so a re-delivered record overwrites
// its blob with identical bytes.
type ArchiveSink struct {
	archive store.ReportArchive
	hasher  registry.Hasher
	prefix  string
	logger  *zap.Logger
}

// NewArchiveSink constructs an ArchiveSink writing under the given key prefix.
func NewArchiveSink(archive store.ReportArchive, hasher registry.Hasher, prefix string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{archive: archive, hasher: hasher, prefix: prefix, logger: logger}
}

// archivedReport is the stored JSON document.
type archivedReport struct {
	TaskID     string                  `json:"taskId"`
	Name       string                  `json:"name"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt time.Time               `json:"finishedAt"`
	Elapsed    progress.Duration       `json:"elapsed"`
	Durations  progress.DurationExport `json:"durations"`
}

// Consume renders the report and stores it.
func (s *ArchiveSink) Consume(ctx context.Context, rec registry.Record) error {
	if s == nil || s.archive == nil || s.hasher == nil {
		return nil
	}
	report := archivedReport{
		TaskID:     rec.TaskID.String(),
		Name:       rec.Name,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Elapsed:    progress.Duration(rec.Elapsed()),
		Durations:  rec.Durations,
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	hash, err := s.hasher.Hash(data)
	if err != nil {
		return fmt.Errorf("hash report: %w", err)
	}
	key := s.buildReportKey(rec.FinishedAt, rec.TaskID.String(), hash)
	uri, err := s.archive.Put(ctx, key, "application/json; charset=utf-8", data)
	if err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	s.logger.Debug("report archived",
		zap.String("task_id", rec.TaskID.String()),
		zap.String("uri", uri),
	)
	return nil
}

// buildReportKey yields <prefix>/<date>/<task>/<hash>.json with the prefix
// optional. The date segment comes from the finish time so a day's reports
// list together.
func (s *ArchiveSink) buildReportKey(finishedAt time.Time, taskID, hash string) string {
	day := finishedAt.UTC().Format("2006-01-02")
	prefix := strings.Trim(s.prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s.json", day, taskID, hash)
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, day, taskID, hash)
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
