package tracking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/batch"
	"github.com/david/pimm/internal/metrics"
)

const (
	DefaultChunkSize = 20
	bulkNote         = "Added via bulk import"
)

type BulkResult struct {
	Total      int    `json:"total"`
	Added      int    `json:"added"`
	Failed     int    `json:"failed"`
	ChunkSizes []int  `json:"chunk_sizes"`
	Message    string `json:"message"`
}

func (r *BulkResult) finish() {
	switch {
	case r.Total == 0:
		r.Message = "No untracked projects found."
	case r.Added > 0:
		r.Message = fmt.Sprintf("Successfully added %d projects to PIMM.", r.Added)
		if r.Failed > 0 {
			r.Message += fmt.Sprintf(" %d projects failed to add.", r.Failed)
		}
	default:
		r.Message = "No new projects were added to PIMM."
	}
}

// BulkAdder adds every untracked project, one chunk at a time.
type BulkAdder struct {
	manager   *Manager
	chunkSize int
	log       *zap.Logger
}

func NewBulkAdder(manager *Manager, chunkSize int, log *zap.Logger) *BulkAdder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &BulkAdder{manager: manager, chunkSize: chunkSize, log: log.Named("bulk_add")}
}

// Run adds the untracked projects. A project that fails to add is counted
// and the run continues; only a failure to list projects or a cancelled
// context stops it.
func (b *BulkAdder) Run(ctx context.Context, addedBy int64, report func(done, total int)) (*BulkResult, error) {
	ids, err := b.manager.UntrackedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list untracked projects: %w", err)
	}

	res := &BulkResult{Total: len(ids), ChunkSizes: []int{}}
	if report != nil {
		report(0, res.Total)
	}
	b.log.Info("bulk add starting", zap.Int("projects", res.Total), zap.Int("chunk_size", b.chunkSize))

	done := 0
	for _, chunk := range batch.Chunk(ids, b.chunkSize) {
		if err := ctx.Err(); err != nil {
			res.finish()
			return res, err
		}
		res.ChunkSizes = append(res.ChunkSizes, len(chunk))
		b.log.Debug("processing chunk", zap.Int("size", len(chunk)))

		for _, nid := range chunk {
			if _, err := b.manager.Add(ctx, nid, addedBy, bulkNote); err != nil {
				res.Failed++
				metrics.TrackingAdds.WithLabelValues("failed").Inc()
				b.log.Warn("failed to add project", zap.Int64("nid", nid), zap.Error(err))
			} else {
				res.Added++
				metrics.TrackingAdds.WithLabelValues("added").Inc()
			}
		}
		done += len(chunk)
		if report != nil {
			report(done, res.Total)
		}
	}

	res.finish()
	b.log.Info("bulk add finished", zap.Int("added", res.Added), zap.Int("failed", res.Failed))
	return res, nil
}

// Task adapts Run to the batch runner.
func (b *BulkAdder) Task(addedBy int64) batch.Task {
	return func(ctx context.Context, report func(done, total int)) (any, error) {
		return b.Run(ctx, addedBy, report)
	}
}
