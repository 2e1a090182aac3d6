package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/metrics"
)

// Invalidator drops cached entries by tag.
type Invalidator interface {
	InvalidateTags(tags ...string) int
}

type Options struct {
	Sponsor         string
	EagerAwardTerms bool
	SessionTTL      time.Duration
	// Cache is told about every project a commit writes. Optional.
	Cache Invalidator
}

// Upload is one file submitted for import.
type Upload struct {
	Filename  string
	Data      []byte
	Delimiter rune
}

// Importer runs the preview and confirm steps of a CSV import.
type Importer struct {
	mappings   *MappingSet
	reconciler *Reconciler
	committer  *committer
	sessions   *SessionStore
	opts       Options
	log        *zap.Logger
}

func New(repo Repository, provisioner UserProvisioner, mappings *MappingSet, opts Options, log *zap.Logger) *Importer {
	if mappings == nil {
		mappings = DefaultMappings()
	}
	if opts.Sponsor == "" {
		opts.Sponsor = "NSF"
	}
	log = log.Named("importer")
	reconciler := NewReconciler(repo, log)
	return &Importer{
		mappings:   mappings,
		reconciler: reconciler,
		committer: &committer{
			repo:        repo,
			reconciler:  reconciler,
			provisioner: provisioner,
			sponsor:     opts.Sponsor,
			cache:       opts.Cache,
			log:         log,
		},
		sessions: NewSessionStore(opts.SessionTTL, nil),
		opts:     opts,
		log:      log,
	}
}

// Preview parses the upload and reports what a commit would do. Nothing is
// written except award terms when eager creation is enabled.
func (im *Importer) Preview(ctx context.Context, up Upload) (Session, error) {
	rows, lines, err := parseUpload(up.Filename, up.Data, up.Delimiter)
	if err != nil {
		return Session{}, err
	}
	m := im.mappings.Detect(rows)
	sess := im.sessions.Create(up.Filename, m.Name, rows, lines)

	plans := make([]*RowPlan, 0, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			im.sessions.Delete(sess.ID)
			return Session{}, err
		}
		line := lines[i]
		plan, err := im.reconciler.Reconcile(ctx, line, row, m, im.opts.EagerAwardTerms)
		if err != nil {
			plan = &RowPlan{Line: line, AwardNumber: NormalizeText(row[m.AwardColumn()]), Skip: true}
			plan.warn(im.log, err)
		}
		plans = append(plans, plan)
	}

	summary := buildSummary(m.Name, plans)
	im.sessions.SetSummary(sess.ID, summary)
	sess, err = im.sessions.Transition(sess.ID, StateIdle, StatePreviewed)
	if err != nil {
		return Session{}, err
	}
	metrics.ImportSessions.WithLabelValues(string(StatePreviewed)).Inc()
	im.log.Info("import previewed",
		zap.String("session_id", sess.ID.String()),
		zap.String("filename", up.Filename),
		zap.String("format", m.Name),
		zap.Int("rows", len(rows)),
		zap.Int("to_create", len(summary.ToCreate)),
		zap.Int("to_update", len(summary.ToUpdate)),
	)
	return sess, nil
}

// Confirm commits a previewed session. A session is committed at most once.
func (im *Importer) Confirm(ctx context.Context, id uuid.UUID) (*CommitResult, error) {
	sess, err := im.sessions.Transition(id, StatePreviewed, StateConfirmed)
	if err != nil {
		return nil, err
	}
	m, ok := im.mappings.Lookup(sess.Format)
	if !ok {
		return nil, fmt.Errorf("session %s: unknown format %q", id, sess.Format)
	}

	res := im.committer.commit(ctx, sess.rows, sess.lines, m)
	im.sessions.SetResult(id, res)
	metrics.ImportSessions.WithLabelValues(string(StateConfirmed)).Inc()
	return res, nil
}

// Cancel discards a session that has not been confirmed.
func (im *Importer) Cancel(id uuid.UUID) error {
	sess, err := im.sessions.Get(id)
	if err != nil {
		return err
	}
	if _, err := im.sessions.Transition(id, sess.State, StateCancelled); err != nil {
		return err
	}
	im.sessions.Delete(id)
	metrics.ImportSessions.WithLabelValues(string(StateCancelled)).Inc()
	im.log.Info("import cancelled", zap.String("session_id", id.String()))
	return nil
}

func (im *Importer) Session(id uuid.UUID) (Session, error) {
	return im.sessions.Get(id)
}

// IsClientError reports whether err is caused by the request rather than
// by storage.
func IsClientError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr) ||
		errors.Is(err, ErrInvalidDelimiter) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrInvalidTransition)
}
