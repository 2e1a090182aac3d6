package importer

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/models"
)

// Repository is the storage the importer reads and writes.
type Repository interface {
	FindAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error)
	CreateAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error)
	FindProjectByAwardTerm(ctx context.Context, termID int64) (*models.Project, error)
	CreateProject(ctx context.Context, p *models.Project) error
	UpdateProject(ctx context.Context, p *models.Project) error
	FindUserByName(ctx context.Context, name string) (*models.User, error)
}

type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

type MatchState string

const (
	MatchLinked   MatchState = "linked"
	MatchExisting MatchState = "matched"
	MatchNew      MatchState = "new"
)

type PersonMatch struct {
	PersonIdentity
	State  MatchState `json:"state"`
	UserID int64      `json:"user_id,omitempty"`
}

// RowPlan is the reconciliation of one import row against storage.
type RowPlan struct {
	Line        int               `json:"line"`
	AwardNumber string            `json:"award_number"`
	Term        *models.AwardTerm `json:"-"`
	Project     *models.Project   `json:"-"`
	Changes     []FieldChange     `json:"changes"`
	People      []PersonMatch     `json:"people"`
	Warnings    []string          `json:"warnings,omitempty"`
	Skip        bool              `json:"skip,omitempty"`
	values      map[string]string
	period      *DateRange
}

// IsNew reports whether the row will create a project.
func (p *RowPlan) IsNew() bool { return p.Project == nil }

func (p *RowPlan) warn(log *zap.Logger, err error) {
	p.Warnings = append(p.Warnings, err.Error())
	log.Warn("import row warning",
		zap.Int("line", p.Line),
		zap.String("award_number", p.AwardNumber),
		zap.Error(err),
	)
}

// Apply writes the planned changes onto project.
func (p *RowPlan) Apply(project *models.Project) {
	for _, c := range p.Changes {
		switch c.Field {
		case FieldAwardNumber:
			if p.Term != nil {
				id := p.Term.ID
				project.AwardTermID = &id
				project.AwardNumber = p.Term.Name
			}
		case FieldPerformancePeriod:
			if p.period != nil {
				start, end := p.period.Start, p.period.End
				project.PerformanceStart = &start
				project.PerformanceEnd = &end
			}
		default:
			if ptr := textField(project, c.Field); ptr != nil {
				*ptr = p.values[c.Field]
			}
		}
	}
}

type Reconciler struct {
	repo Repository
	log  *zap.Logger
}

func NewReconciler(repo Repository, log *zap.Logger) *Reconciler {
	return &Reconciler{repo: repo, log: log}
}

// Reconcile resolves the row's award term and project and computes the
// field changes and person matches. createTerm controls whether a missing
// award term is created now or left for commit.
func (r *Reconciler) Reconcile(ctx context.Context, line int, row Row, m *Mapping, createTerm bool) (*RowPlan, error) {
	plan := &RowPlan{Line: line, values: make(map[string]string)}
	plan.AwardNumber = NormalizeText(row[m.AwardColumn()])
	if plan.AwardNumber == "" {
		plan.Skip = true
		plan.warn(r.log, errors.New("row has no award number"))
		return plan, nil
	}

	if err := r.resolve(ctx, plan, createTerm); err != nil {
		return nil, err
	}

	current := plan.Project
	if current == nil {
		current = &models.Project{}
	}
	r.diff(plan, row, m, current)

	people, err := r.matchPeople(ctx, ExtractPeople(row, m), current)
	if err != nil {
		return nil, &PersistenceError{AwardNumber: plan.AwardNumber, Op: "match users", Err: err}
	}
	plan.People = people
	return plan, nil
}

func (r *Reconciler) resolve(ctx context.Context, plan *RowPlan, createTerm bool) error {
	term, err := r.repo.FindAwardTerm(ctx, plan.AwardNumber)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrNotFound) && createTerm:
		term, err = r.repo.CreateAwardTerm(ctx, plan.AwardNumber)
		if errors.Is(err, db.ErrConflict) {
			term, err = r.repo.FindAwardTerm(ctx, plan.AwardNumber)
		}
		if err != nil {
			return &PersistenceError{AwardNumber: plan.AwardNumber, Op: "create award term", Err: err}
		}
		r.log.Info("created award term", zap.String("award_number", term.Name), zap.Int64("term_id", term.ID))
	case errors.Is(err, db.ErrNotFound):
		return nil
	default:
		return &PersistenceError{AwardNumber: plan.AwardNumber, Op: "find award term", Err: err}
	}
	plan.Term = term

	project, err := r.repo.FindProjectByAwardTerm(ctx, term.ID)
	switch {
	case err == nil:
		plan.Project = project
	case errors.Is(err, db.ErrNotFound):
	default:
		return &PersistenceError{AwardNumber: plan.AwardNumber, Op: "find project", Err: err}
	}
	return nil
}

func (r *Reconciler) diff(plan *RowPlan, row Row, m *Mapping, current *models.Project) {
	var startRaw, endRaw, rangeRaw string
	var hasPeriod, splitPeriod bool

	for _, rule := range m.Columns {
		kind, known := fieldKinds[rule.Field]
		if !known {
			plan.warn(r.log, &ValidationError{Column: rule.Source, Field: rule.Field})
			continue
		}
		raw, present := row[rule.Source]
		if !present {
			continue
		}

		var oldVal, newVal string
		switch kind {
		case kindDateRange:
			hasPeriod = true
			switch rule.Part {
			case "start":
				startRaw, splitPeriod = raw, true
			case "end":
				endRaw, splitPeriod = raw, true
			default:
				rangeRaw = raw
			}
			continue
		case kindAward:
			oldVal, newVal = current.AwardNumber, NormalizeText(raw)
		case kindHTML:
			oldVal, newVal = SanitizeBody(current.Body), SanitizeBody(raw)
		case kindCurrency:
			oldVal, newVal = NormalizeCurrency(*textField(current, rule.Field)), NormalizeCurrency(raw)
		default:
			oldVal, newVal = NormalizeText(*textField(current, rule.Field)), NormalizeText(raw)
		}

		if oldVal != newVal {
			plan.Changes = append(plan.Changes, FieldChange{Field: rule.Field, Old: oldVal, New: newVal})
			plan.values[rule.Field] = newVal
		}
	}

	if !hasPeriod {
		return
	}

	var period DateRange
	var err error
	if splitPeriod {
		if NormalizeText(startRaw) == "" && NormalizeText(endRaw) == "" {
			return
		}
		period, err = ParseDatePair(startRaw, endRaw, m.DateLayouts)
	} else {
		if NormalizeText(rangeRaw) == "" {
			return
		}
		period, err = ParseDateRange(rangeRaw, m.DateLayouts)
	}
	if err != nil {
		plan.warn(r.log, err)
		return
	}

	if !period.Equal(current.PerformanceStart, current.PerformanceEnd) {
		plan.Changes = append(plan.Changes, FieldChange{
			Field: FieldPerformancePeriod,
			Old:   formatPeriod(current.PerformanceStart, current.PerformanceEnd),
			New:   period.String(),
		})
		plan.period = &period
	}
}

func (r *Reconciler) matchPeople(ctx context.Context, people []PersonIdentity, current *models.Project) ([]PersonMatch, error) {
	out := make([]PersonMatch, 0, len(people))
	for _, person := range people {
		match := PersonMatch{PersonIdentity: person, State: MatchNew}
		user, err := r.repo.FindUserByName(ctx, person.Name)
		switch {
		case err == nil:
			match.UserID = user.ID
			match.State = MatchExisting
			if current.ID != 0 && current.HasUser(user.ID) {
				match.State = MatchLinked
			}
		case errors.Is(err, db.ErrNotFound):
		default:
			return nil, err
		}
		out = append(out, match)
	}
	return out, nil
}

func lineLabel(line int) string {
	return "line " + strconv.Itoa(line)
}
