package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/cache"
	"github.com/david/pimm/internal/metrics"
	"github.com/david/pimm/internal/models"
)

// UserProvisioner finds or creates the account for a named person.
type UserProvisioner interface {
	Ensure(ctx context.Context, name, email, source string) (*models.User, bool, error)
}

// RowError is a user-facing failure for one award number.
type RowError struct {
	Line        int    `json:"line"`
	AwardNumber string `json:"award_number"`
	Message     string `json:"message"`
}

type CommitResult struct {
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Unchanged    int        `json:"unchanged"`
	Skipped      int        `json:"skipped"`
	UsersCreated int        `json:"users_created"`
	UsersLinked  int        `json:"users_linked"`
	Errors       []RowError `json:"errors,omitempty"`
	Message      string     `json:"message"`
}

// Changed reports whether the commit wrote anything.
func (r *CommitResult) Changed() bool {
	return r.Created+r.Updated+r.UsersCreated+r.UsersLinked > 0
}

func (r *CommitResult) fail(line int, award string, err error) {
	r.Errors = append(r.Errors, RowError{Line: line, AwardNumber: award, Message: err.Error()})
}

func (r *CommitResult) finish() {
	if !r.Changed() {
		if len(r.Errors) > 0 {
			r.Message = fmt.Sprintf("Import failed: no changes were applied (%d errors).", len(r.Errors))
		} else {
			r.Message = "No changes were applied: the file matches the stored projects."
		}
		return
	}
	r.Message = fmt.Sprintf("Created %d projects, updated %d, %d unchanged. Created %d users, linked %d.",
		r.Created, r.Updated, r.Unchanged, r.UsersCreated, r.UsersLinked)
	if len(r.Errors) > 0 {
		r.Message += fmt.Sprintf(" %d rows had errors.", len(r.Errors))
	}
}

type committer struct {
	repo        Repository
	reconciler  *Reconciler
	provisioner UserProvisioner
	sponsor     string
	cache       Invalidator
	log         *zap.Logger
}

// commit applies every row independently. A failing row is recorded and
// the rest continue.
func (c *committer) commit(ctx context.Context, rows []Row, lines []int, m *Mapping) *CommitResult {
	res := &CommitResult{}
	for i, row := range rows {
		line := lines[i]
		outcome := c.commitRow(ctx, res, line, row, m)
		metrics.ImportRows.WithLabelValues(outcome).Inc()
	}
	res.finish()
	c.log.Info("import committed",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("users_created", res.UsersCreated),
		zap.Int("users_linked", res.UsersLinked),
		zap.Int("errors", len(res.Errors)),
	)
	return res
}

func (c *committer) commitRow(ctx context.Context, res *CommitResult, line int, row Row, m *Mapping) string {
	plan, err := c.reconciler.Reconcile(ctx, line, row, m, true)
	if err != nil {
		c.log.Error("import row failed", zap.Int("line", line), zap.Error(err))
		res.fail(line, NormalizeText(row[m.AwardColumn()]), err)
		return "error"
	}
	if plan.Skip {
		res.Skipped++
		return "skipped"
	}

	outcome := "unchanged"
	written := false
	project := plan.Project
	if project == nil {
		project = &models.Project{}
		plan.Apply(project)
		termID := plan.Term.ID
		project.AwardTermID = &termID
		project.AwardNumber = plan.Term.Name
		project.Sponsor = c.sponsor
		if err := c.repo.CreateProject(ctx, project); err != nil {
			return c.persistFailed(res, plan, "create project", err)
		}
		res.Created++
		outcome = "created"
		written = true
	} else {
		plan.Apply(project)
		sponsorChanged := project.Sponsor != c.sponsor
		project.Sponsor = c.sponsor
		if len(plan.Changes) > 0 || sponsorChanged {
			if err := c.repo.UpdateProject(ctx, project); err != nil {
				return c.persistFailed(res, plan, "update project", err)
			}
			written = true
		}
		if len(plan.Changes) > 0 {
			res.Updated++
			outcome = "updated"
		} else {
			res.Unchanged++
		}
	}

	if c.attachPeople(ctx, res, plan, project) {
		if err := c.repo.UpdateProject(ctx, project); err != nil {
			c.persistFailed(res, plan, "link users", err)
		} else {
			written = true
		}
	}
	if written {
		c.invalidate(project.ID)
	}
	return outcome
}

func (c *committer) invalidate(projectID int64) {
	if c.cache == nil {
		return
	}
	c.cache.InvalidateTags(cache.TagProjectList, cache.ProjectTag(projectID))
}

func (c *committer) persistFailed(res *CommitResult, plan *RowPlan, op string, err error) string {
	perr := &PersistenceError{AwardNumber: plan.AwardNumber, Op: op, Err: err}
	c.log.Error("import row failed", zap.Int("line", plan.Line), zap.Error(perr))
	res.fail(plan.Line, plan.AwardNumber, perr)
	return "error"
}

// attachPeople resolves each identity to an account and attaches it. The
// lead PI replaces a different lead; co-PIs are appended, never replaced.
func (c *committer) attachPeople(ctx context.Context, res *CommitResult, plan *RowPlan, project *models.Project) bool {
	changed := false
	for _, person := range plan.People {
		userID := person.UserID
		if userID == 0 {
			user, created, err := c.provisioner.Ensure(ctx, person.Name, person.Email, "import")
			if err != nil {
				uerr := &UserCreationError{AwardNumber: plan.AwardNumber, Name: person.Name, Err: err}
				c.log.Error("user creation failed", zap.Int("line", plan.Line), zap.Error(uerr))
				res.fail(plan.Line, plan.AwardNumber, uerr)
				continue
			}
			if created {
				res.UsersCreated++
			}
			userID = user.ID
		}

		switch person.Role {
		case RolePI:
			if project.LeadPIUserID == nil || *project.LeadPIUserID != userID {
				id := userID
				project.LeadPIUserID = &id
				res.UsersLinked++
				changed = true
			}
		default:
			if project.LeadPIUserID != nil && *project.LeadPIUserID == userID {
				continue
			}
			if !project.HasCoPI(userID) {
				project.CoPIUserIDs = append(project.CoPIUserIDs, userID)
				res.UsersLinked++
				changed = true
			}
		}
	}
	return changed
}

// Err joins the row errors of a result, or returns nil when there are none.
func (r *CommitResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, fmt.Sprintf("%s (%s): %s", lineLabel(e.Line), e.AwardNumber, e.Message))
	}
	return errors.New(strings.Join(msgs, "; "))
}
