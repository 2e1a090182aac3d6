// Package projects handles manual project entry and browsing.
package projects

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/cache"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/importer"
	"github.com/david/pimm/internal/models"
)

var (
	ErrNotFound       = errors.New("project not found")
	ErrInvalidProject = errors.New("invalid project")
	ErrDuplicateAward = errors.New("a project already uses this award number")
	ErrUnknownUser    = errors.New("user not found")
)

const (
	dateLayout     = "2006-01-02"
	excerptLength  = 200
	defaultLimit   = 20
	maxLimit       = 100
	manualSourceID = "manual"
)

type Store interface {
	FindAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error)
	CreateAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error)
	FindProjectByAwardTerm(ctx context.Context, termID int64) (*models.Project, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	CreateProject(ctx context.Context, p *models.Project) error
	ListProjects(ctx context.Context) ([]models.Project, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type Invalidator interface {
	InvalidateTags(tags ...string) int
}

type Service struct {
	store Store
	cache Invalidator
	log   *zap.Logger
}

func NewService(store Store, c Invalidator, log *zap.Logger) *Service {
	return &Service{store: store, cache: c, log: log.Named("projects")}
}

// Input is a manually entered project. Dates are YYYY-MM-DD.
type Input struct {
	Title            string   `json:"title"`
	Body             string   `json:"body"`
	AwardNumber      string   `json:"award_number"`
	Institution      string   `json:"institution"`
	ProjectType      string   `json:"project_type"`
	LeadPI           string   `json:"lead_pi"`
	LeadPIUserID     *int64   `json:"lead_pi_user_id"`
	CoPIs            string   `json:"co_pis"`
	CoPIUserIDs      []int64  `json:"co_pi_user_ids"`
	PIEmail          string   `json:"pi_email"`
	PerformanceStart string   `json:"performance_start"`
	PerformanceEnd   string   `json:"performance_end"`
	Sponsor          string   `json:"sponsor"`
	SponsorURL       string   `json:"sponsor_url"`
	AwardAmount      string   `json:"award_amount"`
	ProjectURL       string   `json:"project_url"`
	ReportURL        string   `json:"report_url"`
	Researchers      string   `json:"researchers"`
	CoreAreas        []string `json:"core_areas"`
	Keywords         []string `json:"keywords"`
	Tags             []string `json:"tags"`
	DisplayVideos    bool     `json:"display_videos"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProject, fmt.Sprintf(format, args...))
}

func (in Input) project() (*models.Project, error) {
	p := &models.Project{
		Title:         importer.NormalizeText(in.Title),
		Body:          importer.SanitizeBody(in.Body),
		AwardNumber:   strings.TrimSpace(in.AwardNumber),
		Institution:   importer.NormalizeText(in.Institution),
		ProjectType:   importer.NormalizeText(in.ProjectType),
		LeadPI:        importer.NormalizeText(in.LeadPI),
		LeadPIUserID:  in.LeadPIUserID,
		CoPIs:         importer.NormalizeText(in.CoPIs),
		CoPIUserIDs:   in.CoPIUserIDs,
		PIEmail:       strings.TrimSpace(in.PIEmail),
		Sponsor:       importer.NormalizeText(in.Sponsor),
		AwardAmount:   importer.NormalizeCurrency(in.AwardAmount),
		Researchers:   importer.NormalizeText(in.Researchers),
		CoreAreas:     in.CoreAreas,
		Keywords:      in.Keywords,
		Tags:          in.Tags,
		DisplayVideos: in.DisplayVideos,
	}
	if p.Title == "" {
		return nil, invalid("title is required")
	}

	for _, f := range []struct {
		name string
		raw  string
		dst  *string
	}{
		{"sponsor_url", in.SponsorURL, &p.SponsorURL},
		{"project_url", in.ProjectURL, &p.ProjectURL},
		{"report_url", in.ReportURL, &p.ReportURL},
	} {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalid("%s must be an http(s) URL", f.name)
		}
		*f.dst = raw
	}

	var err error
	if p.PerformanceStart, err = parseDate("performance_start", in.PerformanceStart); err != nil {
		return nil, err
	}
	if p.PerformanceEnd, err = parseDate("performance_end", in.PerformanceEnd); err != nil {
		return nil, err
	}
	if p.PerformanceStart != nil && p.PerformanceEnd != nil && p.PerformanceEnd.Before(*p.PerformanceStart) {
		return nil, invalid("performance period ends before it starts")
	}
	return p, nil
}

func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, invalid("%s %q is not a YYYY-MM-DD date", field, raw)
	}
	return &t, nil
}

// Create stores a manually entered project. The award number resolves to an
// award term, created on first use, that no other project may hold.
func (s *Service) Create(ctx context.Context, in Input) (*models.Project, error) {
	p, err := in.project()
	if err != nil {
		return nil, err
	}
	if err := s.checkUsers(ctx, p); err != nil {
		return nil, err
	}

	if p.AwardNumber != "" {
		term, err := s.resolveTerm(ctx, p.AwardNumber)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.FindProjectByAwardTerm(ctx, term.ID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAward, p.AwardNumber)
		} else if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		p.AwardTermID = &term.ID
	}

	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateTags(cache.TagProjectList)
	}
	s.log.Info("project created",
		zap.Int64("nid", p.ID),
		zap.String("award_number", p.AwardNumber),
		zap.String("source", manualSourceID),
	)
	return p, nil
}

func (s *Service) resolveTerm(ctx context.Context, name string) (*models.AwardTerm, error) {
	term, err := s.store.FindAwardTerm(ctx, name)
	if err == nil {
		return term, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	term, err = s.store.CreateAwardTerm(ctx, name)
	if errors.Is(err, db.ErrConflict) {
		return s.store.FindAwardTerm(ctx, name)
	}
	return term, err
}

func (s *Service) checkUsers(ctx context.Context, p *models.Project) error {
	ids := p.CoPIUserIDs
	if p.LeadPIUserID != nil {
		ids = append([]int64{*p.LeadPIUserID}, ids...)
	}
	for _, id := range ids {
		if _, err := s.store.GetUser(ctx, id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrUnknownUser, id)
			}
			return err
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// Query pages through projects. Search matches title, award number,
// institution or lead PI, case-insensitively.
type Query struct {
	Search string
	Limit  int
	Offset int
}

type Summary struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	AwardNumber      string     `json:"award_number"`
	Institution      string     `json:"institution"`
	LeadPI           string     `json:"lead_pi"`
	PerformanceStart *time.Time `json:"performance_start"`
	PerformanceEnd   *time.Time `json:"performance_end"`
	Excerpt          string     `json:"excerpt"`
}

type ListResult struct {
	Items  []Summary `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func (s *Service) List(ctx context.Context, q Query) (*ListResult, error) {
	if q.Limit <= 0 || q.Limit > maxLimit {
		q.Limit = defaultLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	all, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	matched := all[:0]
	for _, p := range all {
		if needle == "" || matches(&p, needle) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return strings.ToLower(matched[i].Title) < strings.ToLower(matched[j].Title)
	})

	res := &ListResult{Items: []Summary{}, Total: len(matched), Limit: q.Limit, Offset: q.Offset}
	if q.Offset >= len(matched) {
		return res, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	for _, p := range matched[q.Offset:end] {
		res.Items = append(res.Items, Summary{
			ID:               p.ID,
			Title:            p.Title,
			AwardNumber:      p.AwardNumber,
			Institution:      p.Institution,
			LeadPI:           p.LeadPI,
			PerformanceStart: p.PerformanceStart,
			PerformanceEnd:   p.PerformanceEnd,
			Excerpt:          importer.Excerpt(p.Body, excerptLength),
		})
	}
	return res, nil
}

func matches(p *models.Project, needle string) bool {
	for _, v := range []string{p.Title, p.AwardNumber, p.Institution, p.LeadPI} {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
