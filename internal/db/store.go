package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/pimm/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

// wrapErr maps driver errors onto ErrNotFound and ErrConflict.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) FindAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error) {
	var t models.AwardTerm
	err := s.pool.QueryRow(ctx, "SELECT id, name FROM award_terms WHERE name = $1", name).Scan(&t.ID, &t.Name)
	if err != nil {
		return nil, wrapErr("find award term", err)
	}
	return &t, nil
}

func (s *Store) CreateAwardTerm(ctx context.Context, name string) (*models.AwardTerm, error) {
	t := models.AwardTerm{Name: name}
	err := s.pool.QueryRow(ctx, "INSERT INTO award_terms (name) VALUES ($1) RETURNING id", name).Scan(&t.ID)
	if err != nil {
		return nil, wrapErr("create award term", err)
	}
	return &t, nil
}

const projectCols = `p.id, p.title, p.award_term_id, COALESCE(t.name, ''), p.body, p.institution,
	p.project_type, p.lead_pi, p.lead_pi_user_id, p.co_pis, p.co_pi_user_ids, p.pi_email,
	p.performance_start, p.performance_end, p.sponsor, p.sponsor_url, p.award_amount,
	p.project_url, p.report_url, p.researchers, p.core_areas, p.keywords, p.tags,
	p.display_videos, p.created_at, p.updated_at`

const projectFrom = `FROM projects p LEFT JOIN award_terms t ON t.id = p.award_term_id`

func scanProject(scan func(dest ...any) error) (models.Project, error) {
	var p models.Project
	err := scan(
		&p.ID, &p.Title, &p.AwardTermID, &p.AwardNumber, &p.Body, &p.Institution,
		&p.ProjectType, &p.LeadPI, &p.LeadPIUserID, &p.CoPIs, &p.CoPIUserIDs, &p.PIEmail,
		&p.PerformanceStart, &p.PerformanceEnd, &p.Sponsor, &p.SponsorURL, &p.AwardAmount,
		&p.ProjectURL, &p.ReportURL, &p.Researchers, &p.CoreAreas, &p.Keywords, &p.Tags,
		&p.DisplayVideos, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+projectCols+" "+projectFrom+" WHERE p.id = $1", id)
	p, err := scanProject(row.Scan)
	if err != nil {
		return nil, wrapErr("get project", err)
	}
	return &p, nil
}

func (s *Store) FindProjectByAwardTerm(ctx context.Context, termID int64) (*models.Project, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+projectCols+" "+projectFrom+" WHERE p.award_term_id = $1", termID)
	p, err := scanProject(row.Scan)
	if err != nil {
		return nil, wrapErr("find project by award term", err)
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (
			title, award_term_id, body, institution, project_type, lead_pi, lead_pi_user_id,
			co_pis, co_pi_user_ids, pi_email, performance_start, performance_end, sponsor,
			sponsor_url, award_amount, project_url, report_url, researchers, core_areas,
			keywords, tags, display_videos
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id, created_at, updated_at
	`,
		p.Title, p.AwardTermID, p.Body, p.Institution, p.ProjectType, p.LeadPI, p.LeadPIUserID,
		p.CoPIs, nonNilIDs(p.CoPIUserIDs), p.PIEmail, p.PerformanceStart, p.PerformanceEnd, p.Sponsor,
		p.SponsorURL, p.AwardAmount, p.ProjectURL, p.ReportURL, p.Researchers, nonNil(p.CoreAreas),
		nonNil(p.Keywords), nonNil(p.Tags), p.DisplayVideos,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return wrapErr("create project", err)
}

func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE projects SET
			title = $2, award_term_id = $3, body = $4, institution = $5, project_type = $6,
			lead_pi = $7, lead_pi_user_id = $8, co_pis = $9, co_pi_user_ids = $10, pi_email = $11,
			performance_start = $12, performance_end = $13, sponsor = $14, sponsor_url = $15,
			award_amount = $16, project_url = $17, report_url = $18, researchers = $19,
			core_areas = $20, keywords = $21, tags = $22, display_videos = $23, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		p.ID, p.Title, p.AwardTermID, p.Body, p.Institution, p.ProjectType,
		p.LeadPI, p.LeadPIUserID, p.CoPIs, nonNilIDs(p.CoPIUserIDs), p.PIEmail,
		p.PerformanceStart, p.PerformanceEnd, p.Sponsor, p.SponsorURL,
		p.AwardAmount, p.ProjectURL, p.ReportURL, p.Researchers,
		nonNil(p.CoreAreas), nonNil(p.Keywords), nonNil(p.Tags), p.DisplayVideos,
	).Scan(&p.UpdatedAt)
	return wrapErr("update project", err)
}

func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+projectCols+" "+projectFrom+" ORDER BY p.id")
	if err != nil {
		return nil, wrapErr("list projects", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, wrapErr("scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListProjectIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, "SELECT id FROM projects ORDER BY id")
}

func (s *Store) queryIDs(ctx context.Context, sql string, args ...any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr("query ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapErr("collect ids", err)
	}
	return ids, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilIDs(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}
