package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// DailyRepo loads daily challenges. The table stores only the
// (domain, date) -> problem linkage; the problem row is joined in.
type DailyRepo struct{ Pool PgxPool }

// NewDailyRepo constructs a DailyRepo with the given pool.
func NewDailyRepo(p PgxPool) *DailyRepo { return &DailyRepo{Pool: p} }

// Get loads the challenge for (site, date). A dangling link whose
// problem row is gone reads as not found.
func (r *DailyRepo) Get(ctx domain.Context, site, date string) (domain.DailyChallenge, error) {
	tracer := otel.Tracer("repo.daily")
	ctx, span := tracer.Start(ctx, "daily.Get")
	defer span.End()

	q := `SELECT d.date, d.domain,
	             p.source, p.id, p.slug, p.title, p.title_cn, p.difficulty, p.ac_rate, p.rating,
	             p.contest, p.problem_index, p.tags, p.link, p.category, p.paid_only,
	             p.content, p.content_cn, p.similar_questions
	      FROM daily_challenges d
	      JOIN problems p ON p.source = d.source AND p.id = d.problem_id
	      WHERE d.domain = $1 AND d.date = $2`

	var ch domain.DailyChallenge
	err := r.Pool.QueryRow(ctx, q, site, date).Scan(
		&ch.Date, &ch.Domain,
		&ch.Source, &ch.ID, &ch.Slug, &ch.Title, &ch.TitleCN, &ch.Difficulty, &ch.ACRate, &ch.Rating,
		&ch.Contest, &ch.ProblemIndex, &ch.Tags, &ch.Link, &ch.Category, &ch.PaidOnly,
		&ch.Content, &ch.ContentCN, &ch.SimilarQuestions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyChallenge{}, fmt.Errorf("op=daily.get: %w", domain.ErrNotFound)
		}
		return domain.DailyChallenge{}, fmt.Errorf("op=daily.get: %w", err)
	}
	return ch, nil
}
