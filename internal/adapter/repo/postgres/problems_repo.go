package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// ProblemRepo persists and loads catalog problems using a minimal pgx pool.
type ProblemRepo struct{ Pool PgxPool }

// NewProblemRepo constructs a ProblemRepo with the given pool.
func NewProblemRepo(p PgxPool) *ProblemRepo { return &ProblemRepo{Pool: p} }

const problemColumns = `source, id, slug, title, title_cn, difficulty, ac_rate, rating,
	contest, problem_index, tags, link, category, paid_only, content, content_cn, similar_questions`

const summaryColumns = `source, id, slug, title, title_cn, difficulty, ac_rate, rating,
	contest, problem_index, tags, link`

// sortColumns whitelists the ORDER BY targets the listing accepts.
// Anything else falls back to id.
var sortColumns = map[string]string{
	"id":         "id",
	"difficulty": "difficulty",
	"rating":     "rating",
	"ac_rate":    "ac_rate",
}

// Get loads one problem by (source, id).
func (r *ProblemRepo) Get(ctx domain.Context, source, id string) (domain.Problem, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Get")
	defer span.End()

	q := `SELECT ` + problemColumns + ` FROM problems WHERE source=$1 AND id=$2`
	var p domain.Problem
	err := r.Pool.QueryRow(ctx, q, source, id).Scan(
		&p.Source, &p.ID, &p.Slug, &p.Title, &p.TitleCN, &p.Difficulty, &p.ACRate, &p.Rating,
		&p.Contest, &p.ProblemIndex, &p.Tags, &p.Link, &p.Category, &p.PaidOnly,
		&p.Content, &p.ContentCN, &p.SimilarQuestions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Problem{}, fmt.Errorf("op=problem.get: %w", domain.ErrNotFound)
		}
		return domain.Problem{}, fmt.Errorf("op=problem.get: %w", err)
	}
	return p, nil
}

// List returns one page of problems matching the filters plus the
// total match count.
func (r *ProblemRepo) List(ctx domain.Context, params domain.ListParams) (domain.ListResult, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.List")
	defer span.End()
	span.SetAttributes(
		attribute.String("problems.source", params.Source),
		attribute.Int("problems.page", params.Page),
	)

	where, args := buildProblemFilters(params)

	var total int64
	countQ := `SELECT count(*) FROM problems WHERE ` + where
	if err := r.Pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return domain.ListResult{}, fmt.Errorf("op=problem.count: %w", err)
	}

	col, ok := sortColumns[params.SortBy]
	if !ok {
		col = "id"
	}
	dir := "ASC"
	if strings.EqualFold(params.SortOrder, "desc") {
		dir = "DESC"
	}

	args = append(args, params.PerPage, (params.Page-1)*params.PerPage)
	q := fmt.Sprintf(`SELECT %s FROM problems WHERE %s ORDER BY %s %s NULLS LAST, id ASC LIMIT $%d OFFSET $%d`,
		summaryColumns, where, col, dir, len(args)-1, len(args))

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return domain.ListResult{}, fmt.Errorf("op=problem.list: %w", err)
	}
	defer rows.Close()

	data := make([]domain.ProblemSummary, 0, params.PerPage)
	for rows.Next() {
		var s domain.ProblemSummary
		if err := rows.Scan(
			&s.Source, &s.ID, &s.Slug, &s.Title, &s.TitleCN, &s.Difficulty, &s.ACRate, &s.Rating,
			&s.Contest, &s.ProblemIndex, &s.Tags, &s.Link,
		); err != nil {
			return domain.ListResult{}, fmt.Errorf("op=problem.list_scan: %w", err)
		}
		data = append(data, s)
	}
	if err := rows.Err(); err != nil {
		return domain.ListResult{}, fmt.Errorf("op=problem.list_rows: %w", err)
	}

	totalPages := int64(0)
	if params.PerPage > 0 {
		totalPages = (total + int64(params.PerPage) - 1) / int64(params.PerPage)
	}
	return domain.ListResult{
		Data:       data,
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
	}, nil
}

// buildProblemFilters renders the WHERE clause for List and returns it
// with its positional arguments.
func buildProblemFilters(params domain.ListParams) (string, []any) {
	where := []string{"source = $1"}
	args := []any{params.Source}

	add := func(clause string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if params.Difficulty != "" {
		add("lower(difficulty) = $%d", strings.ToLower(params.Difficulty))
	}
	if len(params.Tags) > 0 {
		if params.TagMode == "all" {
			add("tags @> $%d", params.Tags)
		} else {
			add("tags && $%d", params.Tags)
		}
	}
	if params.Search != "" {
		args = append(args, "%"+escapeLike(params.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR slug ILIKE $%d)", n, n))
	}
	if params.RatingMin != nil {
		add("rating >= $%d", *params.RatingMin)
	}
	if params.RatingMax != nil {
		add("rating <= $%d", *params.RatingMax)
	}
	return strings.Join(where, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters in user search input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// ListTags returns the distinct tags of a source in sorted order.
func (r *ProblemRepo) ListTags(ctx domain.Context, source string) ([]string, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.ListTags")
	defer span.End()

	q := `SELECT DISTINCT unnest(tags) AS tag FROM problems WHERE source=$1 ORDER BY tag`
	rows, err := r.Pool.Query(ctx, q, source)
	if err != nil {
		return nil, fmt.Errorf("op=problem.list_tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("op=problem.list_tags_scan: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=problem.list_tags_rows: %w", err)
	}
	return tags, nil
}

// PlatformStats reports per-source problem and embedding counts.
func (r *ProblemRepo) PlatformStats(ctx domain.Context) ([]domain.PlatformStat, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.PlatformStats")
	defer span.End()

	q := `SELECT p.source, count(*), count(e.problem_id)
	      FROM problems p
	      LEFT JOIN problem_embeddings e ON e.source = p.source AND e.problem_id = p.id
	      GROUP BY p.source
	      ORDER BY p.source`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=problem.stats: %w", err)
	}
	defer rows.Close()

	stats := []domain.PlatformStat{}
	for rows.Next() {
		var s domain.PlatformStat
		if err := rows.Scan(&s.Source, &s.Problems, &s.Embedded); err != nil {
			return nil, fmt.Errorf("op=problem.stats_scan: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=problem.stats_rows: %w", err)
	}
	return stats, nil
}

// Create inserts a new problem. A duplicate (source, id) maps to
// ErrConflict.
func (r *ProblemRepo) Create(ctx domain.Context, p domain.Problem) error {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Create")
	defer span.End()

	q := `INSERT INTO problems (` + problemColumns + `)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err := r.Pool.Exec(ctx, q,
		p.Source, p.ID, p.Slug, p.Title, p.TitleCN, p.Difficulty, p.ACRate, p.Rating,
		p.Contest, p.ProblemIndex, p.Tags, p.Link, p.Category, p.PaidOnly,
		p.Content, p.ContentCN, p.SimilarQuestions,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("op=problem.create: %w", domain.ErrConflict)
		}
		return fmt.Errorf("op=problem.create: %w", err)
	}
	return nil
}

// Update rewrites a problem row in place.
func (r *ProblemRepo) Update(ctx domain.Context, source, id string, p domain.Problem) error {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Update")
	defer span.End()

	q := `UPDATE problems SET slug=$3, title=$4, title_cn=$5, difficulty=$6, ac_rate=$7,
	      rating=$8, contest=$9, problem_index=$10, tags=$11, link=$12, category=$13,
	      paid_only=$14, content=$15, content_cn=$16, similar_questions=$17
	      WHERE source=$1 AND id=$2`
	tag, err := r.Pool.Exec(ctx, q,
		source, id, p.Slug, p.Title, p.TitleCN, p.Difficulty, p.ACRate, p.Rating,
		p.Contest, p.ProblemIndex, p.Tags, p.Link, p.Category, p.PaidOnly,
		p.Content, p.ContentCN, p.SimilarQuestions,
	)
	if err != nil {
		return fmt.Errorf("op=problem.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=problem.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a problem and its embedding in one transaction.
func (r *ProblemRepo) Delete(ctx domain.Context, source, id string) error {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Delete")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=problem.delete_begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM problems WHERE source=$1 AND id=$2`, source, id)
	if err != nil {
		return fmt.Errorf("op=problem.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=problem.delete: %w", domain.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM problem_embeddings WHERE source=$1 AND problem_id=$2`, source, id); err != nil {
		return fmt.Errorf("op=problem.delete_embedding: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=problem.delete_commit: %w", err)
	}
	return nil
}
