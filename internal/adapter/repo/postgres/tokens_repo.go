package postgres

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// TokenRepo manages the public API's bearer tokens.
type TokenRepo struct{ Pool PgxPool }

// NewTokenRepo constructs a TokenRepo with the given pool.
func NewTokenRepo(p PgxPool) *TokenRepo { return &TokenRepo{Pool: p} }

// Create mints a 32-byte random token, stores it active and returns it.
func (r *TokenRepo) Create(ctx domain.Context, label *string) (domain.APIToken, error) {
	tracer := otel.Tracer("repo.tokens")
	ctx, span := tracer.Start(ctx, "tokens.Create")
	defer span.End()

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIToken{}, fmt.Errorf("op=token.create_rand: %w", err)
	}
	tok := domain.APIToken{
		Token:     hex.EncodeToString(buf),
		Label:     label,
		CreatedAt: time.Now().Unix(),
		IsActive:  true,
	}

	q := `INSERT INTO api_tokens (token, label, created_at, is_active) VALUES ($1,$2,$3,TRUE)`
	if _, err := r.Pool.Exec(ctx, q, tok.Token, tok.Label, tok.CreatedAt); err != nil {
		return domain.APIToken{}, fmt.Errorf("op=token.create: %w", err)
	}
	return tok, nil
}

// List returns all tokens, newest first.
func (r *TokenRepo) List(ctx domain.Context) ([]domain.APIToken, error) {
	tracer := otel.Tracer("repo.tokens")
	ctx, span := tracer.Start(ctx, "tokens.List")
	defer span.End()

	q := `SELECT token, label, created_at, last_used_at, is_active FROM api_tokens ORDER BY created_at DESC, token`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=token.list: %w", err)
	}
	defer rows.Close()

	tokens := []domain.APIToken{}
	for rows.Next() {
		var t domain.APIToken
		if err := rows.Scan(&t.Token, &t.Label, &t.CreatedAt, &t.LastUsedAt, &t.IsActive); err != nil {
			return nil, fmt.Errorf("op=token.list_scan: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=token.list_rows: %w", err)
	}
	return tokens, nil
}

// Revoke deactivates a token. It reports whether an active token was
// actually revoked.
func (r *TokenRepo) Revoke(ctx domain.Context, token string) (bool, error) {
	tracer := otel.Tracer("repo.tokens")
	ctx, span := tracer.Start(ctx, "tokens.Revoke")
	defer span.End()

	q := `UPDATE api_tokens SET is_active = FALSE WHERE token=$1 AND is_active`
	tag, err := r.Pool.Exec(ctx, q, token)
	if err != nil {
		return false, fmt.Errorf("op=token.revoke: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Validate checks an active token and stamps its last use in the same
// round trip.
func (r *TokenRepo) Validate(ctx domain.Context, token string) (bool, error) {
	tracer := otel.Tracer("repo.tokens")
	ctx, span := tracer.Start(ctx, "tokens.Validate")
	defer span.End()

	q := `UPDATE api_tokens SET last_used_at=$2 WHERE token=$1 AND is_active RETURNING token`
	var got string
	err := r.Pool.QueryRow(ctx, q, token, time.Now().Unix()).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("op=token.validate: %w", err)
	}
	return true, nil
}
