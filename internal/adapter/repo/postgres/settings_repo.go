package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// SettingsRepo stores small key/value runtime switches.
type SettingsRepo struct{ Pool PgxPool }

// NewSettingsRepo constructs a SettingsRepo with the given pool.
func NewSettingsRepo(p PgxPool) *SettingsRepo { return &SettingsRepo{Pool: p} }

func (r *SettingsRepo) Get(ctx domain.Context, key string) (string, error) {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Get")
	defer span.End()

	var value string
	err := r.Pool.QueryRow(ctx, `SELECT value FROM app_settings WHERE key=$1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("op=settings.get: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("op=settings.get: %w", err)
	}
	return value, nil
}

func (r *SettingsRepo) Set(ctx domain.Context, key, value string) error {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Set")
	defer span.End()

	q := `INSERT INTO app_settings (key, value) VALUES ($1,$2)
	      ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := r.Pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("op=settings.set: %w", err)
	}
	return nil
}

// TokenAuthEnabled reads the auth switch; a missing row means enabled.
func (r *SettingsRepo) TokenAuthEnabled(ctx domain.Context) (bool, error) {
	v, err := r.Get(ctx, domain.SettingTokenAuthEnabled)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return v == "1", nil
}
