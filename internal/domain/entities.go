package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrInternal        = errors.New("internal error")
)

// JobKind names a supervised job slot.
type JobKind string

const (
	KindCrawler       JobKind = "crawler"
	KindEmbedding     JobKind = "embedding"
	KindDailyFallback JobKind = "daily-fallback"
)

// JobStatus is the lifecycle state of a supervised helper run.
// running is the only non-terminal value.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed_out"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s JobStatus) Terminal() bool { return s != JobRunning }

// JobTrigger records what started a job.
type JobTrigger string

const (
	TriggerAdmin         JobTrigger = "admin"
	TriggerDailyFallback JobTrigger = "daily_fallback"
)

// Job is one supervised execution of a helper process.
// Stdout/Stderr hold at most the last 64 KiB of each stream.
type Job struct {
	ID         string     `json:"job_id"`
	Source     Source     `json:"source"`
	Args       []string   `json:"args"`
	Trigger    JobTrigger `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     JobStatus  `json:"status"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
}

// WithoutOutput returns a copy with the output buffers elided, for
// status/history responses where the buffers may be large.
func (j Job) WithoutOutput() Job {
	j.Stdout, j.Stderr = "", ""
	return j
}

// Problem is a full catalog record. Optional columns stay pointers so
// nulls survive the JSON round trip.
type Problem struct {
	ID               string   `json:"id"`
	Source           string   `json:"source"`
	Slug             string   `json:"slug"`
	Title            *string  `json:"title"`
	TitleCN          *string  `json:"title_cn"`
	Difficulty       *string  `json:"difficulty"`
	ACRate           *float64 `json:"ac_rate"`
	Rating           *float64 `json:"rating"`
	Contest          *string  `json:"contest"`
	ProblemIndex     *string  `json:"problem_index"`
	Tags             []string `json:"tags"`
	Link             *string  `json:"link"`
	Category         *string  `json:"category"`
	PaidOnly         *bool    `json:"paid_only"`
	Content          *string  `json:"content"`
	ContentCN        *string  `json:"content_cn"`
	SimilarQuestions []string `json:"similar_questions"`
}

// ProblemSummary is the list-projection of Problem (no content bodies).
type ProblemSummary struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Slug         string   `json:"slug"`
	Title        *string  `json:"title"`
	TitleCN      *string  `json:"title_cn"`
	Difficulty   *string  `json:"difficulty"`
	ACRate       *float64 `json:"ac_rate"`
	Rating       *float64 `json:"rating"`
	Contest      *string  `json:"contest"`
	ProblemIndex *string  `json:"problem_index"`
	Tags         []string `json:"tags"`
	Link         *string  `json:"link"`
}

// DailyChallenge is the daily problem row for a (domain, date) pair.
type DailyChallenge struct {
	Date   string `json:"date"`
	Domain string `json:"domain"`
	Problem
}

// SimilarProblem is one similarity result row.
type SimilarProblem struct {
	Source     string  `json:"source"`
	ID         string  `json:"id"`
	Title      *string `json:"title"`
	Difficulty *string `json:"difficulty"`
	Link       *string `json:"link"`
	Similarity float64 `json:"similarity"`
}

// EmbeddingMatch is one kNN hit before hydration.
type EmbeddingMatch struct {
	Source    string
	ProblemID string
	Distance  float64
}

// APIToken is a bearer token for the public API.
type APIToken struct {
	Token      string  `json:"token"`
	Label      *string `json:"label"`
	CreatedAt  int64   `json:"created_at"`
	LastUsedAt *int64  `json:"last_used_at"`
	IsActive   bool    `json:"is_active"`
}

// PlatformStat is a per-source catalog coverage summary.
type PlatformStat struct {
	Source   string `json:"source"`
	Problems int64  `json:"problems"`
	Embedded int64  `json:"embedded"`
}

// ListParams narrows a problem listing.
type ListParams struct {
	Source     string
	Page       int
	PerPage    int
	Difficulty string
	Tags       []string
	TagMode    string // any | all
	Search     string
	SortBy     string // id | difficulty | rating | ac_rate
	SortOrder  string // asc | desc
	RatingMin  *float64
	RatingMax  *float64
}

// ListResult is a paginated problem listing.
type ListResult struct {
	Data       []ProblemSummary `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int64            `json:"total_pages"`
}

// Repositories (ports)

type ProblemRepository interface {
	Get(ctx Context, source, id string) (Problem, error)
	List(ctx Context, p ListParams) (ListResult, error)
	ListTags(ctx Context, source string) ([]string, error)
	PlatformStats(ctx Context) ([]PlatformStat, error)
	Create(ctx Context, p Problem) error
	Update(ctx Context, source, id string, p Problem) error
	Delete(ctx Context, source, id string) error
}

type DailyRepository interface {
	Get(ctx Context, domain, date string) (DailyChallenge, error)
}

type EmbeddingRepository interface {
	GetEmbedding(ctx Context, source, id string) ([]byte, error)
	KNNSearch(ctx Context, vector []float32, k int) ([]EmbeddingMatch, error)
}

type TokenRepository interface {
	Create(ctx Context, label *string) (APIToken, error)
	List(ctx Context) ([]APIToken, error)
	Revoke(ctx Context, token string) (bool, error)
	Validate(ctx Context, token string) (bool, error)
}

// SettingTokenAuthEnabled toggles bearer-token enforcement on the
// public API. "1" enables, anything else disables; a missing row
// means enabled.
const SettingTokenAuthEnabled = "token_auth_enabled"

type SettingsRepository interface {
	Get(ctx Context, key string) (string, error)
	Set(ctx Context, key, value string) error
	TokenAuthEnabled(ctx Context) (bool, error)
}

// TextEmbedder (port)
// EmbedText maps a text to its embedding vector by invoking the
// external one-shot embedder helper.
type TextEmbedder interface {
	EmbedText(ctx Context, text string) ([]float32, error)
}

// Context is an alias to allow decoupling from std context in domain
// Adapters and usecases should pass context.Context through

type Context = context.Context
