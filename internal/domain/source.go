package domain

import "fmt"

// Source identifies an online judge with a crawler helper script.
type Source string

const (
	SourceLeetCode   Source = "leetcode"
	SourceAtCoder    Source = "atcoder"
	SourceCodeforces Source = "codeforces"
	SourceLuogu      Source = "luogu"
)

// CrawlSources lists every source that has a crawler helper, in the
// order the admin UI presents them.
func CrawlSources() []Source {
	return []Source{SourceLeetCode, SourceAtCoder, SourceCodeforces, SourceLuogu}
}

// ParseSource validates a crawler source name.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceLeetCode, SourceAtCoder, SourceCodeforces, SourceLuogu:
		return Source(s), nil
	}
	return "", fmt.Errorf("%w: unknown source %q", ErrInvalidArgument, s)
}

// ScriptName returns the helper script for the source, relative to the
// scripts directory.
func (s Source) ScriptName() string {
	return string(s) + ".py"
}

// EmbeddingScript is the helper behind both the embedding rebuild slot
// and the one-shot --embed-text calls.
const EmbeddingScript = "embedding_cli.py"
