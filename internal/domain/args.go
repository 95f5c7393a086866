package domain

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ValueType is the type a helper flag expects for its value tokens.
type ValueType string

const (
	ValueNone      ValueType = "none"
	ValueDate      ValueType = "date"
	ValueInt       ValueType = "int"
	ValueFloat     ValueType = "float"
	ValueStr       ValueType = "str"
	ValueYearMonth ValueType = "year_month"
	ValueDomain    ValueType = "domain"
)

// ArgSpec declares one helper flag: how many value tokens it consumes
// and how they are typed. UIExposed controls whether the admin console
// offers the flag; validation accepts non-exposed flags all the same.
type ArgSpec struct {
	Flag      string
	Arity     int
	Type      ValueType
	UIExposed bool
}

var leetcodeArgs = []ArgSpec{
	{Flag: "--init", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--full", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--fill-missing-content", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--fill-missing-content-workers", Arity: 1, Type: ValueInt},
	{Flag: "--missing-content-stats", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--daily", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--date", Arity: 1, Type: ValueDate, UIExposed: true},
	{Flag: "--monthly", Arity: 2, Type: ValueYearMonth, UIExposed: true},
	{Flag: "--domain", Arity: 1, Type: ValueDomain, UIExposed: true},
}

var atcoderArgs = []ArgSpec{
	{Flag: "--sync-kenkoooo", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--sync-history", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--fetch-all", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--resume", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--contest", Arity: 1, Type: ValueStr, UIExposed: true},
	{Flag: "--status", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--fill-missing-content", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--missing-content-stats", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--reprocess-content", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--rate-limit", Arity: 1, Type: ValueFloat},
	{Flag: "--data-dir", Arity: 1, Type: ValueStr},
	{Flag: "--db-path", Arity: 1, Type: ValueStr},
}

var codeforcesArgs = []ArgSpec{
	{Flag: "--sync-problemset", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--fetch-all", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--resume", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--contest", Arity: 1, Type: ValueInt, UIExposed: true},
	{Flag: "--status", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--fill-missing-content", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--missing-content-stats", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--missing-problems", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--reprocess-content", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--include-gym", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--rate-limit", Arity: 1, Type: ValueFloat},
	{Flag: "--data-dir", Arity: 1, Type: ValueStr},
	{Flag: "--db-path", Arity: 1, Type: ValueStr},
}

var luoguArgs = []ArgSpec{
	{Flag: "--sync", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--fill-missing-content", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--missing-content-stats", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--status", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--overwrite", Arity: 0, Type: ValueNone, UIExposed: true},
	{Flag: "--rate-limit", Arity: 1, Type: ValueFloat},
	{Flag: "--batch-size", Arity: 1, Type: ValueInt},
	{Flag: "--data-dir", Arity: 1, Type: ValueStr},
	{Flag: "--db-path", Arity: 1, Type: ValueStr},
}

// ArgSpecsFor returns the declared flag set for a crawler source.
func ArgSpecsFor(s Source) []ArgSpec {
	switch s {
	case SourceLeetCode:
		return leetcodeArgs
	case SourceAtCoder:
		return atcoderArgs
	case SourceCodeforces:
		return codeforcesArgs
	case SourceLuogu:
		return luoguArgs
	}
	return nil
}

// ValidateArgs checks a raw argument vector against the source's
// declared specs and returns the validated vector. Flags may not
// repeat, every flag must be declared, and each value token must parse
// as the declared type.
func ValidateArgs(s Source, args []string) ([]string, error) {
	specs := ArgSpecsFor(s)
	seen := make(map[string]bool, len(args))
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		flag := args[i]
		if !strings.HasPrefix(flag, "--") {
			return nil, fmt.Errorf("%w: expected a flag, got %q", ErrInvalidArgument, flag)
		}
		spec, ok := findSpec(specs, flag)
		if !ok {
			return nil, fmt.Errorf("%w: unknown flag %q for source %q", ErrInvalidArgument, flag, s)
		}
		if seen[flag] {
			return nil, fmt.Errorf("%w: duplicate flag %q", ErrInvalidArgument, flag)
		}
		seen[flag] = true
		out = append(out, flag)

		if i+spec.Arity > len(args)-1 {
			return nil, fmt.Errorf("%w: flag %q expects %d value(s)", ErrInvalidArgument, flag, spec.Arity)
		}
		values := args[i+1 : i+1+spec.Arity]
		if err := checkValues(spec, values); err != nil {
			return nil, err
		}
		out = append(out, values...)
		i += spec.Arity
	}
	return out, nil
}

func findSpec(specs []ArgSpec, flag string) (ArgSpec, bool) {
	for _, sp := range specs {
		if sp.Flag == flag {
			return sp, true
		}
	}
	return ArgSpec{}, false
}

func checkValues(spec ArgSpec, values []string) error {
	switch spec.Type {
	case ValueNone:
		return nil
	case ValueDate:
		if _, err := ParseISODate(values[0]); err != nil {
			return fmt.Errorf("%w: flag %q: %v", ErrInvalidArgument, spec.Flag, err)
		}
	case ValueInt:
		if _, err := strconv.ParseUint(values[0], 10, 64); err != nil {
			return fmt.Errorf("%w: flag %q expects an unsigned integer, got %q", ErrInvalidArgument, spec.Flag, values[0])
		}
	case ValueFloat:
		f, err := strconv.ParseFloat(values[0], 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return fmt.Errorf("%w: flag %q expects a positive number, got %q", ErrInvalidArgument, spec.Flag, values[0])
		}
	case ValueStr:
		if values[0] == "" {
			return fmt.Errorf("%w: flag %q expects a non-empty value", ErrInvalidArgument, spec.Flag)
		}
		if spec.Flag == "--data-dir" || spec.Flag == "--db-path" {
			if err := checkRelativePath(values[0]); err != nil {
				return fmt.Errorf("%w: flag %q: %v", ErrInvalidArgument, spec.Flag, err)
			}
		}
	case ValueDomain:
		if values[0] != "com" && values[0] != "cn" {
			return fmt.Errorf("%w: flag %q expects \"com\" or \"cn\", got %q", ErrInvalidArgument, spec.Flag, values[0])
		}
	case ValueYearMonth:
		year, err := strconv.Atoi(values[0])
		if err != nil {
			return fmt.Errorf("%w: flag %q: invalid year %q", ErrInvalidArgument, spec.Flag, values[0])
		}
		month, err := strconv.Atoi(values[1])
		if err != nil {
			return fmt.Errorf("%w: flag %q: invalid month %q", ErrInvalidArgument, spec.Flag, values[1])
		}
		if year < 2000 || year > 2100 {
			return fmt.Errorf("%w: flag %q: year must be between 2000 and 2100", ErrInvalidArgument, spec.Flag)
		}
		if month < 1 || month > 12 {
			return fmt.Errorf("%w: flag %q: month must be between 1 and 12", ErrInvalidArgument, spec.Flag)
		}
	}
	return nil
}

// ParseISODate parses a strict YYYY-MM-DD calendar date.
func ParseISODate(s string) (time.Time, error) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, fmt.Errorf("invalid date format, expected YYYY-MM-DD")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar date %q", s)
	}
	return t, nil
}

func checkRelativePath(p string) error {
	if filepath.IsAbs(p) {
		return fmt.Errorf("absolute paths are not allowed")
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return fmt.Errorf("path may not contain %q", "..")
		}
	}
	return nil
}
