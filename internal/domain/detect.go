package domain

import (
	"regexp"
	"strings"
)

var (
	atcoderURLRe    = regexp.MustCompile(`(?i)atcoder\.jp/contests/([^/]+)/tasks/([^/?#]+)`)
	leetcodeURLRe   = regexp.MustCompile(`(?i)leetcode\.(?:com|cn)/(?:contest/[^/]+/)?problems/([^/?#]+)`)
	codeforcesURLRe = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?codeforces\.com/(?:contest/(\d+)/problem/([A-Z0-9]+)|problemset/problem/(\d+)/([A-Z0-9]+))`)
	luoguURLRe      = regexp.MustCompile(`(?i)luogu\.com\.cn/problem/([A-Z0-9_]+)`)

	atcoderIDRe = regexp.MustCompile(`(?i)^(abc|arc|agc|ahc)\d+_[a-z]\d*$`)
	cfIDRe      = regexp.MustCompile(`(?i)^(?:CF)?\d+[A-Z]\d*$`)
	luoguIDRe   = regexp.MustCompile(`(?i)^([PBTU]\d+|CF\d+[A-Z]|AT_(?:abc|arc|agc|ahc)\d+_[a-z]\d*|UVA\d+)$`)
	spIDRe      = regexp.MustCompile(`(?i)^SP\d+$`)
)

// detectionSources are the platform tags DetectSource may emit via the
// "source:id" prefix form. Wider than CrawlSources: UVA and SPOJ
// problems exist in the catalog through Luogu mirrors.
var detectionSources = []string{"atcoder", "leetcode", "codeforces", "luogu", "uva", "spoj"}

// DetectSource guesses the platform and canonical problem id for a
// free-form identifier: a problem URL, a "source:id" pair, or a bare
// id in any of the supported platforms' conventions. Unrecognizable
// URLs map to ("unknown", input); anything else defaults to a
// LeetCode slug.
func DetectSource(input string) (string, string) {
	pid := strings.TrimSpace(input)
	if pid == "" {
		return "unknown", ""
	}

	// URL forms
	if caps := atcoderURLRe.FindStringSubmatch(pid); caps != nil {
		return "atcoder", strings.ToLower(caps[2])
	}
	if caps := leetcodeURLRe.FindStringSubmatch(pid); caps != nil {
		return "leetcode", caps[1]
	}
	if caps := codeforcesURLRe.FindStringSubmatch(pid); caps != nil {
		contest, index := caps[1], caps[2]
		if contest == "" {
			contest, index = caps[3], caps[4]
		}
		return "codeforces", strings.ToUpper(contest + index)
	}
	if caps := luoguURLRe.FindStringSubmatch(pid); caps != nil {
		luoguPID := strings.ToUpper(caps[1])
		switch {
		case strings.HasPrefix(luoguPID, "CF"):
			return "codeforces", luoguPID[2:]
		case strings.HasPrefix(luoguPID, "AT_"):
			return "atcoder", strings.ToLower(luoguPID[3:])
		case strings.HasPrefix(luoguPID, "AT"):
			return "atcoder", strings.ToLower(luoguPID)
		case strings.HasPrefix(luoguPID, "SP") && spIDRe.MatchString(luoguPID):
			return "spoj", luoguPID
		}
		return "luogu", luoguPID
	}

	// URL on an unrecognized host
	if strings.Contains(pid, "://") {
		return "unknown", pid
	}

	// "source:id" prefix form
	if strings.Count(pid, ":") == 1 {
		parts := strings.SplitN(pid, ":", 2)
		src := strings.ToLower(parts[0])
		for _, s := range detectionSources {
			if s == src {
				return s, parts[1]
			}
		}
	}

	// Pure numeric ids are LeetCode frontend ids
	if isAllDigits(pid) {
		return "leetcode", pid
	}

	if atcoderIDRe.MatchString(pid) {
		return "atcoder", strings.ToLower(pid)
	}

	if strings.HasPrefix(strings.ToUpper(pid), "CF") && cfIDRe.MatchString(pid) {
		return "codeforces", strings.ToUpper(pid[2:])
	}
	if cfIDRe.MatchString(pid) {
		return "codeforces", strings.ToUpper(pid)
	}

	if spIDRe.MatchString(pid) {
		return "spoj", strings.ToUpper(pid)
	}

	if luoguIDRe.MatchString(pid) {
		return "luogu", strings.ToUpper(pid)
	}

	// Fall back to treating the input as a LeetCode slug
	return "leetcode", pid
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
