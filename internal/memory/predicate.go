package memory

import (
	"strings"

	"github.com/gobwas/glob"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
)

// Predicate selects entries for Prune.
type Predicate func(entry string) bool

// MatchGlob matches entries against a shell-style glob such as "*deprecated*".
func MatchGlob(pattern string) (Predicate, error) {
	if pattern == "" {
		return nil, memerrors.New(memerrors.CodeValidation, "glob pattern is empty")
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.CodeValidation, "invalid glob "+pattern, err)
	}
	return g.Match, nil
}

// Contains matches entries containing substr, ignoring case.
func Contains(substr string) Predicate {
	needle := strings.ToLower(substr)
	return func(entry string) bool {
		return strings.Contains(strings.ToLower(entry), needle)
	}
}

// Exact matches entries equal to one of values.
func Exact(values ...string) Predicate {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(entry string) bool {
		_, ok := set[entry]
		return ok
	}
}

// Any matches when at least one of preds matches.
func Any(preds ...Predicate) Predicate {
	return func(entry string) bool {
		for _, p := range preds {
			if p(entry) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(entry string) bool { return !p(entry) }
}
