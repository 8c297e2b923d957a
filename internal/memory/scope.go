package memory

import (
	"fmt"
	"regexp"
	"strings"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
)

// Scope is the visibility tier of a memory file.
type Scope string

const (
	// ScopeProject applies to every agent in the project.
	ScopeProject Scope = "project"
	// ScopeAgent applies to one agent within the project.
	ScopeAgent Scope = "agent"
	// ScopeUser applies to one agent for this user, across projects.
	ScopeUser Scope = "user"
)

// Precedence is the fixed order in which scopes are loaded.
var Precedence = []Scope{ScopeProject, ScopeAgent, ScopeUser}

// ParseScope converts a user-supplied scope name.
func ParseScope(s string) (Scope, error) {
	if strings.TrimSpace(s) == "" {
		return "", memerrors.New(memerrors.CodeInvalidRef, "scope is required").
			WithSuggestion("use one of: project, agent, user")
	}
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeProject, "project-wide":
		return ScopeProject, nil
	case ScopeAgent, "agent-specific":
		return ScopeAgent, nil
	case ScopeUser, "user-level":
		return ScopeUser, nil
	}
	return "", memerrors.Newf(memerrors.CodeInvalidRef, "unknown scope %q", s).
		WithSuggestion("use one of: project, agent, user")
}

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Ref identifies a memory file.
type Ref struct {
	Scope   Scope  `json:"scope"`
	AgentID string `json:"agent,omitempty"`
}

// ProjectRef returns the ref of the project-wide file.
func ProjectRef() Ref { return Ref{Scope: ScopeProject} }

// AgentRef returns the ref of an agent's project-level file.
func AgentRef(agentID string) Ref { return Ref{Scope: ScopeAgent, AgentID: agentID} }

// UserRef returns the ref of an agent's user-level file.
func UserRef(agentID string) Ref { return Ref{Scope: ScopeUser, AgentID: agentID} }

// Normalize validates the ref and clears the agent id for project scope.
func (r Ref) Normalize() (Ref, error) {
	switch r.Scope {
	case ScopeProject:
		return Ref{Scope: ScopeProject}, nil
	case ScopeAgent, ScopeUser:
		if err := ValidateAgentID(r.AgentID); err != nil {
			return Ref{}, err
		}
		return r, nil
	}
	return Ref{}, memerrors.Newf(memerrors.CodeInvalidRef, "unknown scope %q", r.Scope)
}

func (r Ref) String() string {
	if r.Scope == ScopeProject {
		return string(ScopeProject)
	}
	return string(r.Scope) + "/" + r.AgentID
}

// ValidateAgentID rejects ids that are empty or could escape the memory directory.
func ValidateAgentID(id string) error {
	if id == "" {
		return memerrors.New(memerrors.CodeInvalidRef, "agent id is required for agent and user scopes")
	}
	if strings.Contains(id, "..") || !agentIDPattern.MatchString(id) {
		return memerrors.Newf(memerrors.CodeInvalidRef, "invalid agent id %q", id).
			WithSuggestion("use letters, digits, '.', '_' or '-' and no path separators")
	}
	return nil
}

// DefaultHeader is the header line written when a file is first created.
func DefaultHeader(r Ref) string {
	switch r.Scope {
	case ScopeAgent:
		return fmt.Sprintf("# %s Agent Memory", displayName(r.AgentID))
	case ScopeUser:
		return fmt.Sprintf("# %s User Memory", displayName(r.AgentID))
	default:
		return "# Project Memory"
	}
}

// displayName turns "rust-engineer" into "Rust Engineer".
func displayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
