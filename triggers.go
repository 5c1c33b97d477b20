package chatflow

import (
	"regexp"
	"strings"
)

// TriggerCatalog is the static registry of workflow triggers, assembled at
// process start and read-only afterwards
type TriggerCatalog struct {
	triggers []WorkflowTrigger
}

// NewTriggerCatalog creates a catalog from a fixed trigger list. Catalog
// order is significant: it breaks priority ties during matching.
func NewTriggerCatalog(triggers ...WorkflowTrigger) *TriggerCatalog {
	cp := make([]WorkflowTrigger, len(triggers))
	copy(cp, triggers)
	return &TriggerCatalog{triggers: cp}
}

// All returns the triggers in catalog order
func (c *TriggerCatalog) All() []WorkflowTrigger {
	out := make([]WorkflowTrigger, len(c.triggers))
	copy(out, c.triggers)
	return out
}

// ByType returns the active triggers of the given type, in catalog order
func (c *TriggerCatalog) ByType(t TriggerType) []WorkflowTrigger {
	var out []WorkflowTrigger
	for _, tr := range c.triggers {
		if tr.Active && tr.Type == t {
			out = append(out, tr)
		}
	}
	return out
}

// Get retrieves a trigger by id
func (c *TriggerCatalog) Get(id string) (WorkflowTrigger, bool) {
	for _, tr := range c.triggers {
		if tr.ID == id {
			return tr, true
		}
	}
	return WorkflowTrigger{}, false
}

// TriggerMatcher scans the catalog for triggers matching a user message.
// It has no side effects.
type TriggerMatcher struct {
	catalog *TriggerCatalog
}

// NewTriggerMatcher creates a matcher over the given catalog
func NewTriggerMatcher(catalog *TriggerCatalog) *TriggerMatcher {
	return &TriggerMatcher{catalog: catalog}
}

// Match returns the highest-priority active trigger matching the message,
// with catalog order breaking ties. The second return value is false when
// nothing matches, so callers treat absence uniformly.
func (m *TriggerMatcher) Match(message string, convCtx map[string]string) (WorkflowTrigger, bool) {
	lowered := strings.ToLower(message)

	var best WorkflowTrigger
	found := false

	for _, tr := range m.catalog.triggers {
		if !tr.Active {
			continue
		}
		if !m.matches(tr, lowered, convCtx) {
			continue
		}
		if !found || tr.Priority > best.Priority {
			best = tr
			found = true
		}
	}

	return best, found
}

func (m *TriggerMatcher) matches(tr WorkflowTrigger, lowered string, convCtx map[string]string) bool {
	switch tr.Type {
	case TriggerTypeKeyword:
		return matchKeywords(tr.Keywords, lowered)
	case TriggerTypePattern:
		return matchPattern(tr.Pattern, lowered)
	case TriggerTypeIntent:
		if !matchKeywords(tr.Keywords, lowered) {
			return false
		}
		for field, want := range tr.Conditions {
			if convCtx[field] != want {
				return false
			}
		}
		return true
	default:
		// Schedule and event triggers never fire from messages
		return false
	}
}

func matchKeywords(keywords []string, lowered string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func matchPattern(pattern string, lowered string) bool {
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(lowered)
}
