package filter

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/fentz26/artifactory-cleaner/internal/models"
)

// Engine is an ordered set of rules plus a default action.
//
// Rules are kept sorted lazily: every mutation marks the engine dirty and the
// next read sorts once before using the rules. An Engine is not safe for
// concurrent use, not even for concurrent reads, because a read may sort.
type Engine struct {
	rules         []*Rule
	dirty         bool
	defaultAction Action
}

// NewEngine returns an engine whose default action is Include.
func NewEngine(rules ...*Rule) (*Engine, error) {
	e := &Engine{defaultAction: Include}
	if err := e.Add(rules...); err != nil {
		return nil, err
	}
	return e, nil
}

// DefaultAction returns the action used when no rule matches.
func (e *Engine) DefaultAction() Action { return e.defaultAction }

// SetDefaultAction changes the action used when no rule matches.
func (e *Engine) SetDefaultAction(a Action) error {
	if a != Include && a != Exclude {
		return fmt.Errorf("%w: %q", ErrInvalidAction, string(a))
	}
	e.defaultAction = a
	return nil
}

// Add appends rules. Position is irrelevant: reads see priority order.
func (e *Engine) Add(rules ...*Rule) error {
	for _, r := range rules {
		if r == nil {
			return ErrNilRule
		}
	}
	if len(rules) == 0 {
		return nil
	}
	e.rules = append(e.rules, rules...)
	e.dirty = true
	return nil
}

// Set replaces the rule at index i of the sorted rule list.
func (e *Engine) Set(i int, r *Rule) error {
	if r == nil {
		return ErrNilRule
	}
	e.sortIfNeeded()
	if i < 0 || i >= len(e.rules) {
		return fmt.Errorf("filter: rule index %d out of range [0,%d)", i, len(e.rules))
	}
	e.rules[i] = r
	e.dirty = true
	return nil
}

// Rule returns the i-th rule in priority order, or nil.
func (e *Engine) Rule(i int) *Rule {
	e.sortIfNeeded()
	if i < 0 || i >= len(e.rules) {
		return nil
	}
	return e.rules[i]
}

// Rules returns the rules in priority order.
func (e *Engine) Rules() []*Rule {
	e.sortIfNeeded()
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// First returns the highest-precedence rule, or nil.
func (e *Engine) First() *Rule { return e.Rule(0) }

// Last returns the lowest-precedence rule, or nil.
func (e *Engine) Last() *Rule { return e.Rule(len(e.rules) - 1) }

// Len returns the number of rules.
func (e *Engine) Len() int { return len(e.rules) }

// Clear removes every rule.
func (e *Engine) Clear() {
	e.rules = nil
	e.dirty = false
}

// ActionFor returns the action of the first matching rule in priority order,
// or the default action when none matches.
func (e *Engine) ActionFor(a *models.Artifact) Action {
	e.sortIfNeeded()
	for _, r := range e.rules {
		if action := r.ActionFor(a); action != NoOpinion {
			return action
		}
	}
	return e.defaultAction
}

// Filter returns the artifacts whose action equals want, in input order.
func (e *Engine) Filter(artifacts []*models.Artifact, want Action) []*models.Artifact {
	var out []*models.Artifact
	for _, a := range artifacts {
		if e.ActionFor(a) == want {
			out = append(out, a)
		}
	}
	return out
}

// sortIfNeeded orders rules by ascending priority once per mutation. The
// sort is not stable: equal priorities end up in no particular order.
func (e *Engine) sortIfNeeded() {
	if !e.dirty {
		return
	}
	slices.SortFunc(e.rules, func(a, b *Rule) int {
		return cmp.Compare(a.priority, b.priority)
	})
	e.dirty = false
}
