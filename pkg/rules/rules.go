package rules

import (
	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/store"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// Condition is a conjunction of any-of predicate lists. A window matches
// when every non-empty list contains at least one matching entry. The
// empty condition matches every window.
type Condition struct {
	Classes []string
	Titles  []string
	Tags    []store.TagID
}

// Matches reports whether the window satisfies the condition.
func (c Condition) Matches(w store.Window) bool {
	if len(c.Classes) > 0 && !containsString(c.Classes, w.Class) {
		return false
	}
	if len(c.Titles) > 0 && !containsString(c.Titles, w.Title) {
		return false
	}
	if len(c.Tags) > 0 {
		any := false
		for _, t := range c.Tags {
			if w.HasTag(t) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

// Actions is a set of optional outcomes applied to a matching window.
// Nil fields are "no opinion" and never override an earlier rule.
type Actions struct {
	Tags       []store.TagID
	Floating   *bool
	Fullscreen *bool
	Maximized  *bool
	Size       *geometry.Size
	Loc        *geometry.Point
	Output     *store.OutputID
	Focused    *bool
}

// merge overlays other onto a, field by field. Set fields in other win.
func (a Actions) merge(other Actions) Actions {
	if other.Tags != nil {
		a.Tags = other.Tags
	}
	if other.Floating != nil {
		a.Floating = other.Floating
	}
	if other.Fullscreen != nil {
		a.Fullscreen = other.Fullscreen
	}
	if other.Maximized != nil {
		a.Maximized = other.Maximized
	}
	if other.Size != nil {
		a.Size = other.Size
	}
	if other.Loc != nil {
		a.Loc = other.Loc
	}
	if other.Output != nil {
		a.Output = other.Output
	}
	if other.Focused != nil {
		a.Focused = other.Focused
	}
	return a
}

// Empty reports whether the action set carries no outcome at all.
func (a Actions) Empty() bool {
	return a.Tags == nil && a.Floating == nil && a.Fullscreen == nil &&
		a.Maximized == nil && a.Size == nil && a.Loc == nil &&
		a.Output == nil && a.Focused == nil
}

// Rule pairs one condition with one action set.
type Rule struct {
	Condition Condition
	Actions   Actions
}

// Engine holds the ordered rule set for the current config generation.
type Engine struct {
	logger *telemetry.Logger
	rules  []Rule
}

// NewEngine creates an empty rule engine.
func NewEngine(logger *telemetry.Logger) *Engine {
	return &Engine{logger: logger.NewComponentLogger("rules")}
}

// Add appends a rule. A rule whose action set is entirely empty can never
// affect any window; it is skipped with a warning rather than rejected,
// since a config declaring it is sloppy but not broken.
func (e *Engine) Add(r Rule) {
	if r.Actions.Empty() {
		e.logger.Warn("skipping window rule with no actions")
		return
	}
	e.rules = append(e.rules, r)
}

// Len returns the number of active rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Clear drops every rule. Called on config reload.
func (e *Engine) Clear() {
	e.rules = nil
}

// Evaluate folds all matching rules over the window in declaration order
// and returns the cumulative action set. The zero Actions means no rule
// matched.
func (e *Engine) Evaluate(w store.Window) Actions {
	var acc Actions
	for _, r := range e.rules {
		if r.Condition.Matches(w) {
			acc = acc.merge(r.Actions)
		}
	}
	return acc
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
