// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package config

import (
	"github.com/gobwas/glob"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
)

// ActivityID is an application id or a free-form title. YAML integers are
// accepted and decoded to their decimal string.
type ActivityID string

// JSONSchema accepts both integers and strings.
func (ActivityID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string"},
		},
	}
}

type compiledOverride struct {
	pattern    glob.Glob
	activities []ActivityID
}

// ActivityResolver picks the activity set for an account name.
type ActivityResolver struct {
	defaults  []ActivityID
	overrides []compiledOverride
}

// NewActivityResolver precompiles the override patterns.
func NewActivityResolver(a Activities) (*ActivityResolver, error) {
	r := &ActivityResolver{defaults: a.Default}
	for _, o := range a.Overrides {
		g, err := glob.Compile(o.Match)
		if err != nil {
			return nil, oops.Code(CodeInvalid).With("match", o.Match).Wrapf(err, "invalid override pattern")
		}
		r.overrides = append(r.overrides, compiledOverride{pattern: g, activities: o.Activities})
	}
	return r, nil
}

// For returns a copy of the activities for accountName. The first matching
// override wins; without a match the defaults apply.
func (r *ActivityResolver) For(accountName string) []string {
	src := r.defaults
	for _, o := range r.overrides {
		if o.pattern.Match(accountName) {
			src = o.activities
			break
		}
	}
	out := make([]string, len(src))
	for i, a := range src {
		out[i] = string(a)
	}
	return out
}

// ActivitiesFor resolves the activity set for accountName. Validate must have
// accepted c; an uncompilable pattern yields the defaults.
func (c *Config) ActivitiesFor(accountName string) []string {
	r, err := NewActivityResolver(c.Activities)
	if err != nil {
		r = &ActivityResolver{defaults: c.Activities.Default}
	}
	return r.For(accountName)
}
