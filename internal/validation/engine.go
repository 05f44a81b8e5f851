package validation

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/store-incident-api/internal/models"
)

// UserLookup resolves active users by username.
type UserLookup interface {
	FindActiveByUsername(ctx context.Context, username string) (*models.User, error)
}

// Context is handed to custom rules for a single validation pass.
type Context struct {
	ctx      context.Context
	Snapshot *Snapshot
	leaf     *validator.Validate
	users    UserLookup
	resolved map[string]int64
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.ctx }

// Users returns the user lookup configured on the validator.
func (c *Context) Users() UserLookup { return c.users }

// Leaf exposes the tag validator for single-value checks.
func (c *Context) Leaf() *validator.Validate { return c.leaf }

// Resolve records an identifier derived from the value at loc.
func (c *Context) Resolve(loc Location, id int64) { c.resolved[loc.String()] = id }

// FieldRule binds an ordered rule chain to a path pattern. The chain stops at the first
// failing rule.
type FieldRule struct {
	Path  Path
	Chain []Rule
}

// Field declares a FieldRule.
func Field(path string, chain ...Rule) FieldRule {
	return FieldRule{Path: MustPath(path), Chain: chain}
}

func (f FieldRule) required(doc interface{}, loc Location) bool {
	for _, r := range f.Chain {
		switch r.Kind {
		case RuleRequired:
			return true
		case RuleRequiredIf:
			_, present := lookup(doc, bind(r.When, loc))
			return present
		}
	}
	return false
}

// Schema is a declarative rule table for one payload shape.
type Schema struct {
	Name    string
	Root    ValueKind
	Prepare []func(doc interface{})
	Fields  []FieldRule
}

// Result carries the normalized document and identifiers resolved along the way.
type Result struct {
	Document interface{}
	Resolved map[string]int64
}

// ResolvedAt returns the identifier recorded for the field rendered as key.
func (r *Result) ResolvedAt(key string) (int64, bool) {
	id, ok := r.Resolved[key]
	return id, ok
}

// Validator interprets schemas against decoded JSON documents.
type Validator struct {
	leaf  *validator.Validate
	users UserLookup
}

// New constructs a Validator.
func New(leaf *validator.Validate, users UserLookup) *Validator {
	if leaf == nil {
		leaf = validator.New()
	}
	return &Validator{leaf: leaf, users: users}
}

// Validate runs schema against doc using snap for dynamic sets. On success the returned
// document is a sanitized deep copy; doc itself is never modified. Field failures are
// returned as FieldErrors, anything else is an internal error.
func (v *Validator) Validate(ctx context.Context, schema *Schema, doc interface{}, snap *Snapshot) (*Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("validate %s: no reference snapshot", schema.Name)
	}
	if KindOf(doc)&schema.Root == 0 {
		return nil, FieldErrors{"body": fmt.Sprintf("must be %s", articled(schema.Root))}
	}
	if arr, ok := doc.([]interface{}); ok && len(arr) == 0 {
		return nil, FieldErrors{"body": "must not be empty"}
	}

	work := Clone(doc)
	for _, prepare := range schema.Prepare {
		prepare(work)
	}

	c := &Context{ctx: ctx, Snapshot: snap, leaf: v.leaf, users: v.users, resolved: map[string]int64{}}
	errs := FieldErrors{}

	for _, field := range schema.Fields {
		for _, m := range resolve(work, field.Path) {
			key := m.loc.String()
			if _, failed := errs[key]; failed || ancestorFailed(errs, m.loc) {
				continue
			}
			if !m.present {
				if field.required(work, m.loc) {
					errs[key] = "is required"
				}
				continue
			}
			value := m.value
			sanitized := false
			for _, rule := range field.Chain {
				next, err := rule.apply(c, m.loc, value)
				if err != nil {
					fe, ok := isFieldError(err)
					if !ok {
						return nil, fmt.Errorf("validate %s %s: %w", schema.Name, key, err)
					}
					errs[key] = fe.Message
					break
				}
				if rule.Kind == RuleSanitize {
					sanitized = true
				}
				value = next
			}
			if _, failed := errs[key]; !failed && sanitized {
				assign(work, m.loc, value)
			}
		}
	}

	collectUnknown(schema, work, nil, errs)

	if len(errs) > 0 {
		return nil, errs
	}
	return &Result{Document: work, Resolved: c.resolved}, nil
}

func ancestorFailed(errs FieldErrors, loc Location) bool {
	for i := 1; i < len(loc); i++ {
		if _, failed := errs[loc[:i].String()]; failed {
			return true
		}
	}
	return false
}

// collectUnknown reports every key that no field pattern declares. Declared leaves are not
// descended into.
func collectUnknown(schema *Schema, node interface{}, loc Location, errs FieldErrors) {
	visit := func(childLoc Location, child interface{}) {
		declared, ancestor := classify(schema, childLoc)
		switch {
		case ancestor:
			collectUnknown(schema, child, childLoc, errs)
		case declared:
		default:
			key := childLoc.String()
			if _, exists := errs[key]; !exists {
				errs[key] = fmt.Sprintf("unknown field %q with value %s", key, describe(child))
			}
		}
	}
	switch val := node.(type) {
	case map[string]interface{}:
		for _, k := range sortedKeys(val) {
			visit(loc.child(Elem{Key: k}), val[k])
		}
	case []interface{}:
		for i, item := range val {
			visit(loc.child(Elem{Index: i, IsIndex: true}), item)
		}
	}
}

func classify(schema *Schema, loc Location) (declared, ancestor bool) {
	for _, f := range schema.Fields {
		if f.Path.Matches(loc) {
			declared = true
			continue
		}
		if f.Path.Covers(loc) {
			ancestor = true
		}
	}
	return declared, ancestor
}
