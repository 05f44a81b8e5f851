package validation

import (
	"errors"
	"fmt"
	"strings"
)

// RuleKind tags the variant held by a Rule.
type RuleKind int

const (
	RuleRequired RuleKind = iota
	RuleRequiredIf
	RuleType
	RuleNotEmpty
	RuleMaxLength
	RuleOneOf
	RuleCustom
	RuleSanitize
)

// CheckFunc is a custom predicate. Returning a *FieldError rejects the field; any other
// error aborts validation as an internal failure.
type CheckFunc func(c *Context, loc Location, value interface{}) error

// SanitizeFunc rewrites a value that already passed the preceding rules.
type SanitizeFunc func(c *Context, value interface{}) interface{}

// Rule is one link of a field's chain. Which fields are meaningful depends on Kind.
type Rule struct {
	Kind RuleKind

	Types    ValueKind // RuleType
	Max      int       // RuleMaxLength
	Set      SetRef    // RuleOneOf against a dynamic set
	Values   []string  // RuleOneOf against a static set
	Each     bool      // RuleOneOf applies to every array element
	Wildcard bool      // RuleOneOf accepts the wildcard marker
	Nullable bool      // RuleOneOf accepts null
	When     Path      // RuleRequiredIf sibling that triggers requiredness
	Name     string    // RuleCustom / RuleSanitize label
	Check    CheckFunc
	Sanitize SanitizeFunc
}

// Required rejects a missing field.
func Required() Rule { return Rule{Kind: RuleRequired} }

// RequiredIf makes the field required only while the sibling at path is present.
func RequiredIf(path string) Rule { return Rule{Kind: RuleRequiredIf, When: MustPath(path)} }

// IsType rejects values whose JSON kind is outside kinds.
func IsType(kinds ValueKind) Rule { return Rule{Kind: RuleType, Types: kinds} }

// NotEmpty rejects empty strings (after trimming) and empty arrays.
func NotEmpty() Rule { return Rule{Kind: RuleNotEmpty} }

// MaxLength bounds string length in characters.
func MaxLength(n int) Rule { return Rule{Kind: RuleMaxLength, Max: n} }

// OneOf checks a scalar against a dynamic reference set.
func OneOf(ref SetRef) Rule { return Rule{Kind: RuleOneOf, Set: ref} }

// OneOfValues checks a scalar against a fixed list.
func OneOfValues(values ...string) Rule { return Rule{Kind: RuleOneOf, Values: values} }

// NullableOneOfValues is OneOfValues that also admits null.
func NullableOneOfValues(values ...string) Rule {
	return Rule{Kind: RuleOneOf, Values: values, Nullable: true}
}

// EachOneOf checks every array element against a dynamic set, admitting the wildcard.
func EachOneOf(ref SetRef) Rule { return Rule{Kind: RuleOneOf, Set: ref, Each: true, Wildcard: true} }

// Custom runs an arbitrary predicate.
func Custom(name string, fn CheckFunc) Rule { return Rule{Kind: RuleCustom, Name: name, Check: fn} }

// Sanitize rewrites the value in the normalized document.
func Sanitize(name string, fn SanitizeFunc) Rule {
	return Rule{Kind: RuleSanitize, Name: name, Sanitize: fn}
}

// ExpandSet expands the wildcard against ref and deduplicates.
func ExpandSet(ref SetRef) Rule {
	return Sanitize("expand:"+string(ref), func(c *Context, value interface{}) interface{} {
		values, ok := stringSlice(value)
		if !ok {
			return value
		}
		return toInterfaces(ExpandAndDedupe(values, c.Snapshot.Values(ref)))
	})
}

// FieldError is a rejection of a single field.
type FieldError struct {
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// Fail builds a FieldError.
func Fail(format string, args ...interface{}) error {
	return &FieldError{Message: fmt.Sprintf(format, args...)}
}

// FieldErrors maps a field location to its first failing rule message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// apply evaluates one rule; it returns the (possibly sanitized) value.
func (r Rule) apply(c *Context, loc Location, value interface{}) (interface{}, error) {
	switch r.Kind {
	case RuleRequired, RuleRequiredIf:
		return value, nil
	case RuleType:
		if KindOf(value)&r.Types == 0 {
			return value, Fail("must be %s", articled(r.Types))
		}
	case RuleNotEmpty:
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return value, Fail("must not be empty")
			}
		case []interface{}:
			if len(v) == 0 {
				return value, Fail("must not be empty")
			}
		}
	case RuleMaxLength:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		if err := c.leaf.Var(s, fmt.Sprintf("max=%d", r.Max)); err != nil {
			return value, Fail("must be at most %d characters", r.Max)
		}
	case RuleOneOf:
		return value, r.checkMembership(c, value)
	case RuleCustom:
		if err := r.Check(c, loc, value); err != nil {
			return value, err
		}
	case RuleSanitize:
		return r.Sanitize(c, value), nil
	}
	return value, nil
}

func (r Rule) checkMembership(c *Context, value interface{}) error {
	allowed := r.Values
	contains := func(v string) bool {
		if r.Set != "" {
			return c.Snapshot.Contains(r.Set, v)
		}
		for _, a := range allowed {
			if a == v {
				return true
			}
		}
		return false
	}
	if r.Each {
		arr, ok := value.([]interface{})
		if !ok {
			return Fail("must be an array")
		}
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return Fail("contains a non-string value %s", describe(item))
			}
			if r.Wildcard && s == Wildcard {
				continue
			}
			if !contains(s) {
				return Fail("contains invalid value %q", s)
			}
		}
		return nil
	}
	if value == nil && r.Nullable {
		return nil
	}
	s, ok := value.(string)
	if !ok || !contains(s) {
		if r.Set != "" {
			return Fail("must be a valid %s value", r.Set)
		}
		return Fail("must be one of: %s", strings.Join(allowed, ", "))
	}
	return nil
}

func articled(k ValueKind) string {
	name := k.String()
	switch {
	case name == "":
		return "a valid value"
	case strings.HasPrefix(name, "array"), strings.HasPrefix(name, "integer"), strings.HasPrefix(name, "object"):
		return "an " + name
	case strings.HasPrefix(name, "null"):
		return name
	}
	return "a " + name
}

func isFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
