package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SegmentKind distinguishes literal keys from wildcard segments.
type SegmentKind int

const (
	// SegmentKey matches one object key.
	SegmentKey SegmentKind = iota
	// SegmentAnyIndex ("*") matches every element of an array.
	SegmentAnyIndex
	// SegmentAnyDepth ("**") matches zero or more nested object keys.
	SegmentAnyDepth
)

// Segment is one element of a field path pattern.
type Segment struct {
	Kind SegmentKind
	Key  string
}

// Path is a field path pattern such as "incident.transaction.types" or "*.call.date".
type Path []Segment

// MustPath parses a dotted path pattern and panics on malformed input. Schemas are
// declared at package init, so a bad pattern is a programming error.
func MustPath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePath parses a dotted path pattern.
func ParsePath(raw string) (Path, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty field path")
	}
	parts := strings.Split(raw, ".")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "":
			return nil, fmt.Errorf("field path %q has an empty segment", raw)
		case "*":
			path = append(path, Segment{Kind: SegmentAnyIndex})
		case "**":
			path = append(path, Segment{Kind: SegmentAnyDepth})
		default:
			path = append(path, Segment{Kind: SegmentKey, Key: part})
		}
	}
	return path, nil
}

// String renders the pattern back to its dotted form.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		switch seg.Kind {
		case SegmentAnyIndex:
			parts[i] = "*"
		case SegmentAnyDepth:
			parts[i] = "**"
		default:
			parts[i] = seg.Key
		}
	}
	return strings.Join(parts, ".")
}

// Elem is one step of a concrete location: either an object key or an array index.
type Elem struct {
	Key     string
	Index   int
	IsIndex bool
}

// Location is a concrete, resolved position inside a document.
type Location []Elem

// String renders a location as used in error maps, e.g. "[2].store.numbers".
func (l Location) String() string {
	var b strings.Builder
	for i, e := range l {
		if e.IsIndex {
			b.WriteString("[")
			b.WriteString(strconv.Itoa(e.Index))
			b.WriteString("]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(e.Key)
	}
	return b.String()
}

func (l Location) child(e Elem) Location {
	next := make(Location, len(l), len(l)+1)
	copy(next, l)
	return append(next, e)
}

func (l Location) join(tail Location) Location {
	next := make(Location, 0, len(l)+len(tail))
	next = append(next, l...)
	return append(next, tail...)
}

// match describes one resolution of a pattern against a document.
type match struct {
	loc     Location
	value   interface{}
	present bool
}

// resolve expands a pattern into concrete locations. Literal keys that are missing still
// yield a location (present=false) so required rules can report them; wildcard segments
// only expand over what exists.
func resolve(doc interface{}, p Path) []match {
	var out []match
	var walk func(node interface{}, nodePresent bool, rest Path, loc Location)
	walk = func(node interface{}, nodePresent bool, rest Path, loc Location) {
		if len(rest) == 0 {
			out = append(out, match{loc: loc, value: node, present: nodePresent})
			return
		}
		seg := rest[0]
		switch seg.Kind {
		case SegmentKey:
			obj, ok := node.(map[string]interface{})
			if !nodePresent || !ok {
				walk(nil, false, rest[1:], loc.child(Elem{Key: seg.Key}))
				return
			}
			child, exists := obj[seg.Key]
			walk(child, exists, rest[1:], loc.child(Elem{Key: seg.Key}))
		case SegmentAnyIndex:
			arr, ok := node.([]interface{})
			if !nodePresent || !ok {
				return
			}
			for i, item := range arr {
				walk(item, true, rest[1:], loc.child(Elem{Index: i, IsIndex: true}))
			}
		case SegmentAnyDepth:
			if !nodePresent {
				return
			}
			// zero keys consumed: keep only what actually exists below this node
			for _, m := range resolve(node, rest[1:]) {
				if m.present {
					out = append(out, match{loc: loc.join(m.loc), value: m.value, present: true})
				}
			}
			obj, ok := node.(map[string]interface{})
			if !ok {
				return
			}
			for _, key := range sortedKeys(obj) {
				walk(obj[key], true, rest, loc.child(Elem{Key: key}))
			}
		}
	}
	walk(doc, true, p, nil)
	return out
}

// Matches reports whether a concrete location is covered by the pattern.
func (p Path) Matches(loc Location) bool {
	return matchFrom(p, loc, false)
}

// Covers reports whether loc is the pattern itself or one of its ancestors.
func (p Path) Covers(loc Location) bool {
	return matchFrom(p, loc, true)
}

func matchFrom(p Path, loc Location, prefix bool) bool {
	if len(loc) == 0 {
		return len(p) == 0 || prefix
	}
	if len(p) == 0 {
		return false
	}
	seg, elem := p[0], loc[0]
	switch seg.Kind {
	case SegmentKey:
		if elem.IsIndex || elem.Key != seg.Key {
			return false
		}
		return matchFrom(p[1:], loc[1:], prefix)
	case SegmentAnyIndex:
		if !elem.IsIndex {
			return false
		}
		return matchFrom(p[1:], loc[1:], prefix)
	case SegmentAnyDepth:
		if matchFrom(p[1:], loc, prefix) {
			return true
		}
		if elem.IsIndex {
			return false
		}
		return matchFrom(p, loc[1:], prefix)
	}
	return false
}

// bind substitutes the array indices of loc into the wildcard segments of p, producing the
// concrete sibling location used by conditional rules.
func bind(p Path, loc Location) Path {
	out := make(Path, len(p))
	copy(out, p)
	for i := range out {
		if out[i].Kind != SegmentAnyIndex || i >= len(loc) || !loc[i].IsIndex {
			continue
		}
		out[i] = Segment{Kind: SegmentKey, Key: "[" + strconv.Itoa(loc[i].Index) + "]"}
	}
	return out
}

// lookup reads the value at a bound path; "[n]" keys index arrays.
func lookup(doc interface{}, p Path) (interface{}, bool) {
	node := doc
	for _, seg := range p {
		if seg.Kind != SegmentKey {
			return nil, false
		}
		if strings.HasPrefix(seg.Key, "[") && strings.HasSuffix(seg.Key, "]") {
			idx, err := strconv.Atoi(seg.Key[1 : len(seg.Key)-1])
			arr, ok := node.([]interface{})
			if err != nil || !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			node = arr[idx]
			continue
		}
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		child, exists := obj[seg.Key]
		if !exists {
			return nil, false
		}
		node = child
	}
	return node, true
}

// assign writes value at loc, creating nothing: the parent must already exist.
func assign(doc interface{}, loc Location, value interface{}) bool {
	if len(loc) == 0 {
		return false
	}
	node := doc
	for _, e := range loc[:len(loc)-1] {
		next, ok := step(node, e)
		if !ok {
			return false
		}
		node = next
	}
	last := loc[len(loc)-1]
	if last.IsIndex {
		arr, ok := node.([]interface{})
		if !ok || last.Index >= len(arr) {
			return false
		}
		arr[last.Index] = value
		return true
	}
	obj, ok := node.(map[string]interface{})
	if !ok {
		return false
	}
	obj[last.Key] = value
	return true
}

func step(node interface{}, e Elem) (interface{}, bool) {
	if e.IsIndex {
		arr, ok := node.([]interface{})
		if !ok || e.Index >= len(arr) {
			return nil, false
		}
		return arr[e.Index], true
	}
	obj, ok := node.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, exists := obj[e.Key]
	return v, exists
}

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
