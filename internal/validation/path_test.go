package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	p, err := ParsePath("*.incident.**.date")
	require.NoError(t, err)
	require.Len(t, p, 4)
	assert.Equal(t, SegmentAnyIndex, p[0].Kind)
	assert.Equal(t, SegmentKey, p[1].Kind)
	assert.Equal(t, SegmentAnyDepth, p[2].Kind)
	assert.Equal(t, "*.incident.**.date", p.String())

	_, err = ParsePath("call..date")
	assert.Error(t, err)
	_, err = ParsePath(" ")
	assert.Error(t, err)
}

func TestResolveReportsMissingLiteralKeys(t *testing.T) {
	doc := map[string]interface{}{"call": map[string]interface{}{"date": "05/01/2024"}}

	matches := resolve(doc, MustPath("call.time"))
	require.Len(t, matches, 1)
	assert.False(t, matches[0].present)
	assert.Equal(t, "call.time", matches[0].loc.String())

	matches = resolve(doc, MustPath("store.numbers"))
	require.Len(t, matches, 1)
	assert.False(t, matches[0].present)
}

func TestResolveWildcards(t *testing.T) {
	doc := []interface{}{
		map[string]interface{}{"call": map[string]interface{}{"date": "a"}},
		map[string]interface{}{"call": map[string]interface{}{"date": "b"}, "incident": map[string]interface{}{"date": "c"}},
	}

	matches := resolve(doc, MustPath("*.call.date"))
	require.Len(t, matches, 2)
	assert.Equal(t, "[0].call.date", matches[0].loc.String())
	assert.Equal(t, "b", matches[1].value)

	matches = resolve(doc, MustPath("*.**.date"))
	var locs []string
	for _, m := range matches {
		assert.True(t, m.present)
		locs = append(locs, m.loc.String())
	}
	assert.ElementsMatch(t, []string{"[0].call.date", "[1].call.date", "[1].incident.date"}, locs)
}

func TestPathMatchesAndCovers(t *testing.T) {
	p := MustPath("*.incident.transaction.types")
	loc := Location{{Index: 3, IsIndex: true}, {Key: "incident"}, {Key: "transaction"}, {Key: "types"}}

	assert.True(t, p.Matches(loc))
	assert.True(t, p.Covers(loc[:2]))
	assert.False(t, p.Matches(loc[:2]))
	assert.False(t, p.Covers(Location{{Key: "incident"}}))

	deep := MustPath("**.date")
	assert.True(t, deep.Matches(Location{{Key: "call"}, {Key: "date"}}))
	assert.True(t, deep.Matches(Location{{Key: "date"}}))
	assert.False(t, deep.Matches(Location{{Key: "call"}, {Key: "time"}}))
}

func TestBindAndLookup(t *testing.T) {
	doc := []interface{}{
		map[string]interface{}{},
		map[string]interface{}{"incident": map[string]interface{}{"transaction": map[string]interface{}{"types": []interface{}{"Sale"}}}},
	}
	loc := Location{{Index: 1, IsIndex: true}, {Key: "incident"}, {Key: "transaction"}, {Key: "number"}}

	bound := bind(MustPath("*.incident.transaction.types"), loc)
	value, ok := lookup(doc, bound)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"Sale"}, value)

	loc[0].Index = 0
	_, ok = lookup(doc, bind(MustPath("*.incident.transaction.types"), loc))
	assert.False(t, ok)
}

func TestAssignDoesNotCreateParents(t *testing.T) {
	doc := map[string]interface{}{"store": map[string]interface{}{"numbers": []interface{}{"*"}}}

	ok := assign(doc, Location{{Key: "store"}, {Key: "numbers"}}, []interface{}{"101"})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"101"}, doc["store"].(map[string]interface{})["numbers"])

	assert.False(t, assign(doc, Location{{Key: "incident"}, {Key: "types"}}, []interface{}{}))
	assert.NotContains(t, doc, "incident")
}
