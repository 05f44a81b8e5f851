// Package legacy reshapes report documents exported by the previous schema into the current
// nested shape accepted by POST /reports/import. The transform is pure and does not validate.
package legacy

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/noah-isme/store-incident-api/internal/validation"
)

// Document is one decoded JSON report.
type Document = map[string]interface{}

type techAlias struct {
	fragment string
	username string
}

// techAliases is checked in order; the first fragment contained in the lowercased display
// name wins.
var techAliases = []techAlias{
	{fragment: "evora", username: "william.evora"},
	{fragment: "nikitaras", username: "vasileios.nikitaras"},
	{fragment: "lariccia", username: "anthony.lariccia"},
	{fragment: "tam", username: "robert.tam"},
	{fragment: "malcolm", username: "carah.malcolm"},
}

var audioTokens = map[string]struct{}{"mib": {}, "audio": {}, "music": {}}

const (
	audioIncidentType = "Audio"
	emptyDetails      = "None"
)

// UsernameFor maps a free-text technician display name to a canonical username. Unknown
// names map to nil.
func UsernameFor(displayName string) *string {
	lowered := strings.ToLower(displayName)
	for _, alias := range techAliases {
		if strings.Contains(lowered, alias.fragment) {
			username := alias.username
			return &username
		}
	}
	return nil
}

// Transform returns a reshaped copy of every document. Elements that are not objects are
// copied through untouched.
func Transform(docs []interface{}) []interface{} {
	out := make([]interface{}, len(docs))
	for i, item := range docs {
		doc, ok := item.(map[string]interface{})
		if !ok {
			out[i] = item
			continue
		}
		out[i] = TransformDocument(doc)
	}
	return out
}

// TransformDocument applies the migration rules to one document. The input is not modified.
func TransformDocument(in Document) Document {
	doc := validation.Clone(in).(Document)

	// 1. identifiers are regenerated downstream
	delete(doc, "id")
	delete(doc, "_id")
	delete(doc, "version")

	// 2. timestamps
	if v, ok := doc["createdDateTime"]; ok {
		doc["createdAt"] = v
		delete(doc, "createdDateTime")
	}
	switch {
	case has(doc, "lastModifiedDateTime"):
		doc["updatedAt"] = doc["lastModifiedDateTime"]
	case has(doc, "lastModified"):
		doc["updatedAt"] = doc["lastModified"]
	case has(doc, "createdAt"):
		doc["updatedAt"] = doc["createdAt"]
	}
	delete(doc, "lastModifiedDateTime")
	delete(doc, "lastModified")

	// 3. authorship
	createdBy := mapAuthor(doc["createdBy"])
	doc["createdBy"] = createdBy
	if v, ok := doc["updatedBy"]; ok && v != nil {
		doc["updatedBy"] = mapAuthor(v)
	} else {
		doc["updatedBy"] = createdBy
	}

	// 4. technician overrides
	tech, _ := doc["tech"].(map[string]interface{})
	if tech != nil {
		if username, ok := tech["username"].(string); ok && username != "" {
			doc["assignedTo"] = username
		}
		if onCall, ok := tech["isOnCall"]; ok && onCall != nil {
			doc["isOnCall"] = onCall
		}
	}

	call, _ := doc["call"].(map[string]interface{})
	store, _ := doc["store"].(map[string]interface{})
	incident, _ := doc["incident"].(map[string]interface{})

	// 5. derived timestamps are recomputed at write time
	if call != nil {
		delete(call, "dateTime")
	}
	if incident != nil {
		for _, key := range []string{"date", "time", "dateTime", "copyTimestamp"} {
			delete(incident, key)
		}
	}

	// 6. store
	if store != nil {
		if number, ok := store["number"]; ok {
			store["numbers"] = wrap(number)
			delete(store, "number")
		}
		delete(store, "districtManager")
	}

	if incident != nil {
		// 7. incident and transaction types
		if kind, ok := incident["type"]; ok {
			incident["types"] = wrap(kind)
			delete(incident, "type")
		}
		tx, _ := incident["transaction"].(map[string]interface{})
		if tx != nil {
			if kind, ok := tx["type"]; ok {
				tx["types"] = wrap(kind)
				delete(tx, "type")
			}
		}

		// 8. content heuristics
		if details, ok := incident["details"].(string); ok {
			if mentionsAudio(details) {
				incident["types"] = appendUnique(incident["types"], audioIncidentType)
			}
			if details == "" {
				incident["details"] = emptyDetails
			}
		}

		// 9. variance report flag
		if tx != nil {
			if v, ok := tx["isIRCreated"]; ok {
				tx["hasVarianceReport"] = v
				delete(tx, "isIRCreated")
			}
		}
	}

	// 10. the technician object only feeds the steps above
	delete(doc, "tech")
	return doc
}

// TransformJSON reads a JSON array of legacy documents from r and writes the transformed
// array to w, indented.
func TransformJSON(r io.Reader, w io.Writer) (int, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var docs []interface{}
	if err := dec.Decode(&docs); err != nil {
		return 0, fmt.Errorf("decode legacy documents: %w", err)
	}
	out := Transform(docs)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 0, fmt.Errorf("encode transformed documents: %w", err)
	}
	return len(out), nil
}

func mapAuthor(v interface{}) interface{} {
	name, ok := v.(string)
	if !ok {
		return nil
	}
	if username := UsernameFor(name); username != nil {
		return *username
	}
	return nil
}

func mentionsAudio(details string) bool {
	for _, token := range strings.Fields(strings.ToLower(details)) {
		if _, ok := audioTokens[token]; ok {
			return true
		}
	}
	return false
}

func wrap(v interface{}) []interface{} {
	if arr, ok := v.([]interface{}); ok {
		return arr
	}
	return []interface{}{v}
}

func appendUnique(v interface{}, value string) []interface{} {
	var items []interface{}
	switch val := v.(type) {
	case []interface{}:
		items = val
	case nil:
	default:
		items = []interface{}{val}
	}
	for _, item := range items {
		if item == value {
			return items
		}
	}
	return append(items, value)
}

func has(doc Document, key string) bool {
	v, ok := doc[key]
	return ok && v != nil
}
