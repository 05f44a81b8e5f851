package validation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/store-incident-api/internal/models"
)

type stubUsers struct {
	users map[string]int64
	err   error
}

func (s stubUsers) FindActiveByUsername(ctx context.Context, username string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	id, ok := s.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.User{ID: id, Username: username, IsActive: true}, nil
}

func testSnapshot() *Snapshot {
	return NewSnapshot(
		[]string{"101", "102", "103"},
		[]string{"Other", "Bug", "Audio", "Network"},
		[]string{"Refund", "Void", "Sale"},
		[]string{"Dana Price"},
		[]string{"william.evora", "robert.tam"},
		time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	)
}

func testValidator() *Validator {
	return New(nil, stubUsers{users: map[string]int64{"william.evora": 7, "robert.tam": 9}})
}

const validReport = `{
	"assignedTo": "william.evora",
	"isOnCall": false,
	"call": {"date": "05/01/2024", "time": "10:15 am", "phone": "555-0100", "status": "Completed"},
	"store": {
		"numbers": ["101"],
		"employee": {"name": "Pat", "isStoreManager": true},
		"districtManager": {"isContacted": false}
	},
	"incident": {
		"title": "Register frozen",
		"types": ["Bug"],
		"pos": "1",
		"isProcedural": false,
		"error": "E42",
		"transaction": {},
		"details": "Register 1 froze mid sale",
		"hasVarianceReport": false
	}
}`

func decodeDoc(t *testing.T, raw string) interface{} {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	require.NoError(t, dec.Decode(&doc))
	return doc
}

func reportDoc(t *testing.T, mutate func(doc map[string]interface{})) map[string]interface{} {
	t.Helper()
	doc := decodeDoc(t, validReport).(map[string]interface{})
	if mutate != nil {
		mutate(doc)
	}
	return doc
}

func section(doc map[string]interface{}, key string) map[string]interface{} {
	return doc[key].(map[string]interface{})
}

func fieldErrors(t *testing.T, err error) FieldErrors {
	t.Helper()
	var fe FieldErrors
	require.True(t, errors.As(err, &fe), "expected field errors, got %v", err)
	return fe
}

func TestCreateSchemaAcceptsValidReport(t *testing.T) {
	res, err := testValidator().Validate(context.Background(), CreateReportSchema, reportDoc(t, nil), testSnapshot())
	require.NoError(t, err)

	id, ok := res.ResolvedAt("assignedTo")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	in, err := DecodeReport(res)
	require.NoError(t, err)
	assert.Equal(t, "william.evora", in.AssignedTo)
	assert.Equal(t, int64(7), in.AssignedToID)
	assert.Equal(t, []string{"101"}, in.Store.Numbers)
	assert.True(t, in.Incident.Transaction.IsEmpty())
	require.NotNil(t, in.Incident.POS)
	assert.Equal(t, "1", *in.Incident.POS)
}

func TestWildcardExpansionIsIdempotent(t *testing.T) {
	v := testValidator()
	snap := testSnapshot()
	doc := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "store")["numbers"] = []interface{}{"*"}
	})

	first, err := v.Validate(context.Background(), CreateReportSchema, doc, snap)
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), CreateReportSchema, doc, snap)
	require.NoError(t, err)

	a, err := DecodeReport(first)
	require.NoError(t, err)
	b, err := DecodeReport(second)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102", "103"}, a.Store.Numbers)
	assert.Equal(t, a.Store.Numbers, b.Store.Numbers)
	assert.NotContains(t, a.Store.Numbers, Wildcard)

	// the caller's document is left untouched
	assert.Equal(t, []interface{}{"*"}, section(doc, "store")["numbers"])
}

func TestSetsAreDeduplicatedInFirstOccurrenceOrder(t *testing.T) {
	doc := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "store")["numbers"] = []interface{}{"103", "101", "103", "101"}
		incident := section(doc, "incident")
		incident["types"] = []interface{}{"Other", "Bug", "Other", "*"}
		incident["transaction"] = map[string]interface{}{
			"types":  []interface{}{"Void", "Void", "Refund"},
			"number": "T-100",
		}
	})

	res, err := testValidator().Validate(context.Background(), CreateReportSchema, doc, testSnapshot())
	require.NoError(t, err)
	in, err := DecodeReport(res)
	require.NoError(t, err)

	assert.Equal(t, []string{"103", "101"}, in.Store.Numbers)
	assert.Equal(t, []string{"Other", "Bug", "Audio", "Network"}, in.Incident.Types)
	assert.Equal(t, []string{"Void", "Refund"}, in.Incident.Transaction.Types)
}

func TestWildcardExpandsIncidentTypesWithOtherLast(t *testing.T) {
	doc := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "incident")["types"] = []interface{}{"*"}
	})
	res, err := testValidator().Validate(context.Background(), CreateReportSchema, doc, testSnapshot())
	require.NoError(t, err)
	in, err := DecodeReport(res)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bug", "Audio", "Network", "Other"}, in.Incident.Types)
}

func TestWildcardAgainstEmptyReferenceSetIsRejected(t *testing.T) {
	snap := NewSnapshot(
		nil,
		[]string{"Other", "Bug"},
		nil,
		nil,
		[]string{"william.evora"},
		time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	)
	doc := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "store")["numbers"] = []interface{}{"*"}
		section(doc, "incident")["transaction"] = map[string]interface{}{
			"types":  []interface{}{"*"},
			"number": "T-1",
		}
	})

	_, err := testValidator().Validate(context.Background(), CreateReportSchema, doc, snap)
	fe := fieldErrors(t, err)
	assert.Equal(t, "must not be empty", fe["store.numbers"])
	assert.Equal(t, "must not be empty", fe["incident.transaction.types"])
}

func TestEmptyTransactionCollapses(t *testing.T) {
	cases := map[string]func(doc map[string]interface{}){
		"legacy type sentinel": func(doc map[string]interface{}) {
			section(doc, "incident")["transaction"] = map[string]interface{}{"type": []interface{}{""}}
		},
		"types sentinel": func(doc map[string]interface{}) {
			section(doc, "incident")["transaction"] = map[string]interface{}{"types": []interface{}{""}}
		},
		"absent": func(doc map[string]interface{}) {
			delete(section(doc, "incident"), "transaction")
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := testValidator().Validate(context.Background(), CreateReportSchema, reportDoc(t, mutate), testSnapshot())
			require.NoError(t, err)
			in, err := DecodeReport(res)
			require.NoError(t, err)
			assert.True(t, in.Incident.Transaction.IsEmpty())

			raw, err := json.Marshal(in.Incident.Transaction)
			require.NoError(t, err)
			assert.JSONEq(t, `{}`, string(raw))
		})
	}
}

func TestTransactionNumberRequiredOnlyWithTypes(t *testing.T) {
	v := testValidator()

	withTypes := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "incident")["transaction"] = map[string]interface{}{"types": []interface{}{"Sale"}}
	})
	_, err := v.Validate(context.Background(), CreateReportSchema, withTypes, testSnapshot())
	fe := fieldErrors(t, err)
	assert.Equal(t, "is required", fe["incident.transaction.number"])
	assert.Len(t, fe, 1)

	withoutTypes := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "incident")["transaction"] = map[string]interface{}{}
	})
	_, err = v.Validate(context.Background(), CreateReportSchema, withoutTypes, testSnapshot())
	assert.NoError(t, err)
}

func TestTransactionVarianceMirrorsIncident(t *testing.T) {
	doc := reportDoc(t, func(doc map[string]interface{}) {
		incident := section(doc, "incident")
		incident["hasVarianceReport"] = true
		incident["transaction"] = map[string]interface{}{"types": []interface{}{"Sale"}, "number": "42"}
	})
	res, err := testValidator().Validate(context.Background(), CreateReportSchema, doc, testSnapshot())
	require.NoError(t, err)
	in, err := DecodeReport(res)
	require.NoError(t, err)
	assert.True(t, in.Incident.Transaction.HasVarianceReport)
	assert.Equal(t, "42", in.Incident.Transaction.Number)
}

func TestCreateSchemaCollectsAllFieldErrors(t *testing.T) {
	doc := reportDoc(t, func(doc map[string]interface{}) {
		doc["isOnCall"] = "yes"
		doc["assignedTo"] = "ghost"
		doc["extra"] = json.Number("5")
		call := section(doc, "call")
		call["date"] = "2024/13/45"
		call["time"] = "25:99"
		call["status"] = "Pending"
		call["phone"] = strings.Repeat("5", 21)
		delete(doc, "store")
		incident := section(doc, "incident")
		incident["types"] = []interface{}{}
		incident["pos"] = "4"
		incident["details"] = "   "
		incident["title"] = strings.Repeat("t", 101)
	})

	_, err := testValidator().Validate(context.Background(), CreateReportSchema, doc, testSnapshot())
	fe := fieldErrors(t, err)

	assert.Equal(t, "must be a boolean", fe["isOnCall"])
	assert.Contains(t, fe["assignedTo"], "does not exist or is inactive")
	assert.Contains(t, fe["extra"], `unknown field "extra"`)
	assert.Contains(t, fe["extra"], "5")
	assert.Contains(t, fe["call.date"], "MM/DD/YYYY")
	assert.Contains(t, fe["call.time"], "hh:mm")
	assert.Contains(t, fe["call.status"], "Completed, In Progress")
	assert.Equal(t, "must be at most 20 characters", fe["call.phone"])
	assert.Equal(t, "is required", fe["store"])
	assert.NotContains(t, fe, "store.numbers")
	assert.Equal(t, "must not be empty", fe["incident.types"])
	assert.Contains(t, fe["incident.pos"], "must be one of")
	assert.Equal(t, "must not be empty", fe["incident.details"])
	assert.Equal(t, "must be at most 100 characters", fe["incident.title"])
}

func TestCreateSchemaRejectsUnknownSetValues(t *testing.T) {
	doc := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "store")["numbers"] = []interface{}{"101", "999"}
		section(doc, "incident")["transaction"] = map[string]interface{}{
			"types":  []interface{}{"Chargeback"},
			"number": "1",
		}
	})
	_, err := testValidator().Validate(context.Background(), CreateReportSchema, doc, testSnapshot())
	fe := fieldErrors(t, err)
	assert.Equal(t, `contains invalid value "999"`, fe["store.numbers"])
	assert.Equal(t, `contains invalid value "Chargeback"`, fe["incident.transaction.types"])
}

func TestNullPOSIsAccepted(t *testing.T) {
	doc := reportDoc(t, func(doc map[string]interface{}) {
		section(doc, "incident")["pos"] = nil
	})
	res, err := testValidator().Validate(context.Background(), CreateReportSchema, doc, testSnapshot())
	require.NoError(t, err)
	in, err := DecodeReport(res)
	require.NoError(t, err)
	assert.Nil(t, in.Incident.POS)
}

func TestUserLookupFailureIsInternal(t *testing.T) {
	v := New(nil, stubUsers{err: errors.New("connection reset")})
	_, err := v.Validate(context.Background(), CreateReportSchema, reportDoc(t, nil), testSnapshot())
	require.Error(t, err)
	var fe FieldErrors
	assert.False(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUpdateSchemaRequiresIDAndFlags(t *testing.T) {
	v := testValidator()

	_, err := v.Validate(context.Background(), UpdateReportSchema, reportDoc(t, nil), testSnapshot())
	fe := fieldErrors(t, err)
	for _, key := range []string{"id", "isDeleted", "isWebhookSent", "hasTriggeredWebhook"} {
		assert.Equal(t, "is required", fe[key], key)
	}

	doc := reportDoc(t, func(doc map[string]interface{}) {
		doc["id"] = json.Number("1.5")
		doc["isDeleted"] = false
		doc["isWebhookSent"] = true
		doc["hasTriggeredWebhook"] = true
	})
	_, err = v.Validate(context.Background(), UpdateReportSchema, doc, testSnapshot())
	fe = fieldErrors(t, err)
	assert.Equal(t, "must be an integer", fe["id"])

	doc["id"] = json.Number("12")
	doc["uuid"] = "3b0c7d1e-7a8f-4d0e-9c1a-2f4b5c6d7e8f"
	doc["createdBy"] = json.Number("3")
	section(doc, "call")["dateTime"] = "2024-05-01T10:15:00-04:00"
	res, err := v.Validate(context.Background(), UpdateReportSchema, doc, testSnapshot())
	require.NoError(t, err)
	in, err := DecodeReport(res)
	require.NoError(t, err)
	assert.True(t, in.IsWebhookSent)
	assert.Nil(t, in.CreatedBy)
}

func TestImportSchemaPrefixesErrorsWithIndex(t *testing.T) {
	good := reportDoc(t, func(doc map[string]interface{}) {
		doc["createdAt"] = "2021-03-04T10:00:00Z"
		doc["updatedAt"] = "2021-03-05T10:00:00-05:00"
		doc["createdBy"] = "robert.tam"
		doc["updatedBy"] = nil
	})
	bad := reportDoc(t, func(doc map[string]interface{}) {
		doc["createdAt"] = "yesterday"
		section(doc, "call")["date"] = "31/31/2020"
	})

	v := testValidator()
	_, err := v.Validate(context.Background(), ImportReportSchema, []interface{}{good, bad}, testSnapshot())
	fe := fieldErrors(t, err)
	assert.Equal(t, "must be an ISO-8601 timestamp", fe["[1].createdAt"])
	assert.Equal(t, "is required", fe["[1].updatedAt"])
	assert.Contains(t, fe["[1].call.date"], "MM/DD/YYYY")
	for key := range fe {
		assert.True(t, strings.HasPrefix(key, "[1]"), key)
	}

	res, err := v.Validate(context.Background(), ImportReportSchema, []interface{}{good, good}, testSnapshot())
	require.NoError(t, err)
	inputs, err := DecodeImport(res)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, int64(7), inputs[1].AssignedToID)
	require.NotNil(t, inputs[0].CreatedBy)
	assert.Equal(t, "robert.tam", *inputs[0].CreatedBy)
	assert.Nil(t, inputs[0].UpdatedBy)
	require.NotNil(t, inputs[0].CreatedAt)
	assert.True(t, inputs[0].CreatedAt.Equal(time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)))
}

func TestImportSchemaRejectsNonArrayAndEmptyBodies(t *testing.T) {
	v := testValidator()
	_, err := v.Validate(context.Background(), ImportReportSchema, map[string]interface{}{}, testSnapshot())
	assert.Equal(t, "must be an array", fieldErrors(t, err)["body"])

	_, err = v.Validate(context.Background(), ImportReportSchema, []interface{}{}, testSnapshot())
	assert.Equal(t, "must not be empty", fieldErrors(t, err)["body"])

	_, err = v.Validate(context.Background(), ImportReportSchema, []interface{}{"nope"}, testSnapshot())
	assert.Equal(t, "must be an object", fieldErrors(t, err)["[0]"])
}

func TestValidateWithoutSnapshotFails(t *testing.T) {
	_, err := testValidator().Validate(context.Background(), CreateReportSchema, reportDoc(t, nil), nil)
	require.Error(t, err)
}
