package validation

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/store-incident-api/internal/models"
)

const (
	maxUsernameLength = 19
	maxPhoneLength    = 20
	maxShortText      = 100
	maxDetailsLength  = 2000

	isoTimestampTag = "datetime=2006-01-02T15:04:05Z07:00"
)

// Report payload schemas.
var (
	CreateReportSchema = &Schema{
		Name:    "report.create",
		Root:    KindObject,
		Prepare: []func(doc interface{}){collapseEmptyTransaction},
		Fields:  reportFields(""),
	}

	UpdateReportSchema = &Schema{
		Name:    "report.update",
		Root:    KindObject,
		Prepare: []func(doc interface{}){collapseEmptyTransaction},
		Fields:  append(reportFields(""), updateFields()...),
	}

	ImportReportSchema = &Schema{
		Name:    "report.import",
		Root:    KindArray,
		Prepare: []func(doc interface{}){eachElement(collapseEmptyTransaction)},
		Fields: append(
			[]FieldRule{Field("*", Required(), IsType(KindObject))},
			append(reportFields("*."), importFields("*.")...)...,
		),
	}
)

// Set fields are checked for emptiness again after expansion, since a wildcard against an
// empty reference set expands to nothing.
func reportFields(prefix string) []FieldRule {
	p := func(path string) string { return prefix + path }
	return []FieldRule{
		Field(p("assignedTo"), Required(), IsType(KindString), NotEmpty(), MaxLength(maxUsernameLength), Custom("activeUser", resolveActiveUser)),
		Field(p("isOnCall"), Required(), IsType(KindBool)),

		Field(p("call"), Required(), IsType(KindObject)),
		Field(p("call.date"), Required(), IsType(KindString), Custom("callDate", checkCallDate)),
		Field(p("call.time"), Required(), IsType(KindString), Custom("callTime", checkCallTime)),
		Field(p("call.phone"), Required(), IsType(KindString), MaxLength(maxPhoneLength)),
		Field(p("call.status"), Required(), IsType(KindString), OneOfValues(models.CallStatuses...)),

		Field(p("store"), Required(), IsType(KindObject)),
		Field(p("store.numbers"), Required(), IsType(KindArray), NotEmpty(), EachOneOf(SetStoreNumbers), ExpandSet(SetStoreNumbers), NotEmpty()),
		Field(p("store.employee"), Required(), IsType(KindObject)),
		Field(p("store.employee.name"), Required(), IsType(KindString), MaxLength(maxShortText)),
		Field(p("store.employee.isStoreManager"), Required(), IsType(KindBool)),
		Field(p("store.districtManager"), IsType(KindObject)),
		Field(p("store.districtManager.isContacted"), IsType(KindBool)),

		Field(p("incident"), Required(), IsType(KindObject)),
		Field(p("incident.title"), Required(), IsType(KindString), NotEmpty(), MaxLength(maxShortText)),
		Field(p("incident.types"), Required(), IsType(KindArray), NotEmpty(), EachOneOf(SetIncidentTypes), ExpandSet(SetIncidentTypes), NotEmpty()),
		Field(p("incident.pos"), Required(), IsType(KindString|KindNull), NullableOneOfValues(models.POSValues...)),
		Field(p("incident.isProcedural"), Required(), IsType(KindBool)),
		Field(p("incident.error"), Required(), IsType(KindString), MaxLength(maxShortText)),
		Field(p("incident.details"), Required(), IsType(KindString), NotEmpty(), MaxLength(maxDetailsLength)),
		Field(p("incident.hasVarianceReport"), Required(), IsType(KindBool)),
		Field(p("incident.transaction"), IsType(KindObject)),
		Field(p("incident.transaction.types"), IsType(KindArray), NotEmpty(), EachOneOf(SetIncidentTransactionTypes), ExpandSet(SetIncidentTransactionTypes), NotEmpty()),
		Field(p("incident.transaction.number"), RequiredIf(p("incident.transaction.types")), IsType(KindString), MaxLength(maxShortText)),
		Field(p("incident.transaction.hasVarianceReport"), IsType(KindBool)),
	}
}

// updateFields covers the flags an update must restate plus the read-only fields a client
// may echo back from a previous read; the latter are accepted and ignored.
func updateFields() []FieldRule {
	return []FieldRule{
		Field("id", Required(), IsType(KindInteger)),
		Field("isDeleted", Required(), IsType(KindBool)),
		Field("isWebhookSent", Required(), IsType(KindBool)),
		Field("hasTriggeredWebhook", Required(), IsType(KindBool)),

		Field("uuid", IsType(KindString)),
		Field("version", IsType(KindString)),
		Field("createdAt", IsType(KindString)),
		Field("updatedAt", IsType(KindString)),
		Field("createdBy", IsType(KindInteger|KindNull)),
		Field("updatedBy", IsType(KindInteger|KindNull)),
		Field("call.dateTime", IsType(KindString)),
	}
}

func importFields(prefix string) []FieldRule {
	p := func(path string) string { return prefix + path }
	return []FieldRule{
		Field(p("createdAt"), Required(), IsType(KindString), Custom("iso8601", checkTimestamp)),
		Field(p("updatedAt"), Required(), IsType(KindString), Custom("iso8601", checkTimestamp)),
		Field(p("createdBy"), IsType(KindString|KindNull), MaxLength(maxUsernameLength)),
		Field(p("updatedBy"), IsType(KindString|KindNull), MaxLength(maxUsernameLength)),
		Field(p("isDeleted"), IsType(KindBool)),
		Field(p("isWebhookSent"), IsType(KindBool)),
		Field(p("hasTriggeredWebhook"), IsType(KindBool)),
	}
}

func resolveActiveUser(c *Context, loc Location, value interface{}) error {
	username, _ := value.(string)
	if c.Users() == nil {
		return fmt.Errorf("resolve %s: no user lookup configured", loc)
	}
	user, err := c.Users().FindActiveByUsername(c.Context(), username)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && user == nil) {
		return Fail("user %q does not exist or is inactive", username)
	}
	if err != nil {
		return fmt.Errorf("resolve %s: %w", loc, err)
	}
	c.Resolve(loc, user.ID)
	return nil
}

func checkCallDate(_ *Context, _ Location, value interface{}) error {
	s, _ := value.(string)
	if _, err := ParseCallDate(s); err != nil {
		return Fail("must be a date formatted MM/DD/YYYY or YYYY-MM-DD")
	}
	return nil
}

func checkCallTime(_ *Context, _ Location, value interface{}) error {
	s, _ := value.(string)
	if _, err := ParseCallTime(s); err != nil {
		return Fail("must be a time formatted hh:mm[:ss] AM/PM or HH:mm[:ss]")
	}
	return nil
}

func checkTimestamp(c *Context, _ Location, value interface{}) error {
	s, _ := value.(string)
	if err := c.Leaf().Var(s, isoTimestampTag); err != nil {
		return Fail("must be an ISO-8601 timestamp")
	}
	return nil
}

// collapseEmptyTransaction rewrites the legacy {type: [""]} / {types: [""]} placeholder
// to an empty transaction object.
func collapseEmptyTransaction(doc interface{}) {
	root, ok := doc.(map[string]interface{})
	if !ok {
		return
	}
	incident, ok := root["incident"].(map[string]interface{})
	if !ok {
		return
	}
	tx, ok := incident["transaction"].(map[string]interface{})
	if !ok || len(tx) != 1 {
		return
	}
	for _, key := range []string{"type", "types"} {
		values, ok := tx[key].([]interface{})
		if !ok || len(values) != 1 {
			continue
		}
		if s, ok := values[0].(string); ok && s == "" {
			incident["transaction"] = map[string]interface{}{}
			return
		}
	}
}

func eachElement(fn func(doc interface{})) func(doc interface{}) {
	return func(doc interface{}) {
		items, ok := doc.([]interface{})
		if !ok {
			return
		}
		for _, item := range items {
			fn(item)
		}
	}
}
