package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// CallStatus enumerates the allowed values of call.status.
type CallStatus string

const (
	CallStatusCompleted  CallStatus = "Completed"
	CallStatusInProgress CallStatus = "In Progress"
)

// CallStatuses lists every accepted call status.
var CallStatuses = []string{string(CallStatusCompleted), string(CallStatusInProgress)}

// POSValues lists the accepted non-null incident.pos values.
var POSValues = []string{"1", "2", "3"}

// Report is the canonical persisted incident report. ID is the internal key used for joins
// and is never serialised.
type Report struct {
	ID                  int64          `json:"-"`
	UUID                string         `json:"uuid"`
	Version             string         `json:"version"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
	CreatedBy           *int64         `json:"createdBy"`
	UpdatedBy           *int64         `json:"updatedBy"`
	AssignedTo          *int64         `json:"assignedTo"`
	IsOnCall            bool           `json:"isOnCall"`
	IsDeleted           bool           `json:"isDeleted"`
	IsWebhookSent       bool           `json:"isWebhookSent"`
	HasTriggeredWebhook bool           `json:"hasTriggeredWebhook"`
	Call                ReportCall     `json:"call"`
	Store               ReportStore    `json:"store"`
	Incident            ReportIncident `json:"incident"`
}

// ReportCall groups the phone call attributes.
type ReportCall struct {
	Date     string    `json:"date"`
	Time     string    `json:"time"`
	DateTime time.Time `json:"dateTime"`
	Phone    string    `json:"phone"`
	Status   string    `json:"status"`
}

// ReportStore groups the store attributes.
type ReportStore struct {
	Numbers         []string              `json:"numbers"`
	Employee        ReportEmployee        `json:"employee"`
	DistrictManager ReportDistrictManager `json:"districtManager"`
}

// ReportEmployee describes the store employee who called.
type ReportEmployee struct {
	Name           string `json:"name"`
	IsStoreManager bool   `json:"isStoreManager"`
}

// ReportDistrictManager tracks whether the district manager was contacted.
type ReportDistrictManager struct {
	IsContacted bool `json:"isContacted"`
}

// ReportIncident groups the incident attributes.
type ReportIncident struct {
	Title             string              `json:"title"`
	Types             []string            `json:"types"`
	POS               *string             `json:"pos"`
	IsProcedural      bool                `json:"isProcedural"`
	Error             string              `json:"error"`
	Transaction       IncidentTransaction `json:"transaction"`
	Details           string              `json:"details"`
	HasVarianceReport bool                `json:"hasVarianceReport"`
}

// TransactionState discriminates an empty transaction from a populated one.
type TransactionState int

const (
	TransactionEmpty TransactionState = iota
	TransactionPresent
)

// IncidentTransaction is either Empty (encoded as {}) or Present with a non-empty type set.
type IncidentTransaction struct {
	State             TransactionState
	Types             []string
	Number            string
	HasVarianceReport bool
}

type transactionDocument struct {
	Types             []string `json:"types"`
	Number            string   `json:"number"`
	HasVarianceReport bool     `json:"hasVarianceReport"`
}

// EmptyTransaction returns the empty transaction state.
func EmptyTransaction() IncidentTransaction {
	return IncidentTransaction{State: TransactionEmpty}
}

// PresentTransaction returns a populated transaction, or Empty when types is empty.
func PresentTransaction(types []string, number string, hasVarianceReport bool) IncidentTransaction {
	if len(types) == 0 {
		return EmptyTransaction()
	}
	return IncidentTransaction{
		State:             TransactionPresent,
		Types:             types,
		Number:            number,
		HasVarianceReport: hasVarianceReport,
	}
}

// IsEmpty reports whether no transaction types are attached.
func (t IncidentTransaction) IsEmpty() bool {
	return t.State == TransactionEmpty
}

// MarshalJSON encodes Empty as {}.
func (t IncidentTransaction) MarshalJSON() ([]byte, error) {
	if t.IsEmpty() {
		return []byte("{}"), nil
	}
	return json.Marshal(transactionDocument{
		Types:             t.Types,
		Number:            t.Number,
		HasVarianceReport: t.HasVarianceReport,
	})
}

// UnmarshalJSON decodes {} (or null, or a document without types) as Empty.
func (t *IncidentTransaction) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = EmptyTransaction()
		return nil
	}
	var doc transactionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*t = PresentTransaction(doc.Types, doc.Number, doc.HasVarianceReport)
	return nil
}

// ReportList partitions reports by soft-delete state.
type ReportList struct {
	Active  []Report `json:"active"`
	Deleted []Report `json:"deleted"`
}
