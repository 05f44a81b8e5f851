package validation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/store-incident-api/internal/dto"
	"github.com/noah-isme/store-incident-api/internal/models"
)

type reportDocument struct {
	AssignedTo          string  `json:"assignedTo"`
	IsOnCall            bool    `json:"isOnCall"`
	IsDeleted           bool    `json:"isDeleted"`
	IsWebhookSent       bool    `json:"isWebhookSent"`
	HasTriggeredWebhook bool    `json:"hasTriggeredWebhook"`
	CreatedAt           *string `json:"createdAt"`
	UpdatedAt           *string `json:"updatedAt"`
	CreatedBy           *string `json:"createdBy"`
	UpdatedBy           *string `json:"updatedBy"`
	Call                struct {
		Date   string `json:"date"`
		Time   string `json:"time"`
		Phone  string `json:"phone"`
		Status string `json:"status"`
	} `json:"call"`
	Store    models.ReportStore `json:"store"`
	Incident struct {
		Title             string               `json:"title"`
		Types             []string             `json:"types"`
		POS               *string              `json:"pos"`
		IsProcedural      bool                 `json:"isProcedural"`
		Error             string               `json:"error"`
		Details           string               `json:"details"`
		HasVarianceReport bool                 `json:"hasVarianceReport"`
		Transaction       *transactionDocument `json:"transaction"`
	} `json:"incident"`
}

type transactionDocument struct {
	Types             []string `json:"types"`
	Number            string   `json:"number"`
	HasVarianceReport *bool    `json:"hasVarianceReport"`
}

// readOnlyKeys may be echoed back on update; the stored report owns them.
var readOnlyKeys = []string{"createdAt", "updatedAt", "createdBy", "updatedBy"}

// DecodeReport converts the normalized document of a create or update into a ReportInput.
func DecodeReport(res *Result) (dto.ReportInput, error) {
	doc, ok := Clone(res.Document).(map[string]interface{})
	if !ok {
		return dto.ReportInput{}, fmt.Errorf("decode report document: not an object")
	}
	for _, key := range readOnlyKeys {
		delete(doc, key)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return dto.ReportInput{}, fmt.Errorf("encode report document: %w", err)
	}
	var parsed reportDocument
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return dto.ReportInput{}, fmt.Errorf("decode report document: %w", err)
	}
	in, err := parsed.input()
	if err != nil {
		return dto.ReportInput{}, err
	}
	in.AssignedToID, _ = res.ResolvedAt("assignedTo")
	return in, nil
}

// DecodeImport converts a normalized import array into ReportInputs, in submission order.
func DecodeImport(res *Result) ([]dto.ReportInput, error) {
	raw, err := json.Marshal(res.Document)
	if err != nil {
		return nil, fmt.Errorf("encode import document: %w", err)
	}
	var docs []reportDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode import document: %w", err)
	}
	out := make([]dto.ReportInput, 0, len(docs))
	for i, doc := range docs {
		in, err := doc.input()
		if err != nil {
			return nil, fmt.Errorf("import element %d: %w", i, err)
		}
		in.AssignedToID, _ = res.ResolvedAt(fmt.Sprintf("[%d].assignedTo", i))
		out = append(out, in)
	}
	return out, nil
}

func (d reportDocument) input() (dto.ReportInput, error) {
	in := dto.ReportInput{
		AssignedTo:          d.AssignedTo,
		IsOnCall:            d.IsOnCall,
		IsDeleted:           d.IsDeleted,
		IsWebhookSent:       d.IsWebhookSent,
		HasTriggeredWebhook: d.HasTriggeredWebhook,
		CreatedBy:           d.CreatedBy,
		UpdatedBy:           d.UpdatedBy,
		Call: dto.CallInput{
			Date:   d.Call.Date,
			Time:   d.Call.Time,
			Phone:  d.Call.Phone,
			Status: d.Call.Status,
		},
		Store: d.Store,
		Incident: models.ReportIncident{
			Title:             d.Incident.Title,
			Types:             d.Incident.Types,
			POS:               d.Incident.POS,
			IsProcedural:      d.Incident.IsProcedural,
			Error:             d.Incident.Error,
			Details:           d.Incident.Details,
			HasVarianceReport: d.Incident.HasVarianceReport,
			Transaction:       models.EmptyTransaction(),
		},
	}
	if tx := d.Incident.Transaction; tx != nil {
		hasVariance := d.Incident.HasVarianceReport
		if tx.HasVarianceReport != nil {
			hasVariance = *tx.HasVarianceReport
		}
		in.Incident.Transaction = models.PresentTransaction(tx.Types, tx.Number, hasVariance)
	}
	var err error
	if in.CreatedAt, err = parseTimestamp(d.CreatedAt); err != nil {
		return in, fmt.Errorf("parse createdAt: %w", err)
	}
	if in.UpdatedAt, err = parseTimestamp(d.UpdatedAt); err != nil {
		return in, fmt.Errorf("parse updatedAt: %w", err)
	}
	return in, nil
}

func parseTimestamp(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
