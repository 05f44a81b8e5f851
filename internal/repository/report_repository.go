package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/store-incident-api/internal/dto"
	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/pkg/database"
)

// ErrReportStateUnchanged is returned when a soft-delete toggle finds the report already in
// the requested state.
var ErrReportStateUnchanged = errors.New("report already in requested state")

// reportDocumentQuery renders the canonical client document straight from storage so a
// write's response and a later read share one shape.
const reportDocumentQuery = `
SELECT r.id, json_build_object(
	'uuid', r.uuid,
	'version', r.version,
	'createdAt', r.created_at,
	'updatedAt', r.updated_at,
	'createdBy', r.created_by,
	'updatedBy', r.updated_by,
	'assignedTo', r.assigned_to,
	'isOnCall', r.is_on_call,
	'isDeleted', r.is_deleted,
	'isWebhookSent', r.is_webhook_sent,
	'hasTriggeredWebhook', r.has_triggered_webhook,
	'call', json_build_object(
		'date', r.call_date,
		'time', r.call_time,
		'dateTime', r.call_date_time,
		'phone', r.call_phone,
		'status', r.call_status
	),
	'store', json_build_object(
		'numbers', COALESCE((
			SELECT json_agg(s.number ORDER BY rs.position)
			FROM report_stores rs JOIN stores s ON s.id = rs.store_id
			WHERE rs.report_id = r.id
		), '[]'::json),
		'employee', json_build_object('name', r.employee_name, 'isStoreManager', r.employee_is_store_manager),
		'districtManager', json_build_object('isContacted', r.district_manager_contacted)
	),
	'incident', json_build_object(
		'title', r.incident_title,
		'types', COALESCE((
			SELECT json_agg(it.name ORDER BY rit.position)
			FROM report_incident_types rit JOIN incident_types it ON it.id = rit.incident_type_id
			WHERE rit.report_id = r.id
		), '[]'::json),
		'pos', r.incident_pos,
		'isProcedural', r.incident_is_procedural,
		'error', r.incident_error,
		'transaction', COALESCE((
			SELECT json_build_object(
				'types', json_agg(tt.name ORDER BY rtt.position),
				'number', r.transaction_number,
				'hasVarianceReport', r.transaction_has_variance_report
			)
			FROM report_incident_transaction_types rtt JOIN incident_transaction_types tt ON tt.id = rtt.incident_transaction_type_id
			WHERE rtt.report_id = r.id
			HAVING COUNT(*) > 0
		), '{}'::json),
		'details', r.incident_details,
		'hasVarianceReport', r.incident_has_variance_report
	)
) AS document
FROM reports r`

type reportRow struct {
	ID       int64  `db:"id"`
	Document []byte `db:"document"`
}

func (row reportRow) report() (*models.Report, error) {
	var report models.Report
	if err := json.Unmarshal(row.Document, &report); err != nil {
		return nil, fmt.Errorf("decode report document: %w", err)
	}
	report.ID = row.ID
	return &report, nil
}

// ReportRepository persists incident reports and their store, incident type and
// transaction type associations.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// FindByUUID returns the canonical report for a client-visible identifier.
func (r *ReportRepository) FindByUUID(ctx context.Context, uuid string) (*models.Report, error) {
	report, err := getReport(ctx, r.db, "r.uuid = $1", uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find report by uuid: %w", err)
	}
	return report, nil
}

// List returns every report, newest first.
func (r *ReportRepository) List(ctx context.Context) ([]models.Report, error) {
	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, reportDocumentQuery+` ORDER BY r.created_at DESC, r.id DESC`); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	reports := make([]models.Report, 0, len(rows))
	for _, row := range rows {
		report, err := row.report()
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// Create inserts one report with its associations and returns the stored document.
func (r *ReportRepository) Create(ctx context.Context, w dto.ReportWrite) (*models.Report, error) {
	reports, err := r.insertAll(ctx, []dto.ReportWrite{w})
	if err != nil {
		return nil, err
	}
	return &reports[0], nil
}

// Import inserts every report in one transaction: either all are stored or none.
func (r *ReportRepository) Import(ctx context.Context, writes []dto.ReportWrite) ([]models.Report, error) {
	return r.insertAll(ctx, writes)
}

func (r *ReportRepository) insertAll(ctx context.Context, writes []dto.ReportWrite) (reports []models.Report, err error) {
	tx, err := r.db.BeginTxx(ctx, database.ReportTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin report transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reports = make([]models.Report, 0, len(writes))
	for _, w := range writes {
		var id int64
		id, err = insertReport(ctx, tx, w)
		if err != nil {
			return nil, err
		}
		if err = insertAssociations(ctx, tx, id, w); err != nil {
			return nil, err
		}
		var report *models.Report
		if report, err = getReport(ctx, tx, "r.id = $1", id); err != nil {
			return nil, fmt.Errorf("read back report: %w", err)
		}
		reports = append(reports, *report)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit report transaction: %w", err)
	}
	return reports, nil
}

// Update replaces the scalar fields and every association of an existing report. The report
// row is locked for the duration so concurrent writers to the same report queue up.
func (r *ReportRepository) Update(ctx context.Context, id int64, w dto.ReportWrite) (report *models.Report, err error) {
	tx, err := r.db.BeginTxx(ctx, database.ReportTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin report transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = lockReport(ctx, tx, "id = $1", id); err != nil {
		return nil, err
	}

	const updateQuery = `UPDATE reports SET
	updated_at = $2, updated_by = $3, assigned_to = $4, is_on_call = $5, is_deleted = $6,
	is_webhook_sent = $7, has_triggered_webhook = $8,
	call_date = $9, call_time = $10, call_date_time = $11, call_phone = $12, call_status = $13,
	employee_name = $14, employee_is_store_manager = $15, district_manager_contacted = $16,
	incident_title = $17, incident_pos = $18, incident_is_procedural = $19, incident_error = $20,
	incident_details = $21, incident_has_variance_report = $22,
	transaction_number = $23, transaction_has_variance_report = $24
WHERE id = $1`
	number, hasVariance := transactionColumns(w.Incident.Transaction)
	if _, err = tx.ExecContext(ctx, updateQuery,
		id, w.UpdatedAt, w.UpdatedBy, w.AssignedTo, w.IsOnCall, w.IsDeleted,
		w.IsWebhookSent, w.HasTriggeredWebhook,
		w.Call.Date, w.Call.Time, w.Call.DateTime, w.Call.Phone, w.Call.Status,
		w.Store.Employee.Name, w.Store.Employee.IsStoreManager, w.Store.DistrictManager.IsContacted,
		w.Incident.Title, w.Incident.POS, w.Incident.IsProcedural, w.Incident.Error,
		w.Incident.Details, w.Incident.HasVarianceReport,
		number, hasVariance,
	); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}

	if err = deleteAssociations(ctx, tx, id); err != nil {
		return nil, err
	}
	if err = insertAssociations(ctx, tx, id, w); err != nil {
		return nil, err
	}
	if report, err = getReport(ctx, tx, "r.id = $1", id); err != nil {
		return nil, fmt.Errorf("read back report: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit report transaction: %w", err)
	}
	return report, nil
}

// SetDeleted flips the soft-delete flag. ErrReportStateUnchanged is returned, and nothing is
// written, when the report is already in the requested state.
func (r *ReportRepository) SetDeleted(ctx context.Context, uuid string, deleted bool, updatedBy int64, at time.Time) (*models.Report, error) {
	const query = `UPDATE reports SET is_deleted = $2, updated_at = $3, updated_by = $4 WHERE uuid = $1 AND is_deleted <> $2`
	res, err := r.db.ExecContext(ctx, query, uuid, deleted, at, updatedBy)
	if err != nil {
		return nil, fmt.Errorf("set report deleted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set report deleted: %w", err)
	}
	report, err := r.FindByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return report, ErrReportStateUnchanged
	}
	return report, nil
}

// HardDelete removes a report and its associations permanently.
func (r *ReportRepository) HardDelete(ctx context.Context, uuid string) (err error) {
	tx, err := r.db.BeginTxx(ctx, database.ReportTxOptions)
	if err != nil {
		return fmt.Errorf("begin report transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id, err := lockReport(ctx, tx, "uuid = $1", uuid)
	if err != nil {
		return err
	}
	if err = deleteAssociations(ctx, tx, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit report transaction: %w", err)
	}
	return nil
}

// MarkWebhookSent records a delivered webhook notification.
func (r *ReportRepository) MarkWebhookSent(ctx context.Context, uuid string) error {
	const query = `UPDATE reports SET is_webhook_sent = TRUE, has_triggered_webhook = TRUE WHERE uuid = $1`
	if _, err := r.db.ExecContext(ctx, query, uuid); err != nil {
		return fmt.Errorf("mark webhook sent: %w", err)
	}
	return nil
}

func getReport(ctx context.Context, q sqlx.QueryerContext, where string, arg interface{}) (*models.Report, error) {
	var row reportRow
	if err := sqlx.GetContext(ctx, q, &row, reportDocumentQuery+` WHERE `+where, arg); err != nil {
		return nil, err
	}
	return row.report()
}

func lockReport(ctx context.Context, tx *sqlx.Tx, where string, arg interface{}) (int64, error) {
	var id int64
	if err := tx.GetContext(ctx, &id, `SELECT id FROM reports WHERE `+where+` FOR UPDATE`, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("lock report: %w", err)
	}
	return id, nil
}

func insertReport(ctx context.Context, tx *sqlx.Tx, w dto.ReportWrite) (int64, error) {
	const query = `INSERT INTO reports (
	uuid, version, created_at, updated_at, created_by, updated_by, assigned_to,
	is_on_call, is_deleted, is_webhook_sent, has_triggered_webhook,
	call_date, call_time, call_date_time, call_phone, call_status,
	employee_name, employee_is_store_manager, district_manager_contacted,
	incident_title, incident_pos, incident_is_procedural, incident_error,
	incident_details, incident_has_variance_report,
	transaction_number, transaction_has_variance_report
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
RETURNING id`
	number, hasVariance := transactionColumns(w.Incident.Transaction)
	var id int64
	if err := tx.GetContext(ctx, &id, query,
		w.UUID, w.Version, w.CreatedAt, w.UpdatedAt, w.CreatedBy, w.UpdatedBy, w.AssignedTo,
		w.IsOnCall, w.IsDeleted, w.IsWebhookSent, w.HasTriggeredWebhook,
		w.Call.Date, w.Call.Time, w.Call.DateTime, w.Call.Phone, w.Call.Status,
		w.Store.Employee.Name, w.Store.Employee.IsStoreManager, w.Store.DistrictManager.IsContacted,
		w.Incident.Title, w.Incident.POS, w.Incident.IsProcedural, w.Incident.Error,
		w.Incident.Details, w.Incident.HasVarianceReport,
		number, hasVariance,
	); err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

func transactionColumns(t models.IncidentTransaction) (sql.NullString, sql.NullBool) {
	if t.IsEmpty() {
		return sql.NullString{}, sql.NullBool{}
	}
	return sql.NullString{String: t.Number, Valid: true}, sql.NullBool{Bool: t.HasVarianceReport, Valid: true}
}

type association struct {
	name   string
	insert string
	values func(w dto.ReportWrite) []string
}

// associations are written in this order: stores, incident types, transaction types.
var associations = []association{
	{
		name:   "store",
		insert: `INSERT INTO report_stores (report_id, store_id, position) SELECT $1, id, $3 FROM stores WHERE number = $2`,
		values: func(w dto.ReportWrite) []string { return w.Store.Numbers },
	},
	{
		name:   "incident type",
		insert: `INSERT INTO report_incident_types (report_id, incident_type_id, position) SELECT $1, id, $3 FROM incident_types WHERE name = $2`,
		values: func(w dto.ReportWrite) []string { return w.Incident.Types },
	},
	{
		name:   "incident transaction type",
		insert: `INSERT INTO report_incident_transaction_types (report_id, incident_transaction_type_id, position) SELECT $1, id, $3 FROM incident_transaction_types WHERE name = $2`,
		values: func(w dto.ReportWrite) []string {
			if w.Incident.Transaction.IsEmpty() {
				return nil
			}
			return w.Incident.Transaction.Types
		},
	},
}

// insertAssociations writes one join row per value, resolving each value to its reference id.
// A value that no longer resolves fails the whole write.
func insertAssociations(ctx context.Context, tx *sqlx.Tx, reportID int64, w dto.ReportWrite) error {
	for _, assoc := range associations {
		for position, value := range assoc.values(w) {
			res, err := tx.ExecContext(ctx, assoc.insert, reportID, value, position)
			if err != nil {
				return fmt.Errorf("insert report %s %q: %w", assoc.name, value, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("insert report %s %q: %w", assoc.name, value, err)
			}
			if affected != 1 {
				return fmt.Errorf("insert report %s %q: unknown reference", assoc.name, value)
			}
		}
	}
	return nil
}

func deleteAssociations(ctx context.Context, tx *sqlx.Tx, reportID int64) error {
	for _, table := range []string{"report_stores", "report_incident_types", "report_incident_transaction_types"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE report_id = $1`, reportID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
