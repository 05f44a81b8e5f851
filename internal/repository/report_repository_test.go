package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/store-incident-api/internal/dto"
	"github.com/noah-isme/store-incident-api/internal/models"
)

const storedReportDocument = `{
	"uuid": "8d1f6a52-41a4-4f0a-9a57-0c3b8f1e2d11",
	"version": "2.0.0",
	"createdAt": "2024-05-01T14:20:00.123456+00:00",
	"updatedAt": "2024-05-01T14:20:00.123456+00:00",
	"createdBy": 3,
	"updatedBy": 3,
	"assignedTo": 7,
	"isOnCall": false,
	"isDeleted": false,
	"isWebhookSent": false,
	"hasTriggeredWebhook": false,
	"call": {"date": "05/01/2024", "time": "10:15 AM", "dateTime": "2024-05-01T14:15:00+00:00", "phone": "555-0100", "status": "Completed"},
	"store": {"numbers": ["101", "102"], "employee": {"name": "Pat", "isStoreManager": true}, "districtManager": {"isContacted": false}},
	"incident": {
		"title": "Register frozen", "types": ["Bug"], "pos": "1", "isProcedural": false, "error": "E42",
		"transaction": {"types": ["Sale"], "number": "T-1", "hasVarianceReport": true},
		"details": "Register 1 froze", "hasVarianceReport": true
	}
}`

var (
	readBackPattern = regexp.QuoteMeta("FROM reports r WHERE r.id = $1")
	byUUIDPattern   = regexp.QuoteMeta("FROM reports r WHERE r.uuid = $1")
)

func newReportRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sampleWrite() dto.ReportWrite {
	now := time.Date(2024, 5, 1, 14, 20, 0, 0, time.UTC)
	pos := "1"
	return dto.ReportWrite{
		UUID:       "8d1f6a52-41a4-4f0a-9a57-0c3b8f1e2d11",
		Version:    "2.0.0",
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  3,
		UpdatedBy:  3,
		AssignedTo: 7,
		Call: models.ReportCall{
			Date: "05/01/2024", Time: "10:15 AM", DateTime: now.Add(-5 * time.Minute),
			Phone: "555-0100", Status: "Completed",
		},
		Store: models.ReportStore{
			Numbers:  []string{"101", "102"},
			Employee: models.ReportEmployee{Name: "Pat", IsStoreManager: true},
		},
		Incident: models.ReportIncident{
			Title:             "Register frozen",
			Types:             []string{"Bug"},
			POS:               &pos,
			Error:             "E42",
			Details:           "Register 1 froze",
			HasVarianceReport: true,
			Transaction:       models.PresentTransaction([]string{"Sale"}, "T-1", true),
		},
	}
}

func reportRows(id int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "document"}).AddRow(id, []byte(storedReportDocument))
}

func expectAssociation(mock sqlmock.Sqlmock, table string, reportID int64, value string, position int) *sqlmock.ExpectedExec {
	return mock.ExpectExec(regexp.QuoteMeta("INSERT INTO "+table+" ")).
		WithArgs(reportID, value, position)
}

func TestReportRepositoryCreateWritesAssociationsAndReadsBack(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reports (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	expectAssociation(mock, "report_stores", 41, "101", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_stores", 41, "102", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_types", 41, "Bug", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_transaction_types", 41, "Sale", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(readBackPattern).WithArgs(int64(41)).WillReturnRows(reportRows(41))
	mock.ExpectCommit()

	report, err := repo.Create(context.Background(), sampleWrite())
	require.NoError(t, err)
	assert.Equal(t, int64(41), report.ID)
	assert.Equal(t, "8d1f6a52-41a4-4f0a-9a57-0c3b8f1e2d11", report.UUID)
	assert.Equal(t, []string{"101", "102"}, report.Store.Numbers)
	assert.False(t, report.Incident.Transaction.IsEmpty())
	assert.Equal(t, []string{"Sale"}, report.Incident.Transaction.Types)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCreateSkipsTransactionTypesWhenEmpty(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	w := sampleWrite()
	w.Store.Numbers = []string{"101"}
	w.Incident.Transaction = models.EmptyTransaction()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reports (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	expectAssociation(mock, "report_stores", 42, "101", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_types", 42, "Bug", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(readBackPattern).WithArgs(int64(42)).WillReturnRows(reportRows(42))
	mock.ExpectCommit()

	_, err := repo.Create(context.Background(), w)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCreateRollsBackOnTransactionTypeFailure(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reports (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(43))
	expectAssociation(mock, "report_stores", 43, "101", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_stores", 43, "102", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_types", 43, "Bug", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_transaction_types", 43, "Sale", 0).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), sampleWrite())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incident transaction type")

	// nothing was committed, so the report is not visible afterwards
	mock.ExpectQuery(byUUIDPattern).WithArgs(sampleWrite().UUID).WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByUUID(context.Background(), sampleWrite().UUID)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCreateRejectsUnknownReference(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reports (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(44))
	expectAssociation(mock, "report_stores", 44, "101", 0).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), sampleWrite())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store "101": unknown reference`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateRollsBackKeepingPreviousAssociations(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM reports WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(41)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reports SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_stores WHERE report_id = $1")).WithArgs(int64(41)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_incident_types WHERE report_id = $1")).WithArgs(int64(41)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_incident_transaction_types WHERE report_id = $1")).WithArgs(int64(41)).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_stores", 41, "101", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_stores", 41, "102", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_types", 41, "Bug", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_transaction_types", 41, "Sale", 0).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), 41, sampleWrite())
	require.Error(t, err)

	// the committed document, with its original association set, is what readers get
	mock.ExpectQuery(byUUIDPattern).WithArgs(sampleWrite().UUID).WillReturnRows(reportRows(41))
	report, err := repo.FindByUUID(context.Background(), sampleWrite().UUID)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102"}, report.Store.Numbers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateMissingReport(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM reports WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), 99, sampleWrite())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryImportIsAtomic(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	first := sampleWrite()
	first.Store.Numbers = []string{"101"}
	first.Incident.Transaction = models.EmptyTransaction()
	second := first
	second.UUID = "0b7e1c9a-8d2f-4e7b-b3a1-5f6c7d8e9a0b"
	second.Store.Numbers = []string{"999"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reports (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(50))
	expectAssociation(mock, "report_stores", 50, "101", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAssociation(mock, "report_incident_types", 50, "Bug", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(readBackPattern).WithArgs(int64(50)).WillReturnRows(reportRows(50))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reports (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(51))
	expectAssociation(mock, "report_stores", 51, "999", 0).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	reports, err := repo.Import(context.Background(), []dto.ReportWrite{first, second})
	require.Error(t, err)
	assert.Nil(t, reports)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryList(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY r.created_at DESC, r.id DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document"}).
			AddRow(int64(2), []byte(storedReportDocument)).
			AddRow(int64(1), []byte(`{"uuid": "u-1", "isDeleted": true, "incident": {"transaction": {}}}`)))

	reports, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(2), reports[0].ID)
	assert.True(t, reports[1].IsDeleted)
	assert.True(t, reports[1].Incident.Transaction.IsEmpty())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositorySetDeleted(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)
	uuid := sampleWrite().UUID
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reports SET is_deleted = $2, updated_at = $3, updated_by = $4 WHERE uuid = $1 AND is_deleted <> $2")).
		WithArgs(uuid, true, at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(byUUIDPattern).WithArgs(uuid).WillReturnRows(reportRows(41))

	_, err := repo.SetDeleted(context.Background(), uuid, true, 3, at)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reports SET is_deleted")).
		WithArgs(uuid, false, at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(byUUIDPattern).WithArgs(uuid).WillReturnRows(reportRows(41))

	report, err := repo.SetDeleted(context.Background(), uuid, false, 3, at)
	assert.True(t, errors.Is(err, ErrReportStateUnchanged))
	require.NotNil(t, report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryHardDelete(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)
	uuid := sampleWrite().UUID

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM reports WHERE uuid = $1 FOR UPDATE")).
		WithArgs(uuid).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_stores")).WithArgs(int64(41)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_incident_types")).WithArgs(int64(41)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_incident_transaction_types")).WithArgs(int64(41)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reports WHERE id = $1")).WithArgs(int64(41)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.HardDelete(context.Background(), uuid))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM reports WHERE uuid = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.HardDelete(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryMarkWebhookSent(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reports SET is_webhook_sent = TRUE, has_triggered_webhook = TRUE WHERE uuid = $1")).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkWebhookSent(context.Background(), "u-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
