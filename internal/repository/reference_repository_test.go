package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceRepositoryLoad(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT number FROM stores WHERE is_active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"number"}).AddRow("101").AddRow("102"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM incident_types")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Bug").AddRow("Other"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM incident_transaction_types")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Sale"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM district_managers")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT username FROM users WHERE is_active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("robert.tam"))

	sets, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102"}, sets.StoreNumbers)
	assert.Equal(t, []string{"Bug", "Other"}, sets.IncidentTypes)
	assert.Equal(t, []string{"Sale"}, sets.IncidentTransactionTypes)
	assert.Empty(t, sets.DistrictManagers)
	assert.Equal(t, []string{"robert.tam"}, sets.ActiveUsernames)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRepositoryLoadError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT number FROM stores")).WillReturnError(errors.New("timeout"))

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load store numbers")
}
