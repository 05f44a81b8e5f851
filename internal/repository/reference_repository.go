package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/store-incident-api/internal/models"
)

// ReferenceRepository reads the reference sets used by report validation.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository creates a new instance of ReferenceRepository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// Load fetches every reference set.
func (r *ReferenceRepository) Load(ctx context.Context) (*models.ReferenceSets, error) {
	sets := &models.ReferenceSets{}
	queries := []struct {
		name  string
		query string
		dest  *[]string
	}{
		{"store numbers", `SELECT number FROM stores WHERE is_active = TRUE ORDER BY number`, &sets.StoreNumbers},
		{"incident types", `SELECT name FROM incident_types ORDER BY name`, &sets.IncidentTypes},
		{"incident transaction types", `SELECT name FROM incident_transaction_types ORDER BY name`, &sets.IncidentTransactionTypes},
		{"district managers", `SELECT name FROM district_managers WHERE is_active = TRUE ORDER BY name`, &sets.DistrictManagers},
		{"active usernames", `SELECT username FROM users WHERE is_active = TRUE ORDER BY username`, &sets.ActiveUsernames},
	}
	for _, q := range queries {
		if err := r.db.SelectContext(ctx, q.dest, q.query); err != nil {
			return nil, fmt.Errorf("load %s: %w", q.name, err)
		}
	}
	return sets, nil
}
