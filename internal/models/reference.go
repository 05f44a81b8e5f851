package models

// ReferenceSets holds the externally owned values report fields are validated against.
type ReferenceSets struct {
	StoreNumbers             []string
	IncidentTypes            []string
	IncidentTransactionTypes []string
	DistrictManagers         []string
	ActiveUsernames          []string
}
