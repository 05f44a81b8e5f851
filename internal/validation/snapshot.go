package validation

import "time"

// Wildcard is the input marker that expands to every currently valid value.
const Wildcard = "*"

// OtherIncidentType is always ordered last in the incident type set.
const OtherIncidentType = "Other"

// SetRef names a dynamically loaded reference set.
type SetRef string

const (
	SetStoreNumbers             SetRef = "storeNumbers"
	SetIncidentTypes            SetRef = "incidentTypes"
	SetIncidentTransactionTypes SetRef = "incidentTransactionTypes"
	SetDistrictManagers         SetRef = "districtManagers"
	SetActiveUsernames          SetRef = "activeUsernames"
)

// Snapshot is an immutable view of the reference sets at one point in time. A refresh
// produces a new Snapshot; existing ones are never mutated.
type Snapshot struct {
	StoreNumbers             []string  `json:"storeNumbers"`
	IncidentTypes            []string  `json:"incidentTypes"`
	IncidentTransactionTypes []string  `json:"incidentTransactionTypes"`
	DistrictManagers         []string  `json:"districtManagers"`
	ActiveUsernames          []string  `json:"activeUsernames"`
	LoadedAt                 time.Time `json:"loadedAt"`

	index map[SetRef]map[string]struct{}
}

// NewSnapshot copies the given sets, drops any literal wildcard, orders "Other" last among
// incident types and indexes every set for membership checks.
func NewSnapshot(storeNumbers, incidentTypes, transactionTypes, districtManagers, activeUsernames []string, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		StoreNumbers:             cleanSet(storeNumbers),
		IncidentTypes:            otherLast(cleanSet(incidentTypes)),
		IncidentTransactionTypes: cleanSet(transactionTypes),
		DistrictManagers:         cleanSet(districtManagers),
		ActiveUsernames:          cleanSet(activeUsernames),
		LoadedAt:                 loadedAt,
	}
	s.index = map[SetRef]map[string]struct{}{
		SetStoreNumbers:             toIndex(s.StoreNumbers),
		SetIncidentTypes:            toIndex(s.IncidentTypes),
		SetIncidentTransactionTypes: toIndex(s.IncidentTransactionTypes),
		SetDistrictManagers:         toIndex(s.DistrictManagers),
		SetActiveUsernames:          toIndex(s.ActiveUsernames),
	}
	return s
}

// Values returns the ordered values of a set. Callers must not modify the slice.
func (s *Snapshot) Values(ref SetRef) []string {
	if s == nil {
		return nil
	}
	switch ref {
	case SetStoreNumbers:
		return s.StoreNumbers
	case SetIncidentTypes:
		return s.IncidentTypes
	case SetIncidentTransactionTypes:
		return s.IncidentTransactionTypes
	case SetDistrictManagers:
		return s.DistrictManagers
	case SetActiveUsernames:
		return s.ActiveUsernames
	}
	return nil
}

// Contains reports set membership.
func (s *Snapshot) Contains(ref SetRef, value string) bool {
	if s == nil {
		return false
	}
	if s.index == nil {
		values := s.Values(ref)
		for _, v := range values {
			if v == value {
				return true
			}
		}
		return false
	}
	_, ok := s.index[ref][value]
	return ok
}

func cleanSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == Wildcard {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func otherLast(values []string) []string {
	out := make([]string, 0, len(values))
	hasOther := false
	for _, v := range values {
		if v == OtherIncidentType {
			hasOther = true
			continue
		}
		out = append(out, v)
	}
	if hasOther {
		out = append(out, OtherIncidentType)
	}
	return out
}

func toIndex(values []string) map[string]struct{} {
	idx := make(map[string]struct{}, len(values))
	for _, v := range values {
		idx[v] = struct{}{}
	}
	return idx
}
