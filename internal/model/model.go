package model

import (
	"time"

	"github.com/lib/pq"
)

// Status is the closed set of attendee lifecycle states. All status
// decisions go through CanTransition / ParseStatus so that adding a state
// is a compile-visible change.
type Status string

const (
	StatusPending             Status = "pending"
	StatusCheckedIn           Status = "checked_in"
	StatusCheckedOut          Status = "checked_out"
	StatusCancelled           Status = "cancelled"
	StatusMissed              Status = "missed"
	StatusSubstitution        Status = "substitution"
	StatusSubstitutionRequest Status = "substitution_request"
	StatusSectorChangeRequest Status = "sector_change_request"
	StatusPendingApproval     Status = "pending_approval"
	StatusBlocked             Status = "blocked"
	StatusRejected            Status = "rejected"
)

var allStatuses = []Status{
	StatusPending, StatusCheckedIn, StatusCheckedOut, StatusCancelled,
	StatusMissed, StatusSubstitution, StatusSubstitutionRequest,
	StatusSectorChangeRequest, StatusPendingApproval, StatusBlocked,
	StatusRejected,
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether the guarded state machine allows moving
// from s to next. Block is allowed from anywhere; the organizer escape
// hatch (SetStatus) bypasses this table on purpose.
func (s Status) CanTransition(next Status) bool {
	if next == StatusBlocked {
		return true
	}
	switch s {
	case StatusPending:
		switch next {
		case StatusCheckedIn, StatusCancelled, StatusMissed,
			StatusSubstitution, StatusSubstitutionRequest,
			StatusSectorChangeRequest:
			return true
		}
	case StatusCheckedIn:
		switch next {
		case StatusPending, StatusCheckedOut:
			return true
		}
	case StatusMissed:
		switch next {
		case StatusSubstitution, StatusSubstitutionRequest, StatusSectorChangeRequest:
			return true
		}
	case StatusSubstitution:
		switch next {
		case StatusSubstitutionRequest:
			return true
		}
	case StatusSubstitutionRequest, StatusSectorChangeRequest:
		switch next {
		case StatusPending:
			return true
		}
	case StatusPendingApproval:
		switch next {
		case StatusPending, StatusRejected:
			return true
		}
	case StatusBlocked:
		switch next {
		case StatusPending:
			return true
		}
	case StatusCheckedOut, StatusCancelled, StatusRejected:
		// terminal in the guarded machine
	}
	return false
}

// TokenPurpose selects which capability a link grants.
type TokenPurpose string

const (
	PurposeRegistration TokenPurpose = "registration"
	PurposeAdmin        TokenPurpose = "admin"
)

func (p TokenPurpose) String() string { return string(p) }

func ParseTokenPurpose(s string) (TokenPurpose, bool) {
	switch TokenPurpose(s) {
	case PurposeRegistration, PurposeAdmin:
		return TokenPurpose(s), true
	}
	return "", false
}

// EventModules are the per-event feature switches shown or hidden in the
// organizer dashboard.
type EventModules struct {
	Scanner     bool `json:"scanner"`
	Logs        bool `json:"logs"`
	Register    bool `json:"register"`
	Companies   bool `json:"companies"`
	Spreadsheet bool `json:"spreadsheet"`
	Reports     bool `json:"reports"`
}

type Event struct {
	ID               string       `db:"id" json:"id"`
	Name             string       `db:"name" json:"name"`
	Modules          EventModules `db:"modules" json:"modules"`
	GuestPhotoChange bool         `db:"guest_photo_change" json:"guest_photo_change"`
	GuestUpload      bool         `db:"guest_upload" json:"guest_upload"`
	EndsAt           *time.Time   `db:"ends_at" json:"ends_at,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

type Sector struct {
	ID      string `db:"id" json:"id"`
	EventID string `db:"event_id" json:"event_id"`
	Label   string `db:"label" json:"label"`
	Color   string `db:"color" json:"color"`
}

// SubCompany is a supplier sub-unit pinned to exactly one sector.
type SubCompany struct {
	Name     string `json:"name"`
	SectorID string `json:"sector_id"`
}

type Supplier struct {
	ID           string         `db:"id" json:"id"`
	EventID      string         `db:"event_id" json:"event_id"`
	Name         string         `db:"name" json:"name"`
	SectorIDs    pq.StringArray `db:"sector_ids" json:"sector_ids"`
	Limit        int            `db:"reg_limit" json:"limit"`
	SubCompanies []SubCompany   `db:"sub_companies" json:"sub_companies,omitempty"`
	Active       bool           `db:"active" json:"active"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// SubstitutionData is the proposed replacement person held on an attendee
// while a substitution awaits approval. It is applied as a whole or not at
// all.
type SubstitutionData struct {
	Name      string   `json:"name"`
	CPF       string   `json:"cpf"`
	Photo     string   `json:"photo"`
	SectorIDs []string `json:"sector_ids,omitempty"`
}

type SectorChangeData struct {
	SectorID      string `json:"sector_id"`
	Justification string `json:"justification"`
}

type Attendee struct {
	ID               string            `db:"id" json:"id"`
	EventID          string            `db:"event_id" json:"event_id"`
	Name             string            `db:"name" json:"name"`
	CPF              string            `db:"cpf" json:"cpf"`
	Photo            string            `db:"photo" json:"photo"`
	SectorIDs        pq.StringArray    `db:"sector_ids" json:"sector_ids"`
	SubCompany       string            `db:"sub_company" json:"sub_company,omitempty"`
	SupplierID       string            `db:"supplier_id" json:"supplier_id,omitempty"`
	Status           Status            `db:"status" json:"status"`
	CheckinAt        *time.Time        `db:"checkin_at" json:"checkin_at,omitempty"`
	Wristbands       map[string]string `db:"wristbands" json:"wristbands,omitempty"`
	BlockReason      string            `db:"block_reason" json:"block_reason,omitempty"`
	Substitution     *SubstitutionData `db:"substitution" json:"substitution,omitempty"`
	SectorChange     *SectorChangeData `db:"sector_change" json:"sector_change,omitempty"`
	RemovalRequested bool              `db:"removal_requested" json:"removal_requested,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can stage mutations without
// touching the stored record.
func (a *Attendee) Clone() *Attendee {
	c := *a
	c.SectorIDs = append(pq.StringArray(nil), a.SectorIDs...)
	if a.Wristbands != nil {
		c.Wristbands = make(map[string]string, len(a.Wristbands))
		for k, v := range a.Wristbands {
			c.Wristbands[k] = v
		}
	}
	if a.CheckinAt != nil {
		t := *a.CheckinAt
		c.CheckinAt = &t
	}
	if a.Substitution != nil {
		s := *a.Substitution
		s.SectorIDs = append([]string(nil), a.Substitution.SectorIDs...)
		c.Substitution = &s
	}
	if a.SectorChange != nil {
		sc := *a.SectorChange
		c.SectorChange = &sc
	}
	return &c
}

type Token struct {
	Token      string       `db:"token" json:"token"`
	EventID    string       `db:"event_id" json:"event_id"`
	SupplierID string       `db:"supplier_id" json:"supplier_id"`
	Purpose    TokenPurpose `db:"purpose" json:"purpose"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}
