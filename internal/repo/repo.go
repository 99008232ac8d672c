package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gatecheck/internal/model"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrSectorNotFound   = errors.New("sector not found")
	ErrSupplierNotFound = errors.New("supplier not found")
	ErrAttendeeNotFound = errors.New("attendee not found")
	ErrTokenNotFound    = errors.New("token not found")

	ErrDuplicateCpf     = errors.New("duplicate cpf for event")
	ErrCapacityExceeded = errors.New("supplier registration limit reached")
	ErrSupplierInactive = errors.New("supplier is inactive")
	ErrResourceInUse    = errors.New("resource is referenced and cannot be deleted")
)

// WristbandConflict names one code already held by another attendee in the
// same sector.
type WristbandConflict struct {
	SectorID string `json:"sector_id"`
	Code     string `json:"code"`
}

// DuplicateWristbandError reports every conflicting (sector, code) pair of
// a check-in attempt so the operator can see exactly which bands to swap.
type DuplicateWristbandError struct {
	Conflicts []WristbandConflict
}

func (e *DuplicateWristbandError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (sector %s)", c.Code, c.SectorID))
	}
	return "wristband already in use: " + strings.Join(parts, ", ")
}

// ImportRow is one pre-parsed spreadsheet row. Parsing the spreadsheet
// itself happens outside this service; rows arrive already split.
type ImportRow struct {
	Name        string `json:"name"`
	CPF         string `json:"cpf"`
	SectorLabel string `json:"sector"`
}

// Repository is the persistence boundary. The *Tx methods run their
// check-then-act sequences inside a single database transaction; callers
// must not assume atomicity across separate calls.
type Repository interface {
	// events
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	// DeleteEventCascadeTx removes the event with all attendees, sectors,
	// suppliers, wristbands and tokens scoped to it in one transaction.
	DeleteEventCascadeTx(ctx context.Context, id string) error

	// sectors
	CreateSector(ctx context.Context, s *model.Sector) error
	UpdateSector(ctx context.Context, s *model.Sector) error
	// DeleteSectorTx fails with ErrResourceInUse when any attendee or
	// supplier still references the sector.
	DeleteSectorTx(ctx context.Context, eventID, sectorID string) error
	GetSectorByID(ctx context.Context, eventID, sectorID string) (*model.Sector, error)
	GetSectorsByEventID(ctx context.Context, eventID string) ([]model.Sector, error)
	GetSectorByLabel(ctx context.Context, eventID, label string) (*model.Sector, error)

	// suppliers
	// CreateSupplierTx inserts the supplier together with its capability
	// tokens, atomically.
	CreateSupplierTx(ctx context.Context, s *model.Supplier, tokens []model.Token) error
	UpdateSupplier(ctx context.Context, s *model.Supplier) error
	DeleteSupplierTx(ctx context.Context, eventID, supplierID string) error
	GetSupplierByID(ctx context.Context, supplierID string) (*model.Supplier, error)
	GetSuppliersByEventID(ctx context.Context, eventID string) ([]model.Supplier, error)
	CountAttendeesBySupplier(ctx context.Context, supplierID string) (int, error)

	// attendees
	// RegisterAttendeeTx enforces per-event CPF uniqueness and, when the
	// attendee references a supplier, the supplier's capacity limit, with
	// the supplier row locked for the duration of the transaction.
	RegisterAttendeeTx(ctx context.Context, a *model.Attendee) error
	GetAttendeeByID(ctx context.Context, id string) (*model.Attendee, error)
	GetAttendeesByEventID(ctx context.Context, eventID string) ([]model.Attendee, error)
	GetAttendeesByStatus(ctx context.Context, eventID string, st model.Status) ([]model.Attendee, error)
	GetAttendeesBySupplier(ctx context.Context, supplierID string) ([]model.Attendee, error)
	UpdateAttendee(ctx context.Context, a *model.Attendee) error
	DeleteAttendeeTx(ctx context.Context, id string) error
	// CheckInTx persists the staged attendee and the wristband codes for
	// the touched sectors only, failing with *DuplicateWristbandError and
	// writing nothing when any code is held by another attendee.
	CheckInTx(ctx context.Context, a *model.Attendee, touched map[string]string) error
	ClearWristbandsTx(ctx context.Context, attendeeID string) error
	BulkReassignSectorsTx(ctx context.Context, eventID string, attendeeIDs []string, sectorIDs []string) error
	// MarkMissedTx flips every PENDING attendee of the event to MISSED and
	// returns how many were flipped.
	MarkMissedTx(ctx context.Context, eventID string) (int, error)

	// tokens
	GetTokenByValue(ctx context.Context, token string) (*model.Token, error)
	GetTokensBySupplier(ctx context.Context, supplierID string) ([]model.Token, error)
	// RegenerateTokenTx deletes the previous token for the (event,
	// supplier, purpose) triple and inserts the new one atomically; the
	// old link is dead the moment this commits.
	RegenerateTokenTx(ctx context.Context, t *model.Token) error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}
