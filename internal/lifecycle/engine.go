package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gatecheck/internal/model"
	"gatecheck/internal/photos"
	"gatecheck/internal/realtime"
	"gatecheck/internal/repo"
	"gatecheck/pkg/validator"
)

var (
	// ErrValidation wraps field-level input problems; the user corrects
	// and resubmits.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition is returned when an operation is attempted
	// from a status it is not legal in.
	ErrInvalidTransition = errors.New("operation not allowed in current status")

	ErrMissingSubstitutionData = errors.New("no substitution is pending for this attendee")
	ErrInvalidSubstitutionData = errors.New("pending substitution data is incomplete")
	ErrMissingSectorChangeData = errors.New("no sector change is pending for this attendee")
	ErrPendingRequestExists    = errors.New("attendee already has a pending request")
	ErrNoRemovalRequested      = errors.New("no removal was requested for this attendee")
)

// Engine is the sole authority for attendee status transitions and the
// mutations that accompany them. Everything else (handlers, the scan
// adapter, the sweep worker) funnels through it.
type Engine struct {
	repo   repo.Repository
	photos photos.Store
	bus    realtime.Bus
	log    *zerolog.Logger
}

func NewEngine(r repo.Repository, ph photos.Store, bus realtime.Bus, log *zerolog.Logger) *Engine {
	return &Engine{repo: r, photos: ph, bus: bus, log: log}
}

func (e *Engine) notify(ctx context.Context, eventID, id, action string) {
	e.bus.Publish(ctx, realtime.Change{
		EventID:    eventID,
		Collection: "attendees",
		ID:         id,
		Action:     action,
	})
}

// RegisterInput is everything needed to create an attendee. Photo may be a
// URL or an inline data URI; inline payloads are stored and replaced with
// a reference before the record is written.
type RegisterInput struct {
	Name       string
	CPF        string
	Photo      string
	SectorIDs  []string
	SubCompany string
	SupplierID string
	// RequireApproval routes the registration through organizer approval
	// (supplier self-service links).
	RequireApproval bool
}

func (e *Engine) validateRegister(ctx context.Context, eventID string, in *RegisterInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	in.CPF = validator.StripCPF(in.CPF)
	if len(in.CPF) != 11 {
		return fmt.Errorf("%w: CPF must be exactly 11 digits", ErrValidation)
	}
	if strings.TrimSpace(in.Photo) == "" {
		return fmt.Errorf("%w: photo is required", ErrValidation)
	}
	if len(in.SectorIDs) == 0 {
		return fmt.Errorf("%w: at least one sector is required", ErrValidation)
	}
	for _, sectorID := range in.SectorIDs {
		if _, err := e.repo.GetSectorByID(ctx, eventID, sectorID); err != nil {
			return fmt.Errorf("%w: unknown sector %s", ErrValidation, sectorID)
		}
	}
	return nil
}

func (e *Engine) Register(ctx context.Context, eventID string, in RegisterInput) (*model.Attendee, error) {
	if _, err := e.repo.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	if err := e.validateRegister(ctx, eventID, &in); err != nil {
		return nil, err
	}

	photoURL, err := e.photos.Save(eventID, in.Photo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	status := model.StatusPending
	if in.RequireApproval {
		status = model.StatusPendingApproval
	}

	a := &model.Attendee{
		ID:         uuid.NewString(),
		EventID:    eventID,
		Name:       strings.TrimSpace(in.Name),
		CPF:        in.CPF,
		Photo:      photoURL,
		SectorIDs:  append([]string(nil), in.SectorIDs...),
		SubCompany: in.SubCompany,
		SupplierID: in.SupplierID,
		Status:     status,
	}
	if err := e.repo.RegisterAttendeeTx(ctx, a); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("attendee_id", a.ID).
		Str("event_id", eventID).
		Str("status", a.Status.String()).
		Msg("attendee registered")
	e.notify(ctx, eventID, a.ID, "created")
	return a, nil
}

// CheckIn moves a PENDING attendee to CHECKED_IN and binds the supplied
// wristband codes. Sectors absent from the call keep whatever wristband
// they already had; the write is all-or-nothing.
func (e *Engine) CheckIn(ctx context.Context, attendeeID string, wristbands map[string]string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(model.StatusCheckedIn) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusCheckedIn)
	}

	touched := make(map[string]string)
	for sectorID, code := range wristbands {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if !contains(a.SectorIDs, sectorID) {
			return nil, fmt.Errorf("%w: attendee is not assigned to sector %s", ErrValidation, sectorID)
		}
		touched[sectorID] = code
	}

	staged := a.Clone()
	staged.Status = model.StatusCheckedIn
	now := time.Now()
	staged.CheckinAt = &now
	if staged.Wristbands == nil {
		staged.Wristbands = make(map[string]string)
	}
	for sectorID, code := range touched {
		staged.Wristbands[sectorID] = code
	}

	if err := e.repo.CheckInTx(ctx, staged, touched); err != nil {
		return nil, err
	}

	e.log.Info().Str("attendee_id", attendeeID).Msg("attendee checked in")
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// RevertCheckIn returns a checked-in attendee to PENDING. Issued
// wristbands are retained; ClearWristbands exists for explicit clearing.
func (e *Engine) RevertCheckIn(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	return e.transition(ctx, attendeeID, model.StatusCheckedIn, model.StatusPending, func(a *model.Attendee) {
		a.CheckinAt = nil
	})
}

func (e *Engine) CheckOut(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	return e.transition(ctx, attendeeID, model.StatusCheckedIn, model.StatusCheckedOut, nil)
}

func (e *Engine) Cancel(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	return e.transition(ctx, attendeeID, model.StatusPending, model.StatusCancelled, nil)
}

// transition performs a guarded single-status move with an optional extra
// mutation applied to the staged record.
func (e *Engine) transition(ctx context.Context, attendeeID string, from, to model.Status, mutate func(*model.Attendee)) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.Status != from || !a.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	staged := a.Clone()
	staged.Status = to
	if mutate != nil {
		mutate(staged)
	}
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// Block revokes access from any status, keeping an optional reason.
func (e *Engine) Block(ctx context.Context, attendeeID, reason string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	staged := a.Clone()
	staged.Status = model.StatusBlocked
	staged.BlockReason = strings.TrimSpace(reason)
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.log.Info().Str("attendee_id", attendeeID).Str("reason", staged.BlockReason).Msg("attendee blocked")
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

func (e *Engine) Unblock(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	return e.transition(ctx, attendeeID, model.StatusBlocked, model.StatusPending, func(a *model.Attendee) {
		a.BlockReason = ""
	})
}

// SetStatus is the organizer escape hatch: it bypasses the transition
// table. Every use is logged.
func (e *Engine) SetStatus(ctx context.Context, attendeeID string, st model.Status) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	staged := a.Clone()
	staged.Status = st
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.log.Warn().
		Str("attendee_id", attendeeID).
		Str("from", a.Status.String()).
		Str("to", st.String()).
		Msg("status set directly, bypassing transition guard")
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// OpenSubstitution explicitly opens the slot for a replacement person.
func (e *Engine) OpenSubstitution(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPending && a.Status != model.StatusMissed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusSubstitution)
	}
	staged := a.Clone()
	staged.Status = model.StatusSubstitution
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// RequestSubstitution stages a replacement person without touching the
// attendee's own identity fields. An attendee can hold at most one pending
// request at a time.
func (e *Engine) RequestSubstitution(ctx context.Context, attendeeID string, data model.SubstitutionData) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.StatusPending, model.StatusMissed, model.StatusSubstitution:
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusSubstitutionRequest)
	}
	if a.SectorChange != nil {
		return nil, ErrPendingRequestExists
	}

	data.Name = strings.TrimSpace(data.Name)
	data.CPF = validator.StripCPF(data.CPF)
	if data.Name == "" || len(data.CPF) != 11 {
		return nil, fmt.Errorf("%w: replacement needs a name and an 11-digit CPF", ErrValidation)
	}
	for _, sectorID := range data.SectorIDs {
		if _, err := e.repo.GetSectorByID(ctx, a.EventID, sectorID); err != nil {
			return nil, fmt.Errorf("%w: unknown sector %s", ErrValidation, sectorID)
		}
	}
	// inline payloads are stored now so the pending record only ever
	// holds a reference
	if data.Photo != "" {
		url, err := e.photos.Save(a.EventID, data.Photo)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		data.Photo = url
	}

	staged := a.Clone()
	staged.Status = model.StatusSubstitutionRequest
	staged.Substitution = &data
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.log.Info().Str("attendee_id", attendeeID).Msg("substitution requested")
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// ApproveSubstitution applies the staged replacement as an atomic,
// destructive replace of the identity fields. The pending data is
// validated in full before anything is written.
func (e *Engine) ApproveSubstitution(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.Substitution == nil {
		return nil, ErrMissingSubstitutionData
	}

	sub := *a.Substitution
	sub.Name = strings.TrimSpace(sub.Name)
	sub.CPF = validator.StripCPF(strings.TrimSpace(sub.CPF))
	if sub.Name == "" || len(sub.CPF) != 11 {
		return nil, ErrInvalidSubstitutionData
	}

	// the replacement must not collide with another attendee's CPF
	if sub.CPF != a.CPF {
		others, err := e.repo.GetAttendeesByEventID(ctx, a.EventID)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			if other.ID != a.ID && other.CPF == sub.CPF {
				return nil, repo.ErrDuplicateCpf
			}
		}
	}

	photoURL := sub.Photo
	if photos.IsInline(photoURL) {
		photoURL, err = e.photos.Save(a.EventID, photoURL)
		if err != nil {
			return nil, ErrInvalidSubstitutionData
		}
	}

	staged := a.Clone()
	staged.Name = sub.Name
	staged.CPF = sub.CPF
	if photoURL != "" {
		staged.Photo = photoURL
	}
	if len(sub.SectorIDs) > 0 {
		staged.SectorIDs = append([]string(nil), sub.SectorIDs...)
	}
	staged.Substitution = nil
	staged.Status = model.StatusPending
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}

	e.log.Info().Str("attendee_id", attendeeID).Msg("substitution approved")
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// RejectSubstitution discards the proposal; rejection never advances
// state, it only clears the pending data and returns to PENDING.
func (e *Engine) RejectSubstitution(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	return e.transition(ctx, attendeeID, model.StatusSubstitutionRequest, model.StatusPending, func(a *model.Attendee) {
		a.Substitution = nil
	})
}

func (e *Engine) RequestSectorChange(ctx context.Context, attendeeID, sectorID, justification string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.StatusPending, model.StatusMissed:
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusSectorChangeRequest)
	}
	if a.Substitution != nil {
		return nil, ErrPendingRequestExists
	}
	if _, err := e.repo.GetSectorByID(ctx, a.EventID, sectorID); err != nil {
		return nil, fmt.Errorf("%w: unknown sector %s", ErrValidation, sectorID)
	}

	staged := a.Clone()
	staged.Status = model.StatusSectorChangeRequest
	staged.SectorChange = &model.SectorChangeData{
		SectorID:      sectorID,
		Justification: strings.TrimSpace(justification),
	}
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

func (e *Engine) ApproveSectorChange(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.SectorChange == nil {
		return nil, ErrMissingSectorChangeData
	}
	if _, err := e.repo.GetSectorByID(ctx, a.EventID, a.SectorChange.SectorID); err != nil {
		return nil, fmt.Errorf("%w: unknown sector %s", ErrValidation, a.SectorChange.SectorID)
	}

	staged := a.Clone()
	staged.SectorIDs = []string{a.SectorChange.SectorID}
	staged.SectorChange = nil
	staged.Status = model.StatusPending
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.log.Info().Str("attendee_id", attendeeID).Msg("sector change approved")
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

func (e *Engine) RejectSectorChange(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	return e.transition(ctx, attendeeID, model.StatusSectorChangeRequest, model.StatusPending, func(a *model.Attendee) {
		a.SectorChange = nil
	})
}

// ApproveRegistration accepts a supplier-submitted registration.
func (e *Engine) ApproveRegistration(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPendingApproval || a.RemovalRequested {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusPending)
	}
	staged := a.Clone()
	staged.Status = model.StatusPending
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

func (e *Engine) RejectRegistration(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPendingApproval || a.RemovalRequested {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusRejected)
	}
	staged := a.Clone()
	staged.Status = model.StatusRejected
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// RequestRemoval is the supplier-side proposal to drop one of their own
// registrations; it parks the attendee in PENDING_APPROVAL until the
// organizer decides.
func (e *Engine) RequestRemoval(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusPendingApproval)
	}
	staged := a.Clone()
	staged.Status = model.StatusPendingApproval
	staged.RemovalRequested = true
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

func (e *Engine) ApproveRemoval(ctx context.Context, attendeeID string) error {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return err
	}
	if a.Status != model.StatusPendingApproval || !a.RemovalRequested {
		return ErrNoRemovalRequested
	}
	if err := e.repo.DeleteAttendeeTx(ctx, attendeeID); err != nil {
		return err
	}
	e.log.Info().Str("attendee_id", attendeeID).Msg("removal approved, attendee deleted")
	e.notify(ctx, a.EventID, attendeeID, "deleted")
	return nil
}

func (e *Engine) RejectRemoval(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPendingApproval || !a.RemovalRequested {
		return nil, ErrNoRemovalRequested
	}
	staged := a.Clone()
	staged.Status = model.StatusPending
	staged.RemovalRequested = false
	if err := e.repo.UpdateAttendee(ctx, staged); err != nil {
		return nil, err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return staged, nil
}

// Delete is the irreversible hard removal; there is no tombstone.
func (e *Engine) Delete(ctx context.Context, attendeeID string) error {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return err
	}
	if err := e.repo.DeleteAttendeeTx(ctx, attendeeID); err != nil {
		return err
	}
	e.notify(ctx, a.EventID, attendeeID, "deleted")
	return nil
}

func (e *Engine) ClearWristbands(ctx context.Context, attendeeID string) error {
	a, err := e.repo.GetAttendeeByID(ctx, attendeeID)
	if err != nil {
		return err
	}
	if err := e.repo.ClearWristbandsTx(ctx, attendeeID); err != nil {
		return err
	}
	e.notify(ctx, a.EventID, attendeeID, "updated")
	return nil
}

// BulkReassignSectors overwrites the sector assignment of the whole batch
// in one all-or-nothing write.
func (e *Engine) BulkReassignSectors(ctx context.Context, eventID string, attendeeIDs, sectorIDs []string) error {
	if len(attendeeIDs) == 0 {
		return fmt.Errorf("%w: no attendees given", ErrValidation)
	}
	if len(sectorIDs) == 0 {
		return fmt.Errorf("%w: at least one sector is required", ErrValidation)
	}
	for _, sectorID := range sectorIDs {
		if _, err := e.repo.GetSectorByID(ctx, eventID, sectorID); err != nil {
			return fmt.Errorf("%w: unknown sector %s", ErrValidation, sectorID)
		}
	}
	if err := e.repo.BulkReassignSectorsTx(ctx, eventID, attendeeIDs, sectorIDs); err != nil {
		return err
	}
	e.log.Info().Int("count", len(attendeeIDs)).Str("event_id", eventID).Msg("sectors reassigned in bulk")
	for _, id := range attendeeIDs {
		e.notify(ctx, eventID, id, "updated")
	}
	return nil
}

// ImportResult is the outcome of one spreadsheet row. Import is row-wise,
// not all-or-nothing: good rows land even when bad rows are rejected.
type ImportResult struct {
	Row      repo.ImportRow `json:"row"`
	Attendee string         `json:"attendee_id,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (e *Engine) ImportRows(ctx context.Context, eventID string, rows []repo.ImportRow) ([]ImportResult, error) {
	if _, err := e.repo.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	results := make([]ImportResult, 0, len(rows))
	for _, row := range rows {
		sector, err := e.repo.GetSectorByLabel(ctx, eventID, row.SectorLabel)
		if err != nil {
			results = append(results, ImportResult{Row: row, Error: "unknown sector: " + row.SectorLabel})
			continue
		}
		name := strings.TrimSpace(row.Name)
		cpf := validator.StripCPF(row.CPF)
		if name == "" || len(cpf) != 11 {
			results = append(results, ImportResult{Row: row, Error: "name and an 11-digit CPF are required"})
			continue
		}
		// imported guests arrive without a photo; it is captured at the door
		a := &model.Attendee{
			ID:        uuid.NewString(),
			EventID:   eventID,
			Name:      name,
			CPF:       cpf,
			SectorIDs: []string{sector.ID},
			Status:    model.StatusPending,
		}
		if err := e.repo.RegisterAttendeeTx(ctx, a); err != nil {
			results = append(results, ImportResult{Row: row, Error: err.Error()})
			continue
		}
		e.notify(ctx, eventID, a.ID, "created")
		results = append(results, ImportResult{Row: row, Attendee: a.ID})
	}
	return results, nil
}

// MarkMissed flips every still-PENDING attendee of an ended event to
// MISSED. Invoked by the delayed sweep consumer.
func (e *Engine) MarkMissed(ctx context.Context, eventID string) (int, error) {
	n, err := e.repo.MarkMissedTx(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info().Int("count", n).Str("event_id", eventID).Msg("pending attendees marked missed")
		e.notify(ctx, eventID, "", "updated")
	}
	return n, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
