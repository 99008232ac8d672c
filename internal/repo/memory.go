package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gatecheck/internal/model"
)

// memoryRepository keeps everything in maps behind one mutex. It enforces
// the same store-level invariants as the postgres implementation (per-event
// CPF uniqueness, supplier capacity under lock, wristband uniqueness per
// sector) so the engine behaves identically in the memory storage mode and
// in tests.
type memoryRepository struct {
	mu        sync.Mutex
	events    map[string]*model.Event
	sectors   map[string]*model.Sector
	suppliers map[string]*model.Supplier
	attendees map[string]*model.Attendee
	tokens    map[string]*model.Token
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		events:    make(map[string]*model.Event),
		sectors:   make(map[string]*model.Sector),
		suppliers: make(map[string]*model.Supplier),
		attendees: make(map[string]*model.Attendee),
		tokens:    make(map[string]*model.Token),
	}
}

func (r *memoryRepository) MigrateUp(string) error   { return nil }
func (r *memoryRepository) MigrateDown(string) error { return nil }

// ---- events ----

func (r *memoryRepository) CreateEvent(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	c := *e
	c.CreatedAt, c.UpdatedAt = now, now
	r.events[e.ID] = &c
	*e = c
	return nil
}

func (r *memoryRepository) GetEventByID(_ context.Context, id string) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	c := *e
	return &c, nil
}

func (r *memoryRepository) GetAllEvents(_ context.Context) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) UpdateEvent(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[e.ID]
	if !ok {
		return ErrEventNotFound
	}
	c := *e
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = time.Now()
	r.events[e.ID] = &c
	return nil
}

func (r *memoryRepository) DeleteEventCascadeTx(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(r.events, id)
	for aid, a := range r.attendees {
		if a.EventID == id {
			delete(r.attendees, aid)
		}
	}
	for sid, s := range r.sectors {
		if s.EventID == id {
			delete(r.sectors, sid)
		}
	}
	for sid, s := range r.suppliers {
		if s.EventID == id {
			delete(r.suppliers, sid)
		}
	}
	for tok, t := range r.tokens {
		if t.EventID == id {
			delete(r.tokens, tok)
		}
	}
	return nil
}

// ---- sectors ----

func (r *memoryRepository) CreateSector(_ context.Context, s *model.Sector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.sectors[s.ID] = &c
	return nil
}

func (r *memoryRepository) UpdateSector(_ context.Context, s *model.Sector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sectors[s.ID]
	if !ok || stored.EventID != s.EventID {
		return ErrSectorNotFound
	}
	c := *s
	r.sectors[s.ID] = &c
	return nil
}

func (r *memoryRepository) DeleteSectorTx(_ context.Context, eventID, sectorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sectors[sectorID]
	if !ok || stored.EventID != eventID {
		return ErrSectorNotFound
	}
	for _, a := range r.attendees {
		if a.EventID == eventID && containsString(a.SectorIDs, sectorID) {
			return ErrResourceInUse
		}
	}
	for _, s := range r.suppliers {
		if s.EventID == eventID && containsString(s.SectorIDs, sectorID) {
			return ErrResourceInUse
		}
	}
	delete(r.sectors, sectorID)
	return nil
}

func (r *memoryRepository) GetSectorByID(_ context.Context, eventID, sectorID string) (*model.Sector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sectors[sectorID]
	if !ok || s.EventID != eventID {
		return nil, ErrSectorNotFound
	}
	c := *s
	return &c, nil
}

func (r *memoryRepository) GetSectorsByEventID(_ context.Context, eventID string) ([]model.Sector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Sector
	for _, s := range r.sectors {
		if s.EventID == eventID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (r *memoryRepository) GetSectorByLabel(_ context.Context, eventID, label string) (*model.Sector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sectors {
		if s.EventID == eventID && strings.EqualFold(s.Label, label) {
			c := *s
			return &c, nil
		}
	}
	return nil, ErrSectorNotFound
}

// ---- suppliers ----

func (r *memoryRepository) CreateSupplierTx(_ context.Context, s *model.Supplier, tokens []model.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	c.CreatedAt = time.Now()
	r.suppliers[s.ID] = &c
	*s = c
	for _, t := range tokens {
		tc := t
		tc.CreatedAt = time.Now()
		r.tokens[t.Token] = &tc
	}
	return nil
}

func (r *memoryRepository) UpdateSupplier(_ context.Context, s *model.Supplier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.suppliers[s.ID]
	if !ok {
		return ErrSupplierNotFound
	}
	c := *s
	c.CreatedAt = stored.CreatedAt
	r.suppliers[s.ID] = &c
	return nil
}

func (r *memoryRepository) DeleteSupplierTx(_ context.Context, eventID, supplierID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.suppliers[supplierID]
	if !ok || stored.EventID != eventID {
		return ErrSupplierNotFound
	}
	for _, a := range r.attendees {
		if a.SupplierID == supplierID {
			return ErrResourceInUse
		}
	}
	delete(r.suppliers, supplierID)
	for tok, t := range r.tokens {
		if t.SupplierID == supplierID {
			delete(r.tokens, tok)
		}
	}
	return nil
}

func (r *memoryRepository) GetSupplierByID(_ context.Context, supplierID string) (*model.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suppliers[supplierID]
	if !ok {
		return nil, ErrSupplierNotFound
	}
	c := *s
	return &c, nil
}

func (r *memoryRepository) GetSuppliersByEventID(_ context.Context, eventID string) ([]model.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Supplier
	for _, s := range r.suppliers {
		if s.EventID == eventID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepository) CountAttendeesBySupplier(_ context.Context, supplierID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countSupplierLocked(supplierID), nil
}

func (r *memoryRepository) countSupplierLocked(supplierID string) int {
	count := 0
	for _, a := range r.attendees {
		if a.SupplierID == supplierID {
			count++
		}
	}
	return count
}

// ---- attendees ----

func (r *memoryRepository) RegisterAttendeeTx(_ context.Context, a *model.Attendee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.SupplierID != "" {
		s, ok := r.suppliers[a.SupplierID]
		if !ok {
			return ErrSupplierNotFound
		}
		if !s.Active {
			return ErrSupplierInactive
		}
		if r.countSupplierLocked(a.SupplierID)+1 > s.Limit {
			return ErrCapacityExceeded
		}
	}
	for _, existing := range r.attendees {
		if existing.EventID == a.EventID && existing.CPF == a.CPF {
			return ErrDuplicateCpf
		}
	}

	now := time.Now()
	c := a.Clone()
	c.CreatedAt, c.UpdatedAt = now, now
	r.attendees[a.ID] = c
	*a = *c.Clone()
	return nil
}

func (r *memoryRepository) GetAttendeeByID(_ context.Context, id string) (*model.Attendee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attendees[id]
	if !ok {
		return nil, ErrAttendeeNotFound
	}
	return a.Clone(), nil
}

func (r *memoryRepository) GetAttendeesByEventID(_ context.Context, eventID string) ([]model.Attendee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Attendee
	for _, a := range r.attendees {
		if a.EventID == eventID {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepository) GetAttendeesByStatus(_ context.Context, eventID string, st model.Status) ([]model.Attendee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Attendee
	for _, a := range r.attendees {
		if a.EventID == eventID && a.Status == st {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepository) GetAttendeesBySupplier(_ context.Context, supplierID string) ([]model.Attendee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Attendee
	for _, a := range r.attendees {
		if a.SupplierID == supplierID {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepository) UpdateAttendee(_ context.Context, a *model.Attendee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.attendees[a.ID]
	if !ok {
		return ErrAttendeeNotFound
	}
	c := a.Clone()
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = time.Now()
	r.attendees[a.ID] = c
	return nil
}

func (r *memoryRepository) DeleteAttendeeTx(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attendees[id]; !ok {
		return ErrAttendeeNotFound
	}
	delete(r.attendees, id)
	return nil
}

func (r *memoryRepository) CheckInTx(_ context.Context, a *model.Attendee, touched map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.attendees[a.ID]
	if !ok {
		return ErrAttendeeNotFound
	}

	var conflicts []WristbandConflict
	for sectorID, code := range touched {
		for _, other := range r.attendees {
			if other.ID == a.ID || other.EventID != a.EventID {
				continue
			}
			if other.Wristbands[sectorID] == code {
				conflicts = append(conflicts, WristbandConflict{SectorID: sectorID, Code: code})
				break
			}
		}
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].SectorID < conflicts[j].SectorID })
		return &DuplicateWristbandError{Conflicts: conflicts}
	}

	c := a.Clone()
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = time.Now()
	r.attendees[a.ID] = c
	return nil
}

func (r *memoryRepository) ClearWristbandsTx(_ context.Context, attendeeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attendees[attendeeID]
	if !ok {
		return ErrAttendeeNotFound
	}
	a.Wristbands = nil
	a.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepository) BulkReassignSectorsTx(_ context.Context, eventID string, attendeeIDs []string, sectorIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// validate the whole batch before touching anything
	for _, id := range attendeeIDs {
		a, ok := r.attendees[id]
		if !ok || a.EventID != eventID {
			return ErrAttendeeNotFound
		}
	}
	now := time.Now()
	for _, id := range attendeeIDs {
		a := r.attendees[id]
		a.SectorIDs = append(a.SectorIDs[:0:0], sectorIDs...)
		a.UpdatedAt = now
	}
	return nil
}

func (r *memoryRepository) MarkMissedTx(_ context.Context, eventID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	now := time.Now()
	for _, a := range r.attendees {
		if a.EventID == eventID && a.Status == model.StatusPending {
			a.Status = model.StatusMissed
			a.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// ---- tokens ----

func (r *memoryRepository) GetTokenByValue(_ context.Context, token string) (*model.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	c := *t
	return &c, nil
}

func (r *memoryRepository) GetTokensBySupplier(_ context.Context, supplierID string) ([]model.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Token
	for _, t := range r.tokens {
		if t.SupplierID == supplierID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Purpose < out[j].Purpose })
	return out, nil
}

func (r *memoryRepository) RegenerateTokenTx(_ context.Context, t *model.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tok, existing := range r.tokens {
		if existing.EventID == t.EventID && existing.SupplierID == t.SupplierID && existing.Purpose == t.Purpose {
			delete(r.tokens, tok)
		}
	}
	c := *t
	c.CreatedAt = time.Now()
	r.tokens[t.Token] = &c
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
