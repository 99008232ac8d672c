package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"gatecheck/internal/model"
	"gatecheck/internal/realtime"
	"gatecheck/internal/repo"
)

// stubPhotos returns a fixed URL so tests never touch the filesystem.
type stubPhotos struct{}

func (stubPhotos) Save(eventID, payload string) (string, error) {
	if payload == "" {
		return "", errors.New("empty payload")
	}
	return "/photos/" + eventID + "/stub.jpg", nil
}

type fixture struct {
	engine *Engine
	repo   repo.Repository
	event  *model.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := repo.NewMemoryRepository()
	log := zerolog.Nop()
	e := NewEngine(r, stubPhotos{}, realtime.NewLocalBus(), &log)

	event := &model.Event{ID: "ev1", Name: "Launch Party"}
	if err := r.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("create event: %v", err)
	}
	for _, s := range []model.Sector{
		{ID: "vip", EventID: "ev1", Label: "VIP", Color: "ffaa00"},
		{ID: "backstage", EventID: "ev1", Label: "Backstage", Color: "00aaff"},
	} {
		sec := s
		if err := r.CreateSector(context.Background(), &sec); err != nil {
			t.Fatalf("create sector: %v", err)
		}
	}
	return &fixture{engine: e, repo: r, event: event}
}

func (f *fixture) register(t *testing.T, name, cpf string, sectors ...string) *model.Attendee {
	t.Helper()
	if len(sectors) == 0 {
		sectors = []string{"vip"}
	}
	a, err := f.engine.Register(context.Background(), f.event.ID, RegisterInput{
		Name:      name,
		CPF:       cpf,
		Photo:     "data:image/jpeg;base64,Zm9v",
		SectorIDs: sectors,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return a
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{CPF: "12345678901", Photo: "x", SectorIDs: []string{"vip"}}},
		{"short cpf", RegisterInput{Name: "Ana", CPF: "123", Photo: "x", SectorIDs: []string{"vip"}}},
		{"missing photo", RegisterInput{Name: "Ana", CPF: "12345678901", SectorIDs: []string{"vip"}}},
		{"no sectors", RegisterInput{Name: "Ana", CPF: "12345678901", Photo: "x"}},
		{"unknown sector", RegisterInput{Name: "Ana", CPF: "12345678901", Photo: "x", SectorIDs: []string{"nope"}}},
	}
	for _, tc := range cases {
		if _, err := f.engine.Register(ctx, f.event.ID, tc.in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: want ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestRegisterStripsCPFFormatting(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "Ana", "123.456.789-01")
	if a.CPF != "12345678901" {
		t.Fatalf("want normalized cpf, got %q", a.CPF)
	}
}

func TestRegisterDuplicateCPF(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ana", "12345678901")
	_, err := f.engine.Register(context.Background(), f.event.ID, RegisterInput{
		Name: "Bia", CPF: "12345678901", Photo: "x", SectorIDs: []string{"vip"},
	})
	if !errors.Is(err, repo.ErrDuplicateCpf) {
		t.Fatalf("want ErrDuplicateCpf, got %v", err)
	}
}

func TestSupplierCapacityLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sup := &model.Supplier{ID: "acme", EventID: f.event.ID, Name: "Acme", SectorIDs: []string{"vip"}, Limit: 2, Active: true}
	if err := f.repo.CreateSupplierTx(ctx, sup, nil); err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	for i, cpf := range []string{"11111111111", "22222222222"} {
		_, err := f.engine.Register(ctx, f.event.ID, RegisterInput{
			Name: "Guest", CPF: cpf, Photo: "x", SectorIDs: []string{"vip"}, SupplierID: "acme",
		})
		if err != nil {
			t.Fatalf("register %d under limit: %v", i, err)
		}
	}
	_, err := f.engine.Register(ctx, f.event.ID, RegisterInput{
		Name: "Third", CPF: "33333333333", Photo: "x", SectorIDs: []string{"vip"}, SupplierID: "acme",
	})
	if !errors.Is(err, repo.ErrCapacityExceeded) {
		t.Fatalf("want ErrCapacityExceeded, got %v", err)
	}
}

func TestInactiveSupplierRejectsRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sup := &model.Supplier{ID: "acme", EventID: f.event.ID, Name: "Acme", SectorIDs: []string{"vip"}, Limit: 10, Active: false}
	if err := f.repo.CreateSupplierTx(ctx, sup, nil); err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	_, err := f.engine.Register(ctx, f.event.ID, RegisterInput{
		Name: "Guest", CPF: "11111111111", Photo: "x", SectorIDs: []string{"vip"}, SupplierID: "acme",
	})
	if !errors.Is(err, repo.ErrSupplierInactive) {
		t.Fatalf("want ErrSupplierInactive, got %v", err)
	}
}

func TestCheckInBindsWristbands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "12345678901", "vip", "backstage")

	got, err := f.engine.CheckIn(ctx, a.ID, map[string]string{"vip": "W100"})
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if got.Status != model.StatusCheckedIn {
		t.Fatalf("want CHECKED_IN, got %s", got.Status)
	}
	if got.CheckinAt == nil {
		t.Fatal("checkin timestamp not set")
	}
	if got.Wristbands["vip"] != "W100" {
		t.Fatalf("wristband not bound: %v", got.Wristbands)
	}
	if _, ok := got.Wristbands["backstage"]; ok {
		t.Fatal("untouched sector gained a wristband")
	}
}

func TestCheckInRejectsUnassignedSector(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "Ana", "12345678901", "vip")
	_, err := f.engine.CheckIn(context.Background(), a.ID, map[string]string{"backstage": "W1"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestWristbandCodeConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	b := f.register(t, "Bia", "22222222222", "vip")

	if _, err := f.engine.CheckIn(ctx, a.ID, map[string]string{"vip": "W100"}); err != nil {
		t.Fatalf("first checkin: %v", err)
	}
	_, err := f.engine.CheckIn(ctx, b.ID, map[string]string{"vip": "W100"})
	var dup *repo.DuplicateWristbandError
	if !errors.As(err, &dup) {
		t.Fatalf("want DuplicateWristbandError, got %v", err)
	}
	if len(dup.Conflicts) != 1 || dup.Conflicts[0].Code != "W100" || dup.Conflicts[0].SectorID != "vip" {
		t.Fatalf("wrong conflict detail: %+v", dup.Conflicts)
	}

	stored, err := f.repo.GetAttendeeByID(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != model.StatusPending {
		t.Fatalf("failed checkin must not change status, got %s", stored.Status)
	}
}

func TestSameCodeAcrossSectorsIsAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	b := f.register(t, "Bia", "22222222222", "backstage")

	if _, err := f.engine.CheckIn(ctx, a.ID, map[string]string{"vip": "W100"}); err != nil {
		t.Fatalf("first checkin: %v", err)
	}
	if _, err := f.engine.CheckIn(ctx, b.ID, map[string]string{"backstage": "W100"}); err != nil {
		t.Fatalf("same code in another sector must be fine: %v", err)
	}
}

func TestRevertCheckInKeepsWristbands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	if _, err := f.engine.CheckIn(ctx, a.ID, map[string]string{"vip": "W7"}); err != nil {
		t.Fatal(err)
	}

	got, err := f.engine.RevertCheckIn(ctx, a.ID)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("want PENDING, got %s", got.Status)
	}
	if got.CheckinAt != nil {
		t.Fatal("checkin timestamp should be cleared")
	}
	if got.Wristbands["vip"] != "W7" {
		t.Fatal("revert must keep issued wristbands")
	}
}

func TestClearWristbands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	if _, err := f.engine.CheckIn(ctx, a.ID, map[string]string{"vip": "W7"}); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ClearWristbands(ctx, a.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stored, _ := f.repo.GetAttendeeByID(ctx, a.ID)
	if len(stored.Wristbands) != 0 {
		t.Fatalf("wristbands not cleared: %v", stored.Wristbands)
	}

	// the freed code is immediately reusable by someone else
	b := f.register(t, "Bia", "22222222222", "vip")
	if _, err := f.engine.CheckIn(ctx, b.ID, map[string]string{"vip": "W7"}); err != nil {
		t.Fatalf("freed code should be reusable: %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")

	if _, err := f.engine.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("cancel from PENDING: %v", err)
	}
	// CANCELLED is terminal
	if _, err := f.engine.CheckIn(ctx, a.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
	if _, err := f.engine.CheckOut(ctx, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}

func TestBlockFromAnyStatusAndUnblock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	if _, err := f.engine.CheckIn(ctx, a.ID, nil); err != nil {
		t.Fatal(err)
	}

	got, err := f.engine.Block(ctx, a.ID, "lost credential")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if got.Status != model.StatusBlocked || got.BlockReason != "lost credential" {
		t.Fatalf("block state wrong: %s %q", got.Status, got.BlockReason)
	}

	got, err = f.engine.Unblock(ctx, a.ID)
	if err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if got.Status != model.StatusPending || got.BlockReason != "" {
		t.Fatalf("unblock state wrong: %s %q", got.Status, got.BlockReason)
	}
}

func TestSubstitutionRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")

	_, err := f.engine.RequestSubstitution(ctx, a.ID, model.SubstitutionData{
		Name: "Carla", CPF: "333.333.333-33", SectorIDs: []string{"backstage"},
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	got, err := f.engine.ApproveSubstitution(ctx, a.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Name != "Carla" || got.CPF != "33333333333" {
		t.Fatalf("identity not replaced: %s %s", got.Name, got.CPF)
	}
	if len(got.SectorIDs) != 1 || got.SectorIDs[0] != "backstage" {
		t.Fatalf("sectors not replaced: %v", got.SectorIDs)
	}
	if got.Substitution != nil {
		t.Fatal("pending data not cleared")
	}
	if got.Status != model.StatusPending {
		t.Fatalf("want PENDING after approval, got %s", got.Status)
	}
}

func TestApproveSubstitutionWithoutDataFails(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "Ana", "11111111111", "vip")
	_, err := f.engine.ApproveSubstitution(context.Background(), a.ID)
	if !errors.Is(err, ErrMissingSubstitutionData) {
		t.Fatalf("want ErrMissingSubstitutionData, got %v", err)
	}
}

func TestApproveSubstitutionRejectsDuplicateCPF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Bia", "22222222222", "vip")
	a := f.register(t, "Ana", "11111111111", "vip")

	if _, err := f.engine.RequestSubstitution(ctx, a.ID, model.SubstitutionData{Name: "Clone", CPF: "22222222222"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.ApproveSubstitution(ctx, a.ID)
	if !errors.Is(err, repo.ErrDuplicateCpf) {
		t.Fatalf("want ErrDuplicateCpf, got %v", err)
	}

	// the failed approval must leave the original identity untouched
	stored, _ := f.repo.GetAttendeeByID(ctx, a.ID)
	if stored.Name != "Ana" || stored.CPF != "11111111111" {
		t.Fatalf("record mutated by failed approval: %s %s", stored.Name, stored.CPF)
	}
}

func TestRejectSubstitutionClearsData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	if _, err := f.engine.RequestSubstitution(ctx, a.ID, model.SubstitutionData{Name: "Carla", CPF: "33333333333"}); err != nil {
		t.Fatal(err)
	}

	got, err := f.engine.RejectSubstitution(ctx, a.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != model.StatusPending || got.Substitution != nil {
		t.Fatalf("reject should return to PENDING with no pending data: %s", got.Status)
	}
	if got.Name != "Ana" {
		t.Fatal("reject must not touch identity")
	}
}

func TestPendingRequestsAreMutuallyExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")

	if _, err := f.engine.RequestSectorChange(ctx, a.ID, "backstage", "promo"); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.RequestSubstitution(ctx, a.ID, model.SubstitutionData{Name: "Carla", CPF: "33333333333"})
	if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrPendingRequestExists) {
		t.Fatalf("want a pending-exclusivity failure, got %v", err)
	}
}

func TestSectorChangeRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")

	if _, err := f.engine.RequestSectorChange(ctx, a.ID, "backstage", "artist request"); err != nil {
		t.Fatalf("request: %v", err)
	}
	got, err := f.engine.ApproveSectorChange(ctx, a.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(got.SectorIDs) != 1 || got.SectorIDs[0] != "backstage" {
		t.Fatalf("sector not applied: %v", got.SectorIDs)
	}
	if got.SectorChange != nil || got.Status != model.StatusPending {
		t.Fatalf("pending data not cleared: %s", got.Status)
	}
}

func TestRegistrationApprovalFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.engine.Register(ctx, f.event.ID, RegisterInput{
		Name: "Ana", CPF: "11111111111", Photo: "x", SectorIDs: []string{"vip"}, RequireApproval: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != model.StatusPendingApproval {
		t.Fatalf("want PENDING_APPROVAL, got %s", a.Status)
	}

	got, err := f.engine.ApproveRegistration(ctx, a.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("want PENDING, got %s", got.Status)
	}
}

func TestRegistrationRejectFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.engine.Register(ctx, f.event.ID, RegisterInput{
		Name: "Ana", CPF: "11111111111", Photo: "x", SectorIDs: []string{"vip"}, RequireApproval: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.engine.RejectRegistration(ctx, a.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != model.StatusRejected {
		t.Fatalf("want REJECTED, got %s", got.Status)
	}
}

func TestRemovalProposalFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")

	got, err := f.engine.RequestRemoval(ctx, a.ID)
	if err != nil {
		t.Fatalf("request removal: %v", err)
	}
	if got.Status != model.StatusPendingApproval || !got.RemovalRequested {
		t.Fatalf("removal request state wrong: %s %v", got.Status, got.RemovalRequested)
	}

	if err := f.engine.ApproveRemoval(ctx, a.ID); err != nil {
		t.Fatalf("approve removal: %v", err)
	}
	if _, err := f.repo.GetAttendeeByID(ctx, a.ID); !errors.Is(err, repo.ErrAttendeeNotFound) {
		t.Fatalf("attendee should be gone, got %v", err)
	}
}

func TestRejectRemovalRestoresPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	if _, err := f.engine.RequestRemoval(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	got, err := f.engine.RejectRemoval(ctx, a.ID)
	if err != nil {
		t.Fatalf("reject removal: %v", err)
	}
	if got.Status != model.StatusPending || got.RemovalRequested {
		t.Fatalf("reject removal state wrong: %s %v", got.Status, got.RemovalRequested)
	}
}

func TestBulkReassignSectors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	b := f.register(t, "Bia", "22222222222", "vip")

	if err := f.engine.BulkReassignSectors(ctx, f.event.ID, []string{a.ID, b.ID}, []string{"backstage"}); err != nil {
		t.Fatalf("bulk reassign: %v", err)
	}
	for _, id := range []string{a.ID, b.ID} {
		got, _ := f.repo.GetAttendeeByID(ctx, id)
		if len(got.SectorIDs) != 1 || got.SectorIDs[0] != "backstage" {
			t.Fatalf("sectors not reassigned for %s: %v", id, got.SectorIDs)
		}
	}
}

func TestBulkReassignIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")

	err := f.engine.BulkReassignSectors(ctx, f.event.ID, []string{a.ID, "ghost"}, []string{"backstage"})
	if !errors.Is(err, repo.ErrAttendeeNotFound) {
		t.Fatalf("want ErrAttendeeNotFound, got %v", err)
	}
	got, _ := f.repo.GetAttendeeByID(ctx, a.ID)
	if got.SectorIDs[0] != "vip" {
		t.Fatalf("partial write happened: %v", got.SectorIDs)
	}
}

func TestImportRowsIsRowWise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Taken", "22222222222", "vip")

	results, err := f.engine.ImportRows(ctx, f.event.ID, []repo.ImportRow{
		{Name: "Ana", CPF: "111.111.111-11", SectorLabel: "VIP"},
		{Name: "Bad", CPF: "123", SectorLabel: "VIP"},
		{Name: "Dup", CPF: "22222222222", SectorLabel: "VIP"},
		{Name: "Lost", CPF: "44444444444", SectorLabel: "Nowhere"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("want 4 results, got %d", len(results))
	}
	if results[0].Error != "" || results[0].Attendee == "" {
		t.Fatalf("good row failed: %+v", results[0])
	}
	for i := 1; i < 4; i++ {
		if results[i].Error == "" {
			t.Errorf("row %d should have failed", i)
		}
	}

	// the good row is queryable; imported guests have no photo yet
	got, err := f.repo.GetAttendeeByID(ctx, results[0].Attendee)
	if err != nil {
		t.Fatal(err)
	}
	if got.Photo != "" {
		t.Fatalf("imported guest should have no photo, got %q", got.Photo)
	}
}

func TestMarkMissedSweepsOnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	b := f.register(t, "Bia", "22222222222", "vip")
	if _, err := f.engine.CheckIn(ctx, b.ID, nil); err != nil {
		t.Fatal(err)
	}

	n, err := f.engine.MarkMissed(ctx, f.event.ID)
	if err != nil {
		t.Fatalf("mark missed: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 swept, got %d", n)
	}
	gotA, _ := f.repo.GetAttendeeByID(ctx, a.ID)
	gotB, _ := f.repo.GetAttendeeByID(ctx, b.ID)
	if gotA.Status != model.StatusMissed {
		t.Fatalf("pending guest should be MISSED, got %s", gotA.Status)
	}
	if gotB.Status != model.StatusCheckedIn {
		t.Fatalf("checked-in guest must be untouched, got %s", gotB.Status)
	}
}

func TestSetStatusBypassesTransitionTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ana", "11111111111", "vip")
	if _, err := f.engine.MarkMissed(ctx, f.event.ID); err != nil {
		t.Fatal(err)
	}

	// MISSED cannot check in through the guarded machine
	if _, err := f.engine.CheckIn(ctx, a.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}

	// the organizer escape hatch reactivates the guest
	if _, err := f.engine.SetStatus(ctx, a.ID, model.StatusPending); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := f.engine.CheckIn(ctx, a.ID, nil)
	if err != nil {
		t.Fatalf("checkin after reactivation: %v", err)
	}
	if got.Status != model.StatusCheckedIn {
		t.Fatalf("want CHECKED_IN, got %s", got.Status)
	}
}
