package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusCheckedIn},
		{StatusPending, StatusCancelled},
		{StatusPending, StatusMissed},
		{StatusPending, StatusSubstitutionRequest},
		{StatusPending, StatusSectorChangeRequest},
		{StatusCheckedIn, StatusPending},
		{StatusCheckedIn, StatusCheckedOut},
		{StatusMissed, StatusSubstitutionRequest},
		{StatusSubstitution, StatusSubstitutionRequest},
		{StatusSubstitutionRequest, StatusPending},
		{StatusSectorChangeRequest, StatusPending},
		{StatusPendingApproval, StatusPending},
		{StatusPendingApproval, StatusRejected},
		{StatusBlocked, StatusPending},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusCancelled, StatusPending},
		{StatusCheckedOut, StatusCheckedIn},
		{StatusRejected, StatusPending},
		{StatusMissed, StatusCheckedIn},
		{StatusSubstitutionRequest, StatusCheckedIn},
		{StatusPending, StatusCheckedOut},
		{StatusPending, StatusRejected},
	}
	for _, tc := range denied {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestBlockAllowedFromAnywhere(t *testing.T) {
	for _, from := range allStatuses {
		if !from.CanTransition(StatusBlocked) {
			t.Errorf("%s -> BLOCKED should be allowed", from)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if st, ok := ParseStatus("checked_in"); !ok || st != StatusCheckedIn {
		t.Fatalf("parse checked_in: %v %v", st, ok)
	}
	if _, ok := ParseStatus("CHECKED_IN"); ok {
		t.Fatal("status parsing must be exact")
	}
	if _, ok := ParseStatus("nonsense"); ok {
		t.Fatal("unknown status must not parse")
	}
}

func TestAttendeeCloneIsDeep(t *testing.T) {
	a := &Attendee{
		ID:           "a1",
		SectorIDs:    []string{"s1"},
		Wristbands:   map[string]string{"s1": "W1"},
		Substitution: &SubstitutionData{Name: "X", SectorIDs: []string{"s2"}},
	}
	c := a.Clone()
	c.SectorIDs[0] = "changed"
	c.Wristbands["s1"] = "changed"
	c.Substitution.Name = "changed"

	if a.SectorIDs[0] != "s1" || a.Wristbands["s1"] != "W1" || a.Substitution.Name != "X" {
		t.Fatal("Clone shares state with the original")
	}
}
