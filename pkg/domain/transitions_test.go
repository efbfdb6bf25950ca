package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to SampleStatus
		want     bool
	}{
		{StatusPending, StatusValidated, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusInStorage, false},
		{StatusValidated, StatusInStorage, true},
		{StatusValidated, StatusRejected, true},
		{StatusValidated, StatusInSequencing, false},
		{StatusInStorage, StatusInSequencing, true},
		{StatusInStorage, StatusValidated, true}, // recall
		{StatusInStorage, StatusRejected, false},
		{StatusInSequencing, StatusCompleted, true},
		{StatusInSequencing, StatusValidated, false},
		{StatusCompleted, StatusInSequencing, false},
		{StatusCompleted, StatusPending, false},
		{StatusRejected, StatusPending, false},
		{StatusRejected, StatusValidated, false},
		{SampleStatus("bogus"), StatusPending, false},
		{StatusPending, SampleStatus("bogus"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	for _, s := range []SampleStatus{StatusCompleted, StatusRejected} {
		if !TerminalStatus(s) {
			t.Fatalf("expected %s terminal", s)
		}
	}
	for _, s := range []SampleStatus{StatusPending, StatusValidated, StatusInStorage, StatusInSequencing} {
		if TerminalStatus(s) {
			t.Fatalf("did not expect %s terminal", s)
		}
	}
	if TerminalStatus(SampleStatus("bogus")) {
		t.Fatalf("unknown status must not be terminal")
	}
}

func TestValidStatus(t *testing.T) {
	if !ValidStatus(StatusPending) || ValidStatus(SampleStatus("bogus")) {
		t.Fatalf("ValidStatus mismatch")
	}
}

func TestValidZoneCategory(t *testing.T) {
	for _, c := range []ZoneCategory{ZoneUltraLowFreezer, ZoneRefrigerator, ZoneRoomTemperature} {
		if !ValidZoneCategory(c) {
			t.Fatalf("expected %s valid", c)
		}
	}
	if ValidZoneCategory(ZoneCategory("hallway")) {
		t.Fatalf("unknown category must be invalid")
	}
}
