package calls

import "testing"

func TestStateValues(t *testing.T) {
	for _, s := range []State{StatePending, StateInCall, StateDone} {
		if !s.Valid() {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if State("ringing").Valid() {
		t.Fatalf("expected unknown state to be invalid")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "00:00"},
		{125.4, "02:05"},
		{59.6, "01:00"},
		{59.4, "00:59"},
		{60, "01:00"},
		{119.5, "02:00"},
		{3600, "60:00"},
		{-3, "00:00"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRecord_DisplayNameDefaultsToUnknown(t *testing.T) {
	r := Record{ID: "1"}
	if r.DisplayName() != "Unknown" {
		t.Fatalf("expected Unknown, got %q", r.DisplayName())
	}
	r.PartnerName = "Azure Interior"
	if r.DisplayName() != "Azure Interior" {
		t.Fatalf("unexpected display name %q", r.DisplayName())
	}
}

func TestRecord_Matches(t *testing.T) {
	r := Record{ID: "1", Name: "Follow-up quote", PartnerName: "Deco Addict"}

	if !r.Matches("") {
		t.Fatalf("empty filter should match")
	}
	if !r.Matches("deco") {
		t.Fatalf("expected partner match")
	}
	if !r.Matches("QUOTE") {
		t.Fatalf("expected case-insensitive name match")
	}
	if r.Matches("gemini") {
		t.Fatalf("unexpected match")
	}
	if !(Record{Name: "x"}).Matches("unknown") {
		t.Fatalf("records without partner match their display name")
	}
}

func TestRecord_HasNumber(t *testing.T) {
	if (Record{Phone: "  "}).HasNumber() {
		t.Fatalf("blank phone is not a number")
	}
	if !(Record{Phone: "555"}).HasNumber() {
		t.Fatalf("expected number")
	}
}

func TestRef_Valid(t *testing.T) {
	if !(Ref{Model: RefModelPartner, ID: "7"}).Valid() {
		t.Fatalf("expected valid partner ref")
	}
	if (Ref{Model: "invoice", ID: "7"}).Valid() {
		t.Fatalf("unexpected model accepted")
	}
	if (Ref{Model: RefModelOpportunity}).Valid() {
		t.Fatalf("missing id accepted")
	}
}

func TestParseDuration(t *testing.T) {
	for in, want := range map[string]int{"02:05": 125, "00:00": 0, "120:59": 7259} {
		got, err := ParseDuration(in)
		if err != nil || got != want {
			t.Fatalf("ParseDuration(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "5", "01:60", "aa:10", "-1:00", "01:5"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if got, _ := ParseDuration(FormatDuration(125.4)); got != 125 {
		t.Fatalf("round trip through FormatDuration gave %d", got)
	}
}
