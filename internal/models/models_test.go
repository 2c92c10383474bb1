package models

import "testing"

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{"501", Variant501, false},
		{" 301 ", Variant301, false},
		{"Cricket", VariantCricket, false},
		{"choice", VariantChoice, false},
		{"701", "", true},
	}
	for _, tt := range tests {
		got, err := ParseVariant(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseVariant(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseVariant(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStartScore(t *testing.T) {
	if Variant501.StartScore() != 501 || Variant301.StartScore() != 301 {
		t.Fatal("unexpected 01 start scores")
	}
	if VariantCricket.StartScore() != 0 || VariantCricket.IsX01() {
		t.Fatal("cricket is not an 01 variant")
	}
}

func TestParseModes(t *testing.T) {
	if m, err := ParseInOutMode(""); err != nil || m != ModeOpen {
		t.Errorf("empty in/out mode = %q, %v", m, err)
	}
	if m, err := ParseInOutMode("DOUBLE"); err != nil || m != ModeDouble {
		t.Errorf("DOUBLE = %q, %v", m, err)
	}
	if _, err := ParseInOutMode("triple"); err == nil {
		t.Error("expected error for triple")
	}
	if b, err := ParseBullMode("unified"); err != nil || b != BullFull {
		t.Errorf("unified = %q, %v", b, err)
	}
}

func TestDescriptorSeatAndValidate(t *testing.T) {
	m := MatchDescriptor{
		ID:      "m1",
		Players: [2]Player{{ID: "a"}, {ID: "b"}},
		Legs:    []Variant{Variant501},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if seat, ok := m.Seat("b"); !ok || seat != 1 {
		t.Errorf("Seat(b) = %d, %v", seat, ok)
	}
	if _, ok := m.Seat("c"); ok {
		t.Error("Seat(c) should not be found")
	}

	m.Players[1].ID = "a"
	if err := m.Validate(); err == nil {
		t.Error("expected error for duplicate players")
	}
}
