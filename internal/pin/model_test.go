package pin

import (
	"testing"
)

func TestPin_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pin     Pin
		wantErr error
	}{
		{"valid", Pin{Rating: 4, Lat: 6.9, Long: 79.8}, nil},
		{"zero rating allowed", Pin{Rating: 0, Lat: 0, Long: 0}, nil},
		{"max rating allowed", Pin{Rating: 5, Lat: 90, Long: 180}, nil},
		{"rating too high", Pin{Rating: 6, Lat: 0, Long: 0}, ErrInvalidRating},
		{"negative rating", Pin{Rating: -1, Lat: 0, Long: 0}, ErrInvalidRating},
		{"latitude out of range", Pin{Rating: 3, Lat: 91, Long: 0}, ErrInvalidCoordinates},
		{"longitude out of range", Pin{Rating: 3, Lat: 0, Long: -180.5}, ErrInvalidCoordinates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pin.Validate()
			if err != tt.wantErr {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFilterByOwner(t *testing.T) {
	pins := []Pin{
		{ID: "1", Username: "alice"},
		{ID: "2", Username: "bob"},
		{ID: "3", Username: "alice"},
		{ID: "4", Username: "carol"},
		{ID: "5", Username: "alice"},
	}

	got := FilterByOwner(pins, "alice")
	if len(got) != 3 {
		t.Fatalf("expected 3 pins, got %d", len(got))
	}
	for i, want := range []string{"1", "3", "5"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected pin %s, got %s", i, want, got[i].ID)
		}
	}

	// Input must be untouched
	if pins[1].ID != "2" || len(pins) != 5 {
		t.Error("FilterByOwner modified its input")
	}
}

func TestFilterByOwner_NoMatches(t *testing.T) {
	pins := []Pin{{ID: "1", Username: "bob"}}

	got := FilterByOwner(pins, "alice")
	if got == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Errorf("expected 0 pins, got %d", len(got))
	}
}

func TestFilterByOwner_EmptyInput(t *testing.T) {
	if got := FilterByOwner(nil, "alice"); len(got) != 0 {
		t.Errorf("expected 0 pins, got %d", len(got))
	}
}
