package extract

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecodeMatches(t *testing.T) {
	raw := `[
		{"playerNames": ["Ana", "Bia"], "kills": 7, "placement": 1},
		{"playerNames": ["Caio"], "kills": 2},
		{"playerNames": "Duda", "kills": "três", "placement": null},
		{"playerNames": ["Eva"], "kills": 1.5, "placement": 4},
		42
	]`
	got, err := decodeMatches(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d teams, want 3: %+v", len(got), got)
	}

	if got[0].PlayerNames[1] != "Bia" || *got[0].Kills != 7 || *got[0].Placement != 1 {
		t.Errorf("team 0 = %+v", got[0])
	}
	if got[1].PlayerNames != nil || got[1].Kills != nil || got[1].Placement != nil {
		t.Errorf("wrong-typed fields should be nil, got %+v", got[1])
	}
	if got[2].Kills != nil || *got[2].Placement != 4 {
		t.Errorf("fractional kills should be nil, got %+v", got[2])
	}
}

func TestDecodeMatchesRejectsNonArray(t *testing.T) {
	for _, raw := range []string{`{"teams": []}`, `null`, ``, `not json`, `[1, 2`} {
		if _, err := decodeMatches(raw); !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("decodeMatches(%q) = %v, want ErrInvalidResponse", raw, err)
		}
	}
}

func TestDecodeStrings(t *testing.T) {
	got, err := decodeStrings(`["Ana", "  ", 3, "", "李"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "Ana" || got[1] != "李" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeNumbers(t *testing.T) {
	got, err := decodeNumbers(`[6.50, "7", 0.5, null]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []decimal.Decimal{decimal.RequireFromString("6.5"), decimal.RequireFromString("0.5")}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("got %v, want %v", got, want)
		}
	}

	if got, err := decodeNumbers(`{"total": 3}`); err != nil || len(got) != 0 {
		t.Errorf("non-array: got %v, %v; want empty", got, err)
	}
	if _, err := decodeNumbers(`[6.5`); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("got %v, want ErrInvalidResponse", err)
	}
}

func TestImageBytes(t *testing.T) {
	for _, data := range []string{"aGk=", "data:image/png;base64,aGk="} {
		b, err := Image{Data: data, MimeType: "image/png"}.Bytes()
		if err != nil || string(b) != "hi" {
			t.Errorf("Bytes(%q) = %q, %v", data, b, err)
		}
	}
	if _, err := (Image{Data: "%%%", MimeType: "image/png"}).Bytes(); err == nil {
		t.Errorf("expected an error for bad base64")
	}
}
