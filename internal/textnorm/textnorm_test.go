package textnorm

import (
	"encoding/json"
	"strings"
	"testing"

	"wedding-rsvp/internal/models"
)

func TestFold(t *testing.T) {
	tests := map[string]string{
		"Prénom":          "prenom",
		"  TÉLÉPHONE ":    "telephone",
		"Vin d'Honneur":   "vin d'honneur",
		"Étranger":        "etranger",
		"houppa / soirée": "houppa / soiree",
	}
	for in, want := range tests {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{1, true},
		{1.0, true},
		{int64(1), true},
		{json.Number("1"), true},
		{"1", true},
		{"oui", true},
		{"OUI", true},
		{" Yes ", true},
		{"x", true},
		{"X", true},
		{"true", true},
		{true, true},
		{0, false},
		{2, false},
		{"non", false},
		{"no", false},
		{"", false},
		{nil, false},
		{false, false},
		{"peut-être", false},
	}
	for _, tt := range tests {
		if got := Truthy(tt.in); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		in      any
		want    int
		wantErr bool
	}{
		{"010", 10, false},
		{" 7 ", 7, false},
		{float64(3), 3, false},
		{4, 4, false},
		{"0x5", 0, true},
		{"deux", 0, true},
	}
	for _, tt := range tests {
		got, err := Int(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Int(%#v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Int(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCountry(t *testing.T) {
	tests := map[string]models.Country{
		"France":              models.CountryFrance,
		"":                    models.CountryFrance,
		"Etranger":            models.CountryEtranger,
		"étranger":            models.CountryEtranger,
		"Vient de l'ÉTRANGER": models.CountryEtranger,
		"Israël":              models.CountryFrance,
	}
	for in, want := range tests {
		if got := Country(in); got != want {
			t.Errorf("Country(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFamily(t *testing.T) {
	tests := map[string]models.Family{
		"Ibgui":            models.FamilyIbgui,
		"Chemaoun":         models.FamilyChemaoun,
		"famille ibgui":    models.FamilyIbgui,
		"CHEMAOUN (oncle)": models.FamilyChemaoun,
		"Amis":             models.Family("Amis"),
		"":                 models.Family(""),
	}
	for in, want := range tests {
		if got := Family(in); got != want {
			t.Errorf("Family(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMessage(t *testing.T) {
	if got := Message("  <b>Mazal tov</b> & bravo  ", 2000); got != "&lt;b&gt;Mazal tov&lt;/b&gt; &amp; bravo" {
		t.Errorf("unexpected sanitized message %q", got)
	}

	long := strings.Repeat("é", 2500)
	if got := Message(long, 2000); len([]rune(got)) != 2000 {
		t.Errorf("expected 2000 runes, got %d", len([]rune(got)))
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		in, code, want string
	}{
		{"06 12 34 56 78", "33", "33612345678"},
		{"06.12.34.56.78", "33", "33612345678"},
		{"+33 6 12 34 56 78", "33", "33612345678"},
		{"+33 (0)6 12 34 56 78", "33", "33612345678"},
		{"0033612345678", "33", "33612345678"},
		{"052-123-4567", "972", "972521234567"},
		{"+972 52 123 4567", "33", "972521234567"},
		{"", "33", ""},
		{"12", "33", ""},
	}
	for _, tt := range tests {
		if got := Phone(tt.in, tt.code); got != tt.want {
			t.Errorf("Phone(%q, %q) = %q, want %q", tt.in, tt.code, got, tt.want)
		}
	}
}
