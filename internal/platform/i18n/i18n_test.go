package i18n

import (
	"testing"
	"time"
)

func TestText_Get(t *testing.T) {
	txt := T("Poids (kg)", "Weight (kg)")
	if got := txt.Get(English); got != "Weight (kg)" {
		t.Errorf("en = %q", got)
	}
	if got := txt.Get(French); got != "Poids (kg)" {
		t.Errorf("fr = %q", got)
	}
	if got := txt.Get("de"); got != "Poids (kg)" {
		t.Errorf("unknown locale should fall back to French, got %q", got)
	}
	if got := (Text{English: "Only English"}).Get("fr"); got != "Only English" {
		t.Errorf("missing French should use English, got %q", got)
	}
	if got := Text(nil).Get(French); got != "" {
		t.Errorf("nil text = %q", got)
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", French},
		{"en-US,en;q=0.9", English},
		{"fr-FR,fr;q=0.9,en;q=0.8", French},
		{"en;q=0.2, fr;q=0.9", French},
		{"ja", French},
		{";;;garbage", French},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := Negotiate(tt.header, French); got != tt.want {
				t.Errorf("Negotiate(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)
	if got := FormatDate(d, French); got != "07/03/2024" {
		t.Errorf("fr = %q", got)
	}
	if got := FormatDate(d, English); got != "03/07/2024" {
		t.Errorf("en = %q", got)
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-07", "2024-03-07T00:00:00Z", "2024-03-07T00:00:00.000Z", "2024-03-07T10:30:00+01:00"} {
		if _, ok := ParseDate(s); !ok {
			t.Errorf("ParseDate(%q) failed", s)
		}
	}
	for _, s := range []string{"", "07/03/2024", "yesterday"} {
		if _, ok := ParseDate(s); ok {
			t.Errorf("ParseDate(%q) should fail", s)
		}
	}
}
