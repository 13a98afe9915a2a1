package sanitize

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	got := RedactPII("reach me at jane.doe@example.com or +65 9123 4567 about case 2024")
	if strings.Contains(got, "@") || strings.Contains(got, "9123") {
		t.Fatalf("pii left in %q", got)
	}
	if !strings.Contains(got, "2024") {
		t.Fatalf("short numbers should survive, got %q", got)
	}
}

func TestSummary_CutsAtWordBoundary(t *testing.T) {
	got := Summary("income verified against payslip", 20)
	if got != "income verified…" {
		t.Fatalf("got %q", got)
	}
	if Summary("short", 20) != "short" {
		t.Fatal("short input must be unchanged")
	}
}

func TestNotes_Trims(t *testing.T) {
	if got := Notes("  reviewed  "); got != "reviewed" {
		t.Fatalf("got %q", got)
	}
}
