package payment

import (
	"regexp"
	"strings"
	"testing"
)

func TestNewTxRef_Format(t *testing.T) {
	// {prefix}-{unix millis}-{6-char uppercase base36}
	pattern := regexp.MustCompile(`^SKN-\d{13}-[0-9A-Z]{6}$`)

	for i := 0; i < 100; i++ {
		ref := NewTxRef("SKN")
		if !pattern.MatchString(ref) {
			t.Fatalf("NewTxRef() = %q, want match for %v", ref, pattern)
		}
	}
}

func TestNewTxRef_CustomPrefix(t *testing.T) {
	ref := NewTxRef("ACME")
	if !strings.HasPrefix(ref, "ACME-") {
		t.Errorf("NewTxRef() = %q, want prefix ACME-", ref)
	}
}

func TestNewTxRef_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := NewTxRef("SKN")
		if seen[ref] {
			t.Fatalf("NewTxRef() produced duplicate %q", ref)
		}
		seen[ref] = true
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusPending, false},
		{StatusSuccess, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusRefunded, true},
		{StatusPartiallyRefunded, true},
		{"bogus", false},
	}

	for _, tt := range tests {
		if got := Terminal(tt.status); got != tt.want {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestValidKind(t *testing.T) {
	if !ValidKind(KindOrder) {
		t.Errorf("ValidKind(%q) = false, want true", KindOrder)
	}
	if !ValidKind(KindSubscription) {
		t.Errorf("ValidKind(%q) = false, want true", KindSubscription)
	}
	if ValidKind("donation") {
		t.Errorf("ValidKind(%q) = true, want false", "donation")
	}
	if ValidKind("") {
		t.Error("ValidKind(\"\") = true, want false")
	}
}
