package jobs

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
	if len(m.Collectors()) != 3 {
		t.Errorf("expected 3 collectors, got %d", len(m.Collectors()))
	}
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := m.Track(JobTypeWebhookGC, func() error { return nil }); err != nil {
		t.Errorf("Track() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := map[string]bool{
		MetricBackgroundJobsTotal:    false,
		MetricBackgroundJobsDuration: false,
	}
	for _, family := range families {
		if _, ok := found[family.GetName()]; ok {
			found[family.GetName()] = true
		}
	}
	for name, ok := range found {
		if !ok {
			t.Errorf("metric %s not found in gathered metrics", name)
		}
	}
}

func TestMetrics_Track(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Errors pass through untouched.
	wantErr := errors.New("job failed")
	if err := m.Track(JobTypePendingExpiry, func() error { return wantErr }); err != wantErr {
		t.Errorf("Track() error = %v, want %v", err, wantErr)
	}

	// Nil receiver still runs the function.
	var nilMetrics *Metrics
	ran := false
	if err := nilMetrics.Track(JobTypeWebhookGC, func() error { ran = true; return nil }); err != nil {
		t.Errorf("Track() on nil receiver error = %v", err)
	}
	if !ran {
		t.Error("Track() on nil receiver did not run the job")
	}
}
