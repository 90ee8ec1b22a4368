package degraded

import (
	"testing"
	"time"
)

func TestIsDegraded(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		pct       int
		want      bool
	}{
		{"no traffic", 0, 0, 50, false},
		{"below threshold", 3, 1, 50, false},
		{"at threshold", 2, 2, 50, true},
		{"all errors", 0, 3, 50, true},
		{"threshold disabled", 0, 3, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reset()
			defer Reset()
			for i := 0; i < tt.successes; i++ {
				RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				RecordError()
			}
			if got := IsDegraded(time.Minute, tt.pct); got != tt.want {
				t.Errorf("IsDegraded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorRate(t *testing.T) {
	Reset()
	defer Reset()
	RecordSuccess()
	RecordError()
	RecordError()

	errs, total := ErrorRate(time.Minute)
	if errs != 2 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (2, 3)", errs, total)
	}
}
