package traffic

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestTracker_Empty(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
	if e, total := tr.ErrorRate(time.Minute); e != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", e, total)
	}
}

func TestTracker_CountsByOutcome(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	tr.Record(Success)
	tr.Record(Success)
	tr.Record(Error)
	tr.Record(Denied)

	if n := tr.Count(Denied, time.Minute); n != 1 {
		t.Errorf("Count(Denied) = %d, want 1", n)
	}
	if n := tr.RequestCount(time.Minute); n != 4 {
		t.Errorf("RequestCount() = %d, want 4", n)
	}
	e, total := tr.ErrorRate(time.Minute)
	if e != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", e, total)
	}
}

func TestTracker_WindowExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)
	tr.Record(Error)
	clock.Advance(30 * time.Second)
	tr.Record(Success)

	if n := tr.RequestCount(20 * time.Second); n != 1 {
		t.Errorf("RequestCount(20s) = %d, want 1", n)
	}
	if n := tr.RequestCount(time.Minute); n != 2 {
		t.Errorf("RequestCount(1m) = %d, want 2", n)
	}
}

func TestTracker_PrunesPastRetention(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)
	tr.Record(Success)
	clock.Advance(retention + time.Second)
	tr.Record(Success)

	if n := tr.Count(Success, time.Hour); n != 1 {
		t.Errorf("Count(Success, 1h) = %d, want 1 after prune", n)
	}
}

func TestTracker_IgnoresUnknownOutcome(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	tr.Record(Outcome(42))
	if n := tr.Count(Outcome(42), time.Minute); n != 0 {
		t.Errorf("Count(42) = %d, want 0", n)
	}
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(Success)
		}()
	}
	wg.Wait()
	if n := tr.Count(Success, time.Minute); n != 50 {
		t.Errorf("Count(Success) = %d, want 50", n)
	}
}

func TestDefaultTracker(t *testing.T) {
	Reset()
	defer Reset()
	Record(Success)
	Record(Denied)
	if n := RequestCount(time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2", n)
	}
	if n := Count(Denied, time.Minute); n != 1 {
		t.Errorf("Count(Denied) = %d, want 1", n)
	}
}
