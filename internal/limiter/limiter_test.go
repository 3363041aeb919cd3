package limiter

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func TestObserve_NoThresholdNoCooldown(t *testing.T) {
	var s State
	for i := 0; i < 5; i++ {
		if !s.Observe(at(time.Duration(i)*time.Millisecond), nil, 0) {
			t.Fatalf("match %d should fire with no threshold and zero cooldown", i)
		}
	}
}

func TestObserve_CooldownSuppresses(t *testing.T) {
	var s State
	cd := 10 * time.Second

	if !s.Observe(at(0), nil, cd) {
		t.Fatal("first match should fire")
	}
	if s.Observe(at(5*time.Second), nil, cd) {
		t.Fatal("match inside cooldown should not fire")
	}
	// Exactly last_fired + cooldown fires again.
	if !s.Observe(at(10*time.Second), nil, cd) {
		t.Fatal("match at exactly cooldown boundary should fire")
	}
	if s.Observe(at(19*time.Second), nil, cd) {
		t.Fatal("match inside second cooldown should not fire")
	}
}

func TestObserve_ThresholdFiresOnNthMatch(t *testing.T) {
	var s State
	th := &Threshold{Count: 5, Window: 2 * time.Second}

	// Four matches at t = 0.0, 0.5, 1.0, 1.5, none fire.
	for i, d := range []time.Duration{0, 500 * time.Millisecond, time.Second, 1500 * time.Millisecond} {
		if s.Observe(at(d), th, 0) {
			t.Fatalf("match %d should not fire before reaching the count", i)
		}
	}
	// Fifth match at t = 1.8 fires.
	if !s.Observe(at(1800*time.Millisecond), th, 0) {
		t.Fatal("fifth match within the window should fire")
	}
	// Window was cleared: a sixth match starts a fresh count of one.
	if s.Observe(at(2*time.Second), th, 0) {
		t.Fatal("window must reset on fire; sixth match should not fire")
	}
	if got := s.Pending(at(2*time.Second), th.Window); got != 1 {
		t.Fatalf("Pending = %d, want 1 after reset-on-fire", got)
	}
}

func TestObserve_ThresholdWindowResetRequiresFullBurst(t *testing.T) {
	var s State
	th := &Threshold{Count: 3, Window: 10 * time.Second}

	now := at(0)
	s.Observe(now, th, 0)
	s.Observe(now.Add(time.Second), th, 0)
	if !s.Observe(now.Add(2*time.Second), th, 0) {
		t.Fatal("third match should fire")
	}

	// Immediately repeating the burst needs three more matches.
	if s.Observe(now.Add(3*time.Second), th, 0) {
		t.Fatal("first match after reset should not fire")
	}
	if s.Observe(now.Add(4*time.Second), th, 0) {
		t.Fatal("second match after reset should not fire")
	}
	if !s.Observe(now.Add(5*time.Second), th, 0) {
		t.Fatal("third match after reset should fire")
	}
}

func TestObserve_OldEntriesPurged(t *testing.T) {
	var s State
	th := &Threshold{Count: 3, Window: 2 * time.Second}

	// Three matches spread over more than the window never fire.
	if s.Observe(at(0), th, 0) {
		t.Fatal("first match should not fire")
	}
	if s.Observe(at(1500*time.Millisecond), th, 0) {
		t.Fatal("second match should not fire")
	}
	if s.Observe(at(3*time.Second), th, 0) {
		t.Fatal("third match should not fire: the first has aged out")
	}
	if got := s.Pending(at(3*time.Second), th.Window); got != 2 {
		t.Fatalf("Pending = %d, want 2", got)
	}
}

func TestObserve_ThresholdMetButCooldownHolds(t *testing.T) {
	var s State
	th := &Threshold{Count: 2, Window: 10 * time.Second}
	cd := time.Minute

	s.Observe(at(0), th, cd)
	if !s.Observe(at(time.Second), th, cd) {
		t.Fatal("second match should fire")
	}

	// Another full burst within the cooldown reaches the threshold but is
	// suppressed by the cooldown gate; the window still resets.
	s.Observe(at(2*time.Second), th, cd)
	if s.Observe(at(3*time.Second), th, cd) {
		t.Fatal("burst inside cooldown should not fire")
	}
	if got := s.LastFired(); !got.Equal(at(time.Second)) {
		t.Fatalf("LastFired = %v, want %v (suppressed burst must not refresh it)", got, at(time.Second))
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	if c.Value() != 0 {
		t.Fatal("zero value should start at 0")
	}
	if got := c.Fail(); got != 1 {
		t.Fatalf("Fail = %d, want 1", got)
	}
	c.Fail()
	if got := c.Fail(); got != 3 {
		t.Fatalf("Fail = %d, want 3", got)
	}
	c.Reset()
	if got := c.Fail(); got != 1 {
		t.Fatalf("Fail after Reset = %d, want 1", got)
	}
}
