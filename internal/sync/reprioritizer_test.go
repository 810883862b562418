package sync

import (
	"testing"
	"time"

	"priorityforge/internal/clock"
)

func TestNewReprioritizerRejectsBadSchedule(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	if _, err := NewReprioritizer(f.coord, "every tuesday"); err == nil {
		t.Fatal("NewReprioritizer() error = nil for invalid schedule")
	}
}

func TestReprioritizerSchedulesNextRun(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	r, err := NewReprioritizer(f.coord, "")
	if err != nil {
		t.Fatalf("NewReprioritizer() error = %v", err)
	}
	if r.Schedule() != DefaultReprioritizeSchedule {
		t.Errorf("Schedule() = %q, want default", r.Schedule())
	}
	if !r.Next().IsZero() {
		t.Error("Next() should be zero before Start")
	}

	if err := r.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	next := r.Next()
	if next.IsZero() {
		t.Fatal("Next() is zero after Start")
	}
	if next.Hour() != 0 || next.Minute() != 0 {
		t.Errorf("Next() = %v, want local midnight", next)
	}

	r.Stop(time.Second)
	if !r.Next().IsZero() {
		t.Error("Next() should be zero after Stop")
	}
}

func TestIDGenerator(t *testing.T) {
	c := clock.NewFake(testNow)
	g := NewIDGenerator(c)
	base := testNow.UnixMicro()

	if got := g.Next(nil); got != base {
		t.Errorf("first id = %d, want %d", got, base)
	}
	if got := g.Next(nil); got != base+1 {
		t.Errorf("second id at the same instant = %d, want %d", got, base+1)
	}

	taken := map[int64]bool{base + 2: true, base + 3: true}
	if got := g.Next(func(id int64) bool { return taken[id] }); got != base+4 {
		t.Errorf("id past taken = %d, want %d", got, base+4)
	}

	c.Advance(time.Second)
	if got, want := g.Next(nil), testNow.Add(time.Second).UnixMicro(); got != want {
		t.Errorf("id after advance = %d, want %d", got, want)
	}
}
