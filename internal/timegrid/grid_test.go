package timegrid

import (
	"sync"
	"testing"
	"time"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var clubZone = time.FixedZone("club", -5*60*60)

// Friday 2026-03-06 12:00 club time.
func newTestGrid(t *testing.T) (*Grid, *mockClock) {
	t.Helper()
	clock := &mockClock{now: time.Date(2026, 3, 6, 12, 0, 0, 0, clubZone)}
	grid := New(Options{
		Location:       clubZone,
		LastStart:      NewTimeOfDay(23, 30),
		OvernightUntil: NewTimeOfDay(2, 0),
		Priority: PriorityWindow{
			Days:    []time.Weekday{time.Friday, time.Saturday, time.Sunday},
			Start:   NewTimeOfDay(18, 0),
			End:     MinutesPerDay,
			Release: 24 * time.Hour,
		},
		Clock: clock,
	})
	return grid, clock
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00", 0, false},
		{"14:30", NewTimeOfDay(14, 30), false},
		{"23:30:00", NewTimeOfDay(23, 30), false},
		{"25:30", NewTimeOfDay(25, 30), false},
		{"14:30:15", 0, true},
		{"48:00", 0, true},
		{"9", 0, true},
		{"ab:cd", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if got.String() != tt.input[:5] {
			t.Errorf("String() = %q, want %q", got.String(), tt.input[:5])
		}
	}
}

func TestPointsAndSelectableStarts(t *testing.T) {
	grid, _ := newTestGrid(t)
	date := grid.Today()

	points := grid.Points(date)
	if len(points) != 48 {
		t.Fatalf("expected 48 grid points, got %d", len(points))
	}
	if points[0] != 0 || points[47] != NewTimeOfDay(23, 30) {
		t.Fatalf("unexpected grid bounds %v..%v", points[0], points[47])
	}

	early := New(Options{Location: clubZone, LastStart: NewTimeOfDay(22, 0)})
	starts := early.SelectableStarts(date)
	if last := starts[len(starts)-1]; last != NewTimeOfDay(22, 0) {
		t.Fatalf("expected last selectable start 22:00, got %v", last)
	}
	if len(early.Points(date)) != 48 {
		t.Fatal("selectable starts must not shrink the full grid")
	}
}

func TestEndChoicesRunPastMidnight(t *testing.T) {
	grid, _ := newTestGrid(t)

	ends := grid.EndChoices(grid.Today(), NewTimeOfDay(23, 0))
	want := []TimeOfDay{NewTimeOfDay(23, 30), NewTimeOfDay(24, 0), NewTimeOfDay(24, 30), NewTimeOfDay(25, 0), NewTimeOfDay(25, 30), NewTimeOfDay(26, 0)}
	if len(ends) != len(want) {
		t.Fatalf("EndChoices = %v, want %v", ends, want)
	}
	for i := range want {
		if ends[i] != want[i] {
			t.Fatalf("EndChoices[%d] = %v, want %v", i, ends[i], want[i])
		}
	}
	if grid.MaxEnd() != NewTimeOfDay(26, 0) {
		t.Fatalf("MaxEnd = %v", grid.MaxEnd())
	}
}

func TestIsPastUsesResourceTimezone(t *testing.T) {
	grid, clock := newTestGrid(t)
	today := grid.Today()

	if !grid.IsPast(today, NewTimeOfDay(11, 30)) {
		t.Fatal("11:30 should be past at noon")
	}
	if !grid.IsPast(today, NewTimeOfDay(12, 0)) {
		t.Fatal("the current instant counts as past")
	}
	if grid.IsPast(today, NewTimeOfDay(12, 30)) {
		t.Fatal("12:30 should not be past at noon")
	}

	// 23:00 UTC on the same instant is 18:00 club time.
	clock.now = time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC)
	if !grid.IsPast(today, NewTimeOfDay(17, 30)) || grid.IsPast(today, NewTimeOfDay(18, 30)) {
		t.Fatal("IsPast must compare in the club timezone")
	}

	clock.Advance(8 * time.Hour)
	if !grid.IsPast(today, NewTimeOfDay(25, 30)) {
		t.Fatal("overnight end 01:30 should be past at 02:00 next day")
	}
}

func TestIsPriorityWindow(t *testing.T) {
	grid, _ := newTestGrid(t)
	friday := grid.Today()
	thursday := grid.AddDays(friday, -1)

	if !grid.IsPriorityWindow(NewTimeOfDay(18, 0), friday) {
		t.Fatal("Friday 18:00 should be in the priority window")
	}
	if !grid.IsPriorityWindow(NewTimeOfDay(23, 30), friday) {
		t.Fatal("Friday 23:30 should be in the priority window")
	}
	if grid.IsPriorityWindow(NewTimeOfDay(17, 30), friday) {
		t.Fatal("Friday 17:30 is before the window")
	}
	if grid.IsPriorityWindow(NewTimeOfDay(20, 0), thursday) {
		t.Fatal("Thursday has no priority window")
	}
}

func TestPriorityActiveLapsesInsideRelease(t *testing.T) {
	grid, _ := newTestGrid(t)
	friday := grid.Today()

	if grid.PriorityActive(friday, NewTimeOfDay(20, 0)) {
		t.Fatal("a slot 8 hours away is inside the release period")
	}
	if !grid.PriorityActive(grid.AddDays(friday, 2), NewTimeOfDay(20, 0)) {
		t.Fatal("a slot 2 days away should still be restricted")
	}

	noRelease := New(Options{Location: clubZone, Clock: grid.Clock()})
	if !noRelease.PriorityActive(friday, NewTimeOfDay(12, 30)) {
		t.Fatal("zero release keeps the window active")
	}
}

func TestSpanned(t *testing.T) {
	got := Spanned(NewTimeOfDay(14, 0), NewTimeOfDay(16, 0))
	want := []TimeOfDay{NewTimeOfDay(14, 0), NewTimeOfDay(14, 30), NewTimeOfDay(15, 0), NewTimeOfDay(15, 30)}
	if len(got) != len(want) {
		t.Fatalf("Spanned = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Spanned[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	overnight := Spanned(NewTimeOfDay(23, 0), NewTimeOfDay(25, 0))
	if len(overnight) != 4 || !overnight[2].Overnight() {
		t.Fatalf("unexpected overnight span %v", overnight)
	}
	if Spanned(NewTimeOfDay(16, 0), NewTimeOfDay(14, 0)) != nil {
		t.Fatal("inverted interval must span nothing")
	}
}

func TestAddDaysAndParseDate(t *testing.T) {
	grid, _ := newTestGrid(t)

	d, err := grid.ParseDate("2026-03-31")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	next := grid.AddDays(d, 1)
	if next.Format(DateLayout) != "2026-04-01" {
		t.Fatalf("AddDays = %s", next.Format(DateLayout))
	}
	if _, err := grid.ParseDate("03/31/2026"); err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}
