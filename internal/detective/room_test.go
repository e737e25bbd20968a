package detective

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestTransitionLegality(t *testing.T) {
	all := []Transition{TransitionStart, TransitionPause, TransitionResume, TransitionStop}
	legal := map[RoomState]map[Transition]RoomState{
		RoomPending:  {TransitionStart: RoomRunning},
		RoomRunning:  {TransitionPause: RoomPaused, TransitionStop: RoomFinished},
		RoomPaused:   {TransitionResume: RoomRunning, TransitionStop: RoomFinished},
		RoomFinished: {},
	}

	for from, allowed := range legal {
		for _, tr := range all {
			t.Run(string(from)+"/"+string(tr), func(t *testing.T) {
				r := Room{ID: "r1", State: from, DurationSeconds: 600}
				if from != RoomPending {
					start, end := t0, t0.Add(600*time.Second)
					r.StartTime, r.EndTime = &start, &end
				}

				got, err := tr.Apply(r, t0.Add(10*time.Second))
				want, ok := allowed[tr]
				if !ok {
					if !errors.Is(err, ErrState) {
						t.Fatalf("expected state error, got %v", err)
					}
					if got.State != from {
						t.Errorf("state changed to %q on rejected transition", got.State)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.State != want {
					t.Errorf("state = %q, want %q", got.State, want)
				}
			})
		}
	}
}

func TestStartSetsClock(t *testing.T) {
	r, err := TransitionStart.Apply(Room{State: RoomPending, DurationSeconds: 600}, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.StartTime.Equal(t0) {
		t.Errorf("start_time = %v, want %v", r.StartTime, t0)
	}
	if !r.EndTime.Equal(t0.Add(600 * time.Second)) {
		t.Errorf("end_time = %v, want %v", r.EndTime, t0.Add(600*time.Second))
	}
}

func TestPauseKeepsDeadline(t *testing.T) {
	r, _ := TransitionStart.Apply(Room{State: RoomPending, DurationSeconds: 600}, t0)
	deadline := *r.EndTime

	r, err := TransitionPause.Apply(r, t0.Add(100*time.Second))
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !r.EndTime.Equal(deadline) {
		t.Errorf("pause moved end_time to %v", r.EndTime)
	}
	if got := *r.RemainingSeconds(t0.Add(100 * time.Second)); got != 500 {
		t.Errorf("remaining right after pause = %d, want 500", got)
	}
	if got := *r.RemainingSeconds(t0.Add(400 * time.Second)); got != 200 {
		t.Errorf("remaining while paused = %d, want 200", got)
	}

	r, _ = TransitionResume.Apply(r, t0.Add(450*time.Second))
	r, err = TransitionStop.Apply(r, t0.Add(450*time.Second))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.State != RoomFinished || !r.EndTime.Equal(t0.Add(450*time.Second)) {
		t.Errorf("after stop: state=%q end=%v", r.State, r.EndTime)
	}
}

func TestRemainingSeconds(t *testing.T) {
	start, end := t0, t0.Add(60*time.Second)

	tests := []struct {
		name string
		room Room
		now  time.Time
		want *int
	}{
		{name: "pending", room: Room{State: RoomPending}, now: t0, want: nil},
		{name: "finished", room: Room{State: RoomFinished, StartTime: &start, EndTime: &end}, now: t0, want: ptr(0)},
		{name: "running full", room: Room{State: RoomRunning, StartTime: &start, EndTime: &end}, now: t0, want: ptr(60)},
		{name: "running partial second rounds up", room: Room{State: RoomRunning, StartTime: &start, EndTime: &end}, now: t0.Add(1500 * time.Millisecond), want: ptr(59)},
		{name: "running past deadline", room: Room{State: RoomRunning, StartTime: &start, EndTime: &end}, now: t0.Add(61 * time.Second), want: ptr(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.room.RemainingSeconds(tt.now)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("remaining = %d, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("remaining = nil, want %d", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("remaining = %d, want %d", *got, *tt.want)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	start, end := t0, t0.Add(60*time.Second)
	running := Room{State: RoomRunning, StartTime: &start, EndTime: &end}
	paused := Room{State: RoomPaused, StartTime: &start, EndTime: &end}

	if running.Expired(t0.Add(59 * time.Second)) {
		t.Error("running room expired before deadline")
	}
	if !running.Expired(t0.Add(60 * time.Second)) {
		t.Error("running room not expired at deadline")
	}
	if !paused.Expired(t0.Add(61 * time.Second)) {
		t.Error("paused room not expired past deadline")
	}
	if (Room{State: RoomPending}).Expired(t0.Add(time.Hour)) {
		t.Error("pending room reported expired")
	}
}

func TestParseDistrict(t *testing.T) {
	for _, d := range Districts {
		if got, ok := ParseDistrict(" " + string(d) + " "); !ok || got != d {
			t.Errorf("ParseDistrict(%q) = %q, %v", d, got, ok)
		}
	}
	for _, bad := range []string{"", "N", "ц", "Center", "СС"} {
		if _, ok := ParseDistrict(bad); ok {
			t.Errorf("ParseDistrict(%q) accepted", bad)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := NotFoundf("room %q not found", "r9")
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundf does not match ErrNotFound")
	}
	if errors.Is(err, ErrState) {
		t.Error("NotFoundf matches ErrState")
	}

	cause := errors.New("disk I/O error")
	p := Persistence("insert attempt", cause)
	if KindOf(p) != KindPersistence || !errors.Is(p, cause) {
		t.Errorf("persistence wrap lost kind or cause: %v", p)
	}
	if Message(p) != "internal error" {
		t.Errorf("persistence message leaked: %q", Message(p))
	}
	if Persistence("x", err) != err {
		t.Error("Persistence re-wrapped a classified error")
	}
}

func ptr(n int) *int { return &n }

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewID()
		if len(id) != 36 {
			t.Fatalf("id %q is not a canonical uuid", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
