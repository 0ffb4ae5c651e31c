package animator

import (
	"reflect"
	"testing"
	"time"

	"earshot/recognizer"
)

func TestScrollOffsets(t *testing.T) {
	for _, tt := range []struct {
		name     string
		textW    int
		cardW    int
		lifetime time.Duration
		pps      float64
		want     []float64
	}{
		{"fits centered", 10, 20, time.Minute, 50, []float64{5}},
		{"exact fit", 20, 20, time.Minute, 50, []float64{0}},
		{"overflow at start", 30, 20, 0, 10, []float64{1}},
		{"overflow mid scroll", 30, 20, time.Second, 10, []float64{-9}},
		// period 34: first at 1-30 = -29, second at 5 is visible.
		{"second copy visible", 30, 20, 3 * time.Second, 10, []float64{-29, 5}},
		{"wraps seamlessly", 30, 20, 2 * time.Second, 17, []float64{1}},
		{"negative lifetime", 30, 20, -time.Second, 10, []float64{1}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := ScrollOffsets(tt.textW, tt.cardW, tt.lifetime, tt.pps, 1, 4)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if d := got[i] - tt.want[i]; d > 1e-9 || d < -1e-9 {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestScrollOffsetsSecondCopyOnlyWhenVisible(t *testing.T) {
	for ms := 0; ms < 10000; ms += 37 {
		offs := ScrollOffsets(30, 20, time.Duration(ms)*time.Millisecond, 10, 1, 4)
		if len(offs) == 2 && offs[1] >= 20 {
			t.Fatalf("t=%dms: second copy at %v is off the card", ms, offs[1])
		}
		if offs[0] > 1 || offs[0] <= 1-34 {
			t.Fatalf("t=%dms: first copy at %v outside one period", ms, offs[0])
		}
	}
}

func TestElapsed(t *testing.T) {
	at := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	for _, tt := range []struct {
		name   string
		offset float64
		since  time.Duration
		want   string
	}{
		{"start", 0, 0, "00:00"},
		{"offset only", 75.4, 0, "01:15"},
		{"offset plus wall time", 30, 45 * time.Second, "01:15"},
		{"past an hour uncapped", 3590, 30 * time.Second, "60:20"},
		{"clock skew clamps at zero", 0, -5 * time.Second, "00:00"},
	} {
		track := &recognizer.Track{Key: "k", InitialOffset: tt.offset}
		if got := Elapsed(track, at, at.Add(tt.since)); got != tt.want {
			t.Errorf("%s: Elapsed = %q, want %q", tt.name, got, tt.want)
		}
	}
	if got := Elapsed(nil, at, at); got != "" {
		t.Errorf("nil track: %q", got)
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	want := Options{
		Out: 500 * time.Millisecond, Delay: 200 * time.Millisecond, In: 500 * time.Millisecond,
		TitlePPS: 50, SubtitlePPS: 30, ScrollLead: 1, ScrollGap: 4,
	}
	if !reflect.DeepEqual(o, want) {
		t.Errorf("DefaultOptions = %+v", o)
	}
	if o.Total() != 1200*time.Millisecond {
		t.Errorf("Total = %v", o.Total())
	}
}
