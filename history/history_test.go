package history

import (
	"strings"
	"testing"
	"time"

	"earshot/recognizer"
)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

// outcomes builds one outcome per key, 10s apart; "-" is an unrecognized window.
func outcomes(keys ...string) []recognizer.Outcome {
	out := make([]recognizer.Outcome, len(keys))
	for i, k := range keys {
		out[i].CapturedAt = t0.Add(time.Duration(i) * 10 * time.Second)
		if k != "-" {
			out[i].Track = &recognizer.Track{Key: k, Title: "title " + k}
		}
	}
	return out
}

func keysOf(h *History) string {
	var ks []string
	for _, e := range h.Entries() {
		if k := e.Key(); k != "" {
			ks = append(ks, k)
		} else {
			ks = append(ks, "-")
		}
	}
	return strings.Join(ks, ",")
}

func TestRecordPolicy(t *testing.T) {
	for _, tt := range []struct {
		name    string
		in      []string
		want    string
		actions []Action
	}{
		{"gap collapsed", []string{"A", "-", "A"}, "A", []Action{Appended, Appended, Collapsed}},
		{"different middle kept", []string{"A", "B", "A"}, "A,B,A", []Action{Appended, Appended, Appended}},
		{"same track twice", []string{"A", "A"}, "A", []Action{Appended, Unchanged}},
		{"unrecognized first", []string{"-"}, "-", []Action{Appended}},
		{"unrecognized twice", []string{"-", "-"}, "-,-", []Action{Appended, Appended}},
		{"gap then new track", []string{"A", "-", "B"}, "A,-,B", []Action{Appended, Appended, Appended}},
		{"two gaps not collapsed", []string{"A", "-", "-", "A"}, "A,-,-,A", []Action{Appended, Appended, Appended, Appended}},
		{"leading gap", []string{"-", "A"}, "-,A", []Action{Appended, Appended}},
		{"collapse then continue", []string{"A", "-", "A", "A", "B"}, "A,B", []Action{Appended, Appended, Collapsed, Unchanged, Appended}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New(DefaultSize)
			for i, o := range outcomes(tt.in...) {
				if got := h.Record(o); got != tt.actions[i] {
					t.Errorf("Record #%d = %v, want %v", i, got, tt.actions[i])
				}
			}
			if got := keysOf(h); got != tt.want {
				t.Errorf("history = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCollapseKeepsOriginalEntry(t *testing.T) {
	h := New(DefaultSize)
	for _, o := range outcomes("A", "-", "A") {
		h.Record(o)
	}
	e, ok := h.Latest()
	if !ok {
		t.Fatal("history empty")
	}
	if !e.ObservedAt.Equal(t0) {
		t.Errorf("ObservedAt = %v, want first capture %v", e.ObservedAt, t0)
	}
}

func TestEvictsOldest(t *testing.T) {
	h := New(5)
	for _, o := range outcomes("A", "B", "C", "D", "E", "F", "G") {
		h.Record(o)
	}
	if got := keysOf(h); got != "C,D,E,F,G" {
		t.Errorf("history = %s, want C,D,E,F,G", got)
	}
}

func TestChronological(t *testing.T) {
	h := New(5)
	os := outcomes("A", "B")
	os[1].CapturedAt = t0.Add(-time.Minute)
	for _, o := range os {
		h.Record(o)
	}
	es := h.Entries()
	if es[1].ObservedAt.Before(es[0].ObservedAt) {
		t.Errorf("entries out of order: %v then %v", es[0].ObservedAt, es[1].ObservedAt)
	}
}

func TestVersion(t *testing.T) {
	h := New(5)
	os := outcomes("A", "A", "-", "A")
	h.Record(os[0])
	v := h.Version()
	h.Record(os[1])
	if h.Version() != v {
		t.Error("Version changed on Unchanged")
	}
	h.Record(os[2])
	h.Record(os[3])
	if h.Version() != v+2 {
		t.Errorf("Version = %d, want %d", h.Version(), v+2)
	}
}

func TestEntryEqual(t *testing.T) {
	a := recognizer.Outcome{CapturedAt: t0, Track: &recognizer.Track{Key: "A"}}
	a2 := recognizer.Outcome{CapturedAt: t0, Track: &recognizer.Track{Key: "A", Title: "other copy"}}
	b := recognizer.Outcome{CapturedAt: t0, Track: &recognizer.Track{Key: "B"}}
	none := recognizer.Outcome{CapturedAt: t0}

	for _, tt := range []struct {
		name string
		x, y Entry
		want bool
	}{
		{"same key", Entry{t0, &a}, Entry{t0, &a2}, true},
		{"different key", Entry{t0, &a}, Entry{t0, &b}, false},
		{"different time", Entry{t0, &a}, Entry{t0.Add(time.Second), &a}, false},
		{"both empty", Entry{t0, nil}, Entry{t0, nil}, true},
		{"empty vs outcome", Entry{t0, nil}, Entry{t0, &none}, false},
		{"no track both", Entry{t0, &none}, Entry{t0, &none}, true},
		{"no track vs track", Entry{t0, &none}, Entry{t0, &a}, false},
	} {
		if got := tt.x.Equal(tt.y); got != tt.want {
			t.Errorf("%s: Equal = %v, want %v", tt.name, got, tt.want)
		}
	}
}
