package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCall marks a failed recognition call: transport, HTTP status, API
// error or an undecodable response. A successful call without a match is
// not an error.
var ErrCall = errors.New("recognition call failed")

type SectionKind int

const (
	SectionOther SectionKind = iota
	SectionSong
	SectionLyrics
	SectionVideo
)

func (k SectionKind) String() string {
	switch k {
	case SectionSong:
		return "song"
	case SectionLyrics:
		return "lyrics"
	case SectionVideo:
		return "video"
	default:
		return "other"
	}
}

type MetaPage struct {
	Caption  string
	ImageURL string
}

// Section is a tagged union over the section variants a service returns.
// Only SectionSong carries Pages; every other kind keeps its raw payload.
type Section struct {
	Kind    SectionKind
	Pages   []MetaPage
	Payload json.RawMessage
}

type Track struct {
	Key           string
	Title         string
	Subtitle      string
	Sections      []Section
	InitialOffset float64 // seconds into the song at the start of the window
}

// ArtworkURL returns the image of the first song page captioned with the
// track title.
func (t *Track) ArtworkURL() (string, bool) {
	for _, s := range t.Sections {
		if s.Kind != SectionSong {
			continue
		}
		for _, p := range s.Pages {
			if p.Caption == t.Title && p.ImageURL != "" {
				return p.ImageURL, true
			}
		}
	}
	return "", false
}

type Outcome struct {
	CapturedAt time.Time
	Track      *Track        // nil: submitted but not recognized
	RetryHint  time.Duration // 0: no hint

	Metrics *NetworkMetrics // diagnostics only, may be nil
}

func (o *Outcome) Recognized() bool { return o != nil && o.Track != nil }

type Request struct {
	ID          string
	Audio       []byte
	Format      string // "wav" | "flac"
	ContentType string
	SampleRate  int
}

type Service interface {
	Name() string
	Recognize(ctx context.Context, req Request) (*Outcome, error)
}

type Options struct {
	Backend  string // "shazam" | "audd" | "fake"
	Endpoint string
	APIToken string
	Timeout  time.Duration
}

func New(opts Options) (Service, error) {
	switch opts.Backend {
	case "shazam":
		if opts.Endpoint == "" {
			return nil, fmt.Errorf("shazam backend needs an endpoint")
		}
		return NewShazam(opts.Endpoint, opts.Timeout), nil
	case "audd":
		if opts.APIToken == "" {
			return nil, fmt.Errorf("audd backend needs an api token (EARSHOT_API_TOKEN)")
		}
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = auddURL
		}
		return NewAudD(endpoint, opts.APIToken, opts.Timeout), nil
	case "fake":
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown recognizer %q", opts.Backend)
	}
}

func callErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCall, fmt.Sprintf(format, args...))
}

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
