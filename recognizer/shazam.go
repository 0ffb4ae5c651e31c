package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Shazam posts the encoded window to an endpoint that answers with the
// Shazam discovery schema, e.g. a small shazamio sidecar.
type Shazam struct {
	client   *tracedClient
	endpoint string
}

func NewShazam(endpoint string, timeout time.Duration) *Shazam {
	return &Shazam{client: newTracedClient(timeout), endpoint: endpoint}
}

func (s *Shazam) Name() string { return "shazam" }

type shazamResponse struct {
	Matches []struct {
		ID     string  `json:"id"`
		Offset float64 `json:"offset"`
	} `json:"matches"`
	RetryMs   int64        `json:"retryms"`
	Timestamp int64        `json:"timestamp"`
	Track     *shazamTrack `json:"track"`
}

type shazamTrack struct {
	Key      string            `json:"key"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle"`
	Sections []json.RawMessage `json:"sections"`
}

type shazamSection struct {
	Type      string `json:"type"`
	MetaPages []struct {
		Image   string `json:"image"`
		Caption string `json:"caption"`
	} `json:"metapages"`
}

func (s *Shazam) Recognize(ctx context.Context, r Request) (*Outcome, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, callErr("bad endpoint %q: %v", s.endpoint, err)
	}
	q := u.Query()
	q.Set("samplerate", strconv.Itoa(r.SampleRate))
	q.Set("format", r.Format)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(r.Audio))
	if err != nil {
		return nil, callErr("%v", err)
	}
	req.Header.Set("Content-Type", r.ContentType)

	resp, err := s.client.do(req, r.ID)
	if err != nil {
		return nil, callErr("%v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, callErr("shazam HTTP %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}

	var sr shazamResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return nil, callErr("shazam response parse error: %v", err)
	}

	out := &Outcome{Metrics: resp.Metrics}
	if sr.RetryMs > 0 {
		out.RetryHint = msDuration(sr.RetryMs)
	}
	if sr.Track == nil || sr.Track.Key == "" {
		return out, nil
	}

	t := &Track{
		Key:      sr.Track.Key,
		Title:    sr.Track.Title,
		Subtitle: sr.Track.Subtitle,
	}
	if len(sr.Matches) > 0 {
		t.InitialOffset = sr.Matches[0].Offset
	}
	for _, raw := range sr.Track.Sections {
		t.Sections = append(t.Sections, parseShazamSection(raw))
	}
	out.Track = t
	return out, nil
}

func parseShazamSection(raw json.RawMessage) Section {
	var sec shazamSection
	if err := json.Unmarshal(raw, &sec); err != nil {
		return Section{Kind: SectionOther, Payload: raw}
	}
	switch sec.Type {
	case "SONG":
		pages := make([]MetaPage, 0, len(sec.MetaPages))
		for _, p := range sec.MetaPages {
			pages = append(pages, MetaPage{Caption: p.Caption, ImageURL: p.Image})
		}
		return Section{Kind: SectionSong, Pages: pages, Payload: raw}
	case "LYRICS":
		return Section{Kind: SectionLyrics, Payload: raw}
	case "VIDEO":
		return Section{Kind: SectionVideo, Payload: raw}
	default:
		return Section{Kind: SectionOther, Payload: raw}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
