package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const auddURL = "https://api.audd.io/"

type AudD struct {
	client   *tracedClient
	endpoint string
	apiToken string
}

func NewAudD(endpoint, apiToken string, timeout time.Duration) *AudD {
	return &AudD{
		client:   newTracedClient(timeout),
		endpoint: endpoint,
		apiToken: apiToken,
	}
}

func (a *AudD) Name() string { return "audd" }

type auddResponse struct {
	Status string `json:"status"`
	Error  *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_message"`
	} `json:"error"`
	Result *auddResult `json:"result"`
}

type auddResult struct {
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album"`
	Timecode   string `json:"timecode"`
	SongLink   string `json:"song_link"`
	AppleMusic *struct {
		Artwork struct {
			URL string `json:"url"`
		} `json:"artwork"`
	} `json:"apple_music"`
	Spotify *struct {
		ID    string `json:"id"`
		Album struct {
			Images []struct {
				URL    string `json:"url"`
				Height int    `json:"height"`
			} `json:"images"`
		} `json:"album"`
	} `json:"spotify"`
}

func (a *AudD) Recognize(ctx context.Context, r Request) (*Outcome, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "window."+r.Format)
	if err != nil {
		return nil, callErr("%v", err)
	}
	if _, err := part.Write(r.Audio); err != nil {
		return nil, callErr("%v", err)
	}
	writer.WriteField("api_token", a.apiToken)
	writer.WriteField("return", "apple_music,spotify")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, &body)
	if err != nil {
		return nil, callErr("%v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.do(req, r.ID)
	if err != nil {
		return nil, callErr("%v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, callErr("audd HTTP %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}

	var ar auddResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil {
		return nil, callErr("audd response parse error: %v", err)
	}
	if ar.Status != "success" {
		if ar.Error != nil {
			return nil, callErr("audd error %d: %s", ar.Error.Code, ar.Error.Message)
		}
		return nil, callErr("audd status %q", ar.Status)
	}

	out := &Outcome{
		Metrics:   resp.Metrics,
		RetryHint: retryAfter(resp.Header),
	}
	if ar.Result == nil {
		return out, nil
	}
	out.Track = ar.Result.track()
	return out, nil
}

func (res *auddResult) track() *Track {
	t := &Track{
		Key:           res.SongLink,
		Title:         res.Title,
		Subtitle:      res.Artist,
		InitialOffset: parseTimecode(res.Timecode),
	}
	if t.Key == "" && res.Spotify != nil {
		t.Key = "spotify:" + res.Spotify.ID
	}
	if t.Key == "" {
		t.Key = res.Artist + "|" + res.Title
	}

	var pages []MetaPage
	if res.AppleMusic != nil && res.AppleMusic.Artwork.URL != "" {
		u := strings.NewReplacer("{w}", "400", "{h}", "400").Replace(res.AppleMusic.Artwork.URL)
		pages = append(pages, MetaPage{Caption: res.Title, ImageURL: u})
	}
	if res.Spotify != nil && len(res.Spotify.Album.Images) > 0 {
		caption := res.Album
		if len(pages) == 0 {
			caption = res.Title
		}
		pages = append(pages, MetaPage{Caption: caption, ImageURL: res.Spotify.Album.Images[0].URL})
	}
	if len(pages) > 0 {
		t.Sections = append(t.Sections, Section{Kind: SectionSong, Pages: pages})
	}
	return t
}

// parseTimecode converts "MM:SS" or "HH:MM:SS" into seconds.
func parseTimecode(tc string) float64 {
	if tc == "" {
		return 0
	}
	var secs float64
	for _, p := range strings.Split(tc, ":") {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0
		}
		secs = secs*60 + n
	}
	return secs
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
