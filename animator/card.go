package animator

import (
	"fmt"
	"math"
	"time"

	"earshot/recognizer"
)

// ScrollOffsets returns the x offsets, relative to the card's left edge, at
// which a line of text should be drawn after scrolling for lifetime.
func ScrollOffsets(textW, cardW int, lifetime time.Duration, pps float64, lead, gap int) []float64 {
	if textW <= cardW {
		return []float64{float64(cardW-textW) / 2}
	}
	period := float64(textW + gap)
	shift := math.Mod(max(lifetime.Seconds(), 0)*pps, period)
	first := float64(lead) - shift
	if second := first + period; second < float64(cardW) {
		return []float64{first, second}
	}
	return []float64{first}
}

// Elapsed is the playback position of track at now, formatted MM:SS. Minutes
// are not capped and the value is not clamped to the track's length.
func Elapsed(track *recognizer.Track, capturedAt, now time.Time) string {
	if track == nil {
		return ""
	}
	secs := track.InitialOffset + now.Sub(capturedAt).Seconds()
	total := int(max(secs, 0))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
