package polymarket

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WindowDuration is the length of one up/down market window.
const WindowDuration = 15 * time.Minute

// SlugForWindow builds the deterministic slug for the 15-minute up/down
// market whose window starts at the given time, e.g.
// "btc-updown-15m-1756641600". The asset is lowercased into the slug prefix.
func SlugForWindow(asset string, windowStart time.Time) string {
	return fmt.Sprintf("%s-updown-15m-%d", strings.ToLower(asset), windowStart.Unix())
}

// CurrentWindowStart truncates now down to the 15-minute boundary that opens
// the window containing it.
func CurrentWindowStart(now time.Time) time.Time {
	return now.UTC().Truncate(WindowDuration)
}

// WindowStartFromSlug parses the epoch suffix out of an up/down slug.
func WindowStartFromSlug(slug string) (time.Time, error) {
	idx := strings.LastIndex(slug, "-")
	if idx < 0 || idx == len(slug)-1 {
		return time.Time{}, fmt.Errorf("polymarket: slug %q has no epoch suffix", slug)
	}
	ts, err := strconv.ParseInt(slug[idx+1:], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("polymarket: slug %q epoch suffix: %w", slug, err)
	}
	return time.Unix(ts, 0).UTC(), nil
}

// IsUpDownSlug reports whether the slug belongs to the 15-minute up/down
// series for the given asset.
func IsUpDownSlug(slug, asset string) bool {
	return strings.HasPrefix(slug, strings.ToLower(asset)+"-updown-15m-")
}
