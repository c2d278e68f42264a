package availability

import (
	"fmt"
	"time"
)

// lookaheadDays is the window scanned for eligible dates.
const lookaheadDays = 7

// DateKeyFormat is the canonical date portion of a slot key.
const DateKeyFormat = "2006-01-02"

// DateOption is one eligible date: display label plus canonical key.
type DateOption struct {
	Label string
	Key   string
}

// Policy decides which dates and times are bookable and when the daily
// write-blackout is in force. It is safe for concurrent use.
type Policy struct {
	Cache         *ConfigCache
	CutoffHour    int // before this hour, tomorrow is bookable; after, day after tomorrow
	BlackoutStart int // blackout window [start, end) in hours of day
	BlackoutEnd   int
}

// NewPolicy creates a Policy.
func NewPolicy(cache *ConfigCache, cutoffHour, blackoutStart, blackoutEnd int) (*Policy, error) {
	if cache == nil {
		return nil, fmt.Errorf("availability: policy: config cache is required")
	}
	return &Policy{
		Cache:         cache,
		CutoffHour:    cutoffHour,
		BlackoutStart: blackoutStart,
		BlackoutEnd:   blackoutEnd,
	}, nil
}

// EligibleDates returns the bookable dates in order: starting tomorrow
// (day after tomorrow once the cutoff hour has passed), scanning a 7-day
// window, keeping only allow-listed weekdays. May be empty.
func (p *Policy) EligibleDates(now time.Time) ([]DateOption, error) {
	settings, err := p.Cache.Get(now)
	if err != nil {
		return nil, err
	}
	return scanDates(p.startOffset(now), now, settings), nil
}

// ViewableDates is the listing variant of EligibleDates: it additionally
// includes today when today itself is eligible and the cutoff hour has
// not passed.
func (p *Policy) ViewableDates(now time.Time) ([]DateOption, error) {
	settings, err := p.Cache.Get(now)
	if err != nil {
		return nil, err
	}
	opts := scanDates(p.startOffset(now), now, settings)
	if now.Hour() < p.CutoffHour && settings.allowed(now.Weekday()) {
		today := DateOption{Label: formatDateLabel(now), Key: now.Format(DateKeyFormat)}
		opts = append([]DateOption{today}, opts...)
	}
	return opts, nil
}

// TimeSlots returns the configured bookable time ranges.
func (p *Policy) TimeSlots(now time.Time) ([]SlotOption, error) {
	settings, err := p.Cache.Get(now)
	if err != nil {
		return nil, err
	}
	return settings.TimeSlots, nil
}

// InBlackout reports whether booking-mutating operations are refused
// right now. The daily window self-disables when tomorrow is not an
// allow-listed weekday: the blackout exists to protect a live decision
// window, and without one there is nothing to protect.
func (p *Policy) InBlackout(now time.Time) (bool, error) {
	h := now.Hour()
	if h < p.BlackoutStart || h >= p.BlackoutEnd {
		return false, nil
	}
	settings, err := p.Cache.Get(now)
	if err != nil {
		return false, err
	}
	tomorrow := now.AddDate(0, 0, 1)
	return settings.allowed(tomorrow.Weekday()), nil
}

// startOffset returns how many days ahead the scan starts.
func (p *Policy) startOffset(now time.Time) int {
	if now.Hour() < p.CutoffHour {
		return 1
	}
	return 2
}

// scanDates walks the lookahead window and keeps allow-listed weekdays.
func scanDates(startOffset int, now time.Time, settings Settings) []DateOption {
	var opts []DateOption
	for i := 0; i < lookaheadDays; i++ {
		day := now.AddDate(0, 0, startOffset+i)
		if !settings.allowed(day.Weekday()) {
			continue
		}
		opts = append(opts, DateOption{
			Label: formatDateLabel(day),
			Key:   day.Format(DateKeyFormat),
		})
	}
	return opts
}

// formatDateLabel renders a date as shown on choice buttons, e.g. "Wed 8/26".
func formatDateLabel(t time.Time) string {
	return fmt.Sprintf("%s %d/%d", t.Weekday().String()[:3], int(t.Month()), t.Day())
}
