package game

import (
	"strconv"
	"strings"
	"sync"
)

type CueKind string

const (
	CueNone       CueKind = ""
	CueTick       CueKind = "tick"
	CueTock       CueKind = "tock"
	CueCount      CueKind = "count"
	CuePeriod     CueKind = "period"
	CueLastPeriod CueKind = "last_period"
)

// Cue is one sound to play. Value is the spoken number for CueCount and the periods left
// for CuePeriod.
type Cue struct {
	Kind  CueKind
	Value int
}

func (c Cue) String() string {
	switch c.Kind {
	case CueCount, CuePeriod:
		return string(c.Kind) + ":" + strconv.Itoa(c.Value)
	default:
		return string(c.Kind)
	}
}

func (c Cue) IsZero() bool {
	return c.Kind == CueNone
}

type CountDirection string

const (
	CountDown CountDirection = "down"
	CountUp   CountDirection = "up"
	// CountAuto counts up in overtime for Japanese locales and down otherwise.
	CountAuto CountDirection = "auto"
)

// CountdownPrefs are the user thresholds gating each cue class. A threshold of zero
// disables that class.
type CountdownPrefs struct {
	TickTockStart    int
	TenSecondsStart  int
	FiveSecondsStart int
	EverySecondStart int
	AnnouncePeriods  bool
	Direction        CountDirection
	Locale           string
}

func DefaultCountdownPrefs() CountdownPrefs {
	return CountdownPrefs{
		TickTockStart:    0,
		TenSecondsStart:  60,
		FiveSecondsStart: 30,
		EverySecondStart: 10,
		AnnouncePeriods:  true,
		Direction:        CountAuto,
	}
}

func (p CountdownPrefs) countsUp(state ClockState) bool {
	if !state.Overtime || state.PeriodLength <= 0 {
		return false
	}
	switch p.Direction {
	case CountUp:
		return true
	case CountAuto:
		locale := strings.ToLower(strings.TrimSpace(p.Locale))
		return locale == "ja" || strings.HasPrefix(locale, "ja-") || strings.HasPrefix(locale, "ja_")
	default:
		return false
	}
}

// SelectCue picks the cue for one clock tick. The first matching rule wins: tick/tock
// window, ten-second markers, five-second markers, every second, period announcement.
func SelectCue(state ClockState, prefs CountdownPrefs) Cue {
	if !state.Mine || state.Paused || state.Seconds < 0 {
		return Cue{}
	}
	seconds := state.Seconds

	spoken := seconds
	if prefs.countsUp(state) {
		spoken = state.PeriodLength - seconds
	}

	switch {
	case prefs.TickTockStart > 0 && seconds <= prefs.TickTockStart:
		if seconds%2 == 0 {
			return Cue{Kind: CueTick}
		}
		return Cue{Kind: CueTock}
	case prefs.TenSecondsStart > 0 && seconds <= prefs.TenSecondsStart && seconds%10 == 0 && seconds > 0:
		return Cue{Kind: CueCount, Value: spoken}
	case prefs.FiveSecondsStart > 0 && seconds <= prefs.FiveSecondsStart && seconds%5 == 0 && seconds > 0:
		return Cue{Kind: CueCount, Value: spoken}
	case prefs.EverySecondStart > 0 && seconds <= prefs.EverySecondStart && seconds > 0:
		return Cue{Kind: CueCount, Value: spoken}
	case prefs.AnnouncePeriods && state.Overtime && state.PeriodStarted:
		if state.PeriodsLeft <= 1 {
			return Cue{Kind: CueLastPeriod}
		}
		return Cue{Kind: CuePeriod, Value: state.PeriodsLeft}
	}
	return Cue{}
}

// CueTracker suppresses announcing the same cue twice in a row.
type CueTracker struct {
	mu   sync.Mutex
	last Cue
}

// Next returns the cue to play for state, or the zero Cue when nothing should play.
func (t *CueTracker) Next(state ClockState, prefs CountdownPrefs) Cue {
	cue := SelectCue(state, prefs)
	t.mu.Lock()
	defer t.mu.Unlock()
	if cue.IsZero() || cue == t.last {
		return Cue{}
	}
	t.last = cue
	return cue
}

func (t *CueTracker) Reset() {
	t.mu.Lock()
	t.last = Cue{}
	t.mu.Unlock()
}
