package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectCue_Precedence(t *testing.T) {
	t.Parallel()

	prefs := CountdownPrefs{
		TickTockStart:    4,
		TenSecondsStart:  60,
		FiveSecondsStart: 20,
		EverySecondStart: 8,
		AnnouncePeriods:  true,
		Direction:        CountDown,
	}

	cases := []struct {
		name  string
		state ClockState
		want  Cue
	}{
		{"tick", ClockState{Mine: true, Seconds: 4}, Cue{Kind: CueTick}},
		{"tock", ClockState{Mine: true, Seconds: 3}, Cue{Kind: CueTock}},
		{"ten second marker", ClockState{Mine: true, Seconds: 50}, Cue{Kind: CueCount, Value: 50}},
		{"ten beats five", ClockState{Mine: true, Seconds: 20}, Cue{Kind: CueCount, Value: 20}},
		{"five second marker", ClockState{Mine: true, Seconds: 15}, Cue{Kind: CueCount, Value: 15}},
		{"every second", ClockState{Mine: true, Seconds: 7}, Cue{Kind: CueCount, Value: 7}},
		{"silent between markers", ClockState{Mine: true, Seconds: 13}, Cue{}},
		{"above ten second threshold", ClockState{Mine: true, Seconds: 70}, Cue{}},
		{"period announcement", ClockState{Mine: true, Seconds: 59, Overtime: true, PeriodLength: 59, PeriodsLeft: 3, PeriodStarted: true}, Cue{Kind: CuePeriod, Value: 3}},
		{"last period", ClockState{Mine: true, Seconds: 59, Overtime: true, PeriodLength: 59, PeriodsLeft: 1, PeriodStarted: true}, Cue{Kind: CueLastPeriod}},
		{"opponent clock", ClockState{Mine: false, Seconds: 10}, Cue{}},
		{"paused", ClockState{Mine: true, Seconds: 10, Paused: true}, Cue{}},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, SelectCue(tc.state, prefs), tc.name)
	}
}

func TestSelectCue_DisabledThresholds(t *testing.T) {
	t.Parallel()

	assert.True(t, SelectCue(ClockState{Mine: true, Seconds: 10}, CountdownPrefs{}).IsZero())
}

func TestSelectCue_CountUp(t *testing.T) {
	t.Parallel()

	overtime := ClockState{Mine: true, Seconds: 10, Overtime: true, PeriodLength: 30, PeriodsLeft: 2}
	mainTime := ClockState{Mine: true, Seconds: 10}

	up := CountdownPrefs{TenSecondsStart: 30, Direction: CountUp}
	assert.Equal(t, Cue{Kind: CueCount, Value: 20}, SelectCue(overtime, up))
	assert.Equal(t, Cue{Kind: CueCount, Value: 10}, SelectCue(mainTime, up), "main time always counts down")

	autoJa := CountdownPrefs{TenSecondsStart: 30, Direction: CountAuto, Locale: "ja-JP"}
	assert.Equal(t, Cue{Kind: CueCount, Value: 20}, SelectCue(overtime, autoJa))

	autoEn := CountdownPrefs{TenSecondsStart: 30, Direction: CountAuto, Locale: "en"}
	assert.Equal(t, Cue{Kind: CueCount, Value: 10}, SelectCue(overtime, autoEn))
}

func TestCueTracker_NoRepeat(t *testing.T) {
	t.Parallel()

	prefs := CountdownPrefs{EverySecondStart: 10, Direction: CountDown}
	var tracker CueTracker

	assert.Equal(t, Cue{Kind: CueCount, Value: 5}, tracker.Next(ClockState{Mine: true, Seconds: 5}, prefs))
	assert.True(t, tracker.Next(ClockState{Mine: true, Seconds: 5}, prefs).IsZero())
	assert.Equal(t, Cue{Kind: CueCount, Value: 4}, tracker.Next(ClockState{Mine: true, Seconds: 4}, prefs))

	tracker.Reset()
	assert.Equal(t, Cue{Kind: CueCount, Value: 4}, tracker.Next(ClockState{Mine: true, Seconds: 4}, prefs))
	assert.Equal(t, "count:4", Cue{Kind: CueCount, Value: 4}.String())
	assert.Equal(t, "last_period", Cue{Kind: CueLastPeriod}.String())
}
