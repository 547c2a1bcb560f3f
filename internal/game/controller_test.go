package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeEngine records imperative calls through testify's mock and lets tests emit events.
type fakeEngine struct {
	mock.Mock

	hmu      sync.Mutex
	handlers map[string][]func(any)
	mode     Mode
}

func newFakeEngine(mode Mode) *fakeEngine {
	return &fakeEngine{handlers: make(map[string][]func(any)), mode: mode}
}

func (f *fakeEngine) On(event string, handler func(payload any)) func() {
	f.hmu.Lock()
	f.handlers[event] = append(f.handlers[event], handler)
	idx := len(f.handlers[event]) - 1
	f.hmu.Unlock()
	return func() {
		f.hmu.Lock()
		f.handlers[event][idx] = nil
		f.hmu.Unlock()
	}
}

func (f *fakeEngine) emit(event string, payload any) {
	f.hmu.Lock()
	handlers := append([]func(any){}, f.handlers[event]...)
	f.hmu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(payload)
		}
	}
}

func (f *fakeEngine) Mode() Mode {
	f.hmu.Lock()
	defer f.hmu.Unlock()
	return f.mode
}

func (f *fakeEngine) SetMode(mode Mode) {
	f.hmu.Lock()
	f.mode = mode
	f.hmu.Unlock()
	f.emit(EventMode, mode)
}

func (f *fakeEngine) ShowNext() bool {
	return f.Called().Bool(0)
}

func (f *fakeEngine) ComputeScore()        { f.Called() }
func (f *fakeEngine) ShowScore()           { f.Called() }
func (f *fakeEngine) HideScore()           { f.Called() }
func (f *fakeEngine) EstimateScore()       { f.Called() }
func (f *fakeEngine) StopEstimatingScore() { f.Called() }

type manualTimer struct {
	fn      func()
	delay   time.Duration
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{fn: fn, delay: d}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every armed timer once and reports how many ran.
func (c *manualClock) fire() int {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	n := 0
	for _, t := range timers {
		if t.stopped {
			continue
		}
		t.stopped = true
		t.fn()
		n++
	}
	return n
}

func (c *manualClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type recordedChange struct {
	field StateField
	state Snapshot
}

func TestController_SettersNotify(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(ModePlay)
	ctrl := NewController(engine, Config{Clock: &manualClock{}})

	var changes []recordedChange
	sub := ctrl.OnChange(func(field StateField, state Snapshot) {
		changes = append(changes, recordedChange{field, state})
	})
	defer sub.Close()

	ctrl.SetZenMode(true)
	ctrl.SetChatChannel("game-12")
	ctrl.SetAnalyzeTool(AnalyzeTool{Tool: "draw", SubTool: "pen"})
	ctrl.SetViewMode(ViewPortrait)
	ctrl.SetEstimatingScore(true)
	ctrl.SetZenMode(true)

	require.Len(t, changes, 6, "every setter call notifies")
	assert.Equal(t, StateZenMode, changes[0].field)
	assert.Equal(t, StateChatChannel, changes[1].field)
	assert.Equal(t, "game-12", changes[1].state.ChatChannel)
	assert.True(t, ctrl.ZenMode())
	assert.Equal(t, "game-12", ctrl.ChatChannel())
	assert.Equal(t, AnalyzeTool{Tool: "draw", SubTool: "pen"}, ctrl.AnalyzeTool())
	assert.Equal(t, ViewPortrait, ctrl.ViewMode())
	assert.True(t, ctrl.EstimatingScore())
}

func TestController_OnChangeFiltersFields(t *testing.T) {
	t.Parallel()

	ctrl := NewController(newFakeEngine(ModePlay), Config{Clock: &manualClock{}})
	var fields []StateField
	sub := ctrl.OnChange(func(field StateField, _ Snapshot) { fields = append(fields, field) }, StateViewMode)

	ctrl.SetZenMode(true)
	ctrl.SetViewMode(ViewSquare)
	sub.Close()
	ctrl.SetViewMode(ViewWide)

	assert.Equal(t, []StateField{StateViewMode}, fields)
}

func TestController_StoneRemovalPhaseComputesScore(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(ModePlay)
	engine.Mock.On("ComputeScore").Return()
	engine.Mock.On("ShowScore").Return()
	engine.Mock.On("HideScore").Return()
	ctrl := NewController(engine, Config{Clock: &manualClock{}})

	engine.emit(EventPhase, PhaseStoneRemoval)
	engine.AssertNumberOfCalls(t, "ComputeScore", 1)
	engine.AssertNumberOfCalls(t, "ShowScore", 1)
	assert.Equal(t, PhaseStoneRemoval, ctrl.Phase())

	engine.emit(EventStoneRemovalUpdated, nil)
	engine.emit(EventStoneRemovalAccepted, nil)
	engine.AssertNumberOfCalls(t, "ComputeScore", 3)

	engine.emit(EventPhase, PhasePlay)
	engine.AssertNumberOfCalls(t, "HideScore", 1)

	engine.emit(EventPhase, PhaseFinished)
	engine.AssertNumberOfCalls(t, "HideScore", 1)
}

func TestController_OutcomeNotifies(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(ModePlay)
	ctrl := NewController(engine, Config{Clock: &manualClock{}})
	var got []string
	ctrl.OnChange(func(_ StateField, s Snapshot) { got = append(got, s.Outcome) }, StateOutcome)

	engine.emit(EventOutcome, "B+R")
	assert.Equal(t, []string{"B+R"}, got)
	assert.Equal(t, "B+R", ctrl.Outcome())
}

func TestController_AutoplayStepsUntilEndOfMoves(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(ModeAnalyze)
	engine.Mock.On("ShowNext").Return(true).Twice()
	engine.Mock.On("ShowNext").Return(false).Once()
	clock := &manualClock{}
	ctrl := NewController(engine, Config{Clock: clock, AutoplayDelay: 200 * time.Millisecond})

	var autoplayEvents []bool
	ctrl.OnChange(func(_ StateField, s Snapshot) { autoplayEvents = append(autoplayEvents, s.Autoplay) }, StateAutoplay)

	ctrl.SetAutoplay(true)
	require.Equal(t, 1, clock.armed())
	assert.Equal(t, 200*time.Millisecond, clock.timers[0].delay)

	require.Equal(t, 1, clock.fire())
	require.Equal(t, 1, clock.fire())
	require.Equal(t, 1, clock.fire())
	assert.Zero(t, clock.armed(), "autoplay must not re-arm at the end of the move list")

	assert.False(t, ctrl.Autoplay())
	assert.Equal(t, []bool{true, false}, autoplayEvents)
	engine.AssertNumberOfCalls(t, "ShowNext", 3)
}

func TestController_AutoplayStopsWhenLeavingAnalyze(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(ModeAnalyze)
	engine.Mock.On("ShowNext").Return(true)
	clock := &manualClock{}
	ctrl := NewController(engine, Config{Clock: clock})

	ctrl.SetAutoplay(true)
	require.Equal(t, 1, clock.fire())
	require.True(t, ctrl.Autoplay())

	engine.SetMode(ModePlay)
	assert.False(t, ctrl.Autoplay())
	assert.Equal(t, ModePlay, ctrl.Mode())
	assert.Zero(t, clock.fire(), "the pending tick was cancelled")
	engine.AssertNumberOfCalls(t, "ShowNext", 1)
}

func TestController_AutoplayTickNoticesModeChange(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(ModeAnalyze)
	clock := &manualClock{}
	ctrl := NewController(engine, Config{Clock: clock})

	ctrl.SetAutoplay(true)
	engine.hmu.Lock()
	engine.mode = ModeEdit
	engine.hmu.Unlock()

	require.Equal(t, 1, clock.fire())
	assert.False(t, ctrl.Autoplay())
	engine.AssertNotCalled(t, "ShowNext")
}

func TestController_ClockPlaysCues(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(ModePlay)
	var played []Cue
	NewController(engine, Config{
		Clock: &manualClock{},
		Audio: AudioFunc(func(cue Cue) { played = append(played, cue) }),
		Countdown: CountdownPrefs{
			TenSecondsStart:  30,
			EverySecondStart: 5,
			AnnouncePeriods:  true,
			Direction:        CountDown,
		},
	})

	engine.emit(EventClock, ClockState{Mine: true, Seconds: 30})
	engine.emit(EventClock, ClockState{Mine: true, Seconds: 30})
	engine.emit(EventClock, ClockState{Mine: true, Seconds: 29})
	engine.emit(EventClock, ClockState{Mine: false, Seconds: 20})
	engine.emit(EventClock, ClockState{Mine: true, Seconds: 3})
	engine.emit(EventClock, "garbage")

	assert.Equal(t, []Cue{{Kind: CueCount, Value: 30}, {Kind: CueCount, Value: 3}}, played)
}
