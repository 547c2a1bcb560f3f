// Package game wires an external board engine to client UI state, autoplay and
// clock audio cues.
package game

// Engine event names.
const (
	EventPhase                = "phase"
	EventMode                 = "mode"
	EventOutcome              = "outcome"
	EventClock                = "clock"
	EventStoneRemovalUpdated  = "stone-removal.updated"
	EventStoneRemovalAccepted = "stone-removal.accepted"
)

type Phase string

const (
	PhasePlay         Phase = "play"
	PhaseStoneRemoval Phase = "stone removal"
	PhaseFinished     Phase = "finished"
)

type Mode string

const (
	ModePlay            Mode = "play"
	ModeAnalyze         Mode = "analyze"
	ModeConditional     Mode = "conditional"
	ModeScoreEstimation Mode = "score estimation"
	ModeEdit            Mode = "edit"
)

// Engine is the board engine the controller reacts to. Event payloads are Phase for
// "phase", Mode for "mode", string for "outcome" and ClockState for "clock".
type Engine interface {
	On(event string, handler func(payload any)) (off func())
	Mode() Mode
	SetMode(mode Mode)
	// ShowNext advances one move and reports false at the end of the move list.
	ShowNext() bool
	ComputeScore()
	ShowScore()
	HideScore()
	EstimateScore()
	StopEstimatingScore()
}

// ClockState is the engine's view of the local player's clock on one tick.
type ClockState struct {
	// Mine is false for the opponent's clock; only the local player's clock is voiced.
	Mine bool
	// Seconds remaining in the current main time or overtime period.
	Seconds int
	// Overtime is true once main time is exhausted and byoyomi periods are running.
	Overtime bool
	// PeriodLength is the length of one overtime period in seconds.
	PeriodLength int
	PeriodsLeft  int
	// PeriodStarted is true on the first tick of a new overtime period.
	PeriodStarted bool
	Paused        bool
}

// AudioSink plays a selected cue.
type AudioSink interface {
	Play(cue Cue)
}

// AudioFunc adapts a function to AudioSink.
type AudioFunc func(cue Cue)

func (f AudioFunc) Play(cue Cue) {
	f(cue)
}
