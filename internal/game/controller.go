package game

import (
	"sync"
	"time"

	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/pubsub"
)

const DefaultAutoplayDelay = 1500 * time.Millisecond

// StateField names one piece of controller state for change notifications.
type StateField string

const (
	StateAutoplay        StateField = "autoplay"
	StateZenMode         StateField = "zen_mode"
	StateEstimatingScore StateField = "estimating_score"
	StateChatChannel     StateField = "chat_channel"
	StateAnalyzeTool     StateField = "analyze_tool"
	StateViewMode        StateField = "view_mode"
	StatePhase           StateField = "phase"
	StateMode            StateField = "mode"
	StateOutcome         StateField = "outcome"
)

var allStateFields = []StateField{
	StateAutoplay,
	StateZenMode,
	StateEstimatingScore,
	StateChatChannel,
	StateAnalyzeTool,
	StateViewMode,
	StatePhase,
	StateMode,
	StateOutcome,
}

type ViewMode string

const (
	ViewWide     ViewMode = "wide"
	ViewPortrait ViewMode = "portrait"
	ViewSquare   ViewMode = "square"
)

// AnalyzeTool is the active analysis tool and its sub-mode, e.g. "draw" / "pen".
type AnalyzeTool struct {
	Tool    string
	SubTool string
}

// Snapshot is a copy of the controller state at one moment.
type Snapshot struct {
	Autoplay        bool
	ZenMode         bool
	EstimatingScore bool
	ChatChannel     string
	AnalyzeTool     AnalyzeTool
	ViewMode        ViewMode
	Phase           Phase
	Mode            Mode
	Outcome         string
}

type Config struct {
	AutoplayDelay time.Duration
	Clock         Clock
	Audio         AudioSink
	Countdown     CountdownPrefs
	Logger        *logging.Logger
}

// Controller mirrors engine lifecycle into UI state and reacts to engine events.
type Controller struct {
	engine Engine
	clock  Clock
	audio  AudioSink
	delay  time.Duration
	logger *logging.Logger

	mu        sync.Mutex
	state     Snapshot
	countdown CountdownPrefs
	autoplay  autoplayRun

	cues    CueTracker
	changes *pubsub.Publisher[Snapshot]
	offs    []func()
}

func NewController(engine Engine, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	delay := cfg.AutoplayDelay
	if delay <= 0 {
		delay = DefaultAutoplayDelay
	}
	countdown := cfg.Countdown
	if countdown == (CountdownPrefs{}) {
		countdown = DefaultCountdownPrefs()
	}
	logger = logger.Named("game")

	c := &Controller{
		engine:    engine,
		clock:     clock,
		audio:     cfg.Audio,
		delay:     delay,
		logger:    logger,
		countdown: countdown,
		changes:   pubsub.NewPublisher[Snapshot](logger),
		state: Snapshot{
			ViewMode: ViewWide,
			Phase:    PhasePlay,
			Mode:     engine.Mode(),
		},
	}

	c.offs = []func(){
		engine.On(EventPhase, c.onPhase),
		engine.On(EventMode, c.onMode),
		engine.On(EventOutcome, c.onOutcome),
		engine.On(EventClock, c.onClock),
		engine.On(EventStoneRemovalUpdated, c.onStoneRemoval),
		engine.On(EventStoneRemovalAccepted, c.onStoneRemoval),
	}
	return c
}

// Close detaches from the engine and stops autoplay.
func (c *Controller) Close() {
	c.SetAutoplay(false)
	c.mu.Lock()
	offs := c.offs
	c.offs = nil
	c.mu.Unlock()
	for _, off := range offs {
		if off != nil {
			off()
		}
	}
}

// OnChange registers cb for the given fields, or for every field when none are given.
// Close the returned subscriber to stop listening.
func (c *Controller) OnChange(cb func(field StateField, state Snapshot), fields ...StateField) *pubsub.Subscriber[Snapshot] {
	if len(fields) == 0 {
		fields = allStateFields
	}
	sub := c.changes.NewSubscriber(func(key string, state Snapshot) {
		cb(StateField(key), state)
	})
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, string(f))
	}
	sub.On(keys...)
	return sub
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Autoplay() bool {
	return c.Snapshot().Autoplay
}

func (c *Controller) ZenMode() bool {
	return c.Snapshot().ZenMode
}

func (c *Controller) EstimatingScore() bool {
	return c.Snapshot().EstimatingScore
}

func (c *Controller) ChatChannel() string {
	return c.Snapshot().ChatChannel
}

func (c *Controller) AnalyzeTool() AnalyzeTool {
	return c.Snapshot().AnalyzeTool
}

func (c *Controller) ViewMode() ViewMode {
	return c.Snapshot().ViewMode
}

func (c *Controller) Phase() Phase {
	return c.Snapshot().Phase
}

func (c *Controller) Mode() Mode {
	return c.Snapshot().Mode
}

func (c *Controller) Outcome() string {
	return c.Snapshot().Outcome
}

func (c *Controller) SetZenMode(on bool) {
	c.set(StateZenMode, func(s *Snapshot) { s.ZenMode = on })
}

func (c *Controller) SetEstimatingScore(on bool) {
	c.set(StateEstimatingScore, func(s *Snapshot) { s.EstimatingScore = on })
}

func (c *Controller) SetChatChannel(channel string) {
	c.set(StateChatChannel, func(s *Snapshot) { s.ChatChannel = channel })
}

func (c *Controller) SetAnalyzeTool(tool AnalyzeTool) {
	c.set(StateAnalyzeTool, func(s *Snapshot) { s.AnalyzeTool = tool })
}

func (c *Controller) SetViewMode(mode ViewMode) {
	c.set(StateViewMode, func(s *Snapshot) { s.ViewMode = mode })
}

func (c *Controller) SetCountdownPrefs(prefs CountdownPrefs) {
	c.mu.Lock()
	c.countdown = prefs
	c.mu.Unlock()
	c.cues.Reset()
}

// StartEstimatingScore asks the engine for an estimate and records the state.
func (c *Controller) StartEstimatingScore() {
	c.engine.EstimateScore()
	c.SetEstimatingScore(true)
}

func (c *Controller) StopEstimatingScore() {
	c.engine.StopEstimatingScore()
	c.SetEstimatingScore(false)
}

// set applies mutate under the lock and publishes field. Every setter notifies, even
// when the value did not change.
func (c *Controller) set(field StateField, mutate func(s *Snapshot)) {
	c.mu.Lock()
	mutate(&c.state)
	snapshot := c.state
	c.mu.Unlock()
	c.changes.Publish(string(field), snapshot)
}

func (c *Controller) onPhase(payload any) {
	phase, ok := payload.(Phase)
	if !ok {
		c.logger.Warn("unexpected phase payload", "payload", payload)
		return
	}

	c.mu.Lock()
	previous := c.state.Phase
	c.mu.Unlock()

	switch {
	case phase == PhaseStoneRemoval && previous != PhaseStoneRemoval:
		c.engine.ComputeScore()
		c.engine.ShowScore()
	case phase != PhaseStoneRemoval && previous == PhaseStoneRemoval:
		c.engine.HideScore()
	}
	c.set(StatePhase, func(s *Snapshot) { s.Phase = phase })
}

func (c *Controller) onMode(payload any) {
	mode, ok := payload.(Mode)
	if !ok {
		c.logger.Warn("unexpected mode payload", "payload", payload)
		return
	}

	c.mu.Lock()
	previous := c.state.Mode
	c.mu.Unlock()

	if previous == ModeAnalyze && mode != ModeAnalyze {
		c.SetAutoplay(false)
	}
	c.set(StateMode, func(s *Snapshot) { s.Mode = mode })
}

func (c *Controller) onOutcome(payload any) {
	outcome, _ := payload.(string)
	c.set(StateOutcome, func(s *Snapshot) { s.Outcome = outcome })
}

func (c *Controller) onClock(payload any) {
	state, ok := payload.(ClockState)
	if !ok {
		c.logger.Warn("unexpected clock payload", "payload", payload)
		return
	}
	if c.audio == nil {
		return
	}

	c.mu.Lock()
	prefs := c.countdown
	c.mu.Unlock()

	if cue := c.cues.Next(state, prefs); !cue.IsZero() {
		c.logger.Debug("clock cue", "cue", cue.String(), "seconds", state.Seconds)
		c.audio.Play(cue)
	}
}

func (c *Controller) onStoneRemoval(any) {
	c.engine.ComputeScore()
	if c.Phase() == PhaseStoneRemoval {
		c.engine.ShowScore()
	}
}
