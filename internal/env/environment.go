package env

import (
	"fmt"
	"math/rand/v2"

	"stockenv/internal/logger"
	"stockenv/internal/market"
)

// State is the environment's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "uninitialized"
	}
}

// RandSource supplies uniform draws in [0,1) for the execution price.
type RandSource interface {
	Float64() float64
}

// StepResult is what Step hands back to the caller.
type StepResult struct {
	Observation Observation    `json:"observation"`
	Reward      float64        `json:"reward"`
	Done        bool           `json:"done"`
	Info        map[string]any `json:"info"`
}

// Environment is a single-agent trading simulator over a DataSource. It is
// not safe for concurrent use; one caller owns an instance for an episode.
type Environment struct {
	src    DataSource
	params Params
	rng    RandSource

	visFactory VisualizationFactory
	vis        Visualization

	state     State
	portfolio Portfolio
	lastPrice float64
}

type Option func(*Environment)

func WithParams(p Params) Option {
	return func(e *Environment) { e.params = p }
}

// WithRand injects the random source used for execution prices.
func WithRand(r RandSource) Option {
	return func(e *Environment) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithSeed is shorthand for WithRand(NewRand(seed)).
func WithSeed(seed uint64) Option {
	return WithRand(NewRand(seed))
}

// NewRand is the execution-price generator WithSeed installs.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func WithVisualizationFactory(f VisualizationFactory) Option {
	return func(e *Environment) { e.visFactory = f }
}

// New validates src against the required columns and returns an environment
// in the uninitialized state. Call Reset before Step.
func New(src DataSource, opts ...Option) (*Environment, error) {
	e := &Environment{
		params: DefaultParams(),
		rng:    rand.New(rand.NewPCG(1, 2)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if src == nil {
		return nil, &ConfigurationError{Reason: "data source is nil"}
	}
	if src.Len() == 0 {
		return nil, &ConfigurationError{Reason: "data source is empty"}
	}
	if missing := missingColumns(src); len(missing) > 0 {
		return nil, &ConfigurationError{MissingColumns: missing}
	}
	if err := e.params.Validate(); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	e.src = src
	return e, nil
}

func missingColumns(src DataSource) []string {
	if f, ok := src.(*market.Frame); ok {
		return f.MissingColumns(market.FeatureColumns...)
	}
	var missing []string
	for _, col := range market.FeatureColumns {
		if _, err := src.Value(0, col); err != nil {
			missing = append(missing, col)
		}
	}
	return missing
}

func (e *Environment) Params() Params     { return e.params }
func (e *Environment) State() State       { return e.state }
func (e *Environment) Source() DataSource { return e.src }

// Portfolio returns a copy of the current account state.
func (e *Environment) Portfolio() Portfolio { return e.portfolio.clone() }

// Account is Portfolio without the trade history, for per-step inspection.
func (e *Environment) Account() Portfolio {
	p := e.portfolio
	p.Trades = nil
	return p
}

// LastPrice is the execution price drawn by the most recent Step.
func (e *Environment) LastPrice() float64 { return e.lastPrice }

// RewardRange bounds the reward signal.
func (e *Environment) RewardRange() (float64, float64) {
	return 0, e.params.MaxAccountBalance
}

// Reset starts a new episode from any state and returns its first observation.
func (e *Environment) Reset() (Observation, error) {
	e.portfolio = newPortfolio(e.params.InitialAccountBalance)
	e.lastPrice = 0
	e.state = StateReady
	obs, err := Observe(e.src, e.portfolio.CurrentStep, e.portfolio)
	if err != nil {
		e.state = StateUninitialized
		return obs, err
	}
	return obs, nil
}

// Step executes a at the current row, advances one row, and reports the
// reward and whether the episode is over. It fails with ErrInvalidState
// before Reset and after the episode has terminated.
func (e *Environment) Step(a Action) (StepResult, error) {
	if e.state != StateReady {
		return StepResult{}, fmt.Errorf("%w: step called while %s", ErrInvalidState, e.state)
	}
	if err := a.validate(); err != nil {
		return StepResult{}, err
	}
	if err := e.takeAction(a.Clip()); err != nil {
		return StepResult{}, err
	}

	e.portfolio.CurrentStep++
	step := e.portfolio.CurrentStep
	delayModifier := float64(step) / float64(e.params.MaxSteps)
	reward := e.portfolio.Balance*delayModifier + float64(step)
	done := e.portfolio.NetWorth <= 0 || step >= e.src.Len()
	if done {
		e.state = StateTerminated
		logger.Debugf("[env] episode terminated at step %d net_worth=%.2f", step, e.portfolio.NetWorth)
	}

	obs, err := Observe(e.src, step, e.portfolio)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Info:        map[string]any{},
	}, nil
}

func (e *Environment) takeAction(a Action) error {
	price, err := e.executionPrice()
	if err != nil {
		return err
	}
	e.lastPrice = price
	p := &e.portfolio
	switch a.Kind() {
	case ActionBuy:
		if n := p.buy(price, a.Amount); n > 0 {
			logger.Debugf("[env] step %d buy %d @ %.4f", p.CurrentStep, n, price)
		}
	case ActionSell:
		if n := p.sell(price, a.Amount); n > 0 {
			logger.Debugf("[env] step %d sell %d @ %.4f", p.CurrentStep, n, price)
		}
	}
	p.mark(price)
	return nil
}

// executionPrice draws uniformly between the current row's open and close.
func (e *Environment) executionPrice() (float64, error) {
	step := e.portfolio.CurrentStep
	open, err := e.src.Value(step, market.ColOpen)
	if err != nil {
		return 0, fmt.Errorf("execution price at step %d: %w", step, err)
	}
	closePrice, err := e.src.Value(step, market.ColClose)
	if err != nil {
		return 0, fmt.Errorf("execution price at step %d: %w", step, err)
	}
	lo, hi := min(open, closePrice), max(open, closePrice)
	return lo + e.rng.Float64()*(hi-lo), nil
}
