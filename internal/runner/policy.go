package runner

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"stockenv/internal/env"
)

// Policy picks the next action from an observation.
type Policy interface {
	Act(obs env.Observation) env.Action
}

// PolicyFactory builds the policy for episode i. Policies may keep state,
// so every episode gets its own.
type PolicyFactory func(i int, seed uint64) Policy

// HoldPolicy never trades.
type HoldPolicy struct{}

func (HoldPolicy) Act(env.Observation) env.Action { return env.Hold() }
func (HoldPolicy) Name() string                   { return "hold" }

// policyStream keeps policy draws off the environment's price stream for the
// same seed.
const policyStream = 0xda942042e4dd58b5

// RandomPolicy samples uniformly from the action space.
type RandomPolicy struct {
	rng *rand.Rand
}

func NewRandomPolicy(seed uint64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewPCG(seed^policyStream, ^seed))}
}

func (p *RandomPolicy) Act(env.Observation) env.Action {
	return env.Action{
		Type:   env.ActionLow.Type + p.rng.Float64()*(env.ActionHigh.Type-env.ActionLow.Type),
		Amount: env.ActionLow.Amount + p.rng.Float64()*(env.ActionHigh.Amount-env.ActionLow.Amount),
	}
}

func (p *RandomPolicy) Name() string { return "random" }

// BuyAndHoldPolicy spends the whole balance on the first step and holds after.
type BuyAndHoldPolicy struct {
	bought bool
}

func (p *BuyAndHoldPolicy) Act(env.Observation) env.Action {
	if p.bought {
		return env.Hold()
	}
	p.bought = true
	return env.Buy(1)
}

func (p *BuyAndHoldPolicy) Name() string { return "buy_and_hold" }

// PolicyNames lists the names PolicyByName accepts.
var PolicyNames = []string{"hold", "random", "buy_and_hold"}

// PolicyByName returns a factory for a built-in policy.
func PolicyByName(name string) (PolicyFactory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hold":
		return func(int, uint64) Policy { return HoldPolicy{} }, nil
	case "random", "":
		return func(_ int, seed uint64) Policy { return NewRandomPolicy(seed) }, nil
	case "buy_and_hold", "buyandhold":
		return func(int, uint64) Policy { return &BuyAndHoldPolicy{} }, nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want one of %s)", name, strings.Join(PolicyNames, ", "))
	}
}

func policyName(p Policy) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
