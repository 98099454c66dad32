package recorder

import (
	"context"

	"stockenv/internal/env"

	"github.com/google/uuid"
)

// EpisodeMeta describes an episode at the moment it starts.
type EpisodeMeta struct {
	ID     string
	Policy string
	Seed   uint64
	Rows   int
	Params env.Params
}

// StepRecord is one transition as seen by the driver loop.
type StepRecord struct {
	EpisodeID   string
	Step        int
	Action      env.Action
	Price       float64
	Reward      float64
	Done        bool
	Observation env.Observation
	Portfolio   env.Portfolio
}

// EpisodeResult is written once when the episode ends.
type EpisodeResult struct {
	Steps         int
	TotalReward   float64
	FinalNetWorth float64
	MaxNetWorth   float64
	Profit        float64
	Trades        []env.Trade
	Err           string
}

// Recorder persists episodes. Implementations must be safe for concurrent
// use by several episodes at once.
type Recorder interface {
	// StartEpisode registers an episode and returns its ID. An empty
	// meta.ID gets a fresh one.
	StartEpisode(ctx context.Context, meta EpisodeMeta) (string, error)
	RecordStep(ctx context.Context, rec StepRecord) error
	FinishEpisode(ctx context.Context, id string, res EpisodeResult) error
	Close() error
}

// Noop discards everything except the episode ID.
type Noop struct{}

func (Noop) StartEpisode(_ context.Context, meta EpisodeMeta) (string, error) {
	if meta.ID != "" {
		return meta.ID, nil
	}
	return uuid.NewString(), nil
}

func (Noop) RecordStep(context.Context, StepRecord) error               { return nil }
func (Noop) FinishEpisode(context.Context, string, EpisodeResult) error { return nil }
func (Noop) Close() error                                               { return nil }

var (
	_ Recorder = Noop{}
	_ Recorder = (*SQLite)(nil)
)
