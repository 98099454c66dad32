package recorder

import "gorm.io/datatypes"

type EpisodeStatus string

const (
	EpisodeRunning  EpisodeStatus = "running"
	EpisodeFinished EpisodeStatus = "finished"
	EpisodeFailed   EpisodeStatus = "failed"
)

// EpisodeModel maps to 'episodes' table.
type EpisodeModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	Policy        string         `gorm:"column:policy"`
	Seed          int64          `gorm:"column:seed"`
	Rows          int            `gorm:"column:row_count"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	Status        EpisodeStatus  `gorm:"column:status;index"`
	Steps         int            `gorm:"column:steps"`
	TotalReward   float64        `gorm:"column:total_reward"`
	FinalNetWorth float64        `gorm:"column:final_net_worth"`
	MaxNetWorth   float64        `gorm:"column:max_net_worth"`
	Profit        float64        `gorm:"column:profit"`
	Error         string         `gorm:"column:error"`
	StartedAt     int64          `gorm:"column:started_at;index"`
	FinishedAt    int64          `gorm:"column:finished_at"`
}

func (EpisodeModel) TableName() string { return "episodes" }

// StepModel maps to 'episode_steps' table.
type StepModel struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	EpisodeID       string         `gorm:"column:episode_id;index:idx_episode_step"`
	Step            int            `gorm:"column:step;index:idx_episode_step"`
	ActionType      float64        `gorm:"column:action_type"`
	ActionAmount    float64        `gorm:"column:action_amount"`
	Price           float64        `gorm:"column:price"`
	Reward          float64        `gorm:"column:reward"`
	Done            bool           `gorm:"column:done"`
	Balance         float64        `gorm:"column:balance"`
	NetWorth        float64        `gorm:"column:net_worth"`
	SharesHeld      int64          `gorm:"column:shares_held"`
	ObservationJSON datatypes.JSON `gorm:"column:observation_json;type:TEXT"`
}

func (StepModel) TableName() string { return "episode_steps" }

// TradeModel maps to 'episode_trades' table.
type TradeModel struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement"`
	EpisodeID string  `gorm:"column:episode_id;index"`
	Step      int     `gorm:"column:step"`
	Type      string  `gorm:"column:type"`
	Shares    int64   `gorm:"column:shares"`
	Total     float64 `gorm:"column:total"`
}

func (TradeModel) TableName() string { return "episode_trades" }
