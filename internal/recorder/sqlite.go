package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stockenv/internal/logger"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultStepBatch = 500

// SQLite records episodes with gorm into a single SQLite file. Steps are
// buffered per episode and flushed in batches.
type SQLite struct {
	db        *gorm.DB
	stepBatch int

	mu      sync.Mutex
	pending map[string][]StepModel
}

func NewSQLite(path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("recorder: database path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&EpisodeModel{}, &StepModel{}, &TradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one writer at a time; SQLite serializes writes anyway
	sqlDB.SetMaxOpenConns(1)
	return &SQLite{db: db, stepBatch: defaultStepBatch, pending: make(map[string][]StepModel)}, nil
}

func (s *SQLite) StartEpisode(ctx context.Context, meta EpisodeMeta) (string, error) {
	id := meta.ID
	if id == "" {
		id = uuid.NewString()
	}
	params, err := json.Marshal(meta.Params)
	if err != nil {
		return "", err
	}
	row := EpisodeModel{
		ID:         id,
		Policy:     meta.Policy,
		Seed:       int64(meta.Seed),
		Rows:       meta.Rows,
		ParamsJSON: datatypes.JSON(params),
		Status:     EpisodeRunning,
		StartedAt:  time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("recorder: start episode %s: %w", id, err)
	}
	s.mu.Lock()
	s.pending[id] = nil
	s.mu.Unlock()
	return id, nil
}

func (s *SQLite) RecordStep(ctx context.Context, rec StepRecord) error {
	obs, err := json.Marshal(rec.Observation.Slice())
	if err != nil {
		return err
	}
	row := StepModel{
		EpisodeID:       rec.EpisodeID,
		Step:            rec.Step,
		ActionType:      rec.Action.Type,
		ActionAmount:    rec.Action.Amount,
		Price:           rec.Price,
		Reward:          rec.Reward,
		Done:            rec.Done,
		Balance:         rec.Portfolio.Balance,
		NetWorth:        rec.Portfolio.NetWorth,
		SharesHeld:      rec.Portfolio.SharesHeld,
		ObservationJSON: datatypes.JSON(obs),
	}

	s.mu.Lock()
	buf, ok := s.pending[rec.EpisodeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("recorder: unknown episode %q", rec.EpisodeID)
	}
	buf = append(buf, row)
	if len(buf) < s.stepBatch {
		s.pending[rec.EpisodeID] = buf
		s.mu.Unlock()
		return nil
	}
	s.pending[rec.EpisodeID] = nil
	s.mu.Unlock()
	return s.flush(ctx, buf)
}

func (s *SQLite) FinishEpisode(ctx context.Context, id string, res EpisodeResult) error {
	s.mu.Lock()
	buf, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("recorder: unknown episode %q", id)
	}
	if err := s.flush(ctx, buf); err != nil {
		return err
	}

	status := EpisodeFinished
	if res.Err != "" {
		status = EpisodeFailed
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(res.Trades) > 0 {
			trades := make([]TradeModel, 0, len(res.Trades))
			for _, tr := range res.Trades {
				trades = append(trades, TradeModel{
					EpisodeID: id,
					Step:      tr.Step,
					Type:      string(tr.Type),
					Shares:    tr.Shares,
					Total:     tr.Total,
				})
			}
			if err := tx.CreateInBatches(&trades, s.stepBatch).Error; err != nil {
				return err
			}
		}
		return tx.Model(&EpisodeModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":          status,
			"steps":           res.Steps,
			"total_reward":    res.TotalReward,
			"final_net_worth": res.FinalNetWorth,
			"max_net_worth":   res.MaxNetWorth,
			"profit":          res.Profit,
			"error":           res.Err,
			"finished_at":     time.Now().UnixMilli(),
		}).Error
	})
}

func (s *SQLite) flush(ctx context.Context, rows []StepModel) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, s.stepBatch).Error; err != nil {
		return fmt.Errorf("recorder: flush %d steps: %w", len(rows), err)
	}
	return nil
}

// Episode loads a stored episode by ID.
func (s *SQLite) Episode(ctx context.Context, id string) (EpisodeModel, error) {
	var row EpisodeModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	return row, err
}

// ListEpisodes returns the most recently started episodes first.
func (s *SQLite) ListEpisodes(ctx context.Context, limit int) ([]EpisodeModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []EpisodeModel
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *SQLite) Steps(ctx context.Context, id string) ([]StepModel, error) {
	var rows []StepModel
	err := s.db.WithContext(ctx).Where("episode_id = ?", id).Order("step ASC").Find(&rows).Error
	return rows, err
}

func (s *SQLite) Trades(ctx context.Context, id string) ([]TradeModel, error) {
	var rows []TradeModel
	err := s.db.WithContext(ctx).Where("episode_id = ?", id).Order("step ASC, id ASC").Find(&rows).Error
	return rows, err
}

// Close flushes buffered steps of unfinished episodes and closes the database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string][]StepModel)
	s.mu.Unlock()
	for id, rows := range pending {
		if err := s.flush(context.Background(), rows); err != nil {
			logger.Warnf("[recorder] 未完成的 episode %s 写入失败: %v", id, err)
		}
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
