package storage

import (
	"context"
	"errors"
	"time"

	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	RunRunning = "running"
	RunOK      = "ok"
	RunEmpty   = "empty"
	RunFailed  = "failed"
)

// Run 一次抓取任务的记录
type Run struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	Trigger    string            `gorm:"size:32;index" json:"trigger"` // cron / api / cli
	WindowFrom string            `gorm:"size:10" json:"windowFrom"`
	WindowTo   string            `gorm:"size:10" json:"windowTo"`
	Status     string            `gorm:"size:16;index" json:"status"`
	Rows       int               `json:"rows"`
	Error      string            `gorm:"type:text" json:"error,omitempty"`
	ExtraData  datatypes.JSONMap `gorm:"type:jsonb" json:"extraData,omitempty"`
	StartedAt  time.Time         `gorm:"index" json:"startedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

func NewRun(trigger, from, to string) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Trigger:    trigger,
		WindowFrom: from,
		WindowTo:   to,
		Status:     RunRunning,
		StartedAt:  time.Now(),
	}
}

// Finish 根据行数和错误确定状态：空时间段单独记为 empty
func (r *Run) Finish(rows int, err error) {
	now := time.Now()
	r.FinishedAt = &now
	r.Rows = rows
	switch {
	case errors.Is(err, collector.ErrMalformedDateRange):
		r.Status = RunEmpty
	case err != nil:
		r.Status = RunFailed
		r.Error = err.Error()
	default:
		r.Status = RunOK
	}
}

// SaveRun 写入或更新一次任务记录
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	return s.DB.WithContext(ctx).Save(r).Error
}

// GetRun 按 ID 查询任务，不存在时返回 false
func (s *Store) GetRun(ctx context.Context, id string) (*Run, bool) {
	var r Run
	silent := s.DB.Session(&gorm.Session{Logger: s.DB.Logger.LogMode(logger.Silent)})
	if err := silent.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, false
	}
	return &r, true
}

// ListRuns 最近的任务记录，按开始时间倒序
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var list []Run
	err := s.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&list).Error
	return list, err
}
