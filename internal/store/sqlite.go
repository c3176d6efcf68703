package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type taskRow struct {
	ID          string            `gorm:"primaryKey"`
	URL         string            `gorm:"not null"`
	Headers     map[string]string `gorm:"serializer:json"`
	FileName    string
	ThreadCount int
	CreatedAt   time.Time `gorm:"autoCreateTime:false;index"`
	Downloaded  int64
	Total       int64
	Status      string `gorm:"index"`
	InfoLine    string
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (taskRow) TableName() string { return "tasks" }

func rowFromRecord(rec types.Record) taskRow {
	return taskRow{
		ID:          rec.Task.ID,
		URL:         rec.Task.URL,
		Headers:     utils.EncodeHeaders(rec.Task.Headers),
		FileName:    rec.Task.FileName,
		ThreadCount: rec.Task.ThreadCount,
		CreatedAt:   rec.Task.CreatedAt,
		Downloaded:  rec.Snapshot.Downloaded,
		Total:       rec.Snapshot.Total,
		Status:      string(rec.Snapshot.Status),
		InfoLine:    rec.Snapshot.InfoLine,
		UpdatedAt:   rec.Snapshot.UpdatedAt,
	}
}

func (r taskRow) record() types.Record {
	return types.Record{
		Task: types.Task{
			ID:          r.ID,
			URL:         r.URL,
			Headers:     utils.DecodeHeaders(r.Headers),
			FileName:    r.FileName,
			ThreadCount: r.ThreadCount,
			CreatedAt:   r.CreatedAt,
		},
		Snapshot: types.Snapshot{
			TaskID:     r.ID,
			Downloaded: r.Downloaded,
			Total:      r.Total,
			Status:     types.Status(r.Status),
			InfoLine:   r.InfoLine,
			UpdatedAt:  r.UpdatedAt,
		},
	}
}

// SQLite stores records in a single file using the pure Go sqlite driver.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// several vdl processes may share the file
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	if err := db.AutoMigrate(&taskRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) GetAll(ctx context.Context) ([]types.Record, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (types.Record, error) {
	var row taskRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Record{}, ErrNotFound
	}
	if err != nil {
		return types.Record{}, err
	}
	return row.record(), nil
}

func (s *SQLite) Put(ctx context.Context, rec types.Record) error {
	row := rowFromRecord(rec)
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLite) Save(ctx context.Context, snap types.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row taskRow
		err := tx.Select("id", "status").First(&row, "id = ?", snap.TaskID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !accepts(types.Snapshot{Status: types.Status(row.Status)}, snap) {
			return nil
		}
		return tx.Model(&taskRow{}).Where("id = ?", snap.TaskID).Updates(map[string]any{
			"downloaded": snap.Downloaded,
			"total":      snap.Total,
			"status":     string(snap.Status),
			"info_line":  snap.InfoLine,
			"updated_at": snap.UpdatedAt,
		}).Error
	})
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&taskRow{}, "id = ?", id).Error
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
