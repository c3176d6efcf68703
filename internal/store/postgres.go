package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

// Postgres stores records in a shared database so several hosts can drive
// the same task list.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS vdl_tasks (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    headers JSONB,
    file_name TEXT NOT NULL DEFAULT '',
    thread_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    downloaded BIGINT NOT NULL DEFAULT 0,
    total BIGINT NOT NULL DEFAULT -1,
    status TEXT NOT NULL,
    info_line TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL
);
`)
	return err
}

const selectColumns = `SELECT id,url,headers,file_name,thread_count,created_at,downloaded,total,status,info_line,updated_at FROM vdl_tasks`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (types.Record, error) {
	var (
		rec     types.Record
		headers []byte
		status  string
	)
	err := s.Scan(&rec.Task.ID, &rec.Task.URL, &headers, &rec.Task.FileName, &rec.Task.ThreadCount,
		&rec.Task.CreatedAt, &rec.Snapshot.Downloaded, &rec.Snapshot.Total, &status,
		&rec.Snapshot.InfoLine, &rec.Snapshot.UpdatedAt)
	if err != nil {
		return types.Record{}, err
	}
	if len(headers) > 0 {
		var stored map[string]string
		if err := json.Unmarshal(headers, &stored); err != nil {
			return types.Record{}, err
		}
		rec.Task.Headers = utils.DecodeHeaders(stored)
	}
	rec.Snapshot.TaskID = rec.Task.ID
	rec.Snapshot.Status = types.Status(status)
	return rec, nil
}

func (p *Postgres) GetAll(ctx context.Context) ([]types.Record, error) {
	rows, err := p.db.QueryContext(ctx, selectColumns+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, id string) (types.Record, error) {
	rec, err := scanRecord(p.db.QueryRowContext(ctx, selectColumns+` WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) Put(ctx context.Context, rec types.Record) error {
	var headers []byte
	if rec.Task.Headers != nil {
		b, err := json.Marshal(utils.EncodeHeaders(rec.Task.Headers))
		if err != nil {
			return err
		}
		headers = b
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO vdl_tasks (id,url,headers,file_name,thread_count,created_at,downloaded,total,status,info_line,updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
    url=EXCLUDED.url, headers=EXCLUDED.headers, file_name=EXCLUDED.file_name,
    thread_count=EXCLUDED.thread_count, created_at=EXCLUDED.created_at,
    downloaded=EXCLUDED.downloaded, total=EXCLUDED.total, status=EXCLUDED.status,
    info_line=EXCLUDED.info_line, updated_at=EXCLUDED.updated_at`,
		rec.Task.ID, rec.Task.URL, headers, rec.Task.FileName, rec.Task.ThreadCount, rec.Task.CreatedAt,
		rec.Snapshot.Downloaded, rec.Snapshot.Total, string(rec.Snapshot.Status), rec.Snapshot.InfoLine,
		rec.Snapshot.UpdatedAt)
	return err
}

func (p *Postgres) Save(ctx context.Context, snap types.Snapshot) error {
	res, err := p.db.ExecContext(ctx, `
UPDATE vdl_tasks SET downloaded=$2, total=$3, status=$4, info_line=$5, updated_at=$6
WHERE id=$1 AND NOT (status='success' AND $4 IN ('pending','prepare','downloading'))`,
		snap.TaskID, snap.Downloaded, snap.Total, string(snap.Status), snap.InfoLine, snap.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	err = p.db.QueryRowContext(ctx, `SELECT 1 FROM vdl_tasks WHERE id=$1`, snap.TaskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM vdl_tasks WHERE id=$1`, id)
	return err
}

func (p *Postgres) Close() error { return p.db.Close() }
