package database

import (
	"context"
	"fmt"
)

// schema 两种驱动通用的建表语句
var schema = []string{
	`CREATE TABLE IF NOT EXISTS nurses (
		ward            TEXT NOT NULL,
		nurse_id        TEXT NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		experience      INTEGER NOT NULL DEFAULT 0,
		is_head_nurse   BOOLEAN NOT NULL DEFAULT FALSE,
		is_night_nurse  BOOLEAN NOT NULL DEFAULT FALSE,
		off_adjustment  INTEGER NOT NULL DEFAULT 0,
		preceptor_id    TEXT NOT NULL DEFAULT '',
		joining_date    TEXT NOT NULL DEFAULT '',
		resignation_date TEXT NOT NULL DEFAULT '',
		sequence        INTEGER NOT NULL DEFAULT 0,
		updated_at      TIMESTAMP NOT NULL,
		PRIMARY KEY (ward, nurse_id)
	)`,
	`CREATE TABLE IF NOT EXISTS rosters (
		id          TEXT PRIMARY KEY,
		ward        TEXT NOT NULL,
		year        INTEGER NOT NULL,
		month       INTEGER NOT NULL,
		run_id      TEXT NOT NULL,
		solver      TEXT NOT NULL,
		status      TEXT NOT NULL,
		hard_violations INTEGER NOT NULL DEFAULT 0,
		soft_violations INTEGER NOT NULL DEFAULT 0,
		report      TEXT NOT NULL DEFAULT '{}',
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rosters_ward_month ON rosters (ward, year, month, created_at)`,
	`CREATE TABLE IF NOT EXISTS roster_assignments (
		roster_id TEXT NOT NULL REFERENCES rosters (id) ON DELETE CASCADE,
		nurse_id  TEXT NOT NULL,
		day       INTEGER NOT NULL,
		shift     TEXT NOT NULL,
		PRIMARY KEY (roster_id, nurse_id, day)
	)`,
}

// Migrate 创建缺失的表
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行第%d条建表语句失败: %w", i+1, err)
		}
	}
	return nil
}

// OpenMemory 打开已建表的 SQLite 内存库，用于开发与测试
func OpenMemory(ctx context.Context) (*DB, error) {
	db, err := Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// 内存库每个连接相互独立
	db.SetMaxOpenConns(1)
	if err := db.Migrate(ctx); err != nil {
		db.DB.Close()
		return nil, err
	}
	return db, nil
}
