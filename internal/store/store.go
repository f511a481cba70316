package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	_ "embed"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DbPathPattern     = "datapoints%s.db"
	PartitionInterval = 3 * 4 * 7 * 24 * time.Hour
	InitCacheSize     = 1000
	WalAutoCheckpoint = 100
)

// Store writes fetched datapoints to SQLite files, one per partition.
// It is a sink: nothing in the query path reads from it.
type Store struct {
	mu          sync.Mutex
	dir         string
	dbCache     map[string]*sql.DB
	initialized *lru.Cache[string, struct{}]
}

//go:embed sql/table.sql
var createTableStmt string

func Open(dir string) (*Store, error) {
	cache, err := lru.New[string, struct{}](InitCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:         dir,
		dbCache:     make(map[string]*sql.DB),
		initialized: cache,
	}, nil
}

func (s *Store) getDB(t time.Time) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbPath := fmt.Sprintf(DbPathPattern, getTableSuffix(t))
	if db, ok := s.dbCache[dbPath]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite3", "file:"+filepath.Join(s.dir, dbPath)+"?_journal_mode=WAL&_sync=NORMAL&_busy_timeout=10000")
	if err != nil {
		return nil, err
	}
	if err := setAutoCheckpoint(db, WalAutoCheckpoint); err != nil {
		db.Close()
		return nil, err
	}
	s.dbCache[dbPath] = db

	return db, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var allErr error
	for dbPath, db := range s.dbCache {
		if err := db.Close(); err != nil {
			slog.Error("failed to close db", "err", err, "dbPath", dbPath)
			allErr = errors.Join(allErr, err)
		}
		delete(s.dbCache, dbPath)
	}
	return allErr
}

type timeRange struct {
	From time.Time
	To   time.Time
}

func getPartition(t time.Time) timeRange {
	from := t.Truncate(PartitionInterval)
	to := from.Add(PartitionInterval).Add(-1 * time.Second)
	return timeRange{
		From: from,
		To:   to,
	}
}

func getTableSuffix(t time.Time) string {
	p := getPartition(t)
	return "_" + p.From.Format("20060102") + "_" + p.To.Format("20060102")
}
