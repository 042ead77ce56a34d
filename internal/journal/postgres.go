package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"verifyengine/internal/model"
)

// PostgresStore persists the verification event journal in PostgreSQL.
// It reproduces the in-memory cache semantics of MemoryStore on top of a
// durable append-only table, grounded on the raw database/sql +
// lib/pq style used by the pack's revocation store.
//
// Expected schema (created out-of-band by migrations, out of scope per
// ):
//
//	CREATE TABLE verification_events (
//	  subject_id     text NOT NULL,
//	  seq            bigint NOT NULL,
//	  at             timestamptz NOT NULL,
//	  kind           text NOT NULL,
//	  method         text NOT NULL DEFAULT '',
//	  actor_subject  text NOT NULL DEFAULT '',
//	  data           jsonb NOT NULL DEFAULT '{}',
//	  protocol_run_id text NOT NULL DEFAULT '',
//	  command_id     text NOT NULL DEFAULT '',
//	  PRIMARY KEY (subject_id, seq)
//	);
type PostgresStore struct {
	db    *sql.DB
	cache snapshotCache
}

// snapshotCache is an in-memory read-through cache over the durable
// journal, invalidated the same way MemoryStore's is. Postgres remains
// the source of truth; this cache only avoids refolding on every read.
type snapshotCache struct {
	cacheMu sync.RWMutex
	entries map[string]cachedSnapshot
}

type cachedSnapshot struct {
	snap  model.SubjectSnapshot
	stale bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		cache: snapshotCache{entries: make(map[string]cachedSnapshot)},
	}
}

func (s *PostgresStore) Append(ctx context.Context, subjectID string, class model.SubjectClass, event model.VerificationEvent, expectedLastSeq int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, model.StorageError{Op: "begin append tx", Err: err}
	}
	defer tx.Rollback()

	var lastSeq int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM verification_events WHERE subject_id = $1`, subjectID).Scan(&lastSeq)
	if err != nil {
		return 0, model.StorageError{Op: "read last seq", Err: err}
	}

	if expectedLastSeq >= 0 && expectedLastSeq != lastSeq {
		return 0, model.ConflictError{SubjectID: subjectID, ExpectedSeq: expectedLastSeq, ActualSeq: lastSeq}
	}

	nextSeq := lastSeq + 1
	data, err := json.Marshal(event.Data)
	if err != nil {
		return 0, model.StorageError{Op: "marshal event data", Err: err}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verification_events
			(subject_id, seq, at, kind, method, actor_subject, data, protocol_run_id, command_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, subjectID, nextSeq, event.At, string(event.Kind), string(event.Method), event.ActorSubject, data, event.ProtocolRunID, event.CommandID)
	if err != nil {
		return 0, model.StorageError{Op: "insert event", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, model.StorageError{Op: "commit append tx", Err: err}
	}

	s.cache.invalidate(subjectID)
	return nextSeq, nil
}

func (s *PostgresStore) ReadJournal(ctx context.Context, subjectID string, fromSeq int64) ([]model.VerificationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, at, kind, method, actor_subject, data, protocol_run_id, command_id
		FROM verification_events
		WHERE subject_id = $1 AND seq > $2
		ORDER BY seq ASC
	`, subjectID, fromSeq)
	if err != nil {
		return nil, model.StorageError{Op: "read journal", Err: err}
	}
	defer rows.Close()

	var out []model.VerificationEvent
	for rows.Next() {
		var (
			ev       model.VerificationEvent
			kind     string
			method   string
			dataJSON []byte
		)
		if err := rows.Scan(&ev.Seq, &ev.At, &kind, &method, &ev.ActorSubject, &dataJSON, &ev.ProtocolRunID, &ev.CommandID); err != nil {
			return nil, model.StorageError{Op: "scan event row", Err: err}
		}
		ev.Kind = model.EventKind(kind)
		ev.Method = model.VerificationMethod(method)
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event data for subject %s seq %d: %w", subjectID, ev.Seq, err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError{Op: "iterate journal rows", Err: err}
	}
	return out, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, subjectID string, class model.SubjectClass) (model.SubjectSnapshot, error) {
	if snap, ok := s.cache.get(subjectID); ok {
		return snap, nil
	}
	events, err := s.ReadJournal(ctx, subjectID, 0)
	if err != nil {
		return model.SubjectSnapshot{}, err
	}
	snap := Fold(subjectID, class, events)
	s.cache.put(subjectID, snap)
	return snap, nil
}

func (s *PostgresStore) Invalidate(subjectID string) {
	s.cache.invalidate(subjectID)
}

func (c *snapshotCache) get(subjectID string) (model.SubjectSnapshot, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	entry, ok := c.entries[subjectID]
	if !ok || entry.stale {
		return model.SubjectSnapshot{}, false
	}
	return entry.snap, true
}

func (c *snapshotCache) put(subjectID string, snap model.SubjectSnapshot) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.entries[subjectID] = cachedSnapshot{snap: snap, stale: false}
}

func (c *snapshotCache) invalidate(subjectID string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry := c.entries[subjectID]
	entry.stale = true
	c.entries[subjectID] = entry
}
