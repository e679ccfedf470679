// Package sqlitestore is the engine's reference implementation of
// storage.Store, backed by an embedded SQLite database. It follows the
// host's own store package migration design (ordered statements in a
// [migrations] slice, each applied exactly once and tracked in a
// schema_migrations table) — only the schema differs, since this package
// persists descriptors and operations rather than channels and bans.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/twinlife/conversation-engine/internal/codec"
	"github.com/twinlife/conversation-engine/internal/descriptor"
	"github.com/twinlife/conversation-engine/internal/iq"
	"github.com/twinlife/conversation-engine/internal/schema"
	"github.com/twinlife/conversation-engine/internal/storage"
)

// migrations holds the ordered list of DDL statements that bring the
// schema up to date. Index i corresponds to version i+1. Append only —
// never edit or reorder existing entries.
var migrations = []string{
	// v1, v2 — descriptors, stored as opaque self-describing blobs produced
	// by the schema registry (schemaId+schemaVersion header, then body).
	`CREATE TABLE IF NOT EXISTS descriptors (
 local_id INTEGER PRIMARY KEY AUTOINCREMENT,
 twincode_id TEXT NOT NULL,
 sequence_id INTEGER NOT NULL,
 body BLOB NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_descriptors_key ON descriptors(twincode_id, sequence_id)`,
	// v3 — annotations, one JSON blob per descriptor (map twincodeId -> []Annotation).
	`CREATE TABLE IF NOT EXISTS annotations (
 descriptor_id INTEGER PRIMARY KEY,
 entries_json TEXT NOT NULL
	)`,
	// v4 — durable operation queue; v5 — WAL journal mode.
	`CREATE TABLE IF NOT EXISTS operations (
 id INTEGER PRIMARY KEY AUTOINCREMENT,
 conversation_id INTEGER NOT NULL,
 creation_date INTEGER NOT NULL,
 schema_version INTEGER NOT NULL,
 blob BLOB NOT NULL
	)`,
	`PRAGMA journal_mode=WAL`,
}

// Store implements storage.Store against SQLite. It needs a populated
// schema registry to encode/decode the opaque descriptor bodies it stores.
type Store struct {
	db *sql.DB
	reg *schema.Registry
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the SQLite database at path, applies any pending
// migrations, and returns a Store that encodes/decodes descriptors through
// reg. Use ":memory:" for ephemeral in-process storage (tests).
func New(path string, reg *schema.Registry) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
 return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
 slog.Warn("sqlitestore: enable WAL", "error", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
 slog.Warn("sqlitestore: set busy_timeout", "error", err)
	}

	s := &Store{db: db, reg: reg}
	if err := s.migrate(); err != nil {
 db.Close()
 return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
 version INTEGER PRIMARY KEY,
 applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
 return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
 `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
 return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
 v := i + 1
 if v <= current {
 continue
 }
 if _, err := s.db.Exec(stmt); err != nil {
 return fmt.Errorf("migration %d: %w", v, err)
 }
 if _, err := s.db.Exec(
 `INSERT INTO schema_migrations(version) VALUES(?)`, v,
 ); err != nil {
 return fmt.Errorf("record migration %d: %w", v, err)
 }
 slog.Debug("sqlitestore: applied migration", "version", v)
	}
	return nil
}

func (s *Store) LoadDescriptor(localID int64) (descriptor.Descriptor, error) {
	var body []byte
	err := s.db.QueryRow(`SELECT body FROM descriptors WHERE local_id = ?`, localID).Scan(&body)
	if err == sql.ErrNoRows {
 return nil, fmt.Errorf("sqlitestore: no descriptor with local id %d", localID)
	}
	if err != nil {
 return nil, err
	}
	return s.decodeDescriptor(localID, body)
}

func (s *Store) decodeDescriptor(localID int64, body []byte) (descriptor.Descriptor, error) {
	d, err := codec.NewDecoder(body, false)
	if err != nil {
 return nil, err
	}
	obj, err := s.reg.DecodeObject(d, nil)
	if err != nil {
 return nil, err
	}
	desc, ok := obj.(descriptor.Descriptor)
	if !ok {
 return nil, fmt.Errorf("sqlitestore: decoded value is not a descriptor.Descriptor: %T", obj)
	}
	desc.Envelope().ID.LocalDatabaseID = localID
	return desc, nil
}

func (s *Store) encodeDescriptor(d descriptor.Descriptor) ([]byte, error) {
	key, ok := descriptor.LatestKey(d.Kind())
	if !ok {
 return nil, fmt.Errorf("sqlitestore: no persisted schema for kind %d", d.Kind())
	}
	e := codec.NewEncoder(false)
	if err := s.reg.EncodeObject(e, key, d); err != nil {
 return nil, err
	}
	return e.Bytes(), nil
}

func (s *Store) SaveDescriptor(d descriptor.Descriptor) (int64, error) {
	body, err := s.encodeDescriptor(d)
	if err != nil {
 return 0, err
	}
	twincodeID, sequenceID := d.Envelope().ID.Key()
	res, err := s.db.Exec(
 `INSERT INTO descriptors(twincode_id, sequence_id, body) VALUES(?, ?, ?)`,
 twincodeID.String(), sequenceID, body,
	)
	if err != nil {
 return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) SaveDescriptorTimestamps(localID int64, ts storage.DescriptorTimestamps) error {
	desc, err := s.LoadDescriptor(localID)
	if err != nil {
 return err
	}
	b := desc.Envelope()
	b.SentTimestamp = ts.SentTimestamp
	b.ReceivedTimestamp = ts.ReceivedTimestamp
	b.ReadTimestamp = ts.ReadTimestamp
	b.UpdatedTimestamp = ts.UpdatedTimestamp
	b.PeerDeleteTimestamp = ts.PeerDeleteTimestamp
	b.DeleteTimestamp = ts.DeleteTimestamp

	body, err := s.encodeDescriptor(desc)
	if err != nil {
 return err
	}
	res, err := s.db.Exec(`UPDATE descriptors SET body = ? WHERE local_id = ?`, body, localID)
	if err != nil {
 return err
	}
	n, err := res.RowsAffected()
	if err != nil {
 return err
	}
	if n == 0 {
 return sql.ErrNoRows
	}
	return nil
}

// annotationsJSON is the on-disk shape of a descriptor's annotation set:
// map keys must be strings in JSON, so twincode ids are stored as their
// canonical string form and parsed back on load.
type annotationsJSON map[string][]iq.Annotation

func (s *Store) LoadAnnotations(localID int64) (map[uuid.UUID][]iq.Annotation, error) {
	var raw string
	err := s.db.QueryRow(`SELECT entries_json FROM annotations WHERE descriptor_id = ?`, localID).Scan(&raw)
	if err == sql.ErrNoRows {
 return map[uuid.UUID][]iq.Annotation{}, nil
	}
	if err != nil {
 return nil, err
	}
	var stored annotationsJSON
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
 return nil, fmt.Errorf("sqlitestore: decode annotations: %w", err)
	}
	out := make(map[uuid.UUID][]iq.Annotation, len(stored))
	for k, v := range stored {
 id, err := uuid.Parse(k)
 if err != nil {
 return nil, fmt.Errorf("sqlitestore: decode annotations: %w", err)
 }
 out[id] = v
	}
	return out, nil
}

func (s *Store) SaveAnnotations(localID int64, entries map[uuid.UUID][]iq.Annotation) error {
	stored := make(annotationsJSON, len(entries))
	for k, v := range entries {
 stored[k.String()] = v
	}
	raw, err := json.Marshal(stored)
	if err != nil {
 return fmt.Errorf("sqlitestore: encode annotations: %w", err)
	}
	_, err = s.db.Exec(
 `INSERT INTO annotations(descriptor_id, entries_json) VALUES(?, ?)
 ON CONFLICT(descriptor_id) DO UPDATE SET entries_json = excluded.entries_json`,
 localID, string(raw),
	)
	return err
}

func (s *Store) LoadOperations() ([]storage.OperationRecord, error) {
	rows, err := s.db.Query(
 `SELECT id, conversation_id, creation_date, schema_version, blob FROM operations ORDER BY id ASC`,
	)
	if err != nil {
 return nil, err
	}
	defer rows.Close()

	var out []storage.OperationRecord
	for rows.Next() {
 var rec storage.OperationRecord
 if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.CreationDate, &rec.SchemaVersion, &rec.Blob); err != nil {
 return nil, err
 }
 out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SaveOperation(rec storage.OperationRecord) (int64, error) {
	res, err := s.db.Exec(
 `INSERT INTO operations(conversation_id, creation_date, schema_version, blob) VALUES(?, ?, ?, ?)`,
 rec.ConversationID, rec.CreationDate, rec.SchemaVersion, rec.Blob,
	)
	if err != nil {
 return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) DeleteOperation(id int64) error {
	_, err := s.db.Exec(`DELETE FROM operations WHERE id = ?`, id)
	return err
}
