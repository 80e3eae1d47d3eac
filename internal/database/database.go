package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"hydra/internal/constants"
	"hydra/internal/dag"
	apperrors "hydra/internal/errors"
	"hydra/internal/migrations"
	"hydra/internal/models"
	"hydra/internal/security"
	"hydra/pkg/wire"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the hydra storage engine: captured ingress logs plus the
// persisted DAG frontier, on SQLite.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (creating if needed) the database at dbPath and bootstraps the
// schema.
func New(dbPath string) (*Database, error) {
	if err := security.ValidatePath(dbPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageOpen, "failed to create database file")
	}
	if err := file.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageOpen, "failed to close database file")
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, constants.DefaultBusyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageOpen, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, apperrors.Wrap(err, apperrors.CodeStorageOpen, "failed to ping database"))
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		return nil, closeOnError(db, apperrors.Wrap(err, apperrors.CodeMigration, "failed to read schema"))
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, closeOnError(db, apperrors.Wrap(err, apperrors.CodeMigration, "failed to initialize schema"))
	}

	encryptor, err := newEncryptor()
	if err != nil {
		return nil, closeOnError(db, apperrors.Wrap(err, apperrors.CodeStorageOpen, "failed to initialize encryptor"))
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func closeOnError(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// InsertIngressLog stores one captured request keyed by its ULID event ID.
func (d *Database) InsertIngressLog(ctx context.Context, log *models.IngressLog) error {
	queryJSON, err := json.Marshal(log.Query)
	if err != nil {
		return fmt.Errorf("failed to encode query params: %w", err)
	}
	headersJSON, err := json.Marshal(log.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}

	encryptedHeaders, err := d.encryptor.EncryptStringIfEnabled(string(headersJSON))
	if err != nil {
		return fmt.Errorf("failed to encrypt headers: %w", err)
	}
	encryptedBody, err := d.encryptor.EncryptIfEnabled(log.Body)
	if err != nil {
		return fmt.Errorf("failed to encrypt body: %w", err)
	}

	return retryableWrite(ctx, "insert ingress log", func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO ingress_logs (
				event_id, captured_at, remote_addr, method, host, path,
				query_params, headers, body
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			log.EventID,
			log.CapturedAt,
			log.RemoteAddr,
			log.Method,
			log.Host,
			log.Path,
			string(queryJSON),
			encryptedHeaders,
			encryptedBody,
		)
		return err
	})
}

// FetchQuery pages over ingress logs by lexicographic event ID.
type FetchQuery struct {
	// Cursor is the exclusive event ID to continue from. Empty means
	// start from the edge implied by Direction.
	Cursor    string
	Limit     int
	Direction wire.Direction
}

// FetchResult is one page plus a flag for whether another page follows in
// the fetch direction.
type FetchResult struct {
	Items       []models.IngressLog
	Direction   wire.Direction
	MoreRecords bool
}

// FetchIngressLogs returns up to Limit logs. One extra row is fetched to
// decide MoreRecords without a second query.
func (d *Database) FetchIngressLogs(ctx context.Context, q FetchQuery) (*FetchResult, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("fetch limit must be positive")
	}
	if !q.Direction.Valid() {
		return nil, fmt.Errorf("unknown fetch direction %q", q.Direction)
	}

	const columns = `event_id, captured_at, remote_addr, method, host, path, query_params, headers, body`

	var (
		query string
		args  []any
	)
	fetchLimit := q.Limit + 1

	switch {
	case q.Cursor == "" && q.Direction == wire.Ascending:
		query = `SELECT ` + columns + ` FROM ingress_logs ORDER BY event_id ASC LIMIT ?`
		args = []any{fetchLimit}
	case q.Cursor == "" && q.Direction == wire.Descending:
		query = `SELECT ` + columns + ` FROM ingress_logs ORDER BY event_id DESC LIMIT ?`
		args = []any{fetchLimit}
	case q.Direction == wire.Ascending:
		query = `SELECT ` + columns + ` FROM ingress_logs WHERE event_id > ? ORDER BY event_id ASC LIMIT ?`
		args = []any{q.Cursor, fetchLimit}
	default:
		query = `SELECT ` + columns + ` FROM ingress_logs WHERE event_id < ? ORDER BY event_id DESC LIMIT ?`
		args = []any{q.Cursor, fetchLimit}
	}

	var items []models.IngressLog
	err := retryableRead(ctx, "fetch ingress logs", func() error {
		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			log, err := d.scanIngressLog(rows)
			if err != nil {
				return err
			}
			items = append(items, *log)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ingress logs: %w", err)
	}

	more := len(items) > q.Limit
	if more {
		items = items[:q.Limit]
	}

	return &FetchResult{Items: items, Direction: q.Direction, MoreRecords: more}, nil
}

func (d *Database) scanIngressLog(rows *sql.Rows) (*models.IngressLog, error) {
	var (
		log         models.IngressLog
		remoteAddr  sql.NullString
		queryJSON   string
		headersText string
		body        []byte
	)

	if err := rows.Scan(
		&log.EventID,
		&log.CapturedAt,
		&remoteAddr,
		&log.Method,
		&log.Host,
		&log.Path,
		&queryJSON,
		&headersText,
		&body,
	); err != nil {
		return nil, err
	}
	log.RemoteAddr = remoteAddr.String

	headersJSON, err := d.encryptor.DecryptStringIfEnabled(headersText)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt headers: %w", err)
	}
	log.Body, err = d.encryptor.DecryptIfEnabled(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt body: %w", err)
	}

	if err := json.Unmarshal([]byte(queryJSON), &log.Query); err != nil {
		return nil, fmt.Errorf("failed to decode query params: %w", err)
	}
	if err := json.Unmarshal([]byte(headersJSON), &log.Headers); err != nil {
		return nil, fmt.Errorf("failed to decode headers: %w", err)
	}

	return &log, nil
}

// ReplaceBasis persists the full DAG frontier, replacing the previous one.
func (d *Database) ReplaceBasis(ctx context.Context, events []dag.Event) error {
	return retryableWrite(ctx, "replace basis", func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM node_basis`); err != nil {
			return err
		}

		for _, event := range events {
			precursors := make([]string, 0, len(event.Precursors))
			for _, p := range event.Precursors {
				precursors = append(precursors, p.Ref())
			}
			precursorsJSON, err := json.Marshal(precursors)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO node_basis (event_hash, event_timestamp, precursors)
				VALUES (?, ?, ?)
			`, event.ID.HexHash(), event.ID.Timestamp, string(precursorsJSON)); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

// LoadBasis restores the persisted DAG frontier.
func (d *Database) LoadBasis(ctx context.Context) ([]dag.Event, error) {
	var events []dag.Event
	err := retryableRead(ctx, "load basis", func() error {
		rows, err := d.db.QueryContext(ctx, `
			SELECT event_hash, event_timestamp, precursors
			FROM node_basis ORDER BY event_timestamp, event_hash
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		events = events[:0]
		for rows.Next() {
			var (
				hashHex        string
				timestamp      int64
				precursorsJSON string
			)
			if err := rows.Scan(&hashHex, &timestamp, &precursorsJSON); err != nil {
				return err
			}

			event, err := decodeBasisRow(hashHex, timestamp, precursorsJSON)
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load basis: %w", err)
	}
	return events, nil
}

func decodeBasisRow(hashHex string, timestamp int64, precursorsJSON string) (dag.Event, error) {
	var precursorRefs []string
	if err := json.Unmarshal([]byte(precursorsJSON), &precursorRefs); err != nil {
		return dag.Event{}, fmt.Errorf("failed to decode precursors: %w", err)
	}

	precursors := make([]dag.EventID, 0, len(precursorRefs))
	for _, ref := range precursorRefs {
		id, err := dag.ParseRef(ref)
		if err != nil {
			return dag.Event{}, err
		}
		precursors = append(precursors, id)
	}

	id, err := dag.ParseRef(fmt.Sprintf("%d:%s", timestamp, hashHex))
	if err != nil {
		return dag.Event{}, err
	}

	return dag.Event{ID: id, Precursors: precursors}, nil
}
