// Package journal persists in-progress chunked uploads so an interrupted
// upload can continue with the same upload id, skipping slices the provider
// already acknowledged. It is a single SQLite database (pure-Go driver)
// whose schema is managed by goose migrations.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// DefaultMaxAge is how long a journaled session is trusted. Older sessions
// are discarded by CleanStale and ignored by Load.
const DefaultMaxAge = 7 * 24 * time.Hour

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sqlLoadSession = `SELECT upload_id, local_path, remote_path, size, chunk_size,
		block_list, rename_policy, created_at
		FROM upload_sessions WHERE key = ?`

	sqlLoadAcks = `SELECT slice_index FROM acked_slices WHERE session_key = ? ORDER BY slice_index`

	sqlUpsertSession = `INSERT INTO upload_sessions
		(key, upload_id, local_path, remote_path, size, chunk_size, block_list, rename_policy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 upload_id = excluded.upload_id,
		 local_path = excluded.local_path,
		 remote_path = excluded.remote_path,
		 size = excluded.size,
		 chunk_size = excluded.chunk_size,
		 block_list = excluded.block_list,
		 rename_policy = excluded.rename_policy,
		 created_at = excluded.created_at`

	sqlClearAcks = `DELETE FROM acked_slices WHERE session_key = ?`

	sqlInsertAck = `INSERT INTO acked_slices (session_key, slice_index, md5, acked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_key, slice_index) DO UPDATE SET
		 md5 = excluded.md5,
		 acked_at = excluded.acked_at`

	sqlDeleteSession = `DELETE FROM upload_sessions WHERE key = ?`

	sqlDeleteStale = `DELETE FROM upload_sessions WHERE created_at < ?`

	sqlListSessions = `SELECT key, upload_id, local_path, remote_path, size, chunk_size,
		block_list, rename_policy, created_at
		FROM upload_sessions ORDER BY created_at`
)

// ErrUnknownSession is returned by Ack for a key with no saved session.
var ErrUnknownSession = errors.New("journal: unknown upload session")

// Record is one journaled upload session.
type Record struct {
	Key        string
	UploadID   string
	LocalPath  string
	RemotePath string
	Size       int64
	ChunkSize  int64
	BlockList  []string
	Rename     string
	CreatedAt  time.Time

	// Acked holds the slice indices the provider has acknowledged.
	Acked map[int]bool
}

// Pending returns the number of slices not yet acknowledged.
func (r *Record) Pending() int {
	return len(r.BlockList) - len(r.Acked)
}

// Key identifies an upload by everything that must match for a session to
// be reusable: both paths, the chunk size, and the block digests (so a file
// edited since the session began gets a new key).
func Key(localPath, remotePath string, chunkSize int64, blockList []string) string {
	h := sha256.New()

	for _, part := range []string{localPath, remotePath, strconv.FormatInt(chunkSize, 10)} {
		// Length-prefixed so ("ab","c") and ("a","bc") differ.
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}

	for _, d := range blockList {
		fmt.Fprintf(h, "%s;", d)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Store is the journal database. It is safe for concurrent use; writes are
// serialized through a single connection.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	maxAge  time.Duration
	nowFunc func() time.Time
}

// Open opens (creating if needed) the journal at dbPath and applies pending
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("upload journal opened", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		maxAge:  DefaultMaxAge,
		nowFunc: time.Now,
	}, nil
}

// runMigrations applies all pending schema migrations.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the session saved under key, or nil when there is none or
// it has outlived the maximum age.
func (s *Store) Load(ctx context.Context, key string) (*Record, error) {
	rec := &Record{Key: key}

	var (
		blockList string
		created   int64
	)

	err := s.db.QueryRowContext(ctx, sqlLoadSession, key).Scan(
		&rec.UploadID, &rec.LocalPath, &rec.RemotePath, &rec.Size, &rec.ChunkSize,
		&blockList, &rec.Rename, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("journal: loading session: %w", err)
	}

	rec.CreatedAt = time.Unix(0, created)

	if s.nowFunc().Sub(rec.CreatedAt) > s.maxAge {
		s.logger.Info("ignoring stale upload session",
			slog.String("remote_path", rec.RemotePath),
			slog.Time("created_at", rec.CreatedAt),
		)

		return nil, nil //nolint:nilnil // stale counts as absent
	}

	if err := json.Unmarshal([]byte(blockList), &rec.BlockList); err != nil {
		return nil, fmt.Errorf("journal: decoding block list: %w", err)
	}

	rec.Acked, err = s.loadAcks(ctx, key)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (s *Store) loadAcks(ctx context.Context, key string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, sqlLoadAcks, key)
	if err != nil {
		return nil, fmt.Errorf("journal: loading acknowledged slices: %w", err)
	}
	defer rows.Close()

	acked := make(map[int]bool)

	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("journal: scanning slice index: %w", err)
		}

		acked[idx] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating slices: %w", err)
	}

	return acked, nil
}

// Save records a fresh session under rec.Key, replacing any previous session
// and its acknowledgements. CreatedAt is set to now when zero.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.Key == "" || rec.UploadID == "" {
		return errors.New("journal: session key and upload id are required")
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.nowFunc()
	}

	blockList, err := json.Marshal(rec.BlockList)
	if err != nil {
		return fmt.Errorf("journal: encoding block list: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, sqlClearAcks, rec.Key); err != nil {
		return fmt.Errorf("journal: clearing slices: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlUpsertSession,
		rec.Key, rec.UploadID, rec.LocalPath, rec.RemotePath, rec.Size, rec.ChunkSize,
		string(blockList), rec.Rename, rec.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("journal: saving session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: committing session: %w", err)
	}

	rec.Acked = map[int]bool{}

	s.logger.Debug("journaled upload session",
		slog.String("remote_path", rec.RemotePath),
		slog.Int("blocks", len(rec.BlockList)),
	)

	return nil
}

// Ack records that the provider acknowledged slice index of the session.
func (s *Store) Ack(ctx context.Context, key string, index int, md5 string) error {
	_, err := s.db.ExecContext(ctx, sqlInsertAck, key, index, md5, s.nowFunc().UnixNano())
	if err != nil {
		// The foreign key rejects acks for sessions that were never saved.
		var exists int
		if qErr := s.db.QueryRowContext(ctx, `SELECT 1 FROM upload_sessions WHERE key = ?`, key).Scan(&exists); errors.Is(qErr, sql.ErrNoRows) {
			return ErrUnknownSession
		}

		return fmt.Errorf("journal: recording slice %d: %w", index, err)
	}

	return nil
}

// Delete removes the session and its acknowledgements. Deleting an absent
// session is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteSession, key); err != nil {
		return fmt.Errorf("journal: deleting session: %w", err)
	}

	return nil
}

// List returns every session in creation order, without acknowledgements.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, sqlListSessions)
	if err != nil {
		return nil, fmt.Errorf("journal: listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		var (
			rec       Record
			blockList string
			created   int64
		)

		if err := rows.Scan(&rec.Key, &rec.UploadID, &rec.LocalPath, &rec.RemotePath, &rec.Size,
			&rec.ChunkSize, &blockList, &rec.Rename, &created); err != nil {
			return nil, fmt.Errorf("journal: scanning session: %w", err)
		}

		if err := json.Unmarshal([]byte(blockList), &rec.BlockList); err != nil {
			return nil, fmt.Errorf("journal: decoding block list: %w", err)
		}

		rec.CreatedAt = time.Unix(0, created)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating sessions: %w", err)
	}

	return out, nil
}

// CleanStale deletes sessions older than the maximum age and returns how
// many were removed.
func (s *Store) CleanStale(ctx context.Context) (int, error) {
	cutoff := s.nowFunc().Add(-s.maxAge).UnixNano()

	res, err := s.db.ExecContext(ctx, sqlDeleteStale, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: deleting stale sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: counting stale sessions: %w", err)
	}

	if n > 0 {
		s.logger.Info("removed stale upload sessions", slog.Int64("count", n))
	}

	return int(n), nil
}
