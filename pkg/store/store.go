package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"immichporter/pkg/logger"
)

const sourceTypeGPhoto = "gphoto"

// Store is the durable record store for albums, users, photos and errors.
// All mutations are individually committed; the walker relies on that to
// keep progress crash-safe without batching.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Album is an album row
type Album struct {
	ID             int64
	Title          string
	URL            string
	Items          int
	ProcessedItems int
	Shared         bool
	CreatedAt      time.Time
}

// User is a user row
type User struct {
	ID           int64
	SourceName   string
	ImmichName   sql.NullString
	ImmichEmail  sql.NullString
	AddToImmich  bool
	ImmichUserID sql.NullInt64
	CreatedAt    time.Time
}

// Photo is a photo row
type Photo struct {
	ID        int64
	Filename  string
	DateTaken *time.Time
	SourceID  string
	AlbumID   int64
	UserID    sql.NullInt64
	ImmichID  sql.NullString
}

// AssetMatch links a photo row to an Immich asset id
type AssetMatch struct {
	PhotoID  int64
	ImmichID string
}

// AlbumStats summarizes one album for reporting
type AlbumStats struct {
	Title      string
	Items      int
	PhotoCount int
	ErrorCount int
}

// Stats holds database-wide statistics
type Stats struct {
	Albums      []AlbumStats
	TotalAlbums int
	TotalUsers  int
	TotalPhotos int
	TotalErrors int
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema and migrations.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows the reconciler's readers alongside the walker's writes;
	// busy_timeout retries briefly on lock contention instead of failing.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=10000; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers that need raw access
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS albums (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_title TEXT NOT NULL,
			source_type TEXT NOT NULL DEFAULT 'gphoto',
			immich_title TEXT,
			items INTEGER NOT NULL DEFAULT 0,
			processed_items INTEGER NOT NULL DEFAULT 0,
			shared INTEGER NOT NULL DEFAULT 0,
			source_url TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(source_url, source_type)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_name TEXT NOT NULL,
			source_type TEXT NOT NULL DEFAULT 'gphoto',
			immich_name TEXT,
			immich_email TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(source_name, source_type)
		)`,
		`CREATE TABLE IF NOT EXISTS photos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			date_taken TIMESTAMP,
			source_id TEXT NOT NULL,
			album_id INTEGER NOT NULL REFERENCES albums(id),
			user_id INTEGER REFERENCES users(id),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(source_id, album_id)
		)`,
		`CREATE TABLE IF NOT EXISTS album_users (
			album_id INTEGER NOT NULL REFERENCES albums(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			UNIQUE(album_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			error_message TEXT NOT NULL,
			album_id INTEGER REFERENCES albums(id),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	// Columns added after the initial schema shipped.
	migrations := map[string]string{
		"photos.immich_id":    `ALTER TABLE photos ADD COLUMN immich_id TEXT`,
		"users.add_to_immich": `ALTER TABLE users ADD COLUMN add_to_immich INTEGER NOT NULL DEFAULT 1`,
		"users.immich_user_id": `ALTER TABLE users ADD COLUMN immich_user_id INTEGER`,
	}
	for name, stmt := range migrations {
		applied, err := s.columnExists(name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		s.log.InfoWithFields("applied migration", map[string]interface{}{
			"column": name,
		})
	}
	return nil
}

func (s *Store) columnExists(qualified string) (bool, error) {
	table, column, ok := strings.Cut(qualified, ".")
	if !ok {
		return false, fmt.Errorf("malformed migration key %q", qualified)
	}

	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// UpsertAlbum inserts an album keyed by its canonical URL, updating the
// declared item count and shared flag if it already exists. Returns the
// album id.
func (s *Store) UpsertAlbum(ctx context.Context, title, url string, items int, shared bool) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO albums (source_title, source_type, immich_title, items, shared, source_url)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(source_url, source_type) DO UPDATE SET
  items = excluded.items,
  shared = excluded.shared,
  source_title = excluded.source_title
`, title, sourceTypeGPhoto, title, items, boolToInt(shared), url)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert album: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM albums WHERE source_url = ? AND source_type = ?`,
		url, sourceTypeGPhoto).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read back album id: %w", err)
	}
	return id, nil
}

// AlbumExists reports whether an album with the given title is known
func (s *Store) AlbumExists(ctx context.Context, title string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM albums WHERE source_title = ? AND source_type = ?`,
		title, sourceTypeGPhoto).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check album existence: %w", err)
	}
	return n > 0, nil
}

// GetProgress returns the declared item count and the persisted processed
// count for an album.
func (s *Store) GetProgress(ctx context.Context, albumID int64) (declared, processed int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT items, processed_items FROM albums WHERE id = ?`, albumID).
		Scan(&declared, &processed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read album progress: %w", err)
	}
	return declared, processed, nil
}

// SetProgress persists the processed item count for an album
func (s *Store) SetProgress(ctx context.Context, albumID int64, processed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE albums SET processed_items = ? WHERE id = ?`, processed, albumID)
	if err != nil {
		return fmt.Errorf("failed to update album progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("album %d not found", albumID)
	}
	return nil
}

// UpsertUser inserts a user by source name if unseen and returns its id
func (s *Store) UpsertUser(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE source_name = ? AND source_type = ?`,
		name, sourceTypeGPhoto).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (source_name, source_type, add_to_immich) VALUES (?, ?, 1)`,
		name, sourceTypeGPhoto)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.log.InfoWithFields("added user", map[string]interface{}{
		"source_name": name,
		"user_id":     id,
	})
	return id, nil
}

// LinkUserAlbum associates a user with an album; repeated links are no-ops
func (s *Store) LinkUserAlbum(ctx context.Context, userID, albumID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO album_users (album_id, user_id) VALUES (?, ?)
ON CONFLICT(album_id, user_id) DO NOTHING
`, albumID, userID)
	if err != nil {
		return fmt.Errorf("failed to link user to album: %w", err)
	}
	return nil
}

// InsertPhoto inserts a photo keyed by (source_id, album_id). A second
// insert with the same pair is a no-op signaling "already known": it
// returns inserted=false and no error. userID may be 0 when the photo has
// no resolvable owner.
func (s *Store) InsertPhoto(ctx context.Context, albumID, userID int64, sourceID, filename string, dateTaken *time.Time) (id int64, inserted bool, err error) {
	var user interface{}
	if userID > 0 {
		user = userID
	}
	var taken interface{}
	if dateTaken != nil {
		taken = dateTaken.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO photos (filename, date_taken, source_id, album_id, user_id)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(source_id, album_id) DO NOTHING
`, filename, taken, sourceID, albumID, user)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert photo: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil // duplicate, absorbed
	}
	id, err = res.LastInsertId()
	return id, true, err
}

// RecordError persists a typed error row. albumID 0 records a run-level
// error not attached to any album.
func (s *Store) RecordError(ctx context.Context, message string, albumID int64) error {
	var album interface{}
	if albumID > 0 {
		album = albumID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO errors (error_message, album_id) VALUES (?, ?)`, message, album)
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	s.log.ErrorWithFields("error recorded", map[string]interface{}{
		"album_id": albumID,
		"message":  message,
	})
	return nil
}

// ListAlbumsOptions filters ListAlbums
type ListAlbumsOptions struct {
	Limit       int
	Offset      int
	NotFinished bool
	AlbumIDs    []int64
}

// ListAlbums returns albums ordered by id
func (s *Store) ListAlbums(ctx context.Context, opts ListAlbumsOptions) ([]Album, error) {
	query := `SELECT id, source_title, source_url, items, processed_items, shared, created_at
FROM albums WHERE source_type = ?`
	args := []interface{}{sourceTypeGPhoto}

	if opts.NotFinished {
		query += ` AND processed_items < items`
	}
	if len(opts.AlbumIDs) > 0 {
		query += ` AND id IN (`
		for i, id := range opts.AlbumIDs {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, id)
		}
		query += `)`
	}
	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	} else if opts.Offset > 0 {
		// SQLite needs a LIMIT clause to accept OFFSET; -1 means no cap
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		var a Album
		var shared int
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Items, &a.ProcessedItems, &shared, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Shared = shared != 0
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// ListUsers returns all users ordered by source name
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source_name, immich_name, immich_email, add_to_immich, immich_user_id, created_at
FROM users WHERE source_type = ? ORDER BY source_name`, sourceTypeGPhoto)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var add int
		if err := rows.Scan(&u.ID, &u.SourceName, &u.ImmichName, &u.ImmichEmail, &add, &u.ImmichUserID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.AddToImmich = add != 0
		users = append(users, u)
	}
	return users, rows.Err()
}

// PhotosWithoutAsset returns photos not yet matched to an Immich asset
func (s *Store) PhotosWithoutAsset(ctx context.Context) ([]Photo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, filename, date_taken, source_id, album_id, user_id, immich_id
FROM photos WHERE immich_id IS NULL OR immich_id = '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var p Photo
		var taken sql.NullTime
		if err := rows.Scan(&p.ID, &p.Filename, &taken, &p.SourceID, &p.AlbumID, &p.UserID, &p.ImmichID); err != nil {
			return nil, err
		}
		if taken.Valid {
			t := taken.Time
			p.DateTaken = &t
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// ApplyMatches writes a batch of photo/asset matches in one transaction,
// so a mid-batch failure leaves no partial batch behind.
func (s *Store) ApplyMatches(ctx context.Context, matches []AssetMatch) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE photos SET immich_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare match update: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := stmt.ExecContext(ctx, m.ImmichID, m.PhotoID); err != nil {
			return fmt.Errorf("failed to apply match for photo %d: %w", m.PhotoID, err)
		}
	}
	return tx.Commit()
}

// GetStats returns database-wide statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	rows, err := s.db.QueryContext(ctx, `
SELECT a.source_title, a.items,
  (SELECT COUNT(*) FROM photos p WHERE p.album_id = a.id),
  (SELECT COUNT(*) FROM errors e WHERE e.album_id = a.id)
FROM albums a WHERE a.source_type = ? ORDER BY a.id`, sourceTypeGPhoto)
	if err != nil {
		return nil, fmt.Errorf("failed to query album stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var as AlbumStats
		if err := rows.Scan(&as.Title, &as.Items, &as.PhotoCount, &as.ErrorCount); err != nil {
			return nil, err
		}
		stats.Albums = append(stats.Albums, as)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.TotalAlbums = len(stats.Albums)

	counts := map[string]*int{
		`SELECT COUNT(*) FROM users`:  &stats.TotalUsers,
		`SELECT COUNT(*) FROM photos`: &stats.TotalPhotos,
		`SELECT COUNT(*) FROM errors`: &stats.TotalErrors,
	}
	for q, dst := range counts {
		if err := s.db.QueryRowContext(ctx, q).Scan(dst); err != nil {
			return nil, fmt.Errorf("failed to query counts: %w", err)
		}
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
