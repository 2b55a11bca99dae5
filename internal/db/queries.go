package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/nami/internal/errors"
)

// ErrVersionConflict is returned by SwapBlob when the stored version moved.
var ErrVersionConflict = stderrors.New("blob version conflict")

// GetBlob returns the data stored under key, or nil if the key is absent.
func GetBlob(ctx context.Context, db *sql.DB, key string) ([]byte, error) {
	data, _, err := GetBlobVersion(ctx, db, key)
	return data, err
}

// GetBlobVersion returns the data stored under key with its version.
// An absent key yields nil data and version 0.
func GetBlobVersion(ctx context.Context, db *sql.DB, key string) ([]byte, int64, error) {
	var data string
	var version int64
	err := db.QueryRowContext(ctx, `SELECT data, version FROM blobs WHERE key = ?`, key).Scan(&data, &version)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, errors.NewInternal(err)
	}
	return []byte(data), version, nil
}

// PutBlob stores data under key, replacing any previous value.
func PutBlob(ctx context.Context, db *sql.DB, key string, data []byte, now time.Time) error {
	query := `
		INSERT INTO blobs (key, data, updated_at, version) VALUES (?, ?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET
		  data = excluded.data,
		  updated_at = excluded.updated_at,
		  version = blobs.version + 1
	`
	if _, err := db.ExecContext(ctx, query, key, string(data), now.Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SwapBlob stores data under key only if the stored version still equals
// version (0 meaning absent) and returns the new version. Otherwise it
// returns ErrVersionConflict and leaves the row alone.
func SwapBlob(ctx context.Context, db *sql.DB, key string, data []byte, version int64, now time.Time) (int64, error) {
	var res sql.Result
	var err error
	if version == 0 {
		res, err = db.ExecContext(ctx,
			`INSERT INTO blobs (key, data, updated_at, version) VALUES (?, ?, ?, 1) ON CONFLICT(key) DO NOTHING`,
			key, string(data), now.Unix())
	} else {
		res, err = db.ExecContext(ctx,
			`UPDATE blobs SET data = ?, updated_at = ?, version = version + 1 WHERE key = ? AND version = ?`,
			string(data), now.Unix(), key, version)
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return version + 1, nil
}

// ListBlobKeys returns the keys starting with prefix, oldest update first.
func ListBlobKeys(ctx context.Context, db *sql.DB, prefix string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key FROM blobs WHERE substr(key, 1, length(?)) = ? ORDER BY updated_at, key`,
		prefix, prefix)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.NewInternal(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return keys, nil
}
