package chunkstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// textIndex stores chunk text and position metadata in SQLite and serves the
// exact and fallback text searches.
type textIndex struct {
	db *sql.DB
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	document_name TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL,
	page_number   INTEGER,
	page_start    INTEGER,
	page_end      INTEGER,
	doc_start     INTEGER,
	doc_end       INTEGER,
	bbox_x        REAL,
	bbox_y        REAL,
	bbox_w        REAL,
	bbox_h        REAL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

// newTextIndex opens (creating if necessary) the SQLite database at path.
// ":memory:" gives a transient in-memory index.
func newTextIndex(path string) (*textIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path required", ErrInvalidConfig)
	}

	if path != ":memory:" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", expanded, err)
		}
		path = expanded
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite handles one writer at a time; serialize access through a
	// single connection to avoid SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(chunkSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &textIndex{db: db}, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (t *textIndex) Close() error {
	return t.db.Close()
}

// add inserts or replaces chunks.
func (t *textIndex) add(ctx context.Context, chunks []Chunk) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(id, document_id, document_name, content, page_number,
		 page_start, page_end, doc_start, doc_end,
		 bbox_x, bbox_y, bbox_w, bbox_h)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var pageStart, pageEnd, docStart, docEnd, pageNumber any
		if c.PageNumber != nil {
			pageNumber = *c.PageNumber
		}
		if c.PageSpan != nil {
			pageStart, pageEnd = c.PageSpan.Start, c.PageSpan.End
		}
		if c.DocumentSpan != nil {
			docStart, docEnd = c.DocumentSpan.Start, c.DocumentSpan.End
		}
		var bx, by, bw, bh any
		if c.BBox != nil {
			bx, by, bw, bh = c.BBox.X, c.BBox.Y, c.BBox.W, c.BBox.H
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.DocumentName, c.Content, pageNumber,
			pageStart, pageEnd, docStart, docEnd,
			bx, by, bw, bh,
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

const chunkColumns = `id, document_id, document_name, content, page_number,
	page_start, page_end, doc_start, doc_end, bbox_x, bbox_y, bbox_w, bbox_h`

// getByID returns the chunk with the given id, or ErrNotFound.
func (t *textIndex) getByID(ctx context.Context, id string) (*Chunk, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)

	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

// searchTerms returns chunks containing at least one term as a literal
// case-insensitive substring, ranked by distinct term hits descending, then
// chunk id ascending. The ranking in Go keeps ordering deterministic across
// SQLite versions.
func (t *textIndex) searchTerms(ctx context.Context, terms []string) ([]Chunk, error) {
	hits := make(map[string]int)
	byID := make(map[string]Chunk)

	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}

		rows, err := t.db.QueryContext(ctx,
			`SELECT `+chunkColumns+` FROM chunks WHERE instr(lower(content), ?) > 0`, term)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			hits[c.ID]++
			byID[c.ID] = *c
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		rows.Close()
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if hits[ids[i]] != hits[ids[j]] {
			return hits[ids[i]] > hits[ids[j]]
		}
		return ids[i] < ids[j]
	})

	results := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		results = append(results, byID[id])
	}
	return results, nil
}

// getByIDs resolves chunk rows for the given ids, skipping missing ones.
func (t *textIndex) getByIDs(ctx context.Context, ids []string) (map[string]Chunk, error) {
	out := make(map[string]Chunk, len(ids))
	for _, id := range ids {
		c, err := t.getByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = *c
	}
	return out, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var (
		c          Chunk
		pageNumber sql.NullInt64
		pageStart  sql.NullInt64
		pageEnd    sql.NullInt64
		docStart   sql.NullInt64
		docEnd     sql.NullInt64
		bx, by     sql.NullFloat64
		bw, bh     sql.NullFloat64
	)

	if err := row.Scan(
		&c.ID, &c.DocumentID, &c.DocumentName, &c.Content, &pageNumber,
		&pageStart, &pageEnd, &docStart, &docEnd,
		&bx, &by, &bw, &bh,
	); err != nil {
		return nil, err
	}

	if pageNumber.Valid {
		n := int(pageNumber.Int64)
		c.PageNumber = &n
	}
	if pageStart.Valid && pageEnd.Valid {
		c.PageSpan = &Span{Start: int(pageStart.Int64), End: int(pageEnd.Int64)}
	}
	if docStart.Valid && docEnd.Valid {
		c.DocumentSpan = &Span{Start: int(docStart.Int64), End: int(docEnd.Int64)}
	}
	if bx.Valid && by.Valid && bw.Valid && bh.Valid {
		c.BBox = &BBox{X: bx.Float64, Y: by.Float64, W: bw.Float64, H: bh.Float64}
	}

	return &c, nil
}
