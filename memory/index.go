package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// candidateLimit bounds how many filtered rows a range query scans per call.
const candidateLimit = 500

// createdAtFormat keeps created_at text lexically sortable.
const createdAtFormat = time.RFC3339

// Index is the durable collection of memory records. It stores each record's
// embedding alongside its tag fields and answers combined structured-filter
// plus cosine-distance range queries over them. The backing database is the
// only shared mutable resource; it supports concurrent readers and writers.
type Index struct {
	db        *sql.DB
	dimension int
	logger    zerolog.Logger
}

// StatementBuilder returns a Squirrel StatementBuilder configured for SQLite.
// SQLite uses '?' as placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}

// selectRecordColumns returns the standard column list for memories SELECTs.
func selectRecordColumns() []string {
	return []string{
		"id", "memory_id", "user_id", "thread_id", "memory_type",
		"content", "metadata", "created_at", "embedding",
	}
}

// NewIndex opens the index over an already-migrated database. It fails with
// a schema error when the dimension is invalid or the memories table is
// missing, so a misconfigured deployment dies at startup rather than on the
// first operation.
func NewIndex(db *sql.DB, dimension int, logger zerolog.Logger) (*Index, error) {
	logger = logger.With().Str("component", "memory_index").Logger()
	if dimension <= 0 {
		return nil, NewSchemaError(fmt.Sprintf("invalid index dimension %d", dimension), nil)
	}

	var name string
	err := db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'memories'`,
	).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		return nil, NewSchemaError("memories table is missing; run migrations", nil)
	case err != nil:
		return nil, NewSchemaError("backing store is unreachable", err)
	}

	logger.Info().Int("dimension", dimension).Msg("Index ready")
	return &Index{db: db, dimension: dimension, logger: logger}, nil
}

// Dimension returns the index's configured embedding dimension.
func (ix *Index) Dimension() int { return ix.dimension }

// recordKey builds the primary key for a record.
func recordKey(memoryID string) string {
	return KeyPrefix + ":" + memoryID
}

// Load inserts one record and returns its assigned record key. The insert is
// a single statement, so a failed write never leaves a partial record.
func (ix *Index) Load(ctx context.Context, rec *MemoryRecord) (string, error) {
	if len(rec.Embedding) != ix.dimension {
		return "", NewValidationError(fmt.Sprintf(
			"embedding dimension %d does not match index dimension %d",
			len(rec.Embedding), ix.dimension))
	}

	id := recordKey(rec.MemoryID)

	var threadVal interface{}
	if rec.ThreadID != nil {
		threadVal = *rec.ThreadID
	}
	metadata := rec.Metadata
	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return "", NewValidationError("metadata is not serializable")
	}

	query := StatementBuilder().
		Insert("memories").
		Columns("id", "memory_id", "user_id", "thread_id", "memory_type",
			"content", "metadata", "created_at", "embedding").
		Values(id, rec.MemoryID, rec.UserID, threadVal, string(rec.MemoryType),
			rec.Content, metaJSON, rec.CreatedAt.UTC().Format(createdAtFormat),
			EncodeEmbedding(rec.Embedding))

	queryStr, args, err := query.ToSql()
	if err != nil {
		return "", NewStoreWriteError("build insert query", err)
	}

	if _, err := ix.db.ExecContext(ctx, queryStr, args...); err != nil {
		ix.logger.Error().Err(err).Str("memory_id", rec.MemoryID).Msg("Insert failed")
		return "", NewStoreWriteError("insert memory record", err)
	}

	rec.ID = id
	ix.logger.Debug().
		Str("id", id).
		Str("user_id", rec.UserID).
		Str("memory_type", string(rec.MemoryType)).
		Msg("Record loaded")
	return id, nil
}

// buildFilterWhere converts a Filter into squirrel predicates. Set fields
// are ANDed; a multi-valued MemoryTypes becomes an IN clause.
func buildFilterWhere(f Filter) sq.And {
	conds := sq.And{}
	if f.UserID != "" {
		conds = append(conds, sq.Eq{"user_id": f.UserID})
	}
	switch len(f.MemoryTypes) {
	case 0:
	case 1:
		conds = append(conds, sq.Eq{"memory_type": string(f.MemoryTypes[0])})
	default:
		types := make([]string, len(f.MemoryTypes))
		for i, t := range f.MemoryTypes {
			types[i] = string(t)
		}
		conds = append(conds, sq.Eq{"memory_type": types})
	}
	if f.ThreadID != nil {
		conds = append(conds, sq.Eq{"thread_id": *f.ThreadID})
	}
	if f.MemoryID != "" {
		conds = append(conds, sq.Eq{"memory_id": f.MemoryID})
	}
	return conds
}

// QueryRange returns the records whose tag fields satisfy filter and whose
// cosine distance from vector is at most threshold, ordered by ascending
// distance and truncated to limit. A row that fails to decode is dropped
// with a warning rather than failing the whole query.
func (ix *Index) QueryRange(
	ctx context.Context,
	vector []float32,
	filter Filter,
	threshold float64,
	limit int,
) ([]RangeHit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := StatementBuilder().
		Select(selectRecordColumns()...).
		From("memories").
		Where(buildFilterWhere(filter)).
		OrderBy("created_at DESC").
		Limit(uint64(candidateLimit))

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, NewConnectionError("build range query", err)
	}

	rows, err := ix.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		ix.logger.Error().Err(err).Msg("Range query failed")
		return nil, NewConnectionError("range query", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var hits []RangeHit
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			ix.logger.Warn().Err(err).Msg("Dropping malformed record from range query")
			continue
		}
		if len(rec.Embedding) != ix.dimension {
			ix.logger.Warn().
				Str("id", rec.ID).
				Int("got", len(rec.Embedding)).
				Int("want", ix.dimension).
				Msg("Dropping record with mismatched embedding dimension")
			continue
		}

		distance := CosineDistance(vector, rec.Embedding)
		if distance > threshold {
			continue
		}
		hits = append(hits, RangeHit{Record: *rec, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, NewConnectionError("range query iteration", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	ix.logger.Debug().
		Int("hits", len(hits)).
		Float64("threshold", threshold).
		Int("limit", limit).
		Msg("Range query completed")
	return hits, nil
}

// FindByMemoryID looks up a record by its (user_id, memory_id) tag pair.
// Returns nil without error when no such record exists under that user.
func (ix *Index) FindByMemoryID(ctx context.Context, userID, memoryID string) (*MemoryRecord, error) {
	query := StatementBuilder().
		Select(selectRecordColumns()...).
		From("memories").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"memory_id": memoryID}).
		Limit(1)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, NewConnectionError("build lookup query", err)
	}

	rows, err := ix.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, NewConnectionError("lookup query", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, NewConnectionError("lookup iteration", err)
		}
		return nil, nil
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, NewConnectionError("decode record", err)
	}
	return rec, nil
}

// Delete removes a record by its primary key. Returns whether a record
// existed.
func (ix *Index) Delete(ctx context.Context, recordID string) (bool, error) {
	query := StatementBuilder().
		Delete("memories").
		Where(sq.Eq{"id": recordID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return false, NewConnectionError("build delete query", err)
	}

	res, err := ix.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		ix.logger.Error().Err(err).Str("id", recordID).Msg("Delete failed")
		return false, NewConnectionError("delete record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, NewConnectionError("delete result", err)
	}

	ix.logger.Debug().Str("id", recordID).Bool("existed", affected > 0).Msg("Record deleted")
	return affected > 0, nil
}

// DeleteOlderThan removes records of the given types created before cutoff.
// An empty types slice matches every type. Returns the number of removed
// records.
func (ix *Index) DeleteOlderThan(ctx context.Context, cutoff time.Time, types []MemoryType) (int64, error) {
	query := StatementBuilder().
		Delete("memories").
		Where(sq.Lt{"created_at": cutoff.UTC().Format(createdAtFormat)})
	if len(types) > 0 {
		typeStrs := make([]string, len(types))
		for i, t := range types {
			typeStrs[i] = string(t)
		}
		query = query.Where(sq.Eq{"memory_type": typeStrs})
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return 0, NewConnectionError("build sweep query", err)
	}

	res, err := ix.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, NewConnectionError("sweep delete", err)
	}
	return res.RowsAffected()
}

// scanRecord decodes one row into a MemoryRecord.
func scanRecord(rows *sql.Rows) (*MemoryRecord, error) {
	var (
		id          string
		memoryID    string
		userID      string
		threadIDStr sql.NullString
		typStr      string
		content     string
		metaJSON    sql.NullString
		createdAt   string
		embBlob     []byte
	)
	if err := rows.Scan(&id, &memoryID, &userID, &threadIDStr, &typStr,
		&content, &metaJSON, &createdAt, &embBlob); err != nil {
		return nil, err
	}

	typ, err := ParseMemoryType(typStr)
	if err != nil {
		return nil, err
	}

	vec, err := DecodeEmbedding(embBlob)
	if err != nil {
		return nil, err
	}

	created, err := time.Parse(createdAtFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	meta, err := decodeMetadata(metaJSON.String)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	var threadPtr *string
	if threadIDStr.Valid {
		v := threadIDStr.String
		threadPtr = &v
	}

	return &MemoryRecord{
		ID:         id,
		MemoryID:   memoryID,
		UserID:     userID,
		ThreadID:   threadPtr,
		MemoryType: typ,
		Content:    content,
		Metadata:   meta,
		CreatedAt:  created,
		Embedding:  vec,
	}, nil
}
