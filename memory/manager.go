package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// retryInterval is the pause before the single reconnect-style retry that
// wraps index I/O.
const retryInterval = 250 * time.Millisecond

// Config holds Manager tuning knobs. Zero values fall back to the package
// defaults.
type Config struct {
	// DedupThreshold is the cosine distance below which new content is
	// considered a duplicate of an existing memory in the same scope.
	// Zero means DefaultDistanceThreshold.
	DedupThreshold float64
	// RetrievalThreshold is the cosine distance cutoff applied to retrieval
	// queries that carry none. Zero means DefaultDistanceThreshold.
	RetrievalThreshold float64
	// DefaultLimit is the retrieval result count for queries with no limit.
	// Zero means DefaultLimit.
	DefaultLimit int
	// MaxLimit caps the retrieval result count. Zero means MaxLimit; values
	// above the package cap are lowered to it.
	MaxLimit int
}

// Manager orchestrates the store, retrieve and delete operations over the
// index and the embedding provider. It holds no record state itself; every
// call is independent and safe to run concurrently with any other call.
type Manager struct {
	index    *Index
	embedder Embedder
	logger   zerolog.Logger

	dedupThreshold     float64
	retrievalThreshold float64
	defaultLimit       int
	maxLimit           int

	// scopeLocks serializes the dedup-check-then-write window per
	// (user_id, memory_type, thread_id) scope, closing the race where two
	// concurrent stores of near-duplicate content both pass the dedup
	// check. Stores in different scopes still run in parallel. Entries are
	// refcounted and removed once the last holder releases, so the map
	// stays proportional to in-flight stores rather than users seen.
	scopeMu    sync.Mutex
	scopeLocks map[string]*scopeLock
}

// scopeLock is one refcounted dedup-scope mutex.
type scopeLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager. The embedder's dimension must match the
// index's configured dimension.
func NewManager(index *Index, embedder Embedder, cfg Config, logger zerolog.Logger) (*Manager, error) {
	logger = logger.With().Str("component", "memory_manager").Logger()
	if index == nil {
		return nil, NewSchemaError("index is required", nil)
	}
	if embedder == nil {
		return nil, NewSchemaError("embedder is required", nil)
	}
	if got, want := embedder.Dimensions(), index.Dimension(); got != want {
		return nil, NewSchemaError(fmt.Sprintf(
			"embedder dimension %d does not match index dimension %d", got, want), nil)
	}

	dedup := cfg.DedupThreshold
	if dedup <= 0 {
		dedup = DefaultDistanceThreshold
	}
	retrieval := cfg.RetrievalThreshold
	if retrieval <= 0 {
		retrieval = DefaultDistanceThreshold
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	maxLimit := cfg.MaxLimit
	if maxLimit <= 0 || maxLimit > MaxLimit {
		maxLimit = MaxLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	logger.Info().
		Float64("dedup_threshold", dedup).
		Float64("retrieval_threshold", retrieval).
		Int("default_limit", defaultLimit).
		Int("max_limit", maxLimit).
		Msg("Memory manager ready")
	return &Manager{
		index:              index,
		embedder:           embedder,
		logger:             logger,
		dedupThreshold:     dedup,
		retrievalThreshold: retrieval,
		defaultLimit:       defaultLimit,
		maxLimit:           maxLimit,
		scopeLocks:         make(map[string]*scopeLock),
	}, nil
}

// lockScope acquires the advisory lock for one dedup scope and returns its
// release function. The scope's entry is dropped once no caller holds or
// waits on it.
func (m *Manager) lockScope(userID string, typ MemoryType, threadID *string) func() {
	key := userID + "\x00" + string(typ)
	if threadID != nil {
		key += "\x00" + *threadID
	}

	m.scopeMu.Lock()
	l, ok := m.scopeLocks[key]
	if !ok {
		l = &scopeLock{}
		m.scopeLocks[key] = l
	}
	l.refs++
	m.scopeMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.scopeMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.scopeLocks, key)
		}
		m.scopeMu.Unlock()
	}
}

// withRetry runs op, retrying exactly once after a short pause when it fails
// with a connection error. Validation and write errors are never retried.
func (m *Manager) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), 1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsConnection(err) {
			m.logger.Warn().Err(err).Msg("Backing store error, retrying once")
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// StoreMemory stores one memory with write-time deduplication. When a
// sufficiently similar memory already exists in the same scope the call
// skips the write and reports StoreStatusSkippedDuplicate; that is a normal
// outcome, not an error.
func (m *Manager) StoreMemory(ctx context.Context, req StoreRequest) (StoreOutcome, error) {
	if req.UserID == "" {
		req.UserID = SystemUserID
	}
	if err := validateStoreRequest(&req); err != nil {
		return StoreOutcome{}, err
	}

	m.logger.Debug().
		Str("method", "StoreMemory").
		Str("user_id", req.UserID).
		Str("memory_type", string(req.MemoryType)).
		Str("content", truncateString(req.Content, 40)).
		Msg("called")

	unlock := m.lockScope(req.UserID, req.MemoryType, req.ThreadID)
	defer unlock()

	vector, err := m.embedder.Embed(ctx, req.Content)
	if err != nil {
		return StoreOutcome{}, NewConnectionError("embed content", err)
	}

	exists, err := m.similarExists(ctx, vector, req.MemoryType, req.UserID, req.ThreadID, m.dedupThreshold)
	if err != nil {
		return StoreOutcome{}, err
	}
	if exists {
		m.logger.Info().
			Str("user_id", req.UserID).
			Str("memory_type", string(req.MemoryType)).
			Msg("Similar memory found, skipping storage")
		return StoreOutcome{Status: StoreStatusSkippedDuplicate}, nil
	}

	memoryID, err := uuid.NewV7()
	if err != nil {
		return StoreOutcome{}, NewStoreWriteError("generate memory id", err)
	}

	rec := MemoryRecord{
		MemoryID:   memoryID.String(),
		UserID:     req.UserID,
		ThreadID:   req.ThreadID,
		MemoryType: req.MemoryType,
		Content:    req.Content,
		Metadata:   req.Metadata,
		CreatedAt:  time.Now().UTC(),
		Embedding:  vector,
	}

	err = m.withRetry(ctx, func() error {
		_, loadErr := m.index.Load(ctx, &rec)
		return loadErr
	})
	if err != nil {
		return StoreOutcome{}, err
	}

	m.logger.Info().
		Str("memory_id", rec.MemoryID).
		Str("user_id", rec.UserID).
		Str("memory_type", string(rec.MemoryType)).
		Str("content", truncateString(rec.Content, 40)).
		Msg("Memory stored")
	return StoreOutcome{Status: StoreStatusStored, Record: &rec}, nil
}

// SimilarMemoryExists reports whether a memory within threshold cosine
// distance of content already exists in the (userID, memoryType, threadID)
// scope. A zero threshold means the manager's dedup threshold.
func (m *Manager) SimilarMemoryExists(
	ctx context.Context,
	content string,
	memoryType MemoryType,
	userID string,
	threadID *string,
	threshold float64,
) (bool, error) {
	if strings.TrimSpace(content) == "" {
		return false, NewValidationError("content must not be empty")
	}
	if userID == "" {
		userID = SystemUserID
	}
	if threshold <= 0 {
		threshold = m.dedupThreshold
	}

	vector, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return false, NewConnectionError("embed content", err)
	}
	return m.similarExists(ctx, vector, memoryType, userID, threadID, threshold)
}

// similarExists issues the dedup range query for an already-embedded vector.
func (m *Manager) similarExists(
	ctx context.Context,
	vector []float32,
	memoryType MemoryType,
	userID string,
	threadID *string,
	threshold float64,
) (bool, error) {
	filter := Filter{
		UserID:      userID,
		MemoryTypes: []MemoryType{memoryType},
		ThreadID:    threadID,
	}

	var hits []RangeHit
	err := m.withRetry(ctx, func() error {
		var queryErr error
		hits, queryErr = m.index.QueryRange(ctx, vector, filter, threshold, 1)
		return queryErr
	})
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

// RetrieveMemories returns the memories relevant to the query within the
// caller's scope, ordered by ascending cosine distance.
func (m *Manager) RetrieveMemories(ctx context.Context, q RetrievalQuery) ([]MemoryRecord, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, NewValidationError("query must not be empty")
	}
	if q.Limit < 0 {
		return nil, NewValidationError("limit must be a positive integer")
	}
	if q.Limit == 0 {
		q.Limit = m.defaultLimit
	}
	if q.Limit > m.maxLimit {
		m.logger.Warn().Int("limit", q.Limit).Int("max", m.maxLimit).Msg("Limit capped")
		q.Limit = m.maxLimit
	}
	if q.UserID == "" {
		q.UserID = SystemUserID
	}
	if q.DistanceThreshold <= 0 {
		q.DistanceThreshold = m.retrievalThreshold
	}

	m.logger.Debug().
		Str("method", "RetrieveMemories").
		Str("user_id", q.UserID).
		Str("query", truncateString(q.Query, 40)).
		Int("limit", q.Limit).
		Float64("threshold", q.DistanceThreshold).
		Msg("called")

	vector, err := m.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, NewConnectionError("embed query", err)
	}

	filter := Filter{
		UserID:      q.UserID,
		MemoryTypes: q.MemoryTypes,
		ThreadID:    q.ThreadID,
	}

	var hits []RangeHit
	err = m.withRetry(ctx, func() error {
		var queryErr error
		hits, queryErr = m.index.QueryRange(ctx, vector, filter, q.DistanceThreshold, q.Limit)
		return queryErr
	})
	if err != nil {
		return nil, err
	}

	records := lo.Map(hits, func(h RangeHit, _ int) MemoryRecord {
		return h.Record
	})
	m.logger.Info().
		Str("user_id", q.UserID).
		Int("results", len(records)).
		Msg("Memories retrieved")
	return records, nil
}

// DeleteMemory removes the memory identified by memoryID when it belongs to
// userID. Ownership is verified with an indexed lookup before the delete, so
// guessing another user's memory_id never deletes anything. When the
// verification lookup itself fails, the call fails closed: the error is
// returned and no delete is attempted.
func (m *Manager) DeleteMemory(ctx context.Context, memoryID, userID string) (bool, error) {
	if strings.TrimSpace(memoryID) == "" {
		return false, NewValidationError("memory_id must not be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return false, NewValidationError("user_id must not be empty")
	}

	m.logger.Debug().
		Str("method", "DeleteMemory").
		Str("memory_id", memoryID).
		Str("user_id", userID).
		Msg("called")

	var rec *MemoryRecord
	err := m.withRetry(ctx, func() error {
		var lookupErr error
		rec, lookupErr = m.index.FindByMemoryID(ctx, userID, memoryID)
		return lookupErr
	})
	if err != nil {
		return false, err
	}
	if rec == nil {
		m.logger.Info().
			Str("memory_id", memoryID).
			Str("user_id", userID).
			Msg("Memory not found for user, nothing deleted")
		return false, nil
	}

	var deleted bool
	err = m.withRetry(ctx, func() error {
		var delErr error
		deleted, delErr = m.index.Delete(ctx, rec.ID)
		return delErr
	})
	if err != nil {
		return false, err
	}

	m.logger.Info().
		Str("memory_id", memoryID).
		Str("user_id", userID).
		Bool("deleted", deleted).
		Msg("Memory delete completed")
	return deleted, nil
}

// validateStoreRequest checks caller input before any embedding or I/O.
func validateStoreRequest(req *StoreRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return NewValidationError("content must not be empty")
	}
	// The bound is in characters, so multi-byte text is not penalized.
	if utf8.RuneCountInString(req.Content) > MaxContentLen {
		return NewValidationError(fmt.Sprintf(
			"content exceeds maximum length of %d characters", MaxContentLen))
	}
	if _, err := ParseMemoryType(string(req.MemoryType)); err != nil {
		return NewValidationError(err.Error())
	}
	if req.ThreadID != nil && strings.TrimSpace(*req.ThreadID) == "" {
		return NewValidationError("thread_id must not be blank when set")
	}
	metaJSON, err := encodeMetadata(req.Metadata)
	if err != nil {
		return NewValidationError("metadata must be serializable")
	}
	if len(metaJSON) > MaxMetadataLen {
		return NewValidationError(fmt.Sprintf(
			"metadata exceeds maximum size of %d bytes", MaxMetadataLen))
	}
	return nil
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
