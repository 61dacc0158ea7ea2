package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// MemoryType categorizes a long-term memory for storage and retrieval.
type MemoryType string

const (
	// MemoryTypeEpisodic is a user-specific experience or preference
	// (e.g. "User prefers aisle seats").
	MemoryTypeEpisodic MemoryType = "episodic"
	// MemoryTypeSemantic is general domain knowledge
	// (e.g. "Singapore requires a visa").
	MemoryTypeSemantic MemoryType = "semantic"
)

// ParseMemoryType converts a string into a MemoryType.
func ParseMemoryType(s string) (MemoryType, error) {
	switch MemoryType(s) {
	case MemoryTypeEpisodic:
		return MemoryTypeEpisodic, nil
	case MemoryTypeSemantic:
		return MemoryTypeSemantic, nil
	default:
		return "", fmt.Errorf("unknown memory type: %q", s)
	}
}

const (
	// SystemUserID is the reserved scope for memories not tied to a user.
	SystemUserID = "system"

	// KeyPrefix prefixes every record key in the index (memory:<memory_id>).
	KeyPrefix = "memory"

	// MaxContentLen bounds memory content length in characters.
	MaxContentLen = 10000
	// MaxMetadataLen bounds the serialized metadata size in bytes.
	MaxMetadataLen = 1024

	// DefaultLimit is the retrieval result count when the caller gives none.
	DefaultLimit = 5
	// MaxLimit caps the retrieval result count regardless of the caller.
	MaxLimit = 100

	// DefaultDistanceThreshold is the cosine distance cutoff used for both
	// deduplication and retrieval when the caller gives none. It is tight on
	// purpose: only near-identical content dedups, and only close matches
	// are considered relevant.
	DefaultDistanceThreshold = 0.1
)

// MemoryRecord is a single stored long-term memory. Records are immutable
// once stored; the only lifecycle transitions are create and delete.
type MemoryRecord struct {
	// ID is the index record key (primary key), assigned at load time.
	ID string `json:"id"`
	// MemoryID is the externally visible identifier, time-ordered and unique.
	MemoryID string `json:"memory_id"`
	UserID   string `json:"user_id"`
	// ThreadID optionally narrows the memory to one conversation.
	ThreadID   *string           `json:"thread_id,omitempty"`
	MemoryType MemoryType        `json:"memory_type"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Embedding  []float32         `json:"embedding,omitempty"`
}

// Filter restricts which records an index query may see. All set fields are
// combined with AND; a multi-valued MemoryTypes field matches any of the
// listed types.
type Filter struct {
	UserID      string
	MemoryTypes []MemoryType
	ThreadID    *string
	MemoryID    string
}

// StoreRequest carries the caller's arguments for storing one memory.
type StoreRequest struct {
	Content    string
	MemoryType MemoryType
	UserID     string
	ThreadID   *string
	Metadata   map[string]string
}

// RetrievalQuery carries the caller's arguments for a similarity search.
type RetrievalQuery struct {
	Query       string
	MemoryTypes []MemoryType
	UserID      string
	ThreadID    *string
	// DistanceThreshold is a hard cosine distance cutoff, not a ranking
	// boost. Zero means DefaultDistanceThreshold.
	DistanceThreshold float64
	// Limit is the maximum number of results. Zero means DefaultLimit;
	// values above MaxLimit are capped.
	Limit int
}

// StoreStatus reports how a store call concluded.
type StoreStatus string

const (
	StoreStatusStored           StoreStatus = "stored"
	StoreStatusSkippedDuplicate StoreStatus = "skipped_duplicate"
)

// StoreOutcome is the result of a store call. A skipped duplicate is a
// normal outcome, not an error.
type StoreOutcome struct {
	Status StoreStatus
	// Record is set when Status is StoreStatusStored.
	Record *MemoryRecord
}

// RangeHit pairs a record with its cosine distance from the query vector.
type RangeHit struct {
	Record   MemoryRecord
	Distance float64
}

// encodeMetadata serializes metadata to its stored JSON form. Nil and empty
// maps both become the empty object.
func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeMetadata parses the stored JSON form back into a map. The empty
// object decodes to nil.
func decodeMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}
