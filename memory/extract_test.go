package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedExtractor returns canned candidates or an error.
type scriptedExtractor struct {
	candidates []CandidateMemory
	err        error
}

func (s scriptedExtractor) ExtractMemories(ctx context.Context, userMessage, assistantMessage string) ([]CandidateMemory, error) {
	return s.candidates, s.err
}

func TestRecordExchange_StoresCandidates(t *testing.T) {
	mgr, db := setupTestManager(t, topicEmbedder{})
	ctx := context.Background()

	extractor := scriptedExtractor{candidates: []CandidateMemory{
		{Content: "User prefers aisle seats", MemoryType: MemoryTypeEpisodic},
		{Content: "Singapore requires a visa for long stays", MemoryType: MemoryTypeSemantic},
	}}

	stored, err := mgr.RecordExchange(ctx, extractor, Exchange{
		UserMessage:      "I always book aisle seats",
		AssistantMessage: "Noted, and remember Singapore requires a visa",
		UserID:           "alice",
	})
	if err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}
	if n := countMemories(t, db); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}

	// Extracted memories go through the normal store path.
	records, err := mgr.RetrieveMemories(ctx, RetrievalQuery{
		Query:       "seating preference",
		UserID:      "alice",
		MemoryTypes: []MemoryType{MemoryTypeEpisodic},
	})
	if err != nil {
		t.Fatalf("RetrieveMemories: %v", err)
	}
	if len(records) != 1 || records[0].Metadata["source"] != "extraction" {
		t.Fatalf("expected one extraction-tagged memory, got %+v", records)
	}
}

func TestRecordExchange_DedupSkipsKnownMemories(t *testing.T) {
	mgr, db := setupTestManager(t, topicEmbedder{})
	ctx := context.Background()

	if _, err := mgr.StoreMemory(ctx, StoreRequest{
		Content:    "User prefers aisle seats",
		MemoryType: MemoryTypeEpisodic,
		UserID:     "alice",
	}); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	extractor := scriptedExtractor{candidates: []CandidateMemory{
		{Content: "User prefers aisle seats", MemoryType: MemoryTypeEpisodic},
		{Content: "Singapore requires a visa for long stays", MemoryType: MemoryTypeSemantic},
	}}

	stored, err := mgr.RecordExchange(ctx, extractor, Exchange{
		UserMessage:      "aisle seats again please",
		AssistantMessage: "of course",
		UserID:           "alice",
	})
	if err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if stored != 1 {
		t.Fatalf("stored = %d, want 1 (duplicate candidate skipped)", stored)
	}
	if n := countMemories(t, db); n != 2 {
		t.Fatalf("expected 2 rows after dedup, got %d", n)
	}
}

func TestRecordExchange_SkipsFailingCandidate(t *testing.T) {
	mgr, db := setupTestManager(t, topicEmbedder{})
	ctx := context.Background()

	// The oversized candidate fails validation; the rest still store.
	extractor := scriptedExtractor{candidates: []CandidateMemory{
		{Content: strings.Repeat("x", MaxContentLen+1), MemoryType: MemoryTypeEpisodic},
		{Content: "User prefers aisle seats", MemoryType: MemoryTypeEpisodic},
	}}

	stored, err := mgr.RecordExchange(ctx, extractor, Exchange{
		UserMessage:      "long ramble",
		AssistantMessage: "short answer",
		UserID:           "alice",
	})
	if err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if stored != 1 {
		t.Fatalf("stored = %d, want 1", stored)
	}
	if n := countMemories(t, db); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestRecordExchange_ExtractorFailure(t *testing.T) {
	mgr, db := setupTestManager(t, topicEmbedder{})

	_, err := mgr.RecordExchange(context.Background(),
		scriptedExtractor{err: errors.New("api unreachable")},
		Exchange{UserMessage: "hi", AssistantMessage: "hello", UserID: "alice"})
	if !IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if n := countMemories(t, db); n != 0 {
		t.Fatalf("expected no rows after failed extraction, got %d", n)
	}
}

func TestRecordExchange_NoCandidates(t *testing.T) {
	mgr, _ := setupTestManager(t, topicEmbedder{})

	stored, err := mgr.RecordExchange(context.Background(),
		scriptedExtractor{},
		Exchange{UserMessage: "hi", AssistantMessage: "hello", UserID: "alice"})
	if err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if stored != 0 {
		t.Fatalf("stored = %d, want 0", stored)
	}
}

func TestRecordExchange_NilExtractor(t *testing.T) {
	mgr, _ := setupTestManager(t, topicEmbedder{})

	if _, err := mgr.RecordExchange(context.Background(), nil,
		Exchange{UserMessage: "hi", AssistantMessage: "hello"}); !IsValidation(err) {
		t.Fatalf("expected validation error for nil extractor, got %v", err)
	}
}
