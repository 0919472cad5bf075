package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// NoteStore is an in-memory keyword retriever over free-form notes. It is
// the default backend for local runs; deployments with a real vector store
// provide their own Retriever.
type NoteStore struct {
	mu    sync.RWMutex
	notes []note
	limit int
}

type note struct {
	source  string
	content string
	terms   map[string]struct{}
}

// NewNoteStore creates a store returning at most limit snippets per query.
func NewNoteStore(limit int) *NoteStore {
	if limit <= 0 {
		limit = 5
	}
	return &NoteStore{limit: limit}
}

// Add records a note under the given source label.
func (s *NoteStore) Add(source, content string) {
	if content == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, note{
		source:  source,
		content: content,
		terms:   tokenize(content),
	})
}

// Retrieve scores notes by term overlap with the query and returns the
// top matches. Notes with no overlap are omitted.
func (s *NoteStore) Retrieve(ctx context.Context, query string, conversationID string) ([]models.ContextSnippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []models.ContextSnippet
	for _, n := range s.notes {
		overlap := 0
		for term := range queryTerms {
			if _, ok := n.terms[term]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		scored = append(scored, models.ContextSnippet{
			Source:  n.source,
			Content: n.content,
			Score:   float32(overlap) / float32(len(queryTerms)),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > s.limit {
		scored = scored[:s.limit]
	}
	return scored, nil
}

func tokenize(text string) map[string]struct{} {
	terms := map[string]struct{}{}
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,;:!?\"'()[]")
		if len(field) < 3 {
			continue
		}
		terms[field] = struct{}{}
	}
	return terms
}
