package memory

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// Search strategies. Unrecognized values fall back to plain semantic search.
const (
	StrategySemantic      = "semantic"
	StrategyHybridTime    = "hybrid_time"
	StrategyHybridLexical = "hybrid_lexical"
)

const (
	collectionName = "resonance_memory"
	recordsFile    = "records.gob"

	// SeedText is injected when the store starts empty, so retrieval and the
	// embedding pipeline are exercised from the very first turn.
	SeedText = "Welcome to Resonance. This is the first permanent memory block created to initialize the Vector Database."
)

// Record is one long-term memory entry.
type Record struct {
	ID           string
	Content      string
	Embedding    []float32
	Type         string
	Timestamp    time.Time
	AccessCount  int
	LastAccessed time.Time
	Extra        map[string]string
}

// ExportRow is the tabular projection of a Record for UI inspection.
type ExportRow struct {
	Type         string    `json:"type"`
	Content      string    `json:"content"`
	AccessCount  int       `json:"access_count"`
	Timestamp    time.Time `json:"timestamp"`
	LastAccessed time.Time `json:"last_accessed"`
	ID           string    `json:"id"`
}

// Store is the long-term retrieval memory: a gob-persisted record table, a
// chromem vector index for dense search, and an in-memory BM25 index for
// lexical search. All operations are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	dir      string
	embedder Embedder
	col      *chromem.Collection
	records  map[string]*Record
	lexical  *bm25Index
	docIDs   []string // row i of the lexical corpus holds record docIDs[i]
}

// Open loads persisted records from dir and rebuilds both indexes. The
// vector index is rehydrated from stored embeddings, so no network calls
// happen here.
func Open(dir string, embedder Embedder) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	s := &Store{
		dir:      dir,
		embedder: embedder,
		records:  make(map[string]*Record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.col = col

	if len(s.records) > 0 {
		docs := make([]chromem.Document, 0, len(s.records))
		for _, r := range s.records {
			docs = append(docs, chromem.Document{ID: r.ID, Content: r.Content, Embedding: r.Embedding})
		}
		if err := col.AddDocuments(context.Background(), docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("restore vectors: %w", err)
		}
	}
	s.rebuildLexicalLocked()

	slog.Info("memory store ready", "dir", dir, "records", len(s.records))
	return s, nil
}

// Add embeds text, persists it, and rebuilds the lexical index. Metadata keys
// other than "type" are kept verbatim; type defaults to "general".
func (s *Store) Add(ctx context.Context, text string, meta map[string]string) (string, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed: %w", err)
	}

	now := time.Now()
	rec := &Record{
		ID:           uuid.New().String(),
		Content:      text,
		Embedding:    vec,
		Type:         "general",
		Timestamp:    now,
		LastAccessed: now,
	}
	for k, v := range meta {
		if k == "type" {
			if v != "" {
				rec.Type = v
			}
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocuments(ctx, []chromem.Document{{ID: rec.ID, Content: text, Embedding: vec}}, 1); err != nil {
		return "", fmt.Errorf("index vector: %w", err)
	}
	s.records[rec.ID] = rec
	s.rebuildLexicalLocked()
	if err := s.saveLocked(); err != nil {
		return "", fmt.Errorf("persist records: %w", err)
	}
	return rec.ID, nil
}

// Delete removes a record by id and reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		slog.Warn("vector delete failed", "id", id, "error", err)
		return false
	}
	delete(s.records, id)
	s.rebuildLexicalLocked()
	if err := s.saveLocked(); err != nil {
		slog.Warn("memory persist failed", "error", err)
	}
	return true
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SeedIfEmpty injects the bootstrap record into an empty store.
func (s *Store) SeedIfEmpty(ctx context.Context) error {
	if s.Count() > 0 {
		return nil
	}
	_, err := s.Add(ctx, SeedText, map[string]string{
		"type":   "system_init",
		"source": "server_startup",
	})
	return err
}

// Search returns up to k record contents ranked by the given strategy. Every
// returned record gets its access_count bumped and last_accessed refreshed;
// failures of that bookkeeping never fail the search.
func (s *Store) Search(ctx context.Context, query string, k int, strategy string) ([]string, error) {
	if k <= 0 {
		k = 3
	}
	count := s.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var hits []*Record
	switch strategy {
	case StrategyHybridLexical:
		hits, err = s.searchHybridLexical(ctx, vec, query, k)
	case StrategyHybridTime:
		hits, err = s.searchHybridTime(ctx, vec, k)
	default:
		hits, err = s.searchSemantic(ctx, vec, k)
	}
	if err != nil {
		return nil, err
	}

	s.touch(hits)
	out := make([]string, len(hits))
	for i, r := range hits {
		out[i] = r.Content
	}
	return out, nil
}

// Similarity returns the maximum combined similarity of any stored record to
// text, weighted 0.7 semantic and 0.3 lexical. Used for dedup checks before
// writing near-identical memories.
func (s *Store) Similarity(ctx context.Context, text string) (float64, error) {
	if s.Count() == 0 {
		return 0, nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	res, err := s.queryVectors(ctx, vec, 1)
	if err != nil {
		return 0, err
	}
	var sem float64
	if len(res) > 0 {
		sem = similarityFromCosine(res[0].Similarity)
	}

	var lex float64
	s.mu.RLock()
	if s.lexical != nil {
		if hits := s.lexical.search(text, 1); len(hits) > 0 {
			// Raw BM25 is unbounded; squash into (0,1) with a logistic
			// centered at 5.
			lex = 1.0 / (1.0 + math.Exp(-0.5*(hits[0].score-5)))
		}
	}
	s.mu.RUnlock()

	return 0.7*sem + 0.3*lex, nil
}

// ExportAll returns every record as a table row, newest first.
func (s *Store) ExportAll() []ExportRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]ExportRow, 0, len(s.records))
	for _, r := range s.records {
		typ := r.Type
		if typ == "" {
			typ = "unknown"
		}
		rows = append(rows, ExportRow{
			Type:         typ,
			Content:      r.Content,
			AccessCount:  r.AccessCount,
			Timestamp:    r.Timestamp,
			LastAccessed: r.LastAccessed,
			ID:           r.ID,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Timestamp.After(rows[j].Timestamp)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// --- strategies ---

func (s *Store) searchSemantic(ctx context.Context, vec []float32, k int) ([]*Record, error) {
	res, err := s.queryVectors(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*Record, 0, len(res))
	for _, r := range res {
		if rec, ok := s.records[r.ID]; ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (s *Store) searchHybridTime(ctx context.Context, vec []float32, k int) ([]*Record, error) {
	res, err := s.queryVectors(ctx, vec, k*3)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   *Record
		score float64
	}
	now := time.Now()

	s.mu.RLock()
	candidates := make([]scored, 0, len(res))
	for _, r := range res {
		rec, ok := s.records[r.ID]
		if !ok {
			continue
		}
		sem := similarityFromCosine(r.Similarity)
		timeScore := 0.5
		if !rec.Timestamp.IsZero() {
			days := math.Floor(now.Sub(rec.Timestamp).Hours() / 24)
			if days < 0 {
				days = 0
			}
			timeScore = 1.0 / (1.0 + 0.1*days)
		}
		candidates = append(candidates, scored{rec: rec, score: 0.7*sem + 0.3*timeScore})
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	recs := make([]*Record, len(candidates))
	for i, c := range candidates {
		recs[i] = c.rec
	}
	return recs, nil
}

func (s *Store) searchHybridLexical(ctx context.Context, vec []float32, query string, k int) ([]*Record, error) {
	res, err := s.queryVectors(ctx, vec, k*4)
	if err != nil {
		return nil, err
	}

	type fused struct {
		rec *Record
		sem float64
		lex float64
	}

	s.mu.RLock()
	candidates := make(map[string]*fused)
	var semMax float64
	for _, r := range res {
		rec, ok := s.records[r.ID]
		if !ok {
			continue
		}
		sem := similarityFromCosine(r.Similarity)
		if sem > semMax {
			semMax = sem
		}
		candidates[r.ID] = &fused{rec: rec, sem: sem}
	}

	var lexMax float64
	if s.lexical != nil {
		for _, hit := range s.lexical.search(query, k*4) {
			if hit.index >= len(s.docIDs) {
				continue
			}
			id := s.docIDs[hit.index]
			if hit.score > lexMax {
				lexMax = hit.score
			}
			if c, ok := candidates[id]; ok {
				c.lex = hit.score
			} else if rec, ok := s.records[id]; ok {
				candidates[id] = &fused{rec: rec, lex: hit.score}
			}
		}
	}
	s.mu.RUnlock()

	type scored struct {
		rec   *Record
		score float64
		sem   float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		var normSem, normLex float64
		if semMax > 0 {
			normSem = c.sem / semMax
		}
		if lexMax > 0 {
			normLex = c.lex / lexMax
		}
		ranked = append(ranked, scored{rec: c.rec, score: 0.7*normSem + 0.3*normLex, sem: c.sem})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].sem > ranked[b].sem
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	recs := make([]*Record, len(ranked))
	for i, r := range ranked {
		recs[i] = r.rec
	}
	return recs, nil
}

// --- internals ---

// queryVectors clamps n to the collection size; chromem rejects n larger
// than the number of stored documents.
func (s *Store) queryVectors(ctx context.Context, vec []float32, n int) ([]chromem.Result, error) {
	if c := s.col.Count(); n > c {
		n = c
	}
	if n <= 0 {
		return nil, nil
	}
	res, err := s.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return res, nil
}

// similarityFromCosine maps chromem's cosine similarity onto 1/(1+d) over
// the cosine distance d = 1-cos, keeping scores in (0,1].
func similarityFromCosine(cos float32) float64 {
	d := 1 - float64(cos)
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}

// touch bumps access stats for returned records and persists in the
// background; a failed write only costs the stats.
func (s *Store) touch(recs []*Record) {
	if len(recs) == 0 {
		return
	}
	now := time.Now()
	s.mu.Lock()
	for _, r := range recs {
		r.AccessCount++
		r.LastAccessed = now
	}
	s.mu.Unlock()

	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.saveLocked(); err != nil {
			slog.Debug("access stats persist failed", "error", err)
		}
	}()
}

func (s *Store) rebuildLexicalLocked() {
	if len(s.records) == 0 {
		s.lexical = nil
		s.docIDs = nil
		return
	}
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	corpus := make([]string, len(ids))
	for i, id := range ids {
		corpus[i] = s.records[id].Content
	}
	s.docIDs = ids
	s.lexical = newBM25(corpus)
}

func (s *Store) load() error {
	f, err := os.Open(filepath.Join(s.dir, recordsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	defer f.Close()
	var recs []*Record
	if err := gob.NewDecoder(f).Decode(&recs); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return nil
}

func (s *Store) saveLocked() error {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	recs := make([]*Record, len(ids))
	for i, id := range ids {
		recs[i] = s.records[id]
	}

	tmp, err := os.CreateTemp(s.dir, ".records-*.tmp")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		tmp.Close()
		if !committed {
			os.Remove(tmp.Name())
		}
	}()
	if err := gob.NewEncoder(tmp).Encode(recs); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, recordsFile)); err != nil {
		return err
	}
	committed = true
	return nil
}
