package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/nanobook/nanobook/internal/rag"
	"github.com/nanobook/nanobook/internal/vectorstore"
)

// StubEmbedder produces deterministic embeddings for testing. A vector can
// be pinned per exact text via Set; any other text gets a unit vector
// derived from its hash, so identical texts always embed identically.
//
// Thread-safe for concurrent use.
type StubEmbedder struct {
	mu     sync.Mutex
	pinned map[string][]float32
	failOn []string
	calls  []string
}

// NewStubEmbedder creates an empty stub embedder.
func NewStubEmbedder() *StubEmbedder {
	return &StubEmbedder{pinned: make(map[string][]float32)}
}

// Set pins the vector returned for an exact text. The vector is padded or
// truncated to the collection dimension.
func (e *StubEmbedder) Set(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	padded := make([]float32, vectorstore.Dimension)
	copy(padded, vec)
	e.pinned[text] = padded
}

// FailOn makes Embed return an error for any text containing substr.
func (e *StubEmbedder) FailOn(substr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn = append(e.failOn, substr)
}

// Calls returns a copy of every text embedded so far.
func (e *StubEmbedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.calls))
	copy(cp, e.calls)
	return cp
}

func (e *StubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)

	for _, substr := range e.failOn {
		if strings.Contains(text, substr) {
			return nil, &StubError{Op: "embed", Text: text}
		}
	}
	if vec, ok := e.pinned[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	return hashVector(text), nil
}

// hashVector derives a unit vector from the text's SHA-256 digest, expanded
// with counter-mode rehashing to fill the collection dimension.
func hashVector(text string) []float32 {
	vec := make([]float32, vectorstore.Dimension)
	var counter [8]byte
	var norm float64
	i := 0
	for i < len(vec) {
		binary.BigEndian.PutUint64(counter[:], uint64(i))
		sum := sha256.Sum256(append([]byte(text), counter[:]...))
		for off := 0; off+4 <= len(sum) && i < len(vec); off += 4 {
			bits := binary.BigEndian.Uint32(sum[off : off+4])
			v := float32(int32(bits)) / float32(math.MaxInt32)
			vec[i] = v
			norm += float64(v) * float64(v)
			i++
		}
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// StubCompleter returns a fixed completion, or an error when Err is set.
type StubCompleter struct {
	mu       sync.Mutex
	Response string
	Err      error
	prompts  []string
}

func (c *StubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.Err != nil {
		return "", c.Err
	}
	return c.Response, nil
}

// Prompts returns a copy of every prompt received.
func (c *StubCompleter) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(c.prompts))
	copy(cp, c.prompts)
	return cp
}

// StubChatCall records a single generation request.
type StubChatCall struct {
	System  string
	History []rag.Turn
	Prompt  string
}

// StubChatModel returns a fixed answer, or an error when Err is set, and
// records every call for assertion.
type StubChatModel struct {
	mu       sync.Mutex
	Response string
	Err      error
	calls    []StubChatCall
}

func (m *StubChatModel) Generate(_ context.Context, system string, history []rag.Turn, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, StubChatCall{System: system, History: history, Prompt: prompt})
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Calls returns a copy of all recorded generation requests.
func (m *StubChatModel) Calls() []StubChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]StubChatCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// StubScorer scores texts by registered value (default 0), or fails when
// Err is set.
type StubScorer struct {
	mu     sync.Mutex
	scores map[string]float32
	Err    error
}

// NewStubScorer creates an empty stub scorer.
func NewStubScorer() *StubScorer {
	return &StubScorer{scores: make(map[string]float32)}
}

// Set pins the relevance score returned for an exact text.
func (s *StubScorer) Set(text string, score float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[text] = score
}

func (s *StubScorer) Score(_ context.Context, _ string, texts []string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]float32, len(texts))
	for i, t := range texts {
		out[i] = s.scores[t]
	}
	return out, nil
}

// StubError marks a deliberate stub failure.
type StubError struct {
	Op   string
	Text string
}

func (e *StubError) Error() string {
	return "stub " + e.Op + " failure for " + e.Text
}
