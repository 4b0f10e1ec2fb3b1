package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bull/knowledge-rag/internal/chunker"
)

const (
	// DefaultGroupSize is the number of concurrent provider calls per batch group.
	DefaultGroupSize = 5

	// DefaultGroupDelay is the pause between batch groups.
	DefaultGroupDelay = time.Second

	// DefaultMaxInputChars caps the text sent per call.
	DefaultMaxInputChars = 8000

	// DefaultCacheSize is the number of single embeddings kept in memory.
	DefaultCacheSize = 256

	// DefaultRetryMaxElapsed bounds retries of rate-limited calls.
	DefaultRetryMaxElapsed = 30 * time.Second
)

// Config tunes an Embedder. Zero values select the defaults; a negative
// GroupDelay removes the pause between groups and a negative CacheSize
// disables the cache.
type Config struct {
	GroupSize       int
	GroupDelay      time.Duration
	MaxInputChars   int
	CacheSize       int
	RetryMaxElapsed time.Duration
}

// Embedder turns text into vectors through a Provider. Single embeddings
// are cached; batches are sent in fixed-size concurrent groups with a pause
// between groups. Rate-limited calls (HTTP 429) are retried with exponential
// backoff; any other failure is final for that item.
type Embedder struct {
	provider     Provider
	cfg          Config
	cache        *lru.Cache[string, *Embedding]
	tokens       *TokenCounter
	logger       *slog.Logger
	retryInitial time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewEmbedder creates an Embedder. tokens may be nil; it is used only when
// the provider reports no usage.
func NewEmbedder(provider Provider, cfg Config, tokens *TokenCounter, logger *slog.Logger) (*Embedder, error) {
	if provider == nil {
		return nil, ErrMissingAPIKey
	}
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	switch {
	case cfg.GroupDelay == 0:
		cfg.GroupDelay = DefaultGroupDelay
	case cfg.GroupDelay < 0:
		cfg.GroupDelay = 0
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = DefaultRetryMaxElapsed
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Embedder{
		provider:     provider,
		cfg:          cfg,
		tokens:       tokens,
		logger:       logger,
		retryInitial: 500 * time.Millisecond,
		sleep:        sleepContext,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, *Embedding](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// Model returns the provider's model name.
func (e *Embedder) Model() string { return e.provider.Model() }

// PrepareText collapses whitespace runs, trims, and caps text at maxChars
// characters.
func PrepareText(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = strings.TrimSpace(string([]rune(text)[:maxChars]))
	}
	return text
}

// Embed returns the embedding of text. Provider errors and malformed
// responses are returned, never replaced by a zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	input := PrepareText(text, e.cfg.MaxInputChars)
	if input == "" {
		return nil, ErrEmptyInput
	}

	key := e.provider.Model() + "\x00" + input
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached, nil
		}
	}

	emb, err := e.embedWithRetry(ctx, input)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Add(key, emb)
	}
	return emb, nil
}

// ChunkError records why a chunk has no embedding.
type ChunkError struct {
	ChunkID string
	Index   int
	Err     error
}

// BatchResult holds the outcome of EmbedBatch. Every input chunk is either
// in Embeddings or in Failures.
type BatchResult struct {
	Embeddings map[string]*Embedding // by chunk id
	Failures   []ChunkError          // in chunk order
}

// Succeeded returns the number of embedded chunks.
func (r *BatchResult) Succeeded() int { return len(r.Embeddings) }

// FirstError returns the first failure, or nil.
func (r *BatchResult) FirstError() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[0].Err
}

// EmbedBatch embeds chunks in groups of Config.GroupSize. Calls within a
// group run concurrently and the group completes when all of them have
// returned. A failed chunk is recorded in Failures and does not affect
// other chunks. Cancelling ctx fails the chunks not yet sent.
func (e *Embedder) EmbedBatch(ctx context.Context, chunks []chunker.Chunk) *BatchResult {
	result := &BatchResult{Embeddings: make(map[string]*Embedding, len(chunks))}

	for start := 0; start < len(chunks); start += e.cfg.GroupSize {
		end := min(start+e.cfg.GroupSize, len(chunks))

		if start > 0 {
			if err := e.sleep(ctx, e.cfg.GroupDelay); err != nil {
				for _, ch := range chunks[start:] {
					result.Failures = append(result.Failures, ChunkError{ChunkID: ch.ID, Index: ch.Index, Err: err})
				}
				break
			}
		}

		group := chunks[start:end]
		embeddings := make([]*Embedding, len(group))
		errs := make([]error, len(group))

		var g errgroup.Group
		for i, ch := range group {
			g.Go(func() error {
				input := PrepareText(ch.Content, e.cfg.MaxInputChars)
				if input == "" {
					errs[i] = ErrEmptyInput
					return nil
				}
				embeddings[i], errs[i] = e.embedWithRetry(ctx, input)
				return nil
			})
		}
		g.Wait()

		for i, ch := range group {
			if errs[i] != nil {
				e.logger.Warn("Failed to embed chunk", "chunk_id", ch.ID, "error", errs[i])
				result.Failures = append(result.Failures, ChunkError{ChunkID: ch.ID, Index: ch.Index, Err: errs[i]})
				continue
			}
			result.Embeddings[ch.ID] = embeddings[i]
		}

		e.logger.Debug("Embedded batch group",
			"group_start", start, "group_size", len(group), "embedded", result.Succeeded())
	}

	return result
}

// embedWithRetry calls the provider, retrying only rate-limit errors.
func (e *Embedder) embedWithRetry(ctx context.Context, input string) (*Embedding, error) {
	var emb *Embedding

	operation := func() error {
		out, err := e.provider.CreateEmbedding(ctx, input)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if out == nil || len(out.Vector) == 0 {
			return backoff.Permanent(&ProviderError{Err: fmt.Errorf("%w: empty vector", ErrMalformedResponse)})
		}
		emb = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = e.cfg.RetryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	if emb.Model == "" {
		emb.Model = e.provider.Model()
	}
	if emb.TokenCount == 0 && e.tokens != nil {
		emb.TokenCount = e.tokens.Count(input)
	}
	return emb, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
