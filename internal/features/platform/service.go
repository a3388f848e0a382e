package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"gamevault/internal/catalog"
	"gamevault/internal/config"
)

// cacheName is the fixed key the persisted index lives under.
const cacheName = "platform_index"

type PlatformService interface {
	// Resolve maps a user-supplied platform string to a catalog platform.
	// A nil result with nil error means no match.
	Resolve(ctx context.Context, text string) (*Resolution, error)
	// Options exposes the full index sorted by display name.
	Options(ctx context.Context) ([]Option, error)
	// Refresh refetches the taxonomy when the cached index is stale.
	Refresh(ctx context.Context) error
}

type PlatformServiceImpl struct {
	Catalog catalog.Client
	Cache   IndexCache
	TTL     time.Duration

	mu       sync.RWMutex
	index    map[int]string
	loadedAt time.Time
}

func NewPlatformService(client catalog.Client, cache IndexCache, cfg *config.Config) PlatformService {
	return &PlatformServiceImpl{
		Catalog: client,
		Cache:   cache,
		TTL:     cfg.PlatformCacheTTL,
	}
}

func (s *PlatformServiceImpl) Resolve(ctx context.Context, text string) (*Resolution, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	index, err := s.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}

	// Deterministic iteration: ascending id, first hit wins per tier
	ids := make([]int, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	query := squash(text)

	// Tier 1: exact, case-insensitive. The display name, its squashed
	// form and the derived abbreviation all count as exact, so "ps5"
	// resolves "PlayStation 5" at full confidence.
	for _, id := range ids {
		name := index[id]
		if strings.EqualFold(name, text) || query == squash(name) || query == abbreviate(name) {
			return &Resolution{ID: id, Name: name, Confidence: 1.0}, nil
		}
	}

	// Tier 2: containment either direction on the squashed forms, so
	// "play station" still lands on "PlayStation 5".
	for _, id := range ids {
		name := squash(index[id])
		if strings.Contains(name, query) || strings.Contains(query, name) {
			return &Resolution{ID: id, Name: index[id], Confidence: 0.8}, nil
		}
	}

	return nil, nil
}

// squash lower-cases and drops everything but letters and digits.
func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// abbreviate derives the common short form of a platform name from word
// initials, camel-case humps and digit runs: "PlayStation 5" -> "ps5",
// "Nintendo Switch" -> "ns".
func abbreviate(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		runes := []rune(word)
		if unicode.IsDigit(runes[0]) {
			b.WriteString(strings.ToLower(word))
			continue
		}
		for i, r := range runes {
			if i == 0 || unicode.IsUpper(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToLower(r))
			}
		}
	}
	return b.String()
}

func (s *PlatformServiceImpl) Options(ctx context.Context) ([]Option, error) {
	index, err := s.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}

	options := make([]Option, 0, len(index))
	for id, name := range index {
		options = append(options, Option{ID: id, Name: name})
	}
	sort.Slice(options, func(i, j int) bool {
		if options[i].Name != options[j].Name {
			return options[i].Name < options[j].Name
		}
		return options[i].ID < options[j].ID
	})
	return options, nil
}

func (s *PlatformServiceImpl) Refresh(ctx context.Context) error {
	s.mu.RLock()
	fresh := s.index != nil && time.Since(s.loadedAt) < s.TTL
	s.mu.RUnlock()
	if fresh {
		return nil
	}
	_, err := s.fetchAndStore(ctx)
	return err
}

// ensureIndex returns the in-memory index, falling back to the persisted
// cache and finally the catalog service. The persisted copy is considered
// valid for the TTL window from its stored timestamp.
func (s *PlatformServiceImpl) ensureIndex(ctx context.Context) (map[int]string, error) {
	s.mu.RLock()
	if s.index != nil && time.Since(s.loadedAt) < s.TTL {
		index := s.index
		s.mu.RUnlock()
		return index, nil
	}
	s.mu.RUnlock()

	data, storedAt, err := s.Cache.Get(ctx, cacheName)
	if err == nil && time.Since(storedAt) < s.TTL {
		s.mu.Lock()
		s.index = data
		s.loadedAt = storedAt
		s.mu.Unlock()
		return data, nil
	}

	return s.fetchAndStore(ctx)
}

func (s *PlatformServiceImpl) fetchAndStore(ctx context.Context) (map[int]string, error) {
	families, err := s.Catalog.GetPlatformTaxonomy(ctx)
	if err != nil {
		return nil, err
	}

	index, err := buildIndex(families)
	if err != nil {
		return nil, err
	}

	// Cache write failures are non-fatal; next process refetches
	_ = s.Cache.Put(ctx, cacheName, index)

	s.mu.Lock()
	s.index = index
	s.loadedAt = time.Now()
	s.mu.Unlock()

	return index, nil
}

// buildIndex flattens the taxonomy and enforces that identifiers are
// unique across the whole taxonomy, not just within a family.
func buildIndex(families []catalog.ParentPlatform) (map[int]string, error) {
	index := make(map[int]string)
	for _, family := range families {
		for _, p := range family.Platforms {
			if existing, ok := index[p.ID]; ok {
				return nil, fmt.Errorf("platform id %d duplicated across taxonomy (%q and %q)", p.ID, existing, p.Name)
			}
			index[p.ID] = p.Name
		}
	}
	return index, nil
}
