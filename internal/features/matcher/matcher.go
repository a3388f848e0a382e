package matcher

import (
	"context"
	"sort"

	"gamevault/internal/catalog"
	"gamevault/internal/config"
	"gamevault/internal/normalize"
)

// Candidate is one ranked catalog match for a normalized title.
type Candidate struct {
	GameID      int     `json:"game_id"`
	Name        string  `json:"name"`
	PlatformIDs []int   `json:"platform_ids,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Verdict is the auto-accept policy outcome for a ranked candidate list.
type Verdict int

const (
	// VerdictNoMatch means nothing cleared the floor; the row goes to
	// manual review with no suggestion.
	VerdictNoMatch Verdict = iota
	// VerdictManualReview means there is a suggestion but it needs a human.
	VerdictManualReview
	// VerdictAutoMatch means the best candidate may be accepted without review.
	VerdictAutoMatch
)

type MatcherService interface {
	Match(ctx context.Context, normalizedTitle string) ([]Candidate, error)
	Evaluate(candidates []Candidate) Verdict
}

type MatcherServiceImpl struct {
	Catalog  catalog.Client
	PageSize int

	AutoAcceptThreshold float64
	TieEpsilon          float64
	MatchFloor          float64
}

func NewMatcherService(client catalog.Client, cfg *config.Config) MatcherService {
	return &MatcherServiceImpl{
		Catalog:             client,
		PageSize:            cfg.CatalogPageSize,
		AutoAcceptThreshold: cfg.AutoAcceptThreshold,
		TieEpsilon:          cfg.TieEpsilon,
		MatchFloor:          cfg.MatchFloor,
	}
}

// Match queries the catalog and ranks candidates by confidence. The order
// is deterministic: confidence descending, catalog id ascending on equal
// confidence, so ties always come back in the same order.
func (s *MatcherServiceImpl) Match(ctx context.Context, normalizedTitle string) ([]Candidate, error) {
	games, err := s.Catalog.SearchGames(ctx, normalizedTitle, s.PageSize)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(games))
	for _, g := range games {
		confidence := s.score(normalizedTitle, g)
		if confidence < s.MatchFloor {
			continue
		}
		candidates = append(candidates, Candidate{
			GameID:      g.ID,
			Name:        g.Name,
			PlatformIDs: g.PlatformIDs,
			Confidence:  confidence,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].GameID < candidates[j].GameID
	})

	return candidates, nil
}

// score implements the tiered matching policy: exact equality is 1.0,
// containment either direction scales the shared-token ratio into
// [0.5, 0.95], everything else scores zero and falls below the floor.
func (s *MatcherServiceImpl) score(query string, game catalog.Game) float64 {
	candidate := game.NormalizedName
	if candidate == "" {
		key, err := normalize.Normalize(game.Name)
		if err != nil {
			return 0
		}
		candidate = key
	}

	if candidate == query {
		return 1.0
	}

	if !containsTokens(candidate, query) && !containsTokens(query, candidate) {
		return 0
	}

	queryTokens := normalize.Tokens(query)
	candTokens := normalize.Tokens(candidate)

	shared := sharedTokenCount(queryTokens, candTokens)
	longer := len(queryTokens)
	if len(candTokens) > longer {
		longer = len(candTokens)
	}
	if longer == 0 {
		return 0
	}

	ratio := float64(shared) / float64(longer)
	return 0.5 + ratio*0.45
}

// Evaluate applies the auto-accept policy to an already-ranked list.
// Auto-match requires the best score to clear the threshold AND the
// runner-up to trail by more than the tie epsilon; two near-tied strong
// candidates are a manual review, never a confident guess.
func (s *MatcherServiceImpl) Evaluate(candidates []Candidate) Verdict {
	if len(candidates) == 0 {
		return VerdictNoMatch
	}

	best := candidates[0].Confidence
	if best < s.AutoAcceptThreshold {
		return VerdictManualReview
	}

	if len(candidates) > 1 && best-candidates[1].Confidence < s.TieEpsilon {
		return VerdictManualReview
	}

	return VerdictAutoMatch
}

// containsTokens reports whether the needle appears in the haystack on a
// whole-token boundary, so "mario" matches "super mario bros" but not
// "mariokart".
func containsTokens(haystack, needle string) bool {
	hs := normalize.Tokens(haystack)
	ns := normalize.Tokens(needle)
	if len(ns) == 0 || len(ns) > len(hs) {
		return false
	}
	for i := 0; i+len(ns) <= len(hs); i++ {
		match := true
		for j := range ns {
			if hs[i+j] != ns[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func sharedTokenCount(a, b []string) int {
	seen := make(map[string]int, len(a))
	for _, t := range a {
		seen[t]++
	}
	shared := 0
	for _, t := range b {
		if seen[t] > 0 {
			seen[t]--
			shared++
		}
	}
	return shared
}
