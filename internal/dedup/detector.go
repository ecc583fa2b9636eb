// Package dedup detects whether a requested schema element collides with
// an existing catalog entry.
//
// Exact normalized-name matches are unambiguous duplicates and block the
// request. Near matches above the similarity threshold are surfaced as
// advisory findings only: legitimate near-synonyms exist ("Customer ID"
// vs "Customer Id #") and need human judgment.
package dedup

import (
	"strings"

	"github.com/fyrsmithlabs/fieldgov/internal/catalog"
	"github.com/fyrsmithlabs/fieldgov/internal/schema"
)

// Verdict classifies a collision check.
type Verdict string

const (
	// NoCollision means the name is clear to create.
	NoCollision Verdict = "no_collision"

	// LikelyDuplicate means a catalog entry is similar above the
	// configured threshold. Advisory, not auto-blocking.
	LikelyDuplicate Verdict = "likely_duplicate"

	// Duplicate means an exact normalized-name match exists. Blocking.
	Duplicate Verdict = "duplicate"
)

// Collision is the result of one check.
type Collision struct {
	Verdict Verdict

	// Match is the colliding catalog entry for Duplicate and
	// LikelyDuplicate verdicts.
	Match *schema.Element

	// Similarity is the normalized edit-distance score against Match
	// (1.0 for exact duplicates).
	Similarity float64

	// NormalizedName is the canonical form of the requested name.
	NormalizedName string
}

// Detector checks requested names against catalog snapshots.
type Detector struct {
	threshold float64
}

// NewDetector creates a detector with the given near-duplicate threshold.
func NewDetector(threshold float64) *Detector {
	return &Detector{threshold: threshold}
}

// Check compares the requested name against every entry in the snapshot.
//
// When multiple entries tie for highest similarity, the one with the
// lexicographically smallest normalized name is reported so the verdict
// is deterministic across runs.
func (d *Detector) Check(req schema.ElementRequest, snap *catalog.Snapshot) Collision {
	normalized := schema.Normalize(req.Name)
	result := Collision{Verdict: NoCollision, NormalizedName: normalized}

	if normalized == "" {
		return result
	}

	if match, ok := snap.Lookup(normalized); ok {
		result.Verdict = Duplicate
		result.Match = match
		result.Similarity = 1.0
		return result
	}

	var best *schema.Element
	bestScore := 0.0
	for i := range snap.Elements {
		candidate := &snap.Elements[i]
		score := similarity(normalized, candidate.NormalizedName)
		if score > bestScore ||
			(score == bestScore && best != nil && candidate.NormalizedName < best.NormalizedName) {
			best = candidate
			bestScore = score
		}
	}

	if best != nil && bestScore >= d.threshold {
		result.Verdict = LikelyDuplicate
		result.Match = best
		result.Similarity = bestScore
	}

	return result
}

// similarity computes normalized Levenshtein distance between two
// normalized names. Returns a value between 0.0 (completely different)
// and 1.0 (identical). Distance and length are measured in runes so
// non-ASCII letters count as one edit, not one per byte.
func similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}

	distance := levenshtein(r1, r2)
	maxLen := max(len(r1), len(r2))
	return 1.0 - float64(distance)/float64(maxLen)
}

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(s1, s2 string) int {
	return levenshtein([]rune(s1), []rune(s2))
}

func levenshtein(r1, r2 []rune) int {
	len1, len2 := len(r1), len(r2)
	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}

	prev := make([]int, len2+1)
	curr := make([]int, len2+1)
	for j := 0; j <= len2; j++ {
		prev[j] = j
	}

	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len2]
}

// Describe renders a collision for findings and comments.
func (c Collision) Describe() string {
	switch c.Verdict {
	case Duplicate:
		return "duplicate of existing field " + strings.TrimSpace(c.Match.Name)
	case LikelyDuplicate:
		return "likely duplicate of existing field " + strings.TrimSpace(c.Match.Name)
	}
	return "no collision"
}
