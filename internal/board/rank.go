package board

import (
	"cmp"
	"slices"
	"strings"

	"github.com/garnizeh/recboard/pkg/models"
)

// Rank returns recs in display order: accepted first, then by helpful votes
// (descending), then most recent first. The id breaks any remaining tie so the
// order is total. Votes are counted from VotedBy, never from HelpfulCount.
// The input slice is not modified.
func Rank(recs []models.Recommendation) []models.Recommendation {
	out := slices.Clone(recs)
	slices.SortStableFunc(out, compare)
	return out
}

func compare(a, b models.Recommendation) int {
	if a.IsAccepted != b.IsAccepted {
		if a.IsAccepted {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(len(b.VotedBy), len(a.VotedBy)); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
