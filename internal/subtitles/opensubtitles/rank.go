package opensubtitles

import (
	"cmp"
	"slices"
)

// Rank orders candidates best first: trusted uploads, then rating, then
// download count. The input is not modified.
func Rank(candidates []Subtitle) []Subtitle {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b Subtitle) int {
		if a.Trusted != b.Trusted {
			if a.Trusted {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		return cmp.Compare(b.Downloads, a.Downloads)
	})
	return ranked
}

// Best returns the top ranked candidate that has a downloadable file.
func Best(candidates []Subtitle) (Subtitle, bool) {
	for _, candidate := range Rank(candidates) {
		if candidate.FileID > 0 {
			return candidate, true
		}
	}
	return Subtitle{}, false
}
