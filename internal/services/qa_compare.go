package services

import (
	"strings"
	"unicode/utf8"

	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

// ContentOverlap is the Jaccard similarity of the lowercase whitespace-separated word sets.
func ContentOverlap(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// LengthRatio is min(len)/max(len) in runes.
func LengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	return float64(min(la, lb)) / float64(max(la, lb))
}

// FormatMatch scores plain text output at 1.0 and every other format at 0.8.
func FormatMatch(format string) float64 {
	if format == models.OutputFormatText {
		return 1
	}
	return 0.8
}

func Verdict(score float64, th platformconfig.SimilarityThresholds) string {
	switch {
	case score >= th.Pass:
		return models.VerdictPass
	case score >= th.Flag:
		return models.VerdictFlag
	default:
		return models.VerdictFail
	}
}

// Score compares output against reference and returns the averaged similarity,
// its dimensions and the verdict.
func Score(output models.TaskOutput, reference string, th platformconfig.SimilarityThresholds) (float64, models.QADimensions, string) {
	dims := models.QADimensions{
		ContentOverlap: ContentOverlap(output.Content, reference),
		LengthRatio:    LengthRatio(output.Content, reference),
		FormatMatch:    FormatMatch(output.Format),
	}
	avg := (dims.ContentOverlap + dims.LengthRatio + dims.FormatMatch) / 3
	return avg, dims, Verdict(avg, th)
}
