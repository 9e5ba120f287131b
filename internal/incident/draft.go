package incident

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

// DraftConfig controls how incident titles and keyword digests are derived.
type DraftConfig struct {
	DefaultDistrictName string  `json:"default_district_name" yaml:"default_district_name"`
	FallbackKeyword     string  `json:"fallback_keyword" yaml:"fallback_keyword"`
	FallbackSummary     string  `json:"fallback_summary" yaml:"fallback_summary"`
	TopKeywords         int     `json:"top_keywords" yaml:"top_keywords"`
	TitleMaxRunes       int     `json:"title_max_runes" yaml:"title_max_runes"`
	FoundingLinkScore   float64 `json:"founding_link_score" yaml:"founding_link_score"`
}

// DefaultDraftConfig returns the default title settings.
func DefaultDraftConfig() DraftConfig {
	return DraftConfig{
		DefaultDistrictName: "서울시",
		FallbackKeyword:     "민원",
		FallbackSummary:     "내용 없음",
		TopKeywords:         5,
		TitleMaxRunes:       100,
		FoundingLinkScore:   0.95,
	}
}

var (
	titleJunk  = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// BuildDraft derives the incident for a group of founding members:
// "<district> <top keyword> 관련 <longest summary>", cleaned and capped, plus
// the most frequent keywords as digest.
func BuildDraft(members []*models.Fingerprint, cfg DraftConfig) *models.IncidentDraft {
	ranked := rankKeywords(members)

	top := cfg.FallbackKeyword
	if len(ranked) > 0 {
		top = ranked[0]
	}
	if n := cfg.TopKeywords; n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}

	districtID, districtName := dominantDistrict(members)
	if districtName == "" {
		districtName = cfg.DefaultDistrictName
	}

	summary := longestSummary(members)
	if summary == "" {
		summary = cfg.FallbackSummary
	}

	ids := make([]int64, len(members))
	for i, fp := range members {
		ids[i] = fp.ComplaintID
	}

	return &models.IncidentDraft{
		Title:      CleanTitle(fmt.Sprintf("%s %s 관련 %s", districtName, top, summary), cfg.TitleMaxRunes),
		Keywords:   strings.Join(ranked, ", "),
		DistrictID: districtID,
		MemberIDs:  ids,
		LinkScore:  cfg.FoundingLinkScore,
	}
}

// CleanTitle replaces punctuation with spaces, collapses whitespace and cuts
// the result to maxRunes runes (maxRunes <= 0 disables the cap).
func CleanTitle(s string, maxRunes int) string {
	s = titleJunk.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxRunes]))
	}
	return s
}

// rankKeywords orders keywords by frequency across members. Ties keep the
// order of first appearance.
func rankKeywords(members []*models.Fingerprint) []string {
	counts := make(map[string]int)
	var order []string
	for _, fp := range members {
		for _, k := range fp.Keywords {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if counts[k] == 0 {
				order = append(order, k)
			}
			counts[k]++
		}
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})
	return order
}

// dominantDistrict returns the most common known district among members.
func dominantDistrict(members []*models.Fingerprint) (*int64, string) {
	counts := make(map[int64]int)
	names := make(map[int64]string)
	var best *int64
	for _, fp := range members {
		if fp.DistrictID == nil {
			continue
		}
		id := *fp.DistrictID
		counts[id]++
		if names[id] == "" {
			names[id] = fp.DistrictName
		}
		if best == nil || counts[id] > counts[*best] {
			v := id
			best = &v
		}
	}
	if best == nil {
		for _, fp := range members {
			if fp.DistrictName != "" {
				return nil, fp.DistrictName
			}
		}
		return nil, ""
	}
	return best, names[*best]
}

func longestSummary(members []*models.Fingerprint) string {
	var best string
	bestLen := 0
	for _, fp := range members {
		s := strings.TrimSpace(fp.CoreSummary)
		if n := utf8.RuneCountInString(s); n > bestLen {
			best, bestLen = s, n
		}
	}
	return best
}
