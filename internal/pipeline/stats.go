package pipeline

import (
	"sort"
	"strings"
	"time"

	"advocate_dashboard/internal/models"
)

const topIndustries = 3

// Stats - сводка по загруженным статьям.
type Stats struct {
	Total         int      `json:"total"`
	AnalyzedToday int      `json:"analyzed_today"`
	AverageScore  float64  `json:"average_score"`
	TopIndustries []string `json:"top_industries"`
}

// ComputeStats считает сводку. «Сегодня» определяется по дате публикации в UTC
// относительно now.
func ComputeStats(articles []models.Article, now time.Time) Stats {
	today := now.UTC().Format("2006-01-02")

	s := Stats{Total: len(articles), TopIndustries: []string{}}
	counts := make(map[string]int)
	var sum float64

	for _, a := range articles {
		sum += a.RelevanceScore
		if a.Status == models.StatusAnalyzed && publicationDay(a.PublicationDate) == today {
			s.AnalyzedToday++
		}
		for _, ind := range a.Industry {
			counts[ind]++
		}
	}
	if len(articles) > 0 {
		s.AverageScore = models.RoundTenth(sum / float64(len(articles)))
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > topIndustries {
		names = names[:topIndustries]
	}
	s.TopIndustries = append(s.TopIndustries, names...)
	return s
}

func publicationDay(s string) string {
	day, _, _ := strings.Cut(strings.TrimSpace(s), "T")
	return day
}
