package pipeline

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"advocate_dashboard/internal/models"
)

// MatchAll - значение фильтра статуса или тональности, пропускающее все статьи.
const MatchAll = "all"

// SortKey задаёт порядок выдачи.
type SortKey string

const (
	SortDateDesc  SortKey = "date-desc"
	SortDateAsc   SortKey = "date-asc"
	SortScoreDesc SortKey = "score-desc"
	SortScoreAsc  SortKey = "score-asc"
)

// ParseSortKey разбирает ключ сортировки; пустая строка означает сортировку по умолчанию.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortDateDesc, nil
	case SortDateDesc, SortDateAsc, SortScoreDesc, SortScoreAsc:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Criteria - условия фильтрации и сортировки. Нулевое значение пропускает все статьи
// и сортирует по дате публикации от новых к старым.
type Criteria struct {
	Search     string   `json:"search"`
	Status     string   `json:"status"`
	Industries []string `json:"industries"`
	Sentiment  string   `json:"sentiment"`
	Sort       SortKey  `json:"sort"`
}

// Normalize приводит пустые значения к явным и копирует срез индустрий.
func (c Criteria) Normalize() Criteria {
	out := c
	if isMatchAll(out.Status) {
		out.Status = MatchAll
	}
	if isMatchAll(out.Sentiment) {
		out.Sentiment = MatchAll
	}
	if out.Sort == "" {
		out.Sort = SortDateDesc
	}
	out.Industries = slices.Clone(c.Industries)
	if out.Industries == nil {
		out.Industries = []string{}
	}
	return out
}

// Match проверяет, проходит ли статья все активные фильтры.
func (c Criteria) Match(a models.Article) bool {
	if c.Search != "" && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(c.Search)) {
		return false
	}
	if !isMatchAll(c.Status) && string(a.Status) != c.Status {
		return false
	}
	if len(c.Industries) > 0 && !intersects(a.Industry, c.Industries) {
		return false
	}
	if !isMatchAll(c.Sentiment) && string(a.Sentiment) != c.Sentiment {
		return false
	}
	return true
}

// Apply возвращает новый срез статей, прошедших фильтры, в порядке c.Sort.
// Входной срез не изменяется, равные элементы сохраняют исходный порядок.
func Apply(articles []models.Article, c Criteria) []models.Article {
	type keyed struct {
		article models.Article
		date    float64
	}

	matched := make([]keyed, 0, len(articles))
	for _, a := range articles {
		if c.Match(a) {
			matched = append(matched, keyed{article: a, date: PublicationTime(a.PublicationDate)})
		}
	}

	var less func(x, y keyed) bool
	switch c.Sort {
	case SortDateAsc:
		less = func(x, y keyed) bool { return x.date < y.date }
	case SortScoreDesc:
		less = func(x, y keyed) bool { return x.article.RelevanceScore > y.article.RelevanceScore }
	case SortScoreAsc:
		less = func(x, y keyed) bool { return x.article.RelevanceScore < y.article.RelevanceScore }
	default:
		less = func(x, y keyed) bool { return x.date > y.date }
	}
	sort.SliceStable(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	out := make([]models.Article, len(matched))
	for i, k := range matched {
		out[i] = k.article
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// PublicationTime переводит дату публикации в Unix-миллисекунды.
// Пустые и нераспознанные даты дают -Inf, то есть считаются самыми старыми.
func PublicationTime(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.Inf(-1)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.UnixMilli())
		}
	}
	return math.Inf(-1)
}

// Industries возвращает отсортированный список уникальных индустрий для фильтра.
func Industries(articles []models.Article) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, a := range articles {
		for _, ind := range a.Industry {
			if _, ok := seen[ind]; ok {
				continue
			}
			seen[ind] = struct{}{}
			out = append(out, ind)
		}
	}
	sort.Strings(out)
	return out
}

func isMatchAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, MatchAll)
}

func intersects(values, selected []string) bool {
	for _, v := range values {
		if slices.Contains(selected, v) {
			return true
		}
	}
	return false
}
