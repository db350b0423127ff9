package dashboard

import (
	"slices"
	"sort"

	"advocate_dashboard/internal/models"
	"advocate_dashboard/internal/pipeline"
)

// View - снимок состояния для отображения. Срезы в снимке принадлежат вызывающему.
type View struct {
	State      State              `json:"state"`
	Error      string             `json:"error,omitempty"`
	Notice     string             `json:"notice,omitempty"`
	Filtering  bool               `json:"filtering"`
	Criteria   pipeline.Criteria  `json:"criteria"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
	Matches    int                `json:"matches"`
	Articles   []models.Article   `json:"articles"`
	Industries []string           `json:"industries"`
	Updating   []string           `json:"updating"`
	Stats      pipeline.Stats     `json:"stats"`
	Metrics    *models.RunMetrics `json:"metrics"`
}

// View возвращает снимок текущей страницы.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	page := pipeline.Paginate(c.filtered, c.pageSize, c.page)
	for i := range page.Items {
		page.Items[i] = page.Items[i].Clone()
	}

	// ошибка загрузки важнее ошибки отдельной модерации
	errMsg := c.errMsg
	if errMsg == "" {
		errMsg = c.mutErr
	}

	criteria := c.criteria
	criteria.Industries = slices.Clone(c.criteria.Industries)

	updating := make([]string, 0, len(c.updating))
	for id := range c.updating {
		updating = append(updating, id)
	}
	sort.Strings(updating)

	var runMetrics *models.RunMetrics
	if c.runMetrics != nil {
		m := *c.runMetrics
		runMetrics = &m
	}

	return View{
		State:      c.state,
		Error:      errMsg,
		Notice:     c.notice,
		Filtering:  c.filtering,
		Criteria:   criteria,
		Page:       c.page,
		PageSize:   c.pageSize,
		TotalPages: page.TotalPages,
		Matches:    len(c.filtered),
		Articles:   page.Items,
		Industries: pipeline.Industries(c.articles),
		Updating:   updating,
		Stats:      pipeline.ComputeStats(c.articles, c.clock.Now()),
		Metrics:    runMetrics,
	}
}
