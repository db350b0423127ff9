package dashboard_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"advocate_dashboard/internal/airtable"
	"advocate_dashboard/internal/dashboard"
	"advocate_dashboard/internal/models"
	"advocate_dashboard/internal/pipeline"

	"github.com/stretchr/testify/require"
)

type fakeTable struct {
	mu        sync.Mutex
	configErr error
	records   []models.RawRecord
	metrics   *models.RawRecord
	listErr   error
	metricErr error
	listCalls int

	list  func(ctx context.Context) ([]models.RawRecord, error)
	patch func(ctx context.Context, id string, status models.Status) (models.RawRecord, error)
}

func (f *fakeTable) CheckConfig() error {
	return f.configErr
}

func (f *fakeTable) ListAll(ctx context.Context) ([]models.RawRecord, error) {
	f.mu.Lock()
	f.listCalls++
	list := f.list
	f.mu.Unlock()

	if list != nil {
		return list(ctx)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeTable) LatestRunMetrics(ctx context.Context) (*models.RawRecord, error) {
	return f.metrics, f.metricErr
}

func (f *fakeTable) PatchStatus(ctx context.Context, id string, status models.Status) (models.RawRecord, error) {
	if f.patch != nil {
		return f.patch(ctx, id, status)
	}
	for _, rec := range f.records {
		if rec.ID == id {
			fields := maps.Clone(rec.Fields)
			fields["Status"] = string(status)
			fields["AI_Summary"] = "refreshed by server"
			return models.RawRecord{ID: id, Fields: fields}, nil
		}
	}
	return models.RawRecord{}, &airtable.Error{Kind: airtable.KindNotFound, Status: 404}
}

func (f *fakeTable) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type recordingJournal struct {
	mu        sync.Mutex
	decisions []models.ReviewDecision
}

func (j *recordingJournal) SaveDecision(ctx context.Context, d models.ReviewDecision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, d)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ReviewEvent
	err    error
}

func (p *recordingPublisher) PublishReview(ctx context.Context, e models.ReviewEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func rawArticles(n int) []models.RawRecord {
	out := make([]models.RawRecord, n)
	for i := range out {
		out[i] = models.RawRecord{
			ID: fmt.Sprintf("rec%02d", i),
			Fields: map[string]any{
				"Title":            fmt.Sprintf("Article %02d", i),
				"Publication_Date": fmt.Sprintf("2025-01-%02dT09:00:00Z", i+1),
				"Relevance_Score":  float64(i % 10),
				"Industry":         []any{fmt.Sprintf("Industry %d", i%3)},
				"Status":           "Analyzed",
			},
		}
	}
	return out
}

var epoch = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

func newController(t *testing.T, table *fakeTable, opts ...func(*dashboard.Options)) (*dashboard.Controller, *dashboard.FakeClock) {
	t.Helper()
	clock := dashboard.NewFakeClock(epoch)
	o := dashboard.Options{
		PageSize:  9,
		Debounce:  300 * time.Millisecond,
		NoticeTTL: 3 * time.Second,
		Clock:     clock,
	}
	for _, fn := range opts {
		fn(&o)
	}
	c := dashboard.New(table, o)
	t.Cleanup(c.Close)
	return c, clock
}

func TestLoad(t *testing.T) {
	table := &fakeTable{
		records: rawArticles(12),
		metrics: &models.RawRecord{ID: "run", Fields: map[string]any{"Total_Articles_Fetched": 12.0, "Top_Industry": "Industry 0"}},
	}
	c, _ := newController(t, table)

	require.Equal(t, dashboard.StateIdle, c.View().State)
	require.NoError(t, c.Load(context.Background()))

	v := c.View()
	require.Equal(t, dashboard.StateReady, v.State)
	require.Empty(t, v.Error)
	require.Equal(t, 12, v.Matches)
	require.Equal(t, 2, v.TotalPages)
	require.Equal(t, 1, v.Page)
	require.Len(t, v.Articles, 9)
	// по умолчанию сначала самые свежие
	require.Equal(t, "rec11", v.Articles[0].ID)
	require.Equal(t, []string{"Industry 0", "Industry 1", "Industry 2"}, v.Industries)
	require.Equal(t, 12, v.Stats.Total)
	require.NotNil(t, v.Metrics)
	require.Equal(t, 12, v.Metrics.TotalFetched)

	require.Equal(t, 2, c.SetPage(2))
	require.Len(t, c.View().Articles, 3)
}

func TestLoad_MetricsAbsent(t *testing.T) {
	testCases := []struct {
		name  string
		table *fakeTable
	}{
		{name: "missing table", table: &fakeTable{records: rawArticles(4)}},
		{name: "metrics error", table: &fakeTable{records: rawArticles(4), metricErr: &airtable.Error{Kind: airtable.KindAPI, Status: 500}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newController(t, tc.table)
			require.NoError(t, c.Load(context.Background()))

			v := c.View()
			require.Equal(t, dashboard.StateReady, v.State)
			require.Empty(t, v.Error)
			require.Equal(t, 4, v.Matches)
			require.Nil(t, v.Metrics)
		})
	}
}

func TestLoad_Failure(t *testing.T) {
	table := &fakeTable{records: rawArticles(3)}
	c, _ := newController(t, table)
	require.NoError(t, c.Load(context.Background()))

	table.listErr = &airtable.Error{Kind: airtable.KindAuth, Status: 401}
	err := c.Load(context.Background())
	require.Error(t, err)

	v := c.View()
	require.Equal(t, dashboard.StateFailed, v.State)
	require.Contains(t, v.Error, "401")
	// прежний набор остаётся на экране
	require.Equal(t, 3, v.Matches)
}

func TestLoad_ConfigErrorSkipsNetwork(t *testing.T) {
	table := &fakeTable{configErr: airtable.NewConfigError([]string{"AIRTABLE_API_KEY"})}
	c, _ := newController(t, table)

	err := c.Load(context.Background())
	require.Equal(t, airtable.KindConfig, airtable.KindOf(err))
	require.Zero(t, table.calls())

	v := c.View()
	require.Equal(t, dashboard.StateFailed, v.State)
	require.Contains(t, v.Error, "AIRTABLE_API_KEY")
}

func TestLoad_IsRepeatable(t *testing.T) {
	table := &fakeTable{records: rawArticles(5)}
	c, _ := newController(t, table)

	require.NoError(t, c.Load(context.Background()))
	table.records = rawArticles(2)
	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.Load(context.Background()))

	v := c.View()
	require.Equal(t, 2, v.Matches)
	require.Equal(t, 3, table.calls())
}

func TestLoad_SupersededResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	first := true

	table := &fakeTable{}
	table.list = func(ctx context.Context) ([]models.RawRecord, error) {
		table.mu.Lock()
		isFirst := first
		first = false
		table.mu.Unlock()

		if isFirst {
			close(started)
			<-release
			return rawArticles(10), nil
		}
		return rawArticles(2), nil
	}
	c, _ := newController(t, table)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	<-started

	require.NoError(t, c.Load(context.Background()))
	close(release)
	require.NoError(t, <-done)

	require.Equal(t, 2, c.View().Matches)
}

func TestLoad_AfterCloseDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	table := &fakeTable{}
	table.list = func(ctx context.Context) ([]models.RawRecord, error) {
		close(started)
		<-release
		return rawArticles(5), nil
	}
	c, _ := newController(t, table)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	<-started

	c.Close()
	close(release)
	require.NoError(t, <-done)

	require.Zero(t, c.View().Matches)
	require.ErrorIs(t, c.Load(context.Background()), dashboard.ErrClosed)
}

func TestSetCriteria_Debounced(t *testing.T) {
	c, clock := newController(t, &fakeTable{records: rawArticles(12)})
	require.NoError(t, c.Load(context.Background()))
	c.SetPage(2)

	require.NoError(t, c.SetCriteria(pipeline.Criteria{Search: "Article 0"}))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, c.SetCriteria(pipeline.Criteria{Search: "Article 1"}))
	clock.Advance(200 * time.Millisecond)

	// пересчёт ещё не выполнен: прежние результаты на месте
	v := c.View()
	require.True(t, v.Filtering)
	require.Equal(t, 12, v.Matches)
	require.Equal(t, 2, v.Page)
	require.Len(t, v.Articles, 3)
	require.Equal(t, "Article 1", v.Criteria.Search)
	require.Equal(t, 1, clock.Pending())

	clock.Advance(100 * time.Millisecond)

	v = c.View()
	require.False(t, v.Filtering)
	require.Equal(t, 2, v.Matches) // Article 10 и 11
	require.Equal(t, 1, v.Page)
	require.Equal(t, 0, clock.Pending())
}

func TestSetCriteria_SortAndFilters(t *testing.T) {
	c, clock := newController(t, &fakeTable{records: rawArticles(12)})
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.SetCriteria(pipeline.Criteria{
		Industries: []string{"Industry 1"},
		Status:     "Analyzed",
		Sort:       pipeline.SortScoreAsc,
	}))
	clock.Advance(300 * time.Millisecond)

	v := c.View()
	require.Equal(t, 4, v.Matches)
	ids := []string{}
	for _, a := range v.Articles {
		ids = append(ids, a.ID)
	}
	require.Equal(t, []string{"rec10", "rec01", "rec04", "rec07"}, ids)
}

func TestSetCriteria_InvalidSort(t *testing.T) {
	c, clock := newController(t, &fakeTable{})
	require.Error(t, c.SetCriteria(pipeline.Criteria{Sort: "by-title"}))
	require.Zero(t, clock.Pending())
}

func TestSetCriteria_NoDebounce(t *testing.T) {
	c, _ := newController(t, &fakeTable{records: rawArticles(12)}, func(o *dashboard.Options) {
		o.Debounce = 0
	})
	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.SetCriteria(pipeline.Criteria{Search: "Article 05"}))

	v := c.View()
	require.False(t, v.Filtering)
	require.Equal(t, 1, v.Matches)
}

func TestSetPage_Clamped(t *testing.T) {
	c, _ := newController(t, &fakeTable{records: rawArticles(12)})
	require.Equal(t, 1, c.SetPage(5))

	require.NoError(t, c.Load(context.Background()))
	require.Equal(t, 2, c.SetPage(5))
	require.Equal(t, 1, c.SetPage(0))
	require.Equal(t, 1, c.SetPage(-3))
}

func TestMutateStatus(t *testing.T) {
	journal := &recordingJournal{}
	publisher := &recordingPublisher{}
	table := &fakeTable{records: rawArticles(3)}
	c, clock := newController(t, table, func(o *dashboard.Options) {
		o.Journal = journal
		o.Publisher = publisher
	})
	require.NoError(t, c.Load(context.Background()))

	updated, err := c.MutateStatus(context.Background(), "rec01", models.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, updated.Status)
	require.Equal(t, "refreshed by server", updated.AISummary)

	a, ok := c.Article("rec01")
	require.True(t, ok)
	require.Equal(t, updated, a)

	v := c.View()
	require.Equal(t, "Article approved", v.Notice)
	require.Empty(t, v.Updating)

	require.Len(t, journal.decisions, 1)
	require.Equal(t, "rec01", journal.decisions[0].ArticleID)
	require.Equal(t, models.StatusApproved, journal.decisions[0].Status)
	require.Equal(t, epoch, journal.decisions[0].DecidedAt)
	require.Len(t, publisher.events, 1)

	clock.Advance(2 * time.Second)
	require.Equal(t, "Article approved", c.View().Notice)
	clock.Advance(time.Second)
	require.Empty(t, c.View().Notice)
}

func TestMutateStatus_FailureKeepsStatus(t *testing.T) {
	table := &fakeTable{records: rawArticles(3)}
	table.patch = func(ctx context.Context, id string, status models.Status) (models.RawRecord, error) {
		return models.RawRecord{}, &airtable.Error{Kind: airtable.KindPermission, Status: 403}
	}
	c, _ := newController(t, table)
	require.NoError(t, c.Load(context.Background()))

	var err error
	require.NotPanics(t, func() {
		_, err = c.MutateStatus(context.Background(), "rec00", models.StatusRejected)
	})
	require.Equal(t, airtable.KindPermission, airtable.KindOf(err))

	a, ok := c.Article("rec00")
	require.True(t, ok)
	require.Equal(t, models.StatusAnalyzed, a.Status)

	v := c.View()
	require.Equal(t, dashboard.StateReady, v.State)
	require.Contains(t, v.Error, "403")
	require.Empty(t, v.Notice)
	require.Empty(t, v.Updating)
}

func TestMutateStatus_OneInFlightPerArticle(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	table := &fakeTable{records: rawArticles(3)}
	table.patch = func(ctx context.Context, id string, status models.Status) (models.RawRecord, error) {
		started <- id
		if id == "rec00" {
			<-release
		}
		return models.RawRecord{ID: id, Fields: map[string]any{"Status": string(status)}}, nil
	}
	c, _ := newController(t, table)
	require.NoError(t, c.Load(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := c.MutateStatus(context.Background(), "rec00", models.StatusApproved)
		done <- err
	}()
	require.Equal(t, "rec00", <-started)
	require.Equal(t, []string{"rec00"}, c.View().Updating)

	_, err := c.MutateStatus(context.Background(), "rec00", models.StatusRejected)
	require.ErrorIs(t, err, dashboard.ErrMutationInFlight)

	// другие статьи не блокируются
	_, err = c.MutateStatus(context.Background(), "rec01", models.StatusRejected)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	a, _ := c.Article("rec00")
	require.Equal(t, models.StatusApproved, a.Status)
	require.Empty(t, c.View().Updating)
}

func TestMutateStatus_Validation(t *testing.T) {
	c, _ := newController(t, &fakeTable{records: rawArticles(1)})
	require.NoError(t, c.Load(context.Background()))

	_, err := c.MutateStatus(context.Background(), "rec00", models.StatusAnalyzed)
	require.ErrorIs(t, err, dashboard.ErrInvalidStatus)

	_, err = c.MutateStatus(context.Background(), "missing", models.StatusApproved)
	require.ErrorIs(t, err, dashboard.ErrUnknownArticle)
}

func TestMutateStatus_PublishFailureIgnored(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	c, _ := newController(t, &fakeTable{records: rawArticles(1)}, func(o *dashboard.Options) {
		o.Publisher = publisher
	})
	require.NoError(t, c.Load(context.Background()))

	_, err := c.MutateStatus(context.Background(), "rec00", models.StatusRejected)
	require.NoError(t, err)
	require.Equal(t, "Article rejected", c.View().Notice)
}

func TestView_SnapshotIsDetached(t *testing.T) {
	c, _ := newController(t, &fakeTable{records: rawArticles(3)})
	require.NoError(t, c.Load(context.Background()))

	v := c.View()
	v.Articles[0].Industry[0] = "Changed"
	v.Articles[0].Tags = append(v.Articles[0].Tags, "extra")

	a, ok := c.Article(v.Articles[0].ID)
	require.True(t, ok)
	require.Equal(t, []string{"Industry 2"}, a.Industry)
	require.Empty(t, a.Tags)
	require.Equal(t, []string{"Industry 0", "Industry 1", "Industry 2"}, c.View().Industries)

	a.Industry[0] = "Changed"
	again, _ := c.Article(a.ID)
	require.Equal(t, []string{"Industry 2"}, again.Industry)

	updated, err := c.MutateStatus(context.Background(), "rec01", models.StatusApproved)
	require.NoError(t, err)
	updated.Industry[0] = "Changed"
	stored, _ := c.Article("rec01")
	require.Equal(t, []string{"Industry 1"}, stored.Industry)
}

func TestMutateStatus_KeepsLoadError(t *testing.T) {
	table := &fakeTable{records: rawArticles(3)}
	c, _ := newController(t, table)
	require.NoError(t, c.Load(context.Background()))

	table.listErr = errors.New("remote down")
	require.Error(t, c.Load(context.Background()))

	_, err := c.MutateStatus(context.Background(), "rec00", models.StatusApproved)
	require.NoError(t, err)

	v := c.View()
	require.Equal(t, dashboard.StateFailed, v.State)
	require.Equal(t, "remote down", v.Error)
	require.Equal(t, "Article approved", v.Notice)

	// успешная загрузка убирает обе ошибки
	table.listErr = nil
	table.patch = func(ctx context.Context, id string, status models.Status) (models.RawRecord, error) {
		return models.RawRecord{}, &airtable.Error{Kind: airtable.KindPermission, Status: 403}
	}
	require.NoError(t, c.Load(context.Background()))
	_, err = c.MutateStatus(context.Background(), "rec01", models.StatusRejected)
	require.Error(t, err)
	require.Contains(t, c.View().Error, "403")

	require.NoError(t, c.Load(context.Background()))
	require.Empty(t, c.View().Error)
}

func TestUserMessage(t *testing.T) {
	require.Empty(t, dashboard.UserMessage(nil))
	require.Contains(t, dashboard.UserMessage(fmt.Errorf("wrap: %w", context.DeadlineExceeded)), "timed out")
	require.Equal(t, "boom", dashboard.UserMessage(errors.New("boom")))
}
