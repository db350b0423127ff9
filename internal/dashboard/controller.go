package dashboard

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"advocate_dashboard/internal/logger"
	"advocate_dashboard/internal/metrics"
	"advocate_dashboard/internal/models"
	"advocate_dashboard/internal/pipeline"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize  = 9
	DefaultDebounce  = 300 * time.Millisecond
	DefaultNoticeTTL = 3 * time.Second
)

var (
	ErrMutationInFlight = errors.New("a status update for this article is already in progress")
	ErrUnknownArticle   = errors.New("article not found")
	ErrInvalidStatus    = errors.New("status must be Approved or Rejected")
	ErrClosed           = errors.New("dashboard is closed")
)

// State - состояние загрузки набора статей.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// TableClient - удалённое хранилище статей и метрик.
type TableClient interface {
	CheckConfig() error
	ListAll(ctx context.Context) ([]models.RawRecord, error)
	PatchStatus(ctx context.Context, id string, status models.Status) (models.RawRecord, error)
	LatestRunMetrics(ctx context.Context) (*models.RawRecord, error)
}

// Journal сохраняет подтверждённые решения модерации.
type Journal interface {
	SaveDecision(ctx context.Context, d models.ReviewDecision) error
}

// EventPublisher рассылает события модерации.
type EventPublisher interface {
	PublishReview(ctx context.Context, e models.ReviewEvent) error
}

type Options struct {
	PageSize  int
	Debounce  time.Duration
	NoticeTTL time.Duration
	Clock     Clock
	Journal   Journal
	Publisher EventPublisher
	Metrics   *metrics.Metrics
}

// DefaultOptions возвращает параметры по умолчанию с реальными часами.
func DefaultOptions() Options {
	return Options{
		PageSize:  DefaultPageSize,
		Debounce:  DefaultDebounce,
		NoticeTTL: DefaultNoticeTTL,
		Clock:     RealClock(),
	}
}

// Controller владеет состоянием дашборда: набором статей, условиями фильтрации,
// текущей страницей и сообщениями для оператора. Наружу состояние отдаётся только
// снимками View, изменяется только через методы контроллера.
type Controller struct {
	client    TableClient
	clock     Clock
	journal   Journal
	publisher EventPublisher
	metrics   *metrics.Metrics
	pageSize  int
	debounce  time.Duration
	noticeTTL time.Duration

	mu         sync.Mutex
	closed     bool
	state      State
	errMsg     string
	mutErr     string
	notice     string
	articles   []models.Article
	runMetrics *models.RunMetrics
	criteria   pipeline.Criteria
	filtered   []models.Article
	filtering  bool
	page       int
	updating   map[string]struct{}
	generation uint64

	debounceSeq   uint64
	debounceTimer Timer
	noticeSeq     uint64
	noticeTimer   Timer
}

func New(client TableClient, opts Options) *Controller {
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Controller{
		client:    client,
		clock:     opts.Clock,
		journal:   opts.Journal,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		pageSize:  opts.PageSize,
		debounce:  opts.Debounce,
		noticeTTL: opts.NoticeTTL,
		state:     StateIdle,
		criteria:  pipeline.Criteria{}.Normalize(),
		filtered:  []models.Article{},
		page:      1,
		updating:  make(map[string]struct{}),
	}
}

// Load заново загружает статьи и метрики, полностью заменяя текущий набор.
// Ошибка метрик только логируется. Результат загрузки, которую обогнала более
// новая, или пришедший после Close, отбрасывается.
func (c *Controller) Load(ctx context.Context) error {
	log := logger.Log.WithField("component", "dashboard")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := c.client.CheckConfig(); err != nil {
		c.state = StateFailed
		c.errMsg = UserMessage(err)
		c.mu.Unlock()
		c.metrics.ObserveReload(err)
		log.Errorf("Configuration error: %v", err)
		return err
	}
	c.generation++
	gen := c.generation
	c.state = StateLoading
	c.errMsg = ""
	c.mu.Unlock()

	records, metricsRec, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		log.Debug("Discarding superseded load result")
		return nil
	}
	c.metrics.ObserveReload(err)

	if err != nil {
		c.state = StateFailed
		c.errMsg = UserMessage(err)
		log.Errorf("Failed to load articles: %v", err)
		return err
	}

	articles := make([]models.Article, len(records))
	for i, rec := range records {
		articles[i] = models.ToArticle(rec)
	}
	c.articles = articles

	c.runMetrics = nil
	if metricsRec != nil {
		m := models.ToRunMetrics(*metricsRec)
		c.runMetrics = &m
	}

	c.state = StateReady
	c.mutErr = ""
	c.filtered = pipeline.Apply(c.articles, c.criteria)
	c.page = 1

	log.WithFields(logger.Fields{
		"articles": len(articles),
		"metrics":  c.runMetrics != nil,
	}).Info("Dashboard loaded")
	return nil
}

func (c *Controller) fetch(ctx context.Context) ([]models.RawRecord, *models.RawRecord, error) {
	var (
		records    []models.RawRecord
		metricsRec *models.RawRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := c.client.ListAll(gctx)
		if err != nil {
			return err
		}
		records = r
		return nil
	})
	g.Go(func() error {
		rec, err := c.client.LatestRunMetrics(gctx)
		if err != nil {
			logger.Log.WithField("component", "dashboard").Warnf("Metrics unavailable: %v", err)
			return nil
		}
		metricsRec = rec
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return records, metricsRec, nil
}

// SetCriteria меняет фильтры и сортировку. Пересчёт откладывается на интервал
// debounce: каждый новый вызов отменяет ранее запланированный. До пересчёта
// снимок показывает прежние результаты с признаком Filtering.
func (c *Controller) SetCriteria(criteria pipeline.Criteria) error {
	key, err := pipeline.ParseSortKey(string(criteria.Sort))
	if err != nil {
		return err
	}
	criteria.Sort = key

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.criteria = criteria.Normalize()

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.debounceSeq++

	if c.debounce == 0 {
		c.applyCriteriaLocked()
		return nil
	}

	seq := c.debounceSeq
	c.filtering = true
	c.debounceTimer = c.clock.AfterFunc(c.debounce, func() { c.fireDebounce(seq) })
	return nil
}

func (c *Controller) fireDebounce(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || seq != c.debounceSeq {
		return
	}
	c.debounceTimer = nil
	c.applyCriteriaLocked()
}

func (c *Controller) applyCriteriaLocked() {
	c.filtering = false
	c.filtered = pipeline.Apply(c.articles, c.criteria)
	c.page = 1
}

// SetPage переходит на страницу n, ограничивая её диапазоном [1, TotalPages].
func (c *Controller) SetPage(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.page = c.clampPageLocked(n)
	return c.page
}

func (c *Controller) clampPageLocked(n int) int {
	total := pipeline.Paginate(c.filtered, c.pageSize, 1).TotalPages
	if n > total {
		n = total
	}
	if n < 1 {
		n = 1
	}
	return n
}

// MutateStatus отправляет новый статус в хранилище и, только после подтверждения,
// заменяет локальную статью записью из ответа. Для одной статьи допускается не
// более одного запроса одновременно. При ошибке локальный статус не меняется.
func (c *Controller) MutateStatus(ctx context.Context, id string, status models.Status) (models.Article, error) {
	if !status.Reviewable() {
		return models.Article{}, ErrInvalidStatus
	}

	log := logger.Log.WithFields(logger.Fields{
		"component": "dashboard",
		"id":        id,
		"status":    status,
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Article{}, ErrClosed
	}
	if c.indexLocked(id) < 0 {
		c.mu.Unlock()
		return models.Article{}, ErrUnknownArticle
	}
	if _, busy := c.updating[id]; busy {
		c.mu.Unlock()
		return models.Article{}, ErrMutationInFlight
	}
	c.updating[id] = struct{}{}
	c.mutErr = ""
	c.mu.Unlock()

	rec, err := c.client.PatchStatus(ctx, id, status)
	c.metrics.ObserveMutation(string(status), err)

	c.mu.Lock()
	delete(c.updating, id)

	if c.closed {
		c.mu.Unlock()
		return models.Article{}, ErrClosed
	}
	if err != nil {
		c.mutErr = "could not update article status: " + UserMessage(err)
		c.mu.Unlock()
		log.Errorf("Status update failed: %v", err)
		return models.Article{}, err
	}

	updated := models.ToArticle(rec)
	if updated.ID == "" {
		updated.ID = id
	}
	// набор могли перезагрузить, пока шёл запрос
	if i := c.indexLocked(id); i >= 0 {
		c.articles[i] = updated
		c.filtered = pipeline.Apply(c.articles, c.criteria)
		c.page = c.clampPageLocked(c.page)
	}
	c.setNoticeLocked(noticeFor(updated.Status))
	c.mu.Unlock()

	c.record(ctx, updated)
	return updated.Clone(), nil
}

func (c *Controller) record(ctx context.Context, a models.Article) {
	now := c.clock.Now().UTC()
	log := logger.Log.WithFields(logger.Fields{"component": "dashboard", "id": a.ID})

	if c.journal != nil {
		d := models.ReviewDecision{ArticleID: a.ID, Title: a.Title, Status: a.Status, DecidedAt: now}
		if err := c.journal.SaveDecision(ctx, d); err != nil {
			log.Warnf("Failed to save review decision: %v", err)
		}
	}
	if c.publisher != nil {
		e := models.ReviewEvent{ArticleID: a.ID, Title: a.Title, URL: a.URL, Status: a.Status, DecidedAt: now}
		if err := c.publisher.PublishReview(ctx, e); err != nil {
			log.Warnf("Failed to publish review event: %v", err)
		}
	}
}

func (c *Controller) setNoticeLocked(msg string) {
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	c.noticeSeq++
	c.notice = msg

	if c.noticeTTL <= 0 {
		return
	}
	seq := c.noticeSeq
	c.noticeTimer = c.clock.AfterFunc(c.noticeTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if seq == c.noticeSeq {
			c.notice = ""
			c.noticeTimer = nil
		}
	})
}

func noticeFor(s models.Status) string {
	switch s {
	case models.StatusApproved:
		return "Article approved"
	case models.StatusRejected:
		return "Article rejected"
	}
	return "Article status updated"
}

// Article возвращает статью по id.
func (c *Controller) Article(id string) (models.Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return models.Article{}, false
	}
	return c.articles[i].Clone(), true
}

func (c *Controller) indexLocked(id string) int {
	return slices.IndexFunc(c.articles, func(a models.Article) bool { return a.ID == id })
}

// Close останавливает таймеры. Результаты запросов, завершившихся позже, отбрасываются.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
}

// UserMessage превращает ошибку в текст для оператора.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out, please retry"
	case errors.Is(err, context.Canceled):
		return "the request was cancelled"
	}
	return err.Error()
}
