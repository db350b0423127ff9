package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"advocate_dashboard/internal/config"
	"advocate_dashboard/internal/logger"
	"advocate_dashboard/internal/metrics"
	"advocate_dashboard/internal/models"
)

const (
	opList    = "list"
	opPatch   = "patch"
	opMetrics = "metrics"

	// защита от бесконечного цикла, если API повторяет один и тот же offset
	maxPages = 1000
)

// Client обращается к REST API табличного хранилища: чтение статей с
// постраничной выборкой, смена статуса и чтение метрик последнего запуска.
type Client struct {
	cfg     config.AirtableConfig
	http    *http.Client
	metrics *metrics.Metrics
}

type listResponse struct {
	Records []models.RawRecord `json:"records"`
	Offset  string             `json:"offset,omitempty"`
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

type patchRequest struct {
	Fields map[string]any `json:"fields"`
}

// NewClient создаёт клиента. m может быть nil.
func NewClient(cfg config.AirtableConfig, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.APIURL == "" {
		cfg.APIURL = config.DefaultAPIURL
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// CheckConfig сообщает об отсутствии ключа API или идентификатора базы.
func (c *Client) CheckConfig() error {
	if missing := c.cfg.Missing(); len(missing) > 0 {
		return NewConfigError(missing)
	}
	return nil
}

// ListAll загружает все записи таблицы статей, следуя за offset, пока API его возвращает.
// Ошибка любой страницы прерывает загрузку целиком.
func (c *Client) ListAll(ctx context.Context) ([]models.RawRecord, error) {
	if err := c.CheckConfig(); err != nil {
		return nil, err
	}

	log := logger.Log.WithField("table", c.cfg.ArticlesTable)

	var (
		records []models.RawRecord
		offset  string
	)
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, &Error{Kind: KindAPI, Table: c.cfg.ArticlesTable, Message: "too many pages"}
		}

		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
		if offset != "" {
			q.Set("offset", offset)
		}

		var resp listResponse
		if err := c.do(ctx, opList, http.MethodGet, c.tableURL(c.cfg.ArticlesTable, "", q), c.cfg.ArticlesTable, nil, &resp); err != nil {
			return nil, err
		}

		records = append(records, resp.Records...)
		log.WithFields(logger.Fields{"page": page, "records": len(resp.Records)}).Debug("Fetched records page")

		if resp.Offset == "" {
			break
		}
		offset = resp.Offset
	}

	log.Infof("Fetched %d records", len(records))
	return records, nil
}

// PatchStatus меняет поле Status одной записи и возвращает запись целиком в ответе API.
// Повторов нет: решение о повторе принимает вызывающий код.
func (c *Client) PatchStatus(ctx context.Context, id string, status models.Status) (models.RawRecord, error) {
	if err := c.CheckConfig(); err != nil {
		return models.RawRecord{}, err
	}

	body := patchRequest{Fields: map[string]any{models.FieldStatus: string(status)}}

	var rec models.RawRecord
	if err := c.do(ctx, opPatch, http.MethodPatch, c.tableURL(c.cfg.ArticlesTable, id, nil), c.cfg.ArticlesTable, body, &rec); err != nil {
		return models.RawRecord{}, err
	}

	logger.Log.WithFields(logger.Fields{"id": id, "status": status}).Info("Article status updated")
	return rec, nil
}

// LatestRunMetrics возвращает самую свежую запись журнала запусков.
// Отсутствие таблицы (404) или пустая таблица дают nil без ошибки.
func (c *Client) LatestRunMetrics(ctx context.Context) (*models.RawRecord, error) {
	if err := c.CheckConfig(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("sort[0][field]", models.FieldDate)
	q.Set("sort[0][direction]", "desc")
	q.Set("maxRecords", "1")

	var resp listResponse
	err := c.do(ctx, opMetrics, http.MethodGet, c.tableURL(c.cfg.MetricsTable, "", q), c.cfg.MetricsTable, nil, &resp)
	if KindOf(err) == KindNotFound {
		logger.Log.WithField("table", c.cfg.MetricsTable).Warn("Metrics table not found, metrics unavailable")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Records) == 0 {
		return nil, nil
	}
	return &resp.Records[0], nil
}

func (c *Client) tableURL(table, id string, q url.Values) string {
	u := strings.TrimRight(c.cfg.APIURL, "/") + "/" + url.PathEscape(c.cfg.BaseID) + "/" + url.PathEscape(table)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, op, method, target, table string, payload, v any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRemote(op, 0, time.Since(start))
		return newTransportError(err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRemote(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(resp)
		logger.Log.WithFields(logger.Fields{
			"operation": op,
			"status":    resp.StatusCode,
			"table":     table,
		}).Warnf("Airtable request failed: %s", msg)
		return newStatusError(resp.StatusCode, table, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return newTransportError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorMessage достаёт текст ошибки из тела ответа. API отдаёт либо
// {"error": {"type": ..., "message": ...}}, либо {"error": "NOT_FOUND"}.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error) > 0 {
		var detailed struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body.Error, &detailed); err == nil {
			if detailed.Message != "" {
				return detailed.Message
			}
			if detailed.Type != "" {
				return detailed.Type
			}
		}
		var plain string
		if err := json.Unmarshal(body.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	return http.StatusText(resp.StatusCode)
}
