package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"advocate_dashboard/internal/airtable"
	"advocate_dashboard/internal/dashboard"
	"advocate_dashboard/internal/logger"
	"advocate_dashboard/internal/models"
)

const reloadTimeout = 2 * time.Minute

// Reloader - полная перезагрузка набора статей.
type Reloader interface {
	Load(ctx context.Context) error
}

// Worker обрабатывает сообщения о завершении запуска внешнего конвейера:
// каждое сообщение вызывает явную перезагрузку дашборда.
type Worker struct {
	reloader Reloader
	timeout  time.Duration
}

func NewWorker(r Reloader) *Worker {
	return &Worker{reloader: r, timeout: reloadTimeout}
}

func (w *Worker) HandleTask(body []byte) error {
	var event models.RunEvent
	if len(body) > 0 {
		if err := json.Unmarshal(body, &event); err != nil {
			// битое сообщение не вернётся в очередь бесконечно
			logger.Log.Warnf("Skipping malformed run event: %v", err)
			return nil
		}
	}

	log := logger.Log.WithField("run_id", event.RunID)
	log.Info("Pipeline run finished, reloading dashboard")

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := w.reloader.Load(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dashboard.ErrClosed):
		log.Info("Dashboard closed, run event dropped")
		return nil
	case !retryable(err):
		// повтор не поможет, пока не исправят конфигурацию или доступ
		log.Errorf("Reload failed, run event dropped: %v", err)
		return nil
	default:
		log.Errorf("Reload failed: %v", err)
		return fmt.Errorf("reload after run %q: %w", event.RunID, err)
	}
}

// retryable сообщает, имеет ли смысл вернуть сообщение в очередь: только
// сетевые сбои, таймауты, ответы 5xx и 429, а также неклассифицированные ошибки.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *airtable.Error
	if !errors.As(err, &e) {
		return true
	}
	switch e.Kind {
	case airtable.KindTransport:
		return true
	case airtable.KindAPI:
		return e.Status >= 500 || e.Status == 429
	}
	return false
}
