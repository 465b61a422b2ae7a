package queue

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-caja/internal/common"
)

// Inspector is the subset of *asynq.Inspector the admin endpoints use.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunTask(queue, id string) error
}

// AdminHandler exposes queue stats and dead-letter replay backed by asynq's archive.
type AdminHandler struct {
	Inspector Inspector
	Queue     string
	PageSize  int
}

type archivedItem struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Retried      int            `json:"retried"`
	MaxRetry     int            `json:"max_retry"`
	LastError    string         `json:"last_error,omitempty"`
	LastFailedAt *time.Time     `json:"last_failed_at,omitempty"`
	Event        map[string]any `json:"event,omitempty"`
}

// Stats handles GET /api/v1/admin/queue/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	info, err := h.Inspector.GetQueueInfo(h.queue())
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			common.Data(w, http.StatusOK, map[string]any{"queue": h.queue(), "size": 0})
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"queue":     info.Queue,
		"size":      info.Size,
		"pending":   info.Pending,
		"active":    info.Active,
		"scheduled": info.Scheduled,
		"retry":     info.Retry,
		"archived":  info.Archived,
		"processed": info.Processed,
		"failed":    info.Failed,
		"paused":    info.Paused,
	})
}

// ListDLQ handles GET /api/v1/admin/queue/dlq.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	page, perPage := common.ParsePagination(r, h.pageSize())
	tasks, err := h.Inspector.ListArchivedTasks(h.queue(), asynq.Page(page), asynq.PageSize(perPage))
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	items := make([]archivedItem, 0, len(tasks))
	for _, t := range tasks {
		item := archivedItem{ID: t.ID, Type: t.Type, Retried: t.Retried, MaxRetry: t.MaxRetry, LastError: t.LastErr}
		if !t.LastFailedAt.IsZero() {
			at := t.LastFailedAt
			item.LastFailedAt = &at
		}
		if t.Type == TaskTypeEvent {
			if ev, err := DecodeEvent(asynq.NewTask(t.Type, t.Payload)); err == nil {
				item.Event = map[string]any{"id": ev.ID, "topic": ev.Topic, "aggregate_id": ev.AggregateID}
			}
		}
		items = append(items, item)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "page": page, "per_page": perPage})
}

// ReplayDLQ handles POST /api/v1/admin/queue/dlq/{id}/replay.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "task id required", nil)
		return
	}
	if err := h.Inspector.RunTask(h.queue(), id); err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "task not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusAccepted, map[string]any{"id": id, "replayed": true})
}

func (h *AdminHandler) queue() string {
	if h.Queue == "" {
		return DefaultQueue
	}
	return h.Queue
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 20
	}
	return h.PageSize
}
