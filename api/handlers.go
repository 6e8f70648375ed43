package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow/domain"
	"taskflow/storage"
)

const (
	maxBodySize          = 64 << 10
	headerIdempotencyKey = "Idempotency-Key"
	maxIdempotencyKeyLen = 128

	msgStorageFailed = "storage request failed"
)

// Deps bundles the collaborators of the HTTP handlers. Deduper and Events
// are optional.
type Deps struct {
	Store   Storage
	Auth    Authenticator
	Deduper Deduper
	Events  *EventSender
	Logger  *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		panic("Logger is not initialized")
	}
	e.GET("/api/tasks", getTasks(d))
	e.GET("/api/tasks/stats", getStats(d))
	e.POST("/api/tasks", postTask(d))
	e.PATCH("/api/tasks/:id", patchTask(d))
	e.POST("/api/tasks/:id/advance", advanceTask(d))
	e.DELETE("/api/tasks/:id", deleteTask(d))
	e.GET("/healthz", healthz(d.Store))
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type handlerFunc func(c echo.Context, m *requestMetrics, userID string) error

// instrumented starts request metrics, authenticates the caller and runs h.
func instrumented(d Deps, route string, h handlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		req := c.Request()
		metrics, spanCtx := newRequestMetrics(req.Context(), d.Logger, req.Method, route)
		if spanCtx != nil {
			c.SetRequest(req.WithContext(spanCtx))
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.Fail("auth", authErr)
			return c.String(http.StatusUnauthorized, authErr.Error())
		}
		return h(c, metrics, userID)
	}
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(d Deps) echo.HandlerFunc {
	return instrumented(d, "/api/tasks", func(c echo.Context, m *requestMetrics, userID string) error {
		filter := domain.Filter{
			Search:   strings.TrimSpace(c.QueryParam("q")),
			Status:   c.QueryParam("status"),
			Priority: c.QueryParam("priority"),
		}
		if err := filter.Validate(); err != nil {
			m.Fail("invalid_filter", err)
			return c.String(http.StatusBadRequest, err.Error())
		}

		tasks, err := fetchTasks(c, d, m, userID)
		if err != nil {
			return storeError(c, d.Logger, m, err)
		}
		tasks = filter.Apply(tasks)
		m.SetTasksReturned(len(tasks))
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	})
}

func getStats(d Deps) echo.HandlerFunc {
	return instrumented(d, "/api/tasks/stats", func(c echo.Context, m *requestMetrics, userID string) error {
		tasks, err := fetchTasks(c, d, m, userID)
		if err != nil {
			return storeError(c, d.Logger, m, err)
		}
		return c.JSON(http.StatusOK, domain.ComputeStats(tasks))
	})
}

func fetchTasks(c echo.Context, d Deps, m *requestMetrics, userID string) ([]domain.Task, error) {
	start := time.Now()
	tasks, err := d.Store.FetchTasks(c.Request().Context(), userID)
	m.ObserveStore(time.Since(start))
	return tasks, err
}

func postTask(d Deps) echo.HandlerFunc {
	return instrumented(d, "/api/tasks", func(c echo.Context, m *requestMetrics, userID string) error {
		ctx := c.Request().Context()
		var draft domain.TaskDraft
		if err := decodeBody(c, &draft); err != nil {
			m.Fail("invalid_body", err)
			return c.String(http.StatusBadRequest, "invalid body")
		}

		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		if len(key) > maxIdempotencyKeyLen {
			m.Fail("invalid_idempotency_key", nil)
			return c.String(http.StatusBadRequest, "idempotency key too long")
		}
		if key != "" && d.Deduper != nil {
			added, err := d.Deduper.Add(ctx, opCreateTask, userID, key)
			if err != nil {
				m.Fail("dedupe", err)
				d.Logger.WithError(err).Error("idempotency check failed")
				return c.String(http.StatusInternalServerError, "idempotency check failed")
			}
			if !added {
				m.Fail("duplicate", nil)
				return c.String(http.StatusConflict, "duplicate request")
			}
		}

		start := time.Now()
		task, err := d.Store.CreateTask(ctx, userID, draft)
		m.ObserveStore(time.Since(start))
		if err != nil {
			if key != "" && d.Deduper != nil {
				if rerr := d.Deduper.Remove(context.WithoutCancel(ctx), opCreateTask, userID, key); rerr != nil {
					d.Logger.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, userID)
				}
			}
			return storeError(c, d.Logger, m, err)
		}
		publish(d, userID, domain.TaskCreated, task.ID, &task)
		return c.JSON(http.StatusCreated, task)
	})
}

func patchTask(d Deps) echo.HandlerFunc {
	return instrumented(d, "/api/tasks/:id", func(c echo.Context, m *requestMetrics, userID string) error {
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			m.Fail("invalid_body", err)
			return c.String(http.StatusBadRequest, "invalid body")
		}
		id := c.Param("id")
		start := time.Now()
		task, err := d.Store.UpdateTask(c.Request().Context(), userID, id, patch)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storeError(c, d.Logger, m, err)
		}
		publish(d, userID, domain.TaskUpdated, task.ID, &task)
		return c.JSON(http.StatusOK, task)
	})
}

func advanceTask(d Deps) echo.HandlerFunc {
	return instrumented(d, "/api/tasks/:id/advance", func(c echo.Context, m *requestMetrics, userID string) error {
		start := time.Now()
		task, err := d.Store.AdvanceTask(c.Request().Context(), userID, c.Param("id"))
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storeError(c, d.Logger, m, err)
		}
		publish(d, userID, domain.TaskUpdated, task.ID, &task)
		return c.JSON(http.StatusOK, task)
	})
}

func deleteTask(d Deps) echo.HandlerFunc {
	return instrumented(d, "/api/tasks/:id", func(c echo.Context, m *requestMetrics, userID string) error {
		id := c.Param("id")
		start := time.Now()
		err := d.Store.DeleteTask(c.Request().Context(), userID, id)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storeError(c, d.Logger, m, err)
		}
		publish(d, userID, domain.TaskDeleted, id, nil)
		return c.NoContent(http.StatusNoContent)
	})
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// storeError maps storage and validation failures to responses.
func storeError(c echo.Context, logger *log.Logger, m *requestMetrics, err error) error {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		m.Fail("validation", err)
		return c.String(http.StatusBadRequest, vErr.Error())
	case errors.Is(err, storage.ErrNotFound):
		m.Fail("not_found", err)
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrConflict):
		m.Fail("conflict", err)
		return c.String(http.StatusConflict, err.Error())
	default:
		m.Fail("storage", err)
		logger.WithError(err).Error(msgStorageFailed)
		return c.String(http.StatusInternalServerError, msgStorageFailed)
	}
}
