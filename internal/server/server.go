package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    *engine.Engine
	BasePath  string
	Log       zerolog.Logger
	RateLimit float64 // requests per second per client, 0 disables
	RateBurst int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"estimated duration must be positive"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Planline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Log))
	if cfg.RateLimit > 0 {
		router.Use(rateLimiter(cfg.RateLimit, cfg.RateBurst))
	}
	hcfg := huma.DefaultConfig("Planline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerSchedule(group, cfg.Engine)
	registerConflicts(group, cfg.Engine)
	registerPreferences(group, cfg.Engine)
	registerPersonalEvents(group, cfg.Engine)
	registerHolidays(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// requestLogger logs one line per request at the end of handling.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// rateLimiter applies a token bucket per client address.
func rateLimiter(perSecond float64, burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}
	limiterFor := func(addr string) *rate.Limiter {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[host]
		if !ok {
			l = rate.NewLimiter(rate.Limit(perSecond), burst)
			limiters[host] = l
		}
		return l
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiterFor(r.RemoteAddr).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{"error": apiErrorBody{
					Code:    "rate_limited",
					Message: "too many requests",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if engine.IsValidation(err) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Planline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		UserID  string            `path:"user_id"`
		ActorID string            `header:"X-Actor-Id"`
		Body    CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		opts := engine.TaskCreateOptions{
			UserID:           input.UserID,
			TeamID:           input.Body.TeamID,
			Title:            input.Body.Title,
			EstimatedMinutes: input.Body.EstimatedMinutes,
			Priority:         input.Body.Priority,
			DueDate:          input.Body.DueDate,
			ActorID:          input.ActorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID   string `path:"user_id"`
		Status   string `query:"status"`
		Priority string `query:"priority"`
		Limit    int    `query:"limit" default:"100"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			UserID:   input.UserID,
			Status:   input.Status,
			Priority: input.Priority,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "split-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/split",
		Summary:     "Split task into intervals",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string           `path:"id"`
		ActorID string           `header:"X-Actor-Id"`
		Body    SplitTaskRequest `json:"body"`
	}) (*struct {
		Body []IntervalResponse `json:"body"`
	}, error) {
		intervals, err := e.SplitTask(ctx, input.ID, input.Body.Intervals, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]IntervalResponse, 0, len(intervals))
		for _, iv := range intervals {
			out = append(out, intervalResponse(iv))
		}
		return &struct {
			Body []IntervalResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-interval",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/intervals/{interval_id}/done",
		Summary:     "Mark interval completed",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		IntervalID string `path:"interval_id"`
		ActorID    string `header:"X-Actor-Id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.CompleteInterval(ctx, input.ID, input.IntervalID, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerSchedule(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-schedule",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/schedule/generate",
		Summary:     "Generate schedule",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		UserID  string                  `path:"user_id"`
		ActorID string                  `header:"X-Actor-Id"`
		Body    GenerateScheduleRequest `json:"body,omitempty"`
	}) (*struct {
		Body GenerateResponse `json:"body"`
	}, error) {
		opts := e.DefaultOptions()
		opts.ActorID = input.ActorID
		opts.AllowManualOverride = input.Body.AllowManualOverride
		opts.OptimizeForEfficiency = input.Body.OptimizeForEfficiency
		if input.Body.RespectPersonalEvents != nil {
			opts.RespectPersonalEvents = *input.Body.RespectPersonalEvents
		}
		if input.Body.PrioritizeUrgentTasks != nil {
			opts.PrioritizeUrgentTasks = *input.Body.PrioritizeUrgentTasks
		}
		if input.Body.AutoSplit != nil {
			opts.AutoSplit = *input.Body.AutoSplit
		}
		if input.Body.StartDate != nil {
			t, err := time.Parse(time.RFC3339, *input.Body.StartDate)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "malformed start_date", nil)
			}
			opts.StartDate = t
		}
		if input.Body.EndDate != nil {
			t, err := time.Parse(time.RFC3339, *input.Body.EndDate)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "malformed end_date", nil)
			}
			opts.EndDate = t
		}
		res, err := e.Generate(ctx, input.UserID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GenerateResponse `json:"body"`
		}{Body: GenerateResponse{
			Entries:   mapEntries(res.Entries),
			Conflicts: mapConflicts(res.Conflicts),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/schedule",
		Summary:     "List schedule entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		From   string `query:"from"`
		To     string `query:"to"`
		Status string `query:"status"`
	}) (*struct {
		Body []EntryResponse `json:"body"`
	}, error) {
		entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
			UserID: input.UserID,
			From:   input.From,
			To:     input.To,
			Status: input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EntryResponse `json:"body"`
		}{Body: mapEntries(entries)}, nil
	})
}

func registerConflicts(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conflicts",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/conflicts",
		Summary:     "List conflicts",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Kind   string `query:"kind"`
		Open   bool   `query:"open" default:"true"`
	}) (*struct {
		Body []ConflictResponse `json:"body"`
	}, error) {
		conflicts, err := e.Repo.ListConflicts(ctx, repo.ConflictFilters{
			UserID:   input.UserID,
			Kind:     input.Kind,
			OpenOnly: input.Open,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ConflictResponse `json:"body"`
		}{Body: mapConflicts(conflicts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-conflict",
		Method:      http.MethodPost,
		Path:        "/conflicts/{id}/resolve",
		Summary:     "Resolve conflict",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string                 `path:"id"`
		ActorID string                 `header:"X-Actor-Id"`
		Body    ResolveConflictRequest `json:"body"`
	}) (*struct {
		Body ConflictResponse `json:"body"`
	}, error) {
		if input.Body.Action == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "action is required", nil)
		}
		c, err := e.ResolveConflict(ctx, input.ID, input.Body.Action, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConflictResponse `json:"body"`
		}{Body: conflictResponse(*c)}, nil
	})
}

func registerPreferences(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "put-working-hours",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/working-hours",
		Summary:     "Set working hours",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID  string              `path:"user_id"`
		ActorID string              `header:"X-Actor-Id"`
		Body    WorkingHoursRequest `json:"body"`
	}) (*struct {
		Body WorkingHoursResponse `json:"body"`
	}, error) {
		p := domain.WorkingHoursPreference{
			UserID:     input.UserID,
			DayStart:   input.Body.DayStart,
			DayEnd:     input.Body.DayEnd,
			ActiveDays: input.Body.ActiveDays,
		}
		if err := e.SetWorkingHours(ctx, p, input.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkingHoursResponse `json:"body"`
		}{Body: workingHoursResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-working-hours",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/working-hours",
		Summary:     "Get working hours",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body WorkingHoursResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetWorkingHours(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkingHoursResponse `json:"body"`
		}{Body: workingHoursResponse(p)}, nil
	})
}

func registerPersonalEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-personal-event",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/events",
		Summary:       "Add personal event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID  string                     `path:"user_id"`
		ActorID string                     `header:"X-Actor-Id"`
		Body    CreatePersonalEventRequest `json:"body"`
	}) (*struct {
		Body PersonalEventResponse `json:"body"`
	}, error) {
		ev, err := e.AddPersonalEvent(ctx, input.UserID, input.Body.Title, input.Body.StartsAt, input.Body.EndsAt, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PersonalEventResponse `json:"body"`
		}{Body: PersonalEventResponse{
			ID:       ev.ID,
			UserID:   ev.UserID,
			Title:    ev.Title,
			StartsAt: ev.StartsAt,
			EndsAt:   ev.EndsAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-personal-events",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/events",
		Summary:     "List personal events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		From   string `query:"from"`
		To     string `query:"to"`
	}) (*struct {
		Body []PersonalEventResponse `json:"body"`
	}, error) {
		from := input.From
		to := input.To
		if from == "" {
			from = "0001-01-01T00:00:00Z"
		}
		if to == "" {
			to = "9999-12-31T00:00:00Z"
		}
		items, err := e.Repo.ListPersonalEvents(ctx, input.UserID, from, to)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]PersonalEventResponse, 0, len(items))
		for _, ev := range items {
			out = append(out, PersonalEventResponse{
				ID:       ev.ID,
				UserID:   ev.UserID,
				Title:    ev.Title,
				StartsAt: ev.StartsAt,
				EndsAt:   ev.EndsAt,
			})
		}
		return &struct {
			Body []PersonalEventResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-personal-event",
		Method:      http.MethodDelete,
		Path:        "/events/{id}",
		Summary:     "Delete personal event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeletePersonalEvent(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerHolidays(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "import-holidays",
		Method:      http.MethodPut,
		Path:        "/calendars/{code}/holidays",
		Summary:     "Import holidays",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Code    string                `path:"code"`
		ActorID string                `header:"X-Actor-Id"`
		Body    ImportHolidaysRequest `json:"body"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		days := make([]domain.Holiday, 0, len(input.Body.Days))
		for _, h := range input.Body.Days {
			days = append(days, domain.Holiday{Day: h.Day, Name: h.Name})
		}
		n, err := e.ImportHolidays(ctx, input.Code, days, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"imported": n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-holidays",
		Method:      http.MethodGet,
		Path:        "/calendars/{code}/holidays",
		Summary:     "List holidays",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Code string `path:"code"`
		From string `query:"from" default:"0001-01-01"`
		To   string `query:"to" default:"9999-12-31"`
	}) (*struct {
		Body []domain.Holiday `json:"body"`
	}, error) {
		items, err := e.Repo.ListHolidays(ctx, input.Code, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Holiday `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events-log",
		Summary:     "Latest audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		UserID string `query:"user_id"`
		Type   string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.UserID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, ev := range items {
			out = append(out, eventResponse(ev))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
