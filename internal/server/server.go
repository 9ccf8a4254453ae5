package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contentline/internal/domain"
	"contentline/internal/engine"
	"contentline/internal/engine/auth"
	"contentline/internal/pkg/logger"
	"contentline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *logger.Logger
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"wip_limit_reached"`
	Message string         `json:"message" example:"stage Review is at its WIP limit of 2"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"stage\":\"Review\",\"limit\":2}"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type body[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *body[T] {
	return &body[T]{Body: v}
}

// New returns an HTTP handler exposing the contentline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("component", "http")

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo, log))
	hcfg := huma.DefaultConfig("Contentline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{e: cfg.Engine, log: log}
	registerDocs(router, basePath)
	registerMetrics(router, basePath, cfg.Gatherer)
	registerHealth(group)
	h.registerMe(group)
	h.registerStages(group)
	h.registerBoard(group)
	h.registerDeliverables(group)
	h.registerCollaboration(group)
	h.registerApprovals(group)
	h.registerNotifications(group)
	h.registerProfiles(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	e   engine.Engine
	log *logger.Logger
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

// fail maps engine errors onto the envelope; anything unrecognised is logged
// and reported as an internal error.
func (h handlers) fail(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "validation_failed", ve.Error(), details)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", "not allowed", map[string]any{"action": fe.Action})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var we engine.WipLimitError
	if errors.As(err, &we) {
		return newAPIError(http.StatusConflict, "wip_limit_reached", we.Error(), map[string]any{"stage": we.Stage, "limit": we.Limit})
	}
	var ie engine.InvalidStateError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusConflict, "invalid_state", ie.Error(), nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", "the record changed concurrently, retry", nil)
	}
	h.log.Error("request failed", "error", err)
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
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

func registerMetrics(r chi.Router, basePath string, g prometheus.Gatherer) {
	if g == nil {
		return
	}
	r.Handle(path.Join(basePath, "metrics"), promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Contentline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*body[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func (h handlers) registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*body[WhoAmIResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		profile, err := h.e.GetProfile(ctx, p.ActorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(WhoAmIResponse{ActorID: p.ActorID, Role: p.Role, Source: p.Source, Profile: &profile}), nil
	})
}

func (h handlers) registerStages(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/stages",
		Summary:     "List pipeline stages in board order",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.PipelineStage], error) {
		stages, err := h.e.ListStages(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(stages), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-stage",
		Method:        http.MethodPost,
		Path:          "/stages",
		Summary:       "Create a pipeline stage",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, in *struct {
		Body CreateStageRequest `json:"body"`
	}) (*body[domain.PipelineStage], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := h.e.CreateStage(ctx, actor, engine.StageInput{
			Name:       in.Body.Name,
			OrderIndex: in.Body.OrderIndex,
			WIPLimit:   in.Body.WIPLimit,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage",
		Method:      http.MethodPatch,
		Path:        "/stages/{name}",
		Summary:     "Change a stage's WIP limit or position",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		Name string             `path:"name"`
		Body UpdateStageRequest `json:"body"`
	}) (*body[domain.PipelineStage], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			st  domain.PipelineStage
			err error
		)
		changed := false
		if in.Body.WIPLimit != nil || in.Body.ClearWIPLimit {
			limit := in.Body.WIPLimit
			if in.Body.ClearWIPLimit {
				limit = nil
			}
			if st, err = h.e.SetWIPLimit(ctx, actor, in.Name, limit); err != nil {
				return nil, h.fail(err)
			}
			changed = true
		}
		if in.Body.OrderIndex != nil {
			if st, err = h.e.SetStageOrder(ctx, actor, in.Name, *in.Body.OrderIndex); err != nil {
				return nil, h.fail(err)
			}
			changed = true
		}
		if !changed {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "nothing to update", nil)
		}
		return reply(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-stage",
		Method:        http.MethodDelete,
		Path:          "/stages/{name}",
		Summary:       "Delete an unused stage",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *struct {
		Name string `path:"name"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteStage(ctx, actor, in.Name); err != nil {
			return nil, h.fail(err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) registerBoard(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Deliverables grouped by stage",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.BoardColumn], error) {
		h.e.SweepQuietly(ctx)
		cols, err := h.e.Board(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(cols), nil
	})
}

func (h handlers) registerDeliverables(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-deliverables",
		Method:      http.MethodGet,
		Path:        "/deliverables",
		Summary:     "List deliverables",
	}, func(ctx context.Context, in *struct {
		Status      string `query:"status"`
		AssigneeID  string `query:"assignee_id"`
		RequesterID string `query:"requester_id"`
		Blocked     string `query:"blocked"`
		DueBefore   string `query:"due_before" doc:"RFC3339 timestamp"`
		Limit       int    `query:"limit" default:"50"`
	}) (*body[[]domain.Deliverable], error) {
		h.e.SweepQuietly(ctx)
		f := repo.DeliverableFilters{
			Status:      in.Status,
			AssigneeID:  in.AssigneeID,
			RequesterID: in.RequesterID,
			Limit:       normalizeLimit(in.Limit),
		}
		if in.Blocked != "" {
			b, err := strconv.ParseBool(in.Blocked)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "validation_failed", "blocked: must be true or false", map[string]any{"field": "blocked"})
			}
			f.Blocked = &b
		}
		if in.DueBefore != "" {
			t, err := domain.ParseTime(in.DueBefore)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "validation_failed", "due_before: must be an RFC3339 timestamp", map[string]any{"field": "due_before"})
			}
			f.DueBefore = domain.FormatTime(t)
		}
		items, err := h.e.ListDeliverables(ctx, f)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-deliverable",
		Method:        http.MethodPost,
		Path:          "/deliverables",
		Summary:       "Create a deliverable",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, in *struct {
		Body CreateDeliverableRequest `json:"body"`
	}) (*body[domain.Deliverable], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := h.e.CreateDeliverable(ctx, in.Body.input(), actor.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deliverable",
		Method:      http.MethodGet,
		Path:        "/deliverables/{id}",
		Summary:     "Get a deliverable",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*body[domain.Deliverable], error) {
		d, err := h.e.GetDeliverable(ctx, in.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-deliverable",
		Method:      http.MethodPatch,
		Path:        "/deliverables/{id}",
		Summary:     "Edit deliverable fields",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *struct {
		ID   string                   `path:"id"`
		Body UpdateDeliverableRequest `json:"body"`
	}) (*body[domain.Deliverable], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := h.e.UpdateFields(ctx, in.ID, in.Body.patch(), actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-status",
		Method:      http.MethodPost,
		Path:        "/deliverables/{id}/status",
		Summary:     "Move a deliverable to another stage",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *struct {
		ID   string              `path:"id"`
		Body ChangeStatusRequest `json:"body"`
	}) (*body[domain.Deliverable], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := h.e.ChangeStatus(ctx, in.ID, in.Body.Status, actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-blocked",
		Method:      http.MethodPost,
		Path:        "/deliverables/{id}/block",
		Summary:     "Block or unblock a deliverable",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID   string            `path:"id"`
		Body SetBlockedRequest `json:"body"`
	}) (*body[domain.Deliverable], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := h.e.SetBlocked(ctx, in.ID, in.Body.Blocked, in.Body.Reason, actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deliverable-activity",
		Method:      http.MethodGet,
		Path:        "/deliverables/{id}/activity",
		Summary:     "Activity history, oldest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"200"`
	}) (*body[[]domain.ActivityLogEntry], error) {
		entries, err := h.e.ActivityLog(ctx, in.ID, in.Limit)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(entries), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deliverable-approvals",
		Method:      http.MethodGet,
		Path:        "/deliverables/{id}/approvals",
		Summary:     "Approval history, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*body[[]domain.Approval], error) {
		items, err := h.e.Approvals(ctx, in.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(items), nil
	})
}

func (h handlers) registerCollaboration(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/deliverables/{id}/comments",
		Summary:     "List comments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*body[[]domain.Comment], error) {
		items, err := h.e.Comments(ctx, in.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/deliverables/{id}/comments",
		Summary:       "Comment on a deliverable",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID   string            `path:"id"`
		Body AddCommentRequest `json:"body"`
	}) (*body[domain.Comment], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := h.e.AddComment(ctx, in.ID, in.Body.Content, actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-versions",
		Method:      http.MethodGet,
		Path:        "/deliverables/{id}/versions",
		Summary:     "List asset versions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*body[[]domain.Version], error) {
		items, err := h.e.Versions(ctx, in.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-version",
		Method:        http.MethodPost,
		Path:          "/deliverables/{id}/versions",
		Summary:       "Record a new asset version",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID   string            `path:"id"`
		Body AddVersionRequest `json:"body"`
	}) (*body[domain.Version], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := h.e.AddVersion(ctx, in.ID, engine.VersionInput{
			Type:         in.Body.Type,
			StoragePath:  in.Body.StoragePath,
			ExternalURL:  in.Body.ExternalURL,
			SummaryNotes: in.Body.SummaryNotes,
		}, actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(v), nil
	})
}

func (h handlers) registerApprovals(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "approval-queue",
		Method:      http.MethodGet,
		Path:        "/approvals",
		Summary:     "Pending approvals assigned to the caller",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Approval], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.e.PendingApprovals(ctx, actor.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-approval",
		Method:        http.MethodPost,
		Path:          "/approvals",
		Summary:       "Request approval for a deliverable",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *struct {
		Body RequestApprovalRequest `json:"body"`
	}) (*body[domain.Approval], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := h.e.RequestApproval(ctx, in.Body.DeliverableID, actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-approval",
		Method:      http.MethodGet,
		Path:        "/approvals/{id}",
		Summary:     "Get an approval",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*body[domain.Approval], error) {
		a, err := h.e.GetApproval(ctx, in.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-approval",
		Method:      http.MethodPatch,
		Path:        "/approvals/{id}",
		Summary:     "Approve or request changes",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *struct {
		ID   string                `path:"id"`
		Body DecideApprovalRequest `json:"body"`
	}) (*body[domain.Approval], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := h.e.DecideApproval(ctx, in.ID, domain.ApprovalStatus(in.Body.Status), in.Body.DecisionNotes, actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(a), nil
	})
}

func (h handlers) registerNotifications(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "The caller's notifications, newest first",
	}, func(ctx context.Context, in *struct {
		UnreadOnly bool `query:"unread"`
		Limit      int  `query:"limit" default:"50"`
	}) (*body[[]domain.Notification], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		h.e.SweepQuietly(ctx)
		items, err := h.e.Notifications(ctx, actor, in.UnreadOnly, normalizeLimit(in.Limit))
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark one notification read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*body[domain.Notification], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := h.e.MarkRead(ctx, actor, in.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark every notification read",
	}, func(ctx context.Context, _ *struct{}) (*body[MarkAllReadResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := h.e.MarkAllRead(ctx, actor)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(MarkAllReadResponse{Updated: n}), nil
	})
}

func (h handlers) registerProfiles(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "List profiles",
	}, func(ctx context.Context, in *struct {
		Role string `query:"role"`
	}) (*body[[]domain.Profile], error) {
		items, err := h.e.ListProfiles(ctx, domain.Role(in.Role))
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-role",
		Method:      http.MethodPatch,
		Path:        "/profiles/{id}/role",
		Summary:     "Change a profile's role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		ID   string         `path:"id"`
		Body SetRoleRequest `json:"body"`
	}) (*body[domain.Profile], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.e.SetRole(ctx, actor, in.ID, domain.Role(in.Body.Role))
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(p), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
