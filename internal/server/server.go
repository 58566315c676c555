package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"dutyline/internal/engine"
	"dutyline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"dutyId is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope for the manager API.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Dutyline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Dutyline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	// The dashboard-facing endpoints keep their exact wire contract, so they
	// bypass huma and answer on the router directly.
	registerCore(router, basePath, cfg.Engine)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDuties(group, cfg.Engine)
	registerClients(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", ve.Message, map[string]any{"field": ve.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			spec, _ = json.Marshal(api.OpenAPI())
		})
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
    <title>Dutyline API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
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
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDuties(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-duty",
		Method:        http.MethodPost,
		Path:          "/duties",
		Summary:       "Create duty",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDutyRequest `json:"body"`
	}) (*struct {
		Body DutyResponse `json:"body"`
	}, error) {
		if authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDuty(ctx, engine.DutyCreateOptions{
			ClientID:           input.Body.ClientID,
			Title:              input.Body.Title,
			Description:        stringOrEmpty(input.Body.Description),
			DueDate:            stringOrEmpty(input.Body.DueDate),
			Frequency:          stringOrEmpty(input.Body.Frequency),
			RequiresAttachment: input.Body.RequiresAttachment,
			NotesRequired:      input.Body.NotesRequired,
			AssignedTo:         stringOrEmpty(input.Body.AssignedTo),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DutyResponse `json:"body"`
		}{Body: dutyResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-duty",
		Method:      http.MethodGet,
		Path:        "/duties/{duty_id}",
		Summary:     "Get duty",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DutyID string `path:"duty_id"`
	}) (*struct {
		Body DutyRowResponse `json:"body"`
	}, error) {
		row, err := e.Repo.GetDutyRow(ctx, input.DutyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DutyRowResponse `json:"body"`
		}{Body: dutyRowResponse(row)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-duty",
		Method:      http.MethodPatch,
		Path:        "/duties/{duty_id}",
		Summary:     "Update duty",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		DutyID string            `path:"duty_id"`
		Body   UpdateDutyRequest `json:"body"`
	}) (*struct {
		Body DutyResponse `json:"body"`
	}, error) {
		if authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.UpdateDuty(ctx, input.DutyID, engine.DutyUpdateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Frequency:   input.Body.Frequency,
			Status:      input.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DutyResponse `json:"body"`
		}{Body: dutyResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-duty",
		Method:      http.MethodPost,
		Path:        "/duties/{duty_id}/assign",
		Summary:     "Assign duty",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		DutyID string `path:"duty_id"`
		Body   struct {
			AssignedTo *string `json:"assignedTo"`
		} `json:"body"`
	}) (*struct {
		Body DutyResponse `json:"body"`
	}, error) {
		if authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.AssignDuty(ctx, input.DutyID, stringOrEmpty(input.Body.AssignedTo))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DutyResponse `json:"body"`
		}{Body: dutyResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-duty",
		Method:      http.MethodPost,
		Path:        "/duties/{duty_id}/archive",
		Summary:     "Archive duty",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		DutyID string `path:"duty_id"`
	}) (*struct {
		Body DutyResponse `json:"body"`
	}, error) {
		if authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.ArchiveDuty(ctx, input.DutyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DutyResponse `json:"body"`
		}{Body: dutyResponse(d)}, nil
	})
}

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ClientResponse `json:"body"`
	}, error) {
		if authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		rows, err := e.Repo.ListClientRows(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ClientResponse, 0, len(rows))
		for _, row := range rows {
			res = append(res, clientResponse(row))
		}
		return &struct {
			Body []ClientResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List assignable users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		users, err := e.Repo.ListAssignableUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]UserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, UserResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: res}, nil
	})
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
