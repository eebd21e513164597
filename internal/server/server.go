// Package server exposes the experiment over HTTP. The handler wraps one
// orchestrator instance; workers call it to draw trials and report results.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"sweep/internal/experiment"
	"sweep/internal/search"
	"sweep/internal/space"
	"sweep/internal/store"
	"sweep/internal/trial"
)

// Config for the HTTP API handler.
type Config struct {
	Experiment *experiment.Experiment
	BasePath   string
	Auth       AuthConfig
}

type apiErrorBody struct {
	Code    string `json:"code" example:"conflict"`
	Message string `json:"message" example:"trial already complete"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, store.ErrDuplicate):
		return newAPIError(http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, search.ErrNoProposal),
		errors.Is(err, space.ErrScope),
		errors.Is(err, space.ErrDomain):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
}

// New returns an HTTP handler exposing the experiment API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Sweep API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerExperiment(group, cfg.Experiment)
	registerTrials(group, cfg.Experiment)

	return router, nil
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

func (e ExperimentPath) check(exp *experiment.Experiment) huma.StatusError {
	if e.Key != exp.Key {
		return newAPIError(http.StatusNotFound, "not_found", "experiment "+e.Key+" not found")
	}
	return nil
}

type ExperimentPath struct {
	Key string `path:"key"`
}

func registerExperiment(api huma.API, exp *experiment.Experiment) {
	huma.Register(api, huma.Operation{
		OperationID: "get-experiment",
		Method:      http.MethodGet,
		Path:        "/experiments/{key}",
		Summary:     "Get experiment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ExperimentPath) (*struct {
		Body store.Experiment `json:"body"`
	}, error) {
		if err := input.check(exp); err != nil {
			return nil, err
		}
		return &struct {
			Body store.Experiment `json:"body"`
		}{Body: exp.Record()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-optimum",
		Method:      http.MethodGet,
		Path:        "/experiments/{key}/optimum",
		Summary:     "Best complete trial",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ExperimentPath) (*struct {
		Body trial.Trial `json:"body"`
	}, error) {
		if err := input.check(exp); err != nil {
			return nil, err
		}
		t, err := exp.Optimum(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body trial.Trial `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-trials",
		Method:      http.MethodGet,
		Path:        "/experiments/{key}/trials",
		Summary:     "List trials",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ExperimentPath
		State string `query:"state"`
	}) (*struct {
		Body []trial.Trial `json:"body"`
	}, error) {
		if err := input.check(exp); err != nil {
			return nil, err
		}
		var states []trial.State
		if input.State != "" {
			states = append(states, trial.State(input.State))
		}
		items, err := exp.Trials(ctx, states...)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []trial.Trial{}
		}
		return &struct {
			Body []trial.Trial `json:"body"`
		}{Body: items}, nil
	})
}

func registerTrials(api huma.API, exp *experiment.Experiment) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-trial",
		Method:        http.MethodPost,
		Path:          "/experiments/{key}/trials",
		Summary:       "Generate the next trial",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *ExperimentPath) (*struct {
		Body trial.Trial `json:"body"`
	}, error) {
		if err := input.check(exp); err != nil {
			return nil, err
		}
		t, err := exp.Generate(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body trial.Trial `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-trial",
		Method:      http.MethodPost,
		Path:        "/trials/{id}/complete",
		Summary:     "Record a trial objective",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Objective float64 `json:"objective"`
		} `json:"body"`
	}) (*struct {
		Body trial.Trial `json:"body"`
	}, error) {
		if err := exp.Complete(ctx, input.ID, input.Body.Objective); err != nil {
			return nil, handleError(err)
		}
		t, err := exp.Store.GetTrial(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body trial.Trial `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fail-trial",
		Method:      http.MethodPost,
		Path:        "/trials/{id}/fail",
		Summary:     "Mark a trial failed",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Reason string `json:"reason,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body trial.Trial `json:"body"`
	}, error) {
		if err := exp.Fail(ctx, input.ID, input.Body.Reason); err != nil {
			return nil, handleError(err)
		}
		t, err := exp.Store.GetTrial(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body trial.Trial `json:"body"`
		}{Body: t}, nil
	})
}
