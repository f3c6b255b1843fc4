/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package frontend is the client-facing shell of the platform. It
// authenticates each caller against the Authentication Service, rewrites
// the request with the resolved user id and forwards every management
// endpoint one-to-one. It adds no authorization of its own; failure
// semantics mirror management.
package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"

	apperrors "github.com/jordigilh/enclaveops/internal/errors"
	"github.com/jordigilh/enclaveops/pkg/auth"
	"github.com/jordigilh/enclaveops/pkg/management"
	"github.com/jordigilh/enclaveops/pkg/types"
)

// MetadataTokenKey is the request metadata key carrying the caller's
// authentication token. It is consumed here and never forwarded.
const MetadataTokenKey = "token"

// Service forwards authenticated requests to the management service.
type Service struct {
	mgmt *management.Client
	auth auth.Authenticator
	log  logr.Logger
}

// NewService creates the frontend passthrough.
func NewService(mgmt *management.Client, authenticator auth.Authenticator, log logr.Logger) *Service {
	return &Service{
		mgmt: mgmt,
		auth: authenticator,
		log:  log,
	}
}

// NewRouter builds the client-facing router. Routes mirror the
// management API exactly.
func NewRouter(svc *Service, log logr.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", management.MetadataUserKey, MetadataTokenKey},
	}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/input-files", svc.registerInputFile)
		r.Post("/output-files", svc.registerOutputFile)
		r.Post("/fusion-outputs", svc.registerFusionOutput)
		r.Post("/input-files/from-output", svc.registerInputFromOutput)
		r.Get("/input-files/{dataID}", svc.getInputFile)
		r.Get("/output-files/{dataID}", svc.getOutputFile)
		r.Post("/functions", svc.registerFunction)
		r.Get("/functions/{functionID}", svc.getFunction)
		r.Post("/tasks", svc.createTask)
		r.Get("/tasks/{taskID}", svc.getTask)
		r.Post("/tasks/{taskID}/assign", svc.assignData)
		r.Post("/tasks/{taskID}/approve", svc.approveTask)
		r.Post("/tasks/{taskID}/invoke", svc.invokeTask)
	})
	return r
}

// authenticate resolves the caller's credential into a trusted user id.
func (s *Service) authenticate(r *http.Request) (types.UserID, error) {
	cred := auth.Credential{
		ID:    r.Header.Get(management.MetadataUserKey),
		Token: r.Header.Get(MetadataTokenKey),
	}
	if cred.ID == "" || cred.Token == "" {
		return "", apperrors.NewInvalidRequestError("missing credential metadata")
	}
	if err := s.auth.Authenticate(r.Context(), cred); err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			return "", apperrors.NewPermissionDeniedError("authentication failed")
		}
		return "", apperrors.NewStorageError("authentication service", err)
	}
	return types.UserID(cred.ID), nil
}

func (s *Service) registerInputFile(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		var req management.RegisterInputFileRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return s.mgmt.RegisterInputFile(ctx, userID, &req)
	})
}

func (s *Service) registerOutputFile(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		var req management.RegisterOutputFileRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return s.mgmt.RegisterOutputFile(ctx, userID, &req)
	})
}

func (s *Service) registerFusionOutput(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		var req management.RegisterFusionOutputRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return s.mgmt.RegisterFusionOutput(ctx, userID, &req)
	})
}

func (s *Service) registerInputFromOutput(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		var req management.RegisterInputFromOutputRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return s.mgmt.RegisterInputFromOutput(ctx, userID, &req)
	})
}

func (s *Service) getInputFile(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		return s.mgmt.GetInputFile(ctx, userID, chi.URLParam(r, "dataID"))
	})
}

func (s *Service) getOutputFile(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		return s.mgmt.GetOutputFile(ctx, userID, chi.URLParam(r, "dataID"))
	})
}

func (s *Service) registerFunction(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		var req management.RegisterFunctionRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return s.mgmt.RegisterFunction(ctx, userID, &req)
	})
}

func (s *Service) getFunction(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		return s.mgmt.GetFunction(ctx, userID, chi.URLParam(r, "functionID"))
	})
}

func (s *Service) createTask(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		var req management.CreateTaskRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return s.mgmt.CreateTask(ctx, userID, &req)
	})
}

func (s *Service) getTask(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		return s.mgmt.GetTask(ctx, userID, chi.URLParam(r, "taskID"))
	})
}

func (s *Service) assignData(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		var req management.AssignDataRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return s.mgmt.AssignData(ctx, userID, chi.URLParam(r, "taskID"), &req)
	})
}

func (s *Service) approveTask(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		return s.mgmt.ApproveTask(ctx, userID, chi.URLParam(r, "taskID"))
	})
}

func (s *Service) invokeTask(w http.ResponseWriter, r *http.Request) {
	forward(s, w, r, func(ctx context.Context, userID types.UserID) (interface{}, error) {
		return s.mgmt.InvokeTask(ctx, userID, chi.URLParam(r, "taskID"))
	})
}

// forward authenticates the caller and relays the call, mirroring the
// management response or error envelope unchanged.
func forward(s *Service, w http.ResponseWriter, r *http.Request, call func(ctx context.Context, userID types.UserID) (interface{}, error)) {
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	resp, err := call(r.Context(), userID)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, resp)
}

func decode(r *http.Request, req interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return apperrors.NewInvalidRequestError("malformed request body")
	}
	return nil
}

func writeError(log logr.Logger, w http.ResponseWriter, err error) {
	log.Info("request failed", "error", err.Error(), "error_type", string(apperrors.GetType(err)))
	writeJSON(log, w, apperrors.GetStatusCode(err), management.ErrorResponse{
		Error:   string(apperrors.GetType(err)),
		Message: apperrors.SafeErrorMessage(err),
	})
}

func writeJSON(log logr.Logger, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error(err, "encode response")
	}
}
