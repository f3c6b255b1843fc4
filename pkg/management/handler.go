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

package management

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/jordigilh/enclaveops/internal/errors"
	"github.com/jordigilh/enclaveops/pkg/types"
)

// Handler adapts the management service onto HTTP. Requests carry the
// authenticated user in the metadata header; bodies and responses are
// JSON; errors use the shared envelope.
type Handler struct {
	svc      *Service
	log      logr.Logger
	validate *validator.Validate
}

// NewRouter builds the management API router.
func NewRouter(svc *Service, log logr.Logger) chi.Router {
	h := &Handler{
		svc:      svc,
		log:      log,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(instrumentHandler)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/input-files", h.registerInputFile)
		r.Post("/output-files", h.registerOutputFile)
		r.Post("/fusion-outputs", h.registerFusionOutput)
		r.Post("/input-files/from-output", h.registerInputFromOutput)
		r.Get("/input-files/{dataID}", h.getInputFile)
		r.Get("/output-files/{dataID}", h.getOutputFile)
		r.Post("/functions", h.registerFunction)
		r.Get("/functions/{functionID}", h.getFunction)
		r.Post("/tasks", h.createTask)
		r.Get("/tasks/{taskID}", h.getTask)
		r.Post("/tasks/{taskID}/assign", h.assignData)
		r.Post("/tasks/{taskID}/approve", h.approveTask)
		r.Post("/tasks/{taskID}/invoke", h.invokeTask)
	})
	return r
}

func (h *Handler) registerInputFile(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req RegisterInputFileRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.RegisterInputFile(r.Context(), userID, &req)
	h.respond(w, resp, err)
}

func (h *Handler) registerOutputFile(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req RegisterOutputFileRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.RegisterOutputFile(r.Context(), userID, &req)
	h.respond(w, resp, err)
}

func (h *Handler) registerFusionOutput(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req RegisterFusionOutputRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.RegisterFusionOutput(r.Context(), userID, &req)
	h.respond(w, resp, err)
}

func (h *Handler) registerInputFromOutput(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req RegisterInputFromOutputRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.RegisterInputFromOutput(r.Context(), userID, &req)
	h.respond(w, resp, err)
}

func (h *Handler) getInputFile(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.GetInputFile(r.Context(), userID, chi.URLParam(r, "dataID"))
	h.respond(w, resp, err)
}

func (h *Handler) getOutputFile(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.GetOutputFile(r.Context(), userID, chi.URLParam(r, "dataID"))
	h.respond(w, resp, err)
}

func (h *Handler) registerFunction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req RegisterFunctionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.RegisterFunction(r.Context(), userID, &req)
	h.respond(w, resp, err)
}

func (h *Handler) getFunction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.GetFunction(r.Context(), userID, chi.URLParam(r, "functionID"))
	h.respond(w, resp, err)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req CreateTaskRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.CreateTask(r.Context(), userID, &req)
	h.respond(w, resp, err)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.GetTask(r.Context(), userID, chi.URLParam(r, "taskID"))
	h.respond(w, resp, err)
}

func (h *Handler) assignData(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req AssignDataRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.AssignData(r.Context(), userID, chi.URLParam(r, "taskID"), &req)
	h.respond(w, resp, err)
}

func (h *Handler) approveTask(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.ApproveTask(r.Context(), userID, chi.URLParam(r, "taskID"))
	h.respond(w, resp, err)
}

func (h *Handler) invokeTask(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.svc.InvokeTask(r.Context(), userID, chi.URLParam(r, "taskID"))
	h.respond(w, resp, err)
}

func (h *Handler) userFrom(r *http.Request) (types.UserID, error) {
	userID := r.Header.Get(MetadataUserKey)
	if userID == "" {
		return "", apperrors.NewInvalidRequestError("missing user metadata")
	}
	return types.UserID(userID), nil
}

func (h *Handler) decode(r *http.Request, req interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return apperrors.NewInvalidRequestError("malformed request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewInvalidRequestError("invalid request").WithDetails(err.Error())
	}
	return nil
}

func (h *Handler) respond(w http.ResponseWriter, resp interface{}, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.log.Info("request failed", logFieldsFlat(err)...)
	h.writeJSON(w, apperrors.GetStatusCode(err), ErrorResponse{
		Error:   string(apperrors.GetType(err)),
		Message: apperrors.SafeErrorMessage(err),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error(err, "encode response")
	}
}

func logFieldsFlat(err error) []interface{} {
	fields := apperrors.LogFields(err)
	flat := make([]interface{}, 0, len(fields)*2)
	for key, value := range fields {
		flat = append(flat, key, value)
	}
	return flat
}
