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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/jordigilh/enclaveops/internal/errors"
	"github.com/jordigilh/enclaveops/pkg/types"
)

// Client is the typed HTTP client for the management API. The frontend
// passthrough uses it to forward authenticated requests one-to-one.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a management client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RegisterInputFile forwards RegisterInputFile.
func (c *Client) RegisterInputFile(ctx context.Context, userID types.UserID, req *RegisterInputFileRequest) (*RegisterDataResponse, error) {
	var resp RegisterDataResponse
	if err := c.do(ctx, http.MethodPost, "/v1/input-files", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterOutputFile forwards RegisterOutputFile.
func (c *Client) RegisterOutputFile(ctx context.Context, userID types.UserID, req *RegisterOutputFileRequest) (*RegisterDataResponse, error) {
	var resp RegisterDataResponse
	if err := c.do(ctx, http.MethodPost, "/v1/output-files", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterFusionOutput forwards RegisterFusionOutput.
func (c *Client) RegisterFusionOutput(ctx context.Context, userID types.UserID, req *RegisterFusionOutputRequest) (*RegisterDataResponse, error) {
	var resp RegisterDataResponse
	if err := c.do(ctx, http.MethodPost, "/v1/fusion-outputs", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterInputFromOutput forwards RegisterInputFromOutput.
func (c *Client) RegisterInputFromOutput(ctx context.Context, userID types.UserID, req *RegisterInputFromOutputRequest) (*RegisterDataResponse, error) {
	var resp RegisterDataResponse
	if err := c.do(ctx, http.MethodPost, "/v1/input-files/from-output", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetInputFile forwards GetInputFile.
func (c *Client) GetInputFile(ctx context.Context, userID types.UserID, dataID string) (*GetInputFileResponse, error) {
	var resp GetInputFileResponse
	if err := c.do(ctx, http.MethodGet, "/v1/input-files/"+dataID, userID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOutputFile forwards GetOutputFile.
func (c *Client) GetOutputFile(ctx context.Context, userID types.UserID, dataID string) (*GetOutputFileResponse, error) {
	var resp GetOutputFileResponse
	if err := c.do(ctx, http.MethodGet, "/v1/output-files/"+dataID, userID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterFunction forwards RegisterFunction.
func (c *Client) RegisterFunction(ctx context.Context, userID types.UserID, req *RegisterFunctionRequest) (*RegisterFunctionResponse, error) {
	var resp RegisterFunctionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/functions", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetFunction forwards GetFunction.
func (c *Client) GetFunction(ctx context.Context, userID types.UserID, functionID string) (*GetFunctionResponse, error) {
	var resp GetFunctionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/functions/"+functionID, userID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTask forwards CreateTask.
func (c *Client) CreateTask(ctx context.Context, userID types.UserID, req *CreateTaskRequest) (*CreateTaskResponse, error) {
	var resp CreateTaskResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask forwards GetTask.
func (c *Client) GetTask(ctx context.Context, userID types.UserID, taskID string) (*GetTaskResponse, error) {
	var resp GetTaskResponse
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/"+taskID, userID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AssignData forwards AssignData.
func (c *Client) AssignData(ctx context.Context, userID types.UserID, taskID string, req *AssignDataRequest) (*OkResponse, error) {
	var resp OkResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/assign", userID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApproveTask forwards ApproveTask.
func (c *Client) ApproveTask(ctx context.Context, userID types.UserID, taskID string) (*OkResponse, error) {
	var resp OkResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/approve", userID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InvokeTask forwards InvokeTask.
func (c *Client) InvokeTask(ctx context.Context, userID types.UserID, taskID string) (*OkResponse, error) {
	var resp OkResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/invoke", userID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, userID types.UserID, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewDataError("encode request", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(MetadataUserKey, string(userID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewStorageError("management rpc", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return apperrors.Newf(apperrors.ErrorTypeInternal, "management returned status %d", resp.StatusCode)
		}
		return &apperrors.AppError{
			Type:       apperrors.ErrorType(envelope.Error),
			Message:    envelope.Message,
			StatusCode: resp.StatusCode,
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewDataError("decode response", err)
	}
	return nil
}
