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
	"github.com/jordigilh/enclaveops/pkg/types"
)

// MetadataUserKey is the request metadata key carrying the authenticated
// user identifier. The frontend sets it after the authentication
// handshake resolves.
const MetadataUserKey = "id"

// RegisterInputFileRequest registers an encrypted input owned by the
// caller. The auth tag travels hex-encoded.
type RegisterInputFileRequest struct {
	URL        string           `json:"url" validate:"required,uri"`
	CMAC       string           `json:"cmac" validate:"required,hexadecimal"`
	CryptoInfo types.FileCrypto `json:"crypto_info"`
}

// RegisterOutputFileRequest registers an output slot owned by the caller.
type RegisterOutputFileRequest struct {
	URL        string           `json:"url" validate:"required,uri"`
	CryptoInfo types.FileCrypto `json:"crypto_info"`
}

// RegisterFusionOutputRequest mints an output shared by two or more
// owners at a synthetic fusion URL. The owner-list shape is part of the
// authorization rule, so it is checked in the service, not here.
type RegisterFusionOutputRequest struct {
	OwnerList []types.UserID `json:"owner_list"`
}

// RegisterInputFromOutputRequest derives an input from a finalized output.
type RegisterInputFromOutputRequest struct {
	DataID string `json:"data_id" validate:"required"`
}

// RegisterDataResponse returns the external id of a registered file.
type RegisterDataResponse struct {
	DataID string `json:"data_id"`
}

// GetInputFileResponse is the owner-facing view of an input file.
type GetInputFileResponse struct {
	Owner types.OwnerList `json:"owner"`
	CMAC  string          `json:"cmac"`
}

// GetOutputFileResponse is the owner-facing view of an output file. CMAC
// is empty until the executor finalizes the file.
type GetOutputFileResponse struct {
	Owner types.OwnerList `json:"owner"`
	CMAC  string          `json:"cmac,omitempty"`
}

// RegisterFunctionRequest registers a function definition.
type RegisterFunctionRequest struct {
	types.FunctionSpec
}

// RegisterFunctionResponse returns the external id of the function.
type RegisterFunctionResponse struct {
	FunctionID string `json:"function_id"`
}

// GetFunctionResponse is the full function definition.
type GetFunctionResponse struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Owner        types.UserID           `json:"owner"`
	Payload      []byte                 `json:"payload"`
	ExecutorType types.ExecutorType     `json:"executor_type"`
	Public       bool                   `json:"public"`
	Arguments    []string               `json:"arguments"`
	Inputs       []types.FunctionInput  `json:"inputs"`
	Outputs      []types.FunctionOutput `json:"outputs"`
}

// CreateTaskRequest binds a function, argument values and slot ownership
// into a new task.
type CreateTaskRequest struct {
	FunctionID        string                     `json:"function_id" validate:"required"`
	Executor          types.Executor             `json:"executor" validate:"required"`
	FunctionArguments types.FunctionArguments    `json:"function_arguments"`
	InputsOwnership   map[string]types.OwnerList `json:"inputs_ownership"`
	OutputsOwnership  map[string]types.OwnerList `json:"outputs_ownership"`
}

// CreateTaskResponse returns the external id of the task.
type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
}

// GetTaskResponse is the participant-facing view of a task.
type GetTaskResponse struct {
	TaskID            string                     `json:"task_id"`
	Creator           types.UserID               `json:"creator"`
	FunctionID        string                     `json:"function_id"`
	FunctionOwner     types.UserID               `json:"function_owner"`
	Executor          types.Executor             `json:"executor"`
	FunctionArguments types.FunctionArguments    `json:"function_arguments"`
	InputsOwnership   map[string]types.OwnerList `json:"inputs_ownership"`
	OutputsOwnership  map[string]types.OwnerList `json:"outputs_ownership"`
	AssignedInputs    map[string]string          `json:"assigned_inputs"`
	AssignedOutputs   map[string]string          `json:"assigned_outputs"`
	Participants      types.OwnerList            `json:"participants"`
	ApprovedUsers     types.OwnerList            `json:"approved_users"`
	Status            types.TaskStatus           `json:"status"`
	Result            types.TaskResult           `json:"result"`
}

// AssignDataRequest binds registered files to declared task slots.
type AssignDataRequest struct {
	Inputs  map[string]string `json:"inputs"`
	Outputs map[string]string `json:"outputs"`
}

// OkResponse acknowledges a mutation with no payload.
type OkResponse struct{}

// ErrorResponse is the error envelope on the wire.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
