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

// Package management implements the stateful coordinator of the platform:
// it owns tasks, functions and file metadata, enforces every ownership,
// participation and status invariant, and is the only writer of the
// storage key space those entities live in.
package management

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jordigilh/enclaveops/internal/errors"
	"github.com/jordigilh/enclaveops/pkg/storage"
	"github.com/jordigilh/enclaveops/pkg/types"
)

// Service implements the management endpoints. One instance serves all
// requests; the storage client pools connections and task mutations are
// serialized per task id.
type Service struct {
	store  storage.Store
	log    logr.Logger
	tracer trace.Tracer

	// taskLocks holds one mutex per task id, held across the
	// read-compute-write of every task mutation so concurrent writers
	// cannot lose updates. Entries live for the task's lifetime.
	taskLocks sync.Map
}

// NewService creates the management service on top of a connected store.
func NewService(store storage.Store, log logr.Logger) *Service {
	return &Service{
		store:  store,
		log:    log,
		tracer: otel.Tracer("management"),
	}
}

// RegisterInputFile creates an input file owned by the caller.
// Access control: none.
func (s *Service) RegisterInputFile(ctx context.Context, userID types.UserID, req *RegisterInputFileRequest) (*RegisterDataResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RegisterInputFile")
	defer span.End()

	fileURL, err := parseAbsoluteURL(req.URL)
	if err != nil {
		return nil, err
	}
	cmac, err := types.ParseAuthTag(req.CMAC)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError("malformed cmac")
	}
	inputFile, err := types.NewInputFile(fileURL, cmac, req.CryptoInfo, types.NewOwnerList(userID))
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}

	if err := s.writeEntity(ctx, inputFile); err != nil {
		return nil, err
	}
	return &RegisterDataResponse{DataID: inputFile.ExternalID().String()}, nil
}

// RegisterOutputFile creates an output slot owned by the caller.
// Access control: none.
func (s *Service) RegisterOutputFile(ctx context.Context, userID types.UserID, req *RegisterOutputFileRequest) (*RegisterDataResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RegisterOutputFile")
	defer span.End()

	fileURL, err := parseAbsoluteURL(req.URL)
	if err != nil {
		return nil, err
	}
	outputFile, err := types.NewOutputFile(fileURL, req.CryptoInfo, types.NewOwnerList(userID))
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}

	if err := s.writeEntity(ctx, outputFile); err != nil {
		return nil, err
	}
	return &RegisterDataResponse{DataID: outputFile.ExternalID().String()}, nil
}

// RegisterFusionOutput mints an output file shared by several owners.
// Access control: the owner list names at least two users including the
// caller.
func (s *Service) RegisterFusionOutput(ctx context.Context, userID types.UserID, req *RegisterFusionOutputRequest) (*RegisterDataResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RegisterFusionOutput")
	defer span.End()

	owners := types.NewOwnerList(req.OwnerList...)
	if len(owners) < 2 || !owners.Contains(userID) {
		return nil, apperrors.NewPermissionDeniedError("fusion outputs require at least two owners including the caller")
	}

	outputFile, err := types.NewFusionOutputFile(owners)
	if err != nil {
		return nil, apperrors.NewDataError("create fusion output", err)
	}
	if err := s.writeEntity(ctx, outputFile); err != nil {
		return nil, err
	}
	return &RegisterDataResponse{DataID: outputFile.ExternalID().String()}, nil
}

// RegisterInputFromOutput derives an input file from a finalized output.
// Access control: the caller owns the output and the output is finalized.
func (s *Service) RegisterInputFromOutput(ctx context.Context, userID types.UserID, req *RegisterInputFromOutputRequest) (*RegisterDataResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RegisterInputFromOutput")
	defer span.End()

	outputFile, err := s.readOutputFile(ctx, req.DataID)
	if err != nil {
		return nil, err
	}
	if !outputFile.Owner.Contains(userID) {
		return nil, apperrors.NewPermissionDeniedError("caller does not own the output file")
	}
	inputFile, err := types.InputFileFromOutput(outputFile)
	if err != nil {
		return nil, apperrors.NewPermissionDeniedError("output file is not finalized")
	}

	if err := s.writeEntity(ctx, inputFile); err != nil {
		return nil, err
	}
	return &RegisterDataResponse{DataID: inputFile.ExternalID().String()}, nil
}

// GetInputFile returns the owner-facing view of an input file.
// Access control: the caller owns the file.
func (s *Service) GetInputFile(ctx context.Context, userID types.UserID, dataID string) (*GetInputFileResponse, error) {
	ctx, span := s.tracer.Start(ctx, "GetInputFile")
	defer span.End()

	inputFile, err := s.readInputFile(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if !inputFile.Owner.Contains(userID) {
		return nil, apperrors.NewPermissionDeniedError("caller does not own the input file")
	}
	return &GetInputFileResponse{
		Owner: inputFile.Owner,
		CMAC:  inputFile.CMAC.String(),
	}, nil
}

// GetOutputFile returns the owner-facing view of an output file.
// Access control: the caller owns the file.
func (s *Service) GetOutputFile(ctx context.Context, userID types.UserID, dataID string) (*GetOutputFileResponse, error) {
	ctx, span := s.tracer.Start(ctx, "GetOutputFile")
	defer span.End()

	outputFile, err := s.readOutputFile(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if !outputFile.Owner.Contains(userID) {
		return nil, apperrors.NewPermissionDeniedError("caller does not own the output file")
	}
	resp := &GetOutputFileResponse{Owner: outputFile.Owner}
	if outputFile.CMAC != nil {
		resp.CMAC = outputFile.CMAC.String()
	}
	return resp, nil
}

// RegisterFunction registers a function definition owned by the caller.
// Access control: none.
func (s *Service) RegisterFunction(ctx context.Context, userID types.UserID, req *RegisterFunctionRequest) (*RegisterFunctionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RegisterFunction")
	defer span.End()

	function, err := types.NewFunction(req.FunctionSpec, userID)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	if err := s.writeEntity(ctx, function); err != nil {
		return nil, err
	}
	return &RegisterFunctionResponse{FunctionID: function.ExternalID().String()}, nil
}

// GetFunction returns a function definition.
// Access control: the function is public or the caller owns it.
func (s *Service) GetFunction(ctx context.Context, userID types.UserID, functionID string) (*GetFunctionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "GetFunction")
	defer span.End()

	function, err := s.readFunction(ctx, functionID)
	if err != nil {
		return nil, err
	}
	if !function.Accessible(userID) {
		return nil, apperrors.NewPermissionDeniedError("function is private")
	}
	return &GetFunctionResponse{
		Name:         function.Name,
		Description:  function.Description,
		Owner:        function.Owner,
		Payload:      function.Payload,
		ExecutorType: function.ExecutorType,
		Public:       function.Public,
		Arguments:    function.Arguments,
		Inputs:       function.Inputs,
		Outputs:      function.Outputs,
	}, nil
}

// CreateTask constructs a task bound to a function the caller may use.
// Access control: the function is public or owned by the caller; the
// argument names and slot ownership maps must match the function
// definition exactly.
func (s *Service) CreateTask(ctx context.Context, userID types.UserID, req *CreateTaskRequest) (*CreateTaskResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CreateTask")
	defer span.End()

	function, err := s.readFunction(ctx, req.FunctionID)
	if err != nil {
		return nil, err
	}
	if !function.Accessible(userID) {
		return nil, apperrors.NewPermissionDeniedError("function is private")
	}

	task, err := types.NewTask(userID, req.Executor, req.FunctionArguments, req.InputsOwnership, req.OutputsOwnership, function)
	if err != nil {
		return nil, apperrors.NewBadTaskError(err.Error())
	}

	s.log.Info("task created", "task_id", task.ExternalID().String(), "creator", userID, "function_id", task.FunctionID.String())

	if err := s.writeEntity(ctx, task); err != nil {
		return nil, err
	}
	return &CreateTaskResponse{TaskID: task.ExternalID().String()}, nil
}

// GetTask returns the participant-facing view of a task.
// Access control: the caller is a participant.
func (s *Service) GetTask(ctx context.Context, userID types.UserID, taskID string) (*GetTaskResponse, error) {
	ctx, span := s.tracer.Start(ctx, "GetTask")
	defer span.End()

	task, err := s.readTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.HasParticipant(userID) {
		return nil, apperrors.NewPermissionDeniedError("caller is not a participant")
	}
	return taskView(task), nil
}

// AssignData binds registered files to the task's declared slots. All
// entries are applied to an in-memory copy and persisted with a single
// write, so a rejected entry leaves the stored task untouched.
// Access control: the caller is a participant, the task still accepts
// data, and every entry satisfies the slot rules.
func (s *Service) AssignData(ctx context.Context, userID types.UserID, taskID string, req *AssignDataRequest) (*OkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "AssignData")
	defer span.End()

	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.readTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.HasParticipant(userID) {
		return nil, apperrors.NewPermissionDeniedError("caller is not a participant")
	}

	for name, dataID := range req.Inputs {
		file, err := s.readInputFile(ctx, dataID)
		if err != nil {
			return nil, err
		}
		if err := task.AssignInput(userID, name, file); err != nil {
			return nil, apperrors.NewPermissionDeniedError(err.Error())
		}
	}
	for name, dataID := range req.Outputs {
		file, err := s.readOutputFile(ctx, dataID)
		if err != nil {
			return nil, err
		}
		if err := task.AssignOutput(userID, name, file); err != nil {
			return nil, apperrors.NewPermissionDeniedError(err.Error())
		}
	}

	task.RefreshStatus()

	s.log.Info("data assigned", "task_id", task.ExternalID().String(), "user", userID, "status", task.Status)

	if err := s.writeEntity(ctx, task); err != nil {
		return nil, err
	}
	return &OkResponse{}, nil
}

// ApproveTask records the caller's consent to run the task.
// Access control: the caller is a non-creator participant and the task
// has all data assigned.
func (s *Service) ApproveTask(ctx context.Context, userID types.UserID, taskID string) (*OkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ApproveTask")
	defer span.End()

	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.readTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.Approve(userID); err != nil {
		return nil, apperrors.NewPermissionDeniedError(err.Error())
	}
	task.RefreshStatus()

	s.log.Info("task approved", "task_id", task.ExternalID().String(), "user", userID, "status", task.Status)

	if err := s.writeEntity(ctx, task); err != nil {
		return nil, err
	}
	return &OkResponse{}, nil
}

// InvokeTask materializes the staged task, enqueues it for the executor
// and moves the task to staged.
// Access control: the caller is the creator and the task is approved.
func (s *Service) InvokeTask(ctx context.Context, userID types.UserID, taskID string) (*OkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "InvokeTask")
	defer span.End()

	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.readTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Creator != userID {
		return nil, apperrors.NewPermissionDeniedError("only the creator invokes a task")
	}
	if task.Status != types.TaskStatusApproved {
		return nil, apperrors.NewPermissionDeniedError("task is not approved")
	}

	function, err := s.readFunction(ctx, task.FunctionID.String())
	if err != nil {
		return nil, err
	}

	inputs := make(map[string]*types.InputFile, len(task.AssignedInputs))
	for name, dataID := range task.AssignedInputs {
		file, err := s.readInputFile(ctx, dataID.String())
		if err != nil {
			return nil, err
		}
		inputs[name] = file
	}
	outputs := make(map[string]*types.OutputFile, len(task.AssignedOutputs))
	for name, dataID := range task.AssignedOutputs {
		file, err := s.readOutputFile(ctx, dataID.String())
		if err != nil {
			return nil, err
		}
		outputs[name] = file
	}

	staged, err := task.StageForRunning(userID, function, inputs, outputs)
	if err != nil {
		return nil, apperrors.NewPermissionDeniedError(err.Error())
	}

	s.log.Info("task staged", "task_id", task.ExternalID().String(), "executor", staged.Executor)

	if err := s.enqueueStagedTask(ctx, staged); err != nil {
		return nil, err
	}
	if err := s.writeEntity(ctx, task); err != nil {
		return nil, err
	}
	return &OkResponse{}, nil
}

func taskView(task *types.Task) *GetTaskResponse {
	assignedInputs := make(map[string]string, len(task.AssignedInputs))
	for name, id := range task.AssignedInputs {
		assignedInputs[name] = id.String()
	}
	assignedOutputs := make(map[string]string, len(task.AssignedOutputs))
	for name, id := range task.AssignedOutputs {
		assignedOutputs[name] = id.String()
	}
	return &GetTaskResponse{
		TaskID:            task.ExternalID().String(),
		Creator:           task.Creator,
		FunctionID:        task.FunctionID.String(),
		FunctionOwner:     task.FunctionOwner,
		Executor:          task.Executor,
		FunctionArguments: task.FunctionArguments,
		InputsOwnership:   task.InputsOwnership,
		OutputsOwnership:  task.OutputsOwnership,
		AssignedInputs:    assignedInputs,
		AssignedOutputs:   assignedOutputs,
		Participants:      task.Participants,
		ApprovedUsers:     task.ApprovedUsers,
		Status:            task.Status,
		Result:            task.Result,
	}
}

func (s *Service) lockTask(taskID string) func() {
	v, _ := s.taskLocks.LoadOrStore(taskID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		return nil, apperrors.NewInvalidRequestError("malformed url")
	}
	return parsed, nil
}

// writeEntity persists an entity under its prefix-tagged key. Codec and
// transport failures both surface as storage errors.
func (s *Service) writeEntity(ctx context.Context, entity types.Storable) error {
	value, err := entity.Marshal()
	if err != nil {
		return apperrors.NewStorageError("encode "+entity.ExternalID().Prefix, err)
	}
	if err := s.store.Put(ctx, entity.Key(), value); err != nil {
		return apperrors.NewStorageError("put "+entity.ExternalID().Prefix, err)
	}
	return nil
}

// readEntity loads an entity, insisting the id carries the expected
// prefix. An id that does not parse is an invalid request; a missing key,
// a prefix mismatch and an undecodable record are all reported as
// permission denied so callers cannot probe the key space.
func (s *Service) readEntity(ctx context.Context, rawID, prefix string, entity types.Storable) error {
	eid, err := types.ParseExternalID(rawID)
	if err != nil {
		return apperrors.NewInvalidRequestError("malformed data id")
	}
	if !eid.MatchPrefix(prefix) {
		return apperrors.NewPermissionDeniedError("unknown data id").WithDetailsf("prefix %q does not match %q", eid.Prefix, prefix)
	}
	value, err := s.store.Get(ctx, eid.Key())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewPermissionDeniedError("unknown data id")
		}
		return apperrors.NewStorageError("get "+prefix, err)
	}
	if err := entity.Unmarshal(value); err != nil {
		return apperrors.NewPermissionDeniedError("unknown data id").WithDetails(err.Error())
	}
	return nil
}

func (s *Service) readInputFile(ctx context.Context, dataID string) (*types.InputFile, error) {
	var file types.InputFile
	if err := s.readEntity(ctx, dataID, types.PrefixInputFile, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *Service) readOutputFile(ctx context.Context, dataID string) (*types.OutputFile, error) {
	var file types.OutputFile
	if err := s.readEntity(ctx, dataID, types.PrefixOutputFile, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *Service) readFunction(ctx context.Context, functionID string) (*types.Function, error) {
	var function types.Function
	if err := s.readEntity(ctx, functionID, types.PrefixFunction, &function); err != nil {
		return nil, err
	}
	return &function, nil
}

func (s *Service) readTask(ctx context.Context, taskID string) (*types.Task, error) {
	var task types.Task
	if err := s.readEntity(ctx, taskID, types.PrefixTask, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Service) enqueueStagedTask(ctx context.Context, staged *types.StagedTask) error {
	value, err := staged.Marshal()
	if err != nil {
		return apperrors.NewDataError("encode staged task", err)
	}
	if err := s.store.Enqueue(ctx, []byte(types.StagedTaskQueueKey), value); err != nil {
		return apperrors.NewStorageError("enqueue staged task", err)
	}
	return nil
}
