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

package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TaskStatus tracks the task lifecycle. Statuses only ever move forward:
// created → data_assigned → approved → staged → running → finished.
type TaskStatus string

const (
	TaskStatusCreated      TaskStatus = "created"
	TaskStatusDataAssigned TaskStatus = "data_assigned"
	TaskStatusApproved     TaskStatus = "approved"
	TaskStatusStaged       TaskStatus = "staged"
	TaskStatusRunning      TaskStatus = "running"
	TaskStatusFinished     TaskStatus = "finished"
)

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusFinished
}

// FunctionArguments binds declared argument names to caller values.
type FunctionArguments map[string]string

// Names returns the argument names.
func (a FunctionArguments) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	return names
}

// TaskOutputs is the success payload of a finished task.
type TaskOutputs struct {
	ReturnValue []byte                 `json:"return_value"`
	OutputTags  map[string]FileAuthTag `json:"output_tags"`
}

// TaskFailure is the failure payload of a finished task.
type TaskFailure struct {
	Reason string `json:"reason"`
}

// TaskResult is not ready until execution completes, then holds exactly
// one of the success or failure payloads.
type TaskResult struct {
	Outputs *TaskOutputs `json:"outputs,omitempty"`
	Failure *TaskFailure `json:"failure,omitempty"`
}

// Ready reports whether execution has produced a result.
func (r TaskResult) Ready() bool {
	return r.Outputs != nil || r.Failure != nil
}

// Task binds a function, its data slots and the users who must agree
// before the platform may run it.
type Task struct {
	ID                uuid.UUID             `json:"id"`
	Creator           UserID                `json:"creator"`
	FunctionID        ExternalID            `json:"function_id"`
	FunctionOwner     UserID                `json:"function_owner"`
	Executor          Executor              `json:"executor"`
	FunctionArguments FunctionArguments     `json:"function_arguments"`
	InputsOwnership   map[string]OwnerList  `json:"inputs_ownership"`
	OutputsOwnership  map[string]OwnerList  `json:"outputs_ownership"`
	AssignedInputs    map[string]ExternalID `json:"assigned_inputs"`
	AssignedOutputs   map[string]ExternalID `json:"assigned_outputs"`
	Participants      OwnerList             `json:"participants"`
	ApprovedUsers     OwnerList             `json:"approved_users"`
	Status            TaskStatus            `json:"status"`
	Result            TaskResult            `json:"result"`
}

// NewTask constructs a task against a function definition. The argument
// name set must equal the function's declared arguments, the ownership
// maps must cover exactly the declared input and output slots, every
// owner list must be non-empty, and the requested executor must support
// the function's payload type.
func NewTask(
	creator UserID,
	executor Executor,
	arguments FunctionArguments,
	inputsOwnership map[string]OwnerList,
	outputsOwnership map[string]OwnerList,
	function *Function,
) (*Task, error) {
	if !executor.Valid() {
		return nil, fmt.Errorf("unknown executor %q", executor)
	}
	if !executor.Supports(function.ExecutorType) {
		return nil, fmt.Errorf("executor %q cannot run %q functions", executor, function.ExecutorType)
	}
	if err := sameNameSet(arguments.Names(), function.Arguments, "argument"); err != nil {
		return nil, err
	}
	if err := sameNameSet(ownershipNames(inputsOwnership), function.InputNames(), "input"); err != nil {
		return nil, err
	}
	if err := sameNameSet(ownershipNames(outputsOwnership), function.OutputNames(), "output"); err != nil {
		return nil, err
	}

	participants := NewOwnerList(creator)
	for name, owners := range inputsOwnership {
		if len(owners) == 0 {
			return nil, fmt.Errorf("input slot %q has no owners", name)
		}
		participants = participants.Union(owners)
	}
	for name, owners := range outputsOwnership {
		if len(owners) == 0 {
			return nil, fmt.Errorf("output slot %q has no owners", name)
		}
		participants = participants.Union(owners)
	}

	normalizedInputs := make(map[string]OwnerList, len(inputsOwnership))
	for name, owners := range inputsOwnership {
		normalizedInputs[name] = NewOwnerList(owners...)
	}
	normalizedOutputs := make(map[string]OwnerList, len(outputsOwnership))
	for name, owners := range outputsOwnership {
		normalizedOutputs[name] = NewOwnerList(owners...)
	}

	return &Task{
		ID:                uuid.New(),
		Creator:           creator,
		FunctionID:        function.ExternalID(),
		FunctionOwner:     function.Owner,
		Executor:          executor,
		FunctionArguments: arguments,
		InputsOwnership:   normalizedInputs,
		OutputsOwnership:  normalizedOutputs,
		AssignedInputs:    map[string]ExternalID{},
		AssignedOutputs:   map[string]ExternalID{},
		Participants:      participants,
		ApprovedUsers:     OwnerList{},
		Status:            TaskStatusCreated,
	}, nil
}

func ownershipNames(ownership map[string]OwnerList) []string {
	names := make([]string, 0, len(ownership))
	for name := range ownership {
		names = append(names, name)
	}
	return names
}

func sameNameSet(got, want []string, kind string) error {
	gotSet := make(map[string]struct{}, len(got))
	for _, name := range got {
		gotSet[name] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, name := range want {
		wantSet[name] = struct{}{}
	}
	if len(gotSet) != len(wantSet) {
		return fmt.Errorf("%s names do not match the function definition", kind)
	}
	for name := range wantSet {
		if _, ok := gotSet[name]; !ok {
			return fmt.Errorf("%s %q missing", kind, name)
		}
	}
	return nil
}

// HasParticipant reports whether the user takes part in the task.
func (t *Task) HasParticipant(user UserID) bool {
	return t.Participants.Contains(user)
}

// AssignInput binds an input file to a declared slot. Legal until the
// task is approved; re-assigning a slot overwrites the previous binding.
func (t *Task) AssignInput(requester UserID, name string, file *InputFile) error {
	if err := t.assignable(); err != nil {
		return err
	}
	owners, ok := t.InputsOwnership[name]
	if !ok {
		return fmt.Errorf("task declares no input slot %q", name)
	}
	if !file.Owner.SetEqual(owners) {
		return fmt.Errorf("owners of %s do not match input slot %q", file.ExternalID(), name)
	}
	if !file.Owner.Contains(requester) {
		return fmt.Errorf("user %q does not own %s", requester, file.ExternalID())
	}
	t.AssignedInputs[name] = file.ExternalID()
	return nil
}

// AssignOutput binds an output file to a declared slot. The file must not
// be finalized yet.
func (t *Task) AssignOutput(requester UserID, name string, file *OutputFile) error {
	if err := t.assignable(); err != nil {
		return err
	}
	owners, ok := t.OutputsOwnership[name]
	if !ok {
		return fmt.Errorf("task declares no output slot %q", name)
	}
	if !file.Owner.SetEqual(owners) {
		return fmt.Errorf("owners of %s do not match output slot %q", file.ExternalID(), name)
	}
	if !file.Owner.Contains(requester) {
		return fmt.Errorf("user %q does not own %s", requester, file.ExternalID())
	}
	if file.Finalized() {
		return fmt.Errorf("output file %s is already finalized", file.ExternalID())
	}
	t.AssignedOutputs[name] = file.ExternalID()
	return nil
}

func (t *Task) assignable() error {
	if t.Status != TaskStatusCreated && t.Status != TaskStatusDataAssigned {
		return fmt.Errorf("task is %s, data can no longer be assigned", t.Status)
	}
	return nil
}

// Approve records the caller's consent. Only non-creator participants
// approve; the creator's consent is implied by creating the task.
// Approvals accumulate with set semantics, so repeats are no-ops.
func (t *Task) Approve(requester UserID) error {
	if !t.Participants.Contains(requester) {
		return fmt.Errorf("user %q is not a participant", requester)
	}
	if requester == t.Creator {
		return fmt.Errorf("creator approval is implicit")
	}
	if t.Status != TaskStatusDataAssigned {
		return fmt.Errorf("task is %s, approval not accepted", t.Status)
	}
	t.ApprovedUsers, _ = t.ApprovedUsers.Insert(requester)
	return nil
}

// RefreshStatus advances the task after an assign or approve mutation.
// A fully assigned task leaves created, and a fully approved one advances
// to approved in the same pass, which lets single-participant tasks reach
// approved directly.
func (t *Task) RefreshStatus() {
	if t.Status == TaskStatusCreated && t.fullyAssigned() {
		t.Status = TaskStatusDataAssigned
	}
	if t.Status == TaskStatusDataAssigned && t.fullyApproved() {
		t.Status = TaskStatusApproved
	}
}

func (t *Task) fullyAssigned() bool {
	for name := range t.InputsOwnership {
		if _, ok := t.AssignedInputs[name]; !ok {
			return false
		}
	}
	for name := range t.OutputsOwnership {
		if _, ok := t.AssignedOutputs[name]; !ok {
			return false
		}
	}
	return true
}

func (t *Task) fullyApproved() bool {
	return t.ApprovedUsers.ContainsAll(t.Participants.Without(t.Creator))
}

// StageForRunning materializes the executor-facing staged task and moves
// the task to staged. Only the creator stages, only from approved, and
// every assigned output is re-checked to still be open so a concurrent
// finalizer cannot slip a sealed file into execution.
func (t *Task) StageForRunning(
	requester UserID,
	function *Function,
	inputs map[string]*InputFile,
	outputs map[string]*OutputFile,
) (*StagedTask, error) {
	if requester != t.Creator {
		return nil, fmt.Errorf("only the creator invokes a task")
	}
	if t.Status != TaskStatusApproved {
		return nil, fmt.Errorf("task is %s, not approved", t.Status)
	}
	if function.ExternalID() != t.FunctionID {
		return nil, fmt.Errorf("function %s does not back this task", function.ExternalID())
	}

	inputData := make(map[string]FunctionInputFile, len(t.AssignedInputs))
	for name := range t.AssignedInputs {
		file, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("assigned input %q not resolved", name)
		}
		inputData[name] = FunctionInputFileFrom(file)
	}
	outputData := make(map[string]FunctionOutputFile, len(t.AssignedOutputs))
	for name := range t.AssignedOutputs {
		file, ok := outputs[name]
		if !ok {
			return nil, fmt.Errorf("assigned output %q not resolved", name)
		}
		if file.Finalized() {
			return nil, fmt.Errorf("output %s was finalized before staging", file.ExternalID())
		}
		outputData[name] = FunctionOutputFileFrom(file)
	}

	staged := &StagedTask{
		TaskID:            t.ID,
		Executor:          t.Executor,
		FunctionPayload:   function.Payload,
		FunctionArguments: t.FunctionArguments,
		InputData:         inputData,
		OutputData:        outputData,
	}
	t.Status = TaskStatusStaged
	return staged, nil
}

// Run marks the task as picked up by the executor.
func (t *Task) Run() error {
	if t.Status != TaskStatusStaged {
		return fmt.Errorf("task is %s, not staged", t.Status)
	}
	t.Status = TaskStatusRunning
	return nil
}

// Finish records the execution result and moves the task to its terminal
// state.
func (t *Task) Finish(result TaskResult) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("task is %s, not running", t.Status)
	}
	if !result.Ready() {
		return fmt.Errorf("finish requires a ready result")
	}
	t.Result = result
	t.Status = TaskStatusFinished
	return nil
}

// ExternalID returns the user-visible identifier of the task.
func (t *Task) ExternalID() ExternalID {
	return NewExternalID(PrefixTask, t.ID)
}

// Key returns the storage key of the task.
func (t *Task) Key() []byte {
	return t.ExternalID().Key()
}

// Marshal encodes the task with the stable entity codec.
func (t *Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// Unmarshal decodes the task from the stable entity codec.
func (t *Task) Unmarshal(data []byte) error {
	return json.Unmarshal(data, t)
}
