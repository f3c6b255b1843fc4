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

	"github.com/google/uuid"
)

// StagedTaskQueueKey is the storage queue the scheduler drains. Shared
// with the execution side, must not change.
const StagedTaskQueueKey = "staged-task"

// StagedTask is the executor-facing, self-contained description of a
// runnable task. It travels through the staged queue rather than the KV
// space, so it carries no key prefix.
type StagedTask struct {
	TaskID            uuid.UUID                     `json:"task_id"`
	Executor          Executor                      `json:"executor"`
	FunctionPayload   []byte                        `json:"function_payload"`
	FunctionArguments FunctionArguments             `json:"function_arguments"`
	InputData         map[string]FunctionInputFile  `json:"input_data"`
	OutputData        map[string]FunctionOutputFile `json:"output_data"`
}

// Marshal encodes the staged task with the stable entity codec.
func (s *StagedTask) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes the staged task from the stable entity codec.
func (s *StagedTask) Unmarshal(data []byte) error {
	return json.Unmarshal(data, s)
}
