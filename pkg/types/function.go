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

// ExecutorType classifies the runtime a function payload targets.
type ExecutorType string

const (
	ExecutorTypePython ExecutorType = "python"
	ExecutorTypeNative ExecutorType = "native"
)

// Executor names a concrete execution engine.
type Executor string

const (
	ExecutorMesaPy  Executor = "mesapy"
	ExecutorBuiltin Executor = "builtin"
)

// executorTypes maps each engine to the payload type it can run.
var executorTypes = map[Executor]ExecutorType{
	ExecutorMesaPy:  ExecutorTypePython,
	ExecutorBuiltin: ExecutorTypeNative,
}

// Supports reports whether the executor can run payloads of the given type.
func (e Executor) Supports(t ExecutorType) bool {
	return executorTypes[e] == t
}

// Valid reports whether the executor names a known engine.
func (e Executor) Valid() bool {
	_, ok := executorTypes[e]
	return ok
}

// FunctionInput declares a named input slot of a function.
type FunctionInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FunctionOutput declares a named output slot of a function.
type FunctionOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FunctionSpec is the caller-supplied definition of a function.
type FunctionSpec struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Payload      []byte           `json:"payload"`
	ExecutorType ExecutorType     `json:"executor_type"`
	Public       bool             `json:"public"`
	Arguments    []string         `json:"arguments"`
	Inputs       []FunctionInput  `json:"inputs"`
	Outputs      []FunctionOutput `json:"outputs"`
}

// Function is a registered, KV-addressed function definition.
type Function struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Payload      []byte           `json:"payload"`
	ExecutorType ExecutorType     `json:"executor_type"`
	Public       bool             `json:"public"`
	Owner        UserID           `json:"owner"`
	Arguments    []string         `json:"arguments"`
	Inputs       []FunctionInput  `json:"inputs"`
	Outputs      []FunctionOutput `json:"outputs"`
}

// NewFunction mints a function from a spec with a fresh identity and the
// registering user as owner. Slot names within inputs and within outputs
// must be unique.
func NewFunction(spec FunctionSpec, owner UserID) (*Function, error) {
	if err := uniqueSlotNames(spec); err != nil {
		return nil, err
	}
	f := &Function{
		ID:           uuid.New(),
		Name:         spec.Name,
		Description:  spec.Description,
		Payload:      spec.Payload,
		ExecutorType: spec.ExecutorType,
		Public:       spec.Public,
		Owner:        owner,
		Arguments:    spec.Arguments,
		Inputs:       spec.Inputs,
		Outputs:      spec.Outputs,
	}
	return f, nil
}

func uniqueSlotNames(spec FunctionSpec) error {
	names := make(map[string]struct{}, len(spec.Inputs))
	for _, in := range spec.Inputs {
		if _, dup := names[in.Name]; dup {
			return fmt.Errorf("duplicate input slot %q", in.Name)
		}
		names[in.Name] = struct{}{}
	}
	names = make(map[string]struct{}, len(spec.Outputs))
	for _, out := range spec.Outputs {
		if _, dup := names[out.Name]; dup {
			return fmt.Errorf("duplicate output slot %q", out.Name)
		}
		names[out.Name] = struct{}{}
	}
	return nil
}

// InputNames returns the declared input slot names.
func (f *Function) InputNames() []string {
	names := make([]string, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		names = append(names, in.Name)
	}
	return names
}

// OutputNames returns the declared output slot names.
func (f *Function) OutputNames() []string {
	names := make([]string, 0, len(f.Outputs))
	for _, out := range f.Outputs {
		names = append(names, out.Name)
	}
	return names
}

// Accessible reports whether the user may read the function.
func (f *Function) Accessible(user UserID) bool {
	return f.Public || f.Owner == user
}

// ExternalID returns the user-visible identifier of the function.
func (f *Function) ExternalID() ExternalID {
	return NewExternalID(PrefixFunction, f.ID)
}

// Key returns the storage key of the function.
func (f *Function) Key() []byte {
	return f.ExternalID().Key()
}

// Marshal encodes the function with the stable entity codec.
func (f *Function) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal decodes the function from the stable entity codec.
func (f *Function) Unmarshal(data []byte) error {
	return json.Unmarshal(data, f)
}
