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
	"net/url"

	"github.com/google/uuid"
)

// FusionBasePlaceholder is the literal path segment embedded in synthetic
// fusion URLs. It is resolved to a concrete directory by the file agent on
// the execution side and must be spelled exactly like this on the wire.
const FusionBasePlaceholder = "TEACLAVE_FUSION_BASE"

// InputFile is an encrypted input registered by a data owner. It is
// immutable after creation; the only derivation path is from a finalized
// output file.
type InputFile struct {
	ID         uuid.UUID   `json:"id"`
	URL        string      `json:"url"`
	CMAC       FileAuthTag `json:"cmac"`
	CryptoInfo FileCrypto  `json:"crypto_info"`
	Owner      OwnerList   `json:"owner"`
}

// NewInputFile registers a new input file owned by the given users.
func NewInputFile(fileURL *url.URL, cmac FileAuthTag, cryptoInfo FileCrypto, owner OwnerList) (*InputFile, error) {
	if len(cmac) == 0 {
		return nil, fmt.Errorf("input file requires an auth tag")
	}
	if len(owner) == 0 {
		return nil, fmt.Errorf("input file requires at least one owner")
	}
	return &InputFile{
		ID:         uuid.New(),
		URL:        fileURL.String(),
		CMAC:       cmac,
		CryptoInfo: cryptoInfo,
		Owner:      NewOwnerList(owner...),
	}, nil
}

// InputFileFromOutput derives an input file from a finalized output file,
// preserving URL, crypto material, auth tag and ownership under a fresh
// identity.
func InputFileFromOutput(output *OutputFile) (*InputFile, error) {
	if output.CMAC == nil {
		return nil, fmt.Errorf("output file %s is not finalized", output.ExternalID())
	}
	return &InputFile{
		ID:         uuid.New(),
		URL:        output.URL,
		CMAC:       *output.CMAC,
		CryptoInfo: output.CryptoInfo,
		Owner:      NewOwnerList(output.Owner...),
	}, nil
}

// ExternalID returns the user-visible identifier of the file.
func (f *InputFile) ExternalID() ExternalID {
	return NewExternalID(PrefixInputFile, f.ID)
}

// Key returns the storage key of the file.
func (f *InputFile) Key() []byte {
	return f.ExternalID().Key()
}

// Marshal encodes the file with the stable entity codec.
func (f *InputFile) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal decodes the file from the stable entity codec.
func (f *InputFile) Unmarshal(data []byte) error {
	return json.Unmarshal(data, f)
}

// OutputFile is an encrypted output slot registered before execution. The
// auth tag is nil until the executor finalizes the file; only the
// finalized flag is observed here.
type OutputFile struct {
	ID         uuid.UUID    `json:"id"`
	URL        string       `json:"url"`
	CMAC       *FileAuthTag `json:"cmac,omitempty"`
	CryptoInfo FileCrypto   `json:"crypto_info"`
	Owner      OwnerList    `json:"owner"`
}

// NewOutputFile registers a new, not yet finalized output file.
func NewOutputFile(fileURL *url.URL, cryptoInfo FileCrypto, owner OwnerList) (*OutputFile, error) {
	if len(owner) == 0 {
		return nil, fmt.Errorf("output file requires at least one owner")
	}
	return &OutputFile{
		ID:         uuid.New(),
		URL:        fileURL.String(),
		CryptoInfo: cryptoInfo,
		Owner:      NewOwnerList(owner...),
	}, nil
}

// NewFusionOutputFile mints an output file shared by two or more users at
// a synthetic fusion URL with default crypto material.
func NewFusionOutputFile(owner OwnerList) (*OutputFile, error) {
	id := uuid.New()
	raw := fmt.Sprintf("fusion:///%s/%s.fusion", FusionBasePlaceholder, id)
	fusionURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("construct fusion url: %w", err)
	}
	cryptoInfo, err := DefaultFileCrypto()
	if err != nil {
		return nil, err
	}
	return &OutputFile{
		ID:         id,
		URL:        fusionURL.String(),
		CryptoInfo: cryptoInfo,
		Owner:      NewOwnerList(owner...),
	}, nil
}

// Finalized reports whether the executor has sealed the file.
func (f *OutputFile) Finalized() bool {
	return f.CMAC != nil
}

// ExternalID returns the user-visible identifier of the file.
func (f *OutputFile) ExternalID() ExternalID {
	return NewExternalID(PrefixOutputFile, f.ID)
}

// Key returns the storage key of the file.
func (f *OutputFile) Key() []byte {
	return f.ExternalID().Key()
}

// Marshal encodes the file with the stable entity codec.
func (f *OutputFile) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal decodes the file from the stable entity codec.
func (f *OutputFile) Unmarshal(data []byte) error {
	return json.Unmarshal(data, f)
}

// FunctionInputFile is the executor-facing reference to an assigned input:
// location, auth tag and crypto material, with ownership stripped.
type FunctionInputFile struct {
	URL        string      `json:"url"`
	CMAC       FileAuthTag `json:"cmac"`
	CryptoInfo FileCrypto  `json:"crypto_info"`
}

// FunctionInputFileFrom builds the executor-facing view of an input file.
func FunctionInputFileFrom(f *InputFile) FunctionInputFile {
	return FunctionInputFile{
		URL:        f.URL,
		CMAC:       f.CMAC,
		CryptoInfo: f.CryptoInfo,
	}
}

// FunctionOutputFile is the executor-facing reference to an assigned
// output slot.
type FunctionOutputFile struct {
	URL        string     `json:"url"`
	CryptoInfo FileCrypto `json:"crypto_info"`
}

// FunctionOutputFileFrom builds the executor-facing view of an output file.
func FunctionOutputFileFrom(f *OutputFile) FunctionOutputFile {
	return FunctionOutputFile{
		URL:        f.URL,
		CryptoInfo: f.CryptoInfo,
	}
}
