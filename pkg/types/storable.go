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

// Package types defines the persisted entities of the platform: input and
// output files, functions, tasks and staged tasks, together with the
// prefix-tagged key space they are stored under and the task lifecycle
// state machine.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Key prefixes identify the entity kind of every stored record. They are
// part of the compatibility surface shared with other services reading the
// same storage and must not change.
const (
	PrefixInputFile  = "input-file"
	PrefixOutputFile = "output-file"
	PrefixFunction   = "function"
	PrefixTask       = "task"
)

// ExternalID is the user-visible identifier of a persisted entity. It
// combines the kind prefix with the entity UUID; its string form doubles
// as the storage key.
type ExternalID struct {
	Prefix string
	UUID   uuid.UUID
}

// NewExternalID builds an ExternalID from a prefix and UUID.
func NewExternalID(prefix string, id uuid.UUID) ExternalID {
	return ExternalID{Prefix: prefix, UUID: id}
}

// ParseExternalID parses the "prefix-<uuid>" string form. The UUID is the
// fixed-width trailing segment, so prefixes may themselves contain dashes.
func ParseExternalID(s string) (ExternalID, error) {
	const uuidLen = 36
	if len(s) < uuidLen+2 {
		return ExternalID{}, fmt.Errorf("malformed external id %q", s)
	}
	sep := len(s) - uuidLen - 1
	if s[sep] != '-' {
		return ExternalID{}, fmt.Errorf("malformed external id %q", s)
	}
	id, err := uuid.Parse(s[sep+1:])
	if err != nil {
		return ExternalID{}, fmt.Errorf("malformed external id %q: %w", s, err)
	}
	prefix := s[:sep]
	if prefix == "" {
		return ExternalID{}, fmt.Errorf("malformed external id %q", s)
	}
	return ExternalID{Prefix: prefix, UUID: id}, nil
}

// String returns the "prefix-<uuid>" form.
func (e ExternalID) String() string {
	return e.Prefix + "-" + e.UUID.String()
}

// Key returns the storage key bytes for the entity.
func (e ExternalID) Key() []byte {
	return []byte(e.String())
}

// MatchPrefix reports whether the id belongs to the given entity kind.
func (e ExternalID) MatchPrefix(prefix string) bool {
	return e.Prefix == prefix
}

// MarshalText implements encoding.TextMarshaler so ExternalIDs embed in
// JSON documents as their string form.
func (e ExternalID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *ExternalID) UnmarshalText(text []byte) error {
	parsed, err := ParseExternalID(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Storable is the capability shared by every KV-addressed entity: a
// prefix-tagged key plus a stable, self-describing codec.
type Storable interface {
	ExternalID() ExternalID
	Key() []byte
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}
