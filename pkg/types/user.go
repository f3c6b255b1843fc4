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

import "sort"

// UserID identifies an authenticated platform user. It is the only output
// of the authentication handshake that the core consumes.
type UserID string

// OwnerList is an unordered, duplicate-free set of users. It is used for
// file ownership, task slot ownership, task participants and approvals.
// The JSON form is a sorted array so encoded entities stay deterministic.
type OwnerList []UserID

// NewOwnerList normalizes the given users into an OwnerList, deduplicating
// and sorting them.
func NewOwnerList(users ...UserID) OwnerList {
	seen := make(map[UserID]struct{}, len(users))
	out := make(OwnerList, 0, len(users))
	for _, u := range users {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether u is a member of the list.
func (l OwnerList) Contains(u UserID) bool {
	for _, member := range l {
		if member == u {
			return true
		}
	}
	return false
}

// Insert adds u to the list with set semantics, returning the updated list
// and whether the membership changed.
func (l OwnerList) Insert(u UserID) (OwnerList, bool) {
	if l.Contains(u) {
		return l, false
	}
	return NewOwnerList(append(append(OwnerList{}, l...), u)...), true
}

// Union returns the set union of l and other.
func (l OwnerList) Union(other OwnerList) OwnerList {
	return NewOwnerList(append(append(OwnerList{}, l...), other...)...)
}

// Without returns the members of l except u.
func (l OwnerList) Without(u UserID) OwnerList {
	out := make(OwnerList, 0, len(l))
	for _, member := range l {
		if member != u {
			out = append(out, member)
		}
	}
	return out
}

// SetEqual reports whether l and other contain exactly the same members,
// ignoring order and duplicates.
func (l OwnerList) SetEqual(other OwnerList) bool {
	a := NewOwnerList(l...)
	b := NewOwnerList(other...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ContainsAll reports whether every member of other is a member of l.
func (l OwnerList) ContainsAll(other OwnerList) bool {
	for _, u := range other {
		if !l.Contains(u) {
			return false
		}
	}
	return true
}
