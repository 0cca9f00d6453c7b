//  Copyright (c) 2026 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diagnostic

// Code is the reason a pointer stays raw, or the kind of a note.
type Code string

// The reason codes. They are part of the serialized plan and must never change.
const (
	// OffsetObserved: pointer arithmetic or indexing beyond a single element.
	OffsetObserved Code = "offset-observed"
	// UnresolvedCall: the pointer reaches a callee the analysis cannot see.
	UnresolvedCall Code = "unresolved-call"
	// NonUniqueAlias: another live alias may write or free the same memory.
	NonUniqueAlias Code = "non-unique-alias"
	// UnsatisfiableRegion: no lifetime can be assigned to the reference.
	UnsatisfiableRegion Code = "unsatisfiable-region"
	// ExplicitOverride: the configuration pins the pointer.
	ExplicitOverride Code = "explicit-override"
	// UnsupportedConstruct: the pointer is touched by code the analysis does not model.
	UnsupportedConstruct Code = "unsupported-construct"
	// MalformedInput: the function holding the pointer is malformed.
	MalformedInput Code = "malformed-input"
	// MissingFact: a permission or region needed to classify the pointer is missing.
	MissingFact Code = "missing-fact"
	// Unused: the pointer is never used, so there is nothing to rewrite.
	Unused Code = "unused"
	// FreeWithoutOwnership: the pointer is freed but may point to memory it does not own.
	FreeWithoutOwnership Code = "free-without-ownership"
	// InternalError: analyzing the function holding the pointer panicked.
	InternalError Code = "internal-error"
)

// Codes lists every code in a stable order.
var Codes = []Code{
	OffsetObserved,
	UnresolvedCall,
	NonUniqueAlias,
	UnsatisfiableRegion,
	ExplicitOverride,
	UnsupportedConstruct,
	MalformedInput,
	MissingFact,
	Unused,
	FreeWithoutOwnership,
	InternalError,
}
