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

package config

// This file hosts non-user-configurable parameters, tuned for development and testing.

// RegionPrefix is the prefix of rendered region identifiers ('r0, 'r1, ...).
const RegionPrefix = "'r"

// MaxExplanationDepth bounds the length of a rendered explanation chain. Chains are acyclic by
// construction (every link points to a strictly earlier arrival), the bound only keeps
// diagnostics readable.
const MaxExplanationDepth = 32

// EntryPoint is the program point at which parameters become live.
const EntryPoint = 0
