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

package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Parallel()

	var q Queue[string]
	require.True(t, q.Empty())
	q.Push("main")
	q.Push("helper")
	require.Equal(t, 2, q.Len())
	require.Equal(t, "main", q.Pop())
	q.Push("leaf")
	require.Equal(t, "helper", q.Pop())
	require.Equal(t, "leaf", q.Pop())
	require.True(t, q.Empty())
	require.PanicsWithValue(t, ErrEmpty, func() { q.Pop() })
}
