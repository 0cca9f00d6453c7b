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

package rewrite

import (
	"fmt"

	"go.uber.org/ptrperm/ir"
)

// typeName renders a type of the input program. Named types keep their name.
func typeName(t *ir.Type) string {
	if t == nil {
		return "?"
	}
	switch t.Kind {
	case ir.TypeVoid:
		return "c_void"
	case ir.TypePtr:
		return rawPointer(t.Mut, typeName(t.Elem))
	case ir.TypeArray:
		return fmt.Sprintf("[%s; %d]", typeName(t.Elem), t.Len)
	case ir.TypeFn:
		if t.Name != "" {
			return "fn " + t.Name
		}
		return "fn()"
	}
	if t.Name != "" {
		return t.Name
	}
	return string(t.Kind)
}

func rawPointer(mut bool, elem string) string {
	if mut {
		return "*mut " + elem
	}
	return "*const " + elem
}

// render renders a pointer type rewritten to kind, pointing to elem.
func render(kind Kind, region string, mut bool, elem string) string {
	switch kind {
	case SharedRef:
		return "&" + region + " " + elem
	case MutRef:
		return "&" + region + " mut " + elem
	case OwningBox:
		return "Box<" + elem + ">"
	}
	return rawPointer(mut, elem)
}
