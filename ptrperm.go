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

// Package ptrperm implements the top-level entry points of the pointer permission analysis: it
// decides, for every raw pointer place of a program, whether it can be rewritten to a shared
// reference, a mutable reference or an owning box, or must stay a raw pointer.
package ptrperm

import (
	"context"

	"go.uber.org/ptrperm/accumulation"
	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/region"
)

// Result is the outcome of an analysis run.
type Result = accumulation.Result

// Options tune an analysis run. The zero value uses the reference region engine and does not
// log.
type Options struct {
	Engine region.Engine
	Log    *config.LogGroup
}

// Analyze analyzes prog. A nil conf means the default configuration.
func Analyze(ctx context.Context, prog *ir.Program, conf *config.Config, opts Options) (*Result, error) {
	if conf == nil {
		conf = config.NewDefault()
	}
	if opts.Engine == nil {
		opts.Engine = region.LocalEngine{}
	}
	if opts.Log == nil {
		opts.Log = config.Discard()
	}
	return accumulation.Run(ctx, prog, conf, opts.Engine, opts.Log)
}

// AnalyzeFiles loads the program and the optional config file, then analyzes the program.
// Failing to read either file is the only input problem that aborts the analysis.
func AnalyzeFiles(ctx context.Context, programPath, configPath string, opts Options) (*Result, error) {
	prog, err := ir.Load(programPath)
	if err != nil {
		return nil, err
	}
	conf := config.NewDefault()
	if configPath != "" {
		if conf, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	return Analyze(ctx, prog, conf, opts)
}
