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

// Package config hosts the configuration of the analysis: the declarative override list, the
// allocator vocabulary, the analysis scope and the logging settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/place"
	"gopkg.in/yaml.v3"
)

// Override pins the permissions of one place instead of inferring them. It is how places that
// cross an unanalyzed foreign boundary are declared.
type Override struct {
	// Place is the canonical place identity, e.g. `ffi_entry::buf`.
	Place string `yaml:"place"`
	// Permissions is the pinned permission set, e.g. `READ|WRITE` or `TOP`.
	Permissions permission.Set `yaml:"permissions"`
	// Reason is free text carried into the diagnostics.
	Reason string `yaml:"reason,omitempty"`
}

// Config is the configuration of one analysis run. Fields absent from a config file keep the
// values of NewDefault.
type Config struct {
	// LogLevel is one of the LogLevel values, InfoLevel if zero.
	LogLevel int `yaml:"log-level"`

	// Parallelism bounds the number of functions processed concurrently. Zero or negative means
	// one worker per available CPU.
	Parallelism int `yaml:"parallelism"`

	// Entrypoints restricts the analysis to the functions reachable from these functions. An
	// empty list analyzes every defined function.
	Entrypoints []string `yaml:"entrypoints"`

	// Allocators are the functions returning a fresh heap allocation.
	Allocators []string `yaml:"allocators"`
	// Deallocators are the functions freeing the allocation their first argument points to.
	Deallocators []string `yaml:"deallocators"`
	// Reallocators both free their first argument and return a fresh allocation.
	Reallocators []string `yaml:"reallocators"`

	// Overrides pins the permissions of the listed places.
	Overrides []Override `yaml:"overrides"`
}

// NewDefault returns the configuration used when no config file is given.
func NewDefault() *Config {
	return &Config{
		LogLevel:     int(InfoLevel),
		Parallelism:  0,
		Entrypoints:  nil,
		Allocators:   []string{"malloc", "calloc", "aligned_alloc"},
		Deallocators: []string{"free"},
		Reallocators: []string{"realloc"},
		Overrides:    nil,
	}
}

// Load reads a YAML config file on top of NewDefault.
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// Decode reads a YAML config on top of NewDefault and validates it.
func Decode(r io.Reader) (*Config, error) {
	cfg := NewDefault()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every override names a well-formed place and appears only once.
func (c *Config) Validate() error {
	if c.LogLevel < int(ErrLevel) || c.LogLevel > int(TraceLevel) {
		return fmt.Errorf("log-level %d out of range [%d, %d]", c.LogLevel, ErrLevel, TraceLevel)
	}
	seen := make(map[string]bool, len(c.Overrides))
	var errs []error
	for _, o := range c.Overrides {
		if _, err := place.Parse(o.Place); err != nil {
			errs = append(errs, fmt.Errorf("override: %w", err))
			continue
		}
		if seen[o.Place] {
			errs = append(errs, fmt.Errorf("override: place %q listed twice", o.Place))
		}
		seen[o.Place] = true
	}
	return errors.Join(errs...)
}

// Override returns the override for the given canonical place identity, if any.
func (c *Config) Override(path string) (Override, bool) {
	for _, o := range c.Overrides {
		if o.Place == path {
			return o, true
		}
	}
	return Override{}, false
}

// IsAllocator returns true if calls to name return a fresh heap allocation.
func (c *Config) IsAllocator(name string) bool { return slices.Contains(c.Allocators, name) }

// IsDeallocator returns true if calls to name free their first argument.
func (c *Config) IsDeallocator(name string) bool { return slices.Contains(c.Deallocators, name) }

// IsReallocator returns true if calls to name free their first argument and return a fresh
// allocation.
func (c *Config) IsReallocator(name string) bool { return slices.Contains(c.Reallocators, name) }
