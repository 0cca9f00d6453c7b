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

// main package is the standalone driver of the pointer permission analysis: it reads a program
// in its JSON form, analyzes it, and writes the rewrite plan.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/ptrperm"
	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/rewrite"
	"golang.org/x/exp/maps"
	"golang.org/x/term"
)

// The output formats of the plan.
const (
	formatText   = "text"
	formatJSON   = "json"
	formatBinary = "binary"
)

type options struct {
	input  string
	config string
	out    string
	format string
	notes  bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("ptrperm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.input, "input", "", "Path to the program to analyze, in its JSON form (required).")
	fs.StringVar(&o.config, "config", "", "Path to a YAML config file; the defaults are used if empty.")
	fs.StringVar(&o.out, "out", "", "Path to write the plan to; stdout if empty.")
	fs.StringVar(&o.format, "format", formatText, "Output format of the plan: text, json, or binary.")
	fs.BoolVar(&o.notes, "notes", false, "Also print the diagnostic notes collected during the analysis.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.input == "" {
		return nil, errors.New("-input is required")
	}
	if !slices.Contains([]string{formatText, formatJSON, formatBinary}, o.format) {
		return nil, fmt.Errorf("unknown format %q", o.format)
	}
	if o.format == formatBinary && o.out == "" {
		return nil, errors.New("-format binary requires -out")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	prog, err := ir.Load(o.input)
	if err != nil {
		return err
	}
	conf := config.NewDefault()
	if o.config != "" {
		if conf, err = config.Load(o.config); err != nil {
			return err
		}
	}
	log := config.NewLogGroup(conf)
	log.SetAllOutput(stderr)

	res, err := ptrperm.Analyze(ctx, prog, conf, ptrperm.Options{Log: log})
	if err != nil {
		return err
	}

	w := stdout
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		w = f
	}
	if err := writePlan(w, o.format, res.Plan); err != nil {
		return err
	}
	if o.notes {
		writeNotes(stderr, res)
	}
	writeSummary(stderr, res)
	return nil
}

func writePlan(w io.Writer, format string, plan *rewrite.Plan) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case formatBinary:
		b, err := plan.MarshalBinary()
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	for _, e := range plan.Entries() {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
	return nil
}

// writeNotes prints the diagnostic notes, then every fallback that has an explanation
// followed by its steps.
func writeNotes(w io.Writer, res *ptrperm.Result) {
	for _, n := range res.Diagnostics.Notes() {
		fmt.Fprintln(w, n)
	}
	for _, r := range res.Diagnostics.Records() {
		if r.Explanation == "" {
			continue
		}
		fmt.Fprintln(w, r)
		for _, step := range strings.Split(r.Explanation, "\n") {
			fmt.Fprintln(w, "  "+step)
		}
	}
}

// writeSummary prints the number of places per rewrite kind and the fallback reasons. The
// summary is colored only when w is a terminal.
func writeSummary(w io.Writer, res *ptrperm.Result) {
	noColor := true
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		noColor = false
	}
	paint := func(attr color.Attribute) *color.Color {
		c := color.New(attr)
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
		return c
	}

	kinds := res.Plan.Summary()
	fmt.Fprintf(w, "%d pointer places in %d functions\n", res.Plan.Len(), len(res.Scope))
	for _, k := range []rewrite.Kind{rewrite.SharedRef, rewrite.MutRef, rewrite.OwningBox} {
		paint(color.FgGreen).Fprintf(w, "  %-14s %d\n", k, kinds[k])
	}
	paint(color.FgYellow).Fprintf(w, "  %-14s %d\n", rewrite.RawPointer, kinds[rewrite.RawPointer])

	reasons := res.Diagnostics.Summary()
	codes := maps.Keys(reasons)
	slices.Sort(codes)
	for _, c := range codes {
		attr := color.FgYellow
		if c == diagnostic.InternalError || c == diagnostic.MalformedInput {
			attr = color.FgRed
		}
		paint(attr).Fprintf(w, "    %-24s %d\n", c, reasons[c])
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptrperm: %v\n", err)
		os.Exit(1)
	}
}
