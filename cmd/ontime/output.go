package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(cmd *cobra.Command, ro *rootOptions) *printer {
	return &printer{w: cmd.OutOrStdout(), json: ro.json()}
}

// emit writes v as indented JSON in --json mode and calls render otherwise.
func (p *printer) emit(v any, render func()) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render()
	return nil
}

func (p *printer) table(header []any, rows [][]any) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(p.w, faint(" none"))
		return
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = bold(h)
	}
	tbl.AddRow(hdr...)
	for _, r := range rows {
		tbl.AddRow(r...)
	}
	_, _ = fmt.Fprintln(p.w, tbl)
}

func (p *printer) line(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

// done prints a short confirmation, or {"ok":true,...} in JSON mode.
func (p *printer) done(msg string, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["ok"] = true
	return p.emit(fields, func() { p.line("%s %s", green("✓"), msg) })
}
