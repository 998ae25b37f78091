package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"discoveryScope/internal/model"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSnapshots(w io.Writer, snapshots []model.Snapshot) {
	headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
	for _, s := range snapshots {
		fmt.Fprintf(w, "%s %s %s\n", bold(s.Name), cyan(s.Address), fmt.Sprintf("@ %d", s.BlockNumber))

		tbl := table.New("Field", "Status", "Value").WithWriter(w)
		tbl.WithHeaderFormatter(headerFmt)
		for _, name := range s.FieldNames() {
			field := s.Fields[name]
			if field.Failed() {
				tbl.AddRow(name, red(string(field.Error.Kind)), field.Error.Message)
				continue
			}
			tbl.AddRow(name, green("ok"), formatValue(field.Value))
		}
		tbl.Print()

		if failed := s.FailedFields(); len(failed) > 0 {
			fmt.Fprintf(w, "%s\n", red(fmt.Sprintf("%d of %d fields failed", len(failed), len(s.Fields))))
		}
		fmt.Fprintln(w)
	}
}

func renderRange(w io.Writer, entries []model.BlockNumberRecord) {
	headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
	tbl := table.New("Timestamp", "Time (UTC)", "Block").WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)
	for _, e := range entries {
		tbl.AddRow(e.Timestamp, time.Unix(int64(e.Timestamp), 0).UTC().Format(time.RFC3339), e.BlockNumber)
	}
	tbl.Print()
}

func formatValue(v model.Value) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return fmt.Sprintf("%t", typed)
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(raw)
	}
}
