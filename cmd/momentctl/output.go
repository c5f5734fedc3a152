package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
)

// #region tables

// printHeader writes a bold header row followed by a rule under each column.
func printHeader(w io.Writer, format string, cols ...any) {
	line := fmt.Sprintf(format, cols...)
	headerColor.Fprintln(w, line)
	dimColor.Fprintln(w, strings.Repeat("-", len(line)))
}

// rateColor picks green for good rates, yellow for middling, red otherwise.
func rateColor(rate float64) *color.Color {
	switch {
	case rate >= 0.5:
		return okColor
	case rate >= 0.2:
		return warnColor
	default:
		return errorColor
	}
}

func passLabel(pass bool) string {
	if pass {
		return okColor.Sprint("pass")
	}
	return errorColor.Sprint("FAIL")
}

// #endregion tables

// #region json

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion json
