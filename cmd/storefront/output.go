package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

// emit prints v as JSON when --json is set; otherwise human runs.
func emit(c *cli.Context, v any, human func(w io.Writer)) error {
	w := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}

func heading(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s%s\n", colorBold, title, colorReset)
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s✓%s %s\n", colorGreen, colorReset, fmt.Sprintf(format, args...))
}
