package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/vericloud/vericloud/internal/fusion"
	"github.com/vericloud/vericloud/internal/models"
)

// padRight pads s with spaces to the given display width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func printFusionResult(w io.Writer, r fusion.Result) {
	fmt.Fprintf(w, "Fusion\n%s\n", strings.Repeat("─", 44)) //nolint:errcheck
	rows := [][2]string{
		{"Verdict", string(r.Prediction)},
		{"Confidence", fmt.Sprintf("%.1f%%", r.Confidence*100)},
		{"Deception score", fmt.Sprintf("%.3f", r.Score)},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s %s\n", padRight(row[0], 16), row[1]) //nolint:errcheck
	}

	fmt.Fprintf(w, "\n%s %s %s %s\n", padRight("Modality", 10), padRight("Verdict", 12), padRight("Conf", 8), "Weight") //nolint:errcheck
	for _, m := range models.Modalities {
		c, ok := r.Breakdown[m]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s %s %s %.2f\n", //nolint:errcheck
			padRight(m.Title(), 10),
			padRight(string(c.Prediction), 12),
			padRight(fmt.Sprintf("%.0f%%", c.Confidence*100), 8),
			c.Weight)
	}

	if r.Reasoning != "" {
		fmt.Fprintf(w, "\n%s\n", r.Reasoning) //nolint:errcheck
	}
	for _, m := range models.Modalities {
		if msg, ok := r.Errors[m]; ok {
			fmt.Fprintf(w, "  ⚠ %s: %s\n", m.Title(), msg) //nolint:errcheck
		}
	}
}
