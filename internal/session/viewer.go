package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vericloud/vericloud/internal/utils"
)

// SessionFile represents a session log file on disk.
type SessionFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListSessions finds .jsonl session log files in dir.
func ListSessions(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var files []SessionFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isSessionLog(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, SessionFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func isSessionLog(name string) bool {
	return strings.HasSuffix(name, "-session.jsonl") || strings.HasSuffix(name, "-session.jsonl.zst")
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	rc, _, err := utils.NewDecompressingReader(f)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from a session log file, compressed or not.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	rc, _, err := utils.NewDecompressingReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer rc.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(rc)
	// Increase buffer for large lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return events, nil
}

// Outcome returns the verdict recorded by the last session end event. ok is
// false for a session that has not finished.
func Outcome(events []Event) (prediction string, confidence float64, ok bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != EventSessionEnd {
			continue
		}
		prediction, _ = events[i].Data["prediction"].(string) //nolint:errcheck
		return prediction, jsonFloat(events[i].Data["confidence"]), true
	}
	return "", 0, false
}

// RenderTimeline writes a human-readable session timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " SESSION TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		elapsed := ev.Timestamp.Sub(start)
		ts := formatDuration(elapsed)

		switch ev.Type {
		case EventSessionStart:
			maxFrames := jsonNumber(ev.Data["max_frames"])
			maxMs := jsonNumber(ev.Data["max_ms"])
			skip := jsonNumber(ev.Data["skip_factor"])
			fmt.Fprintf(w, "[%s] 🚀 Session started  %s  frames<=%d  budget=%dms  skip=%d\n", ts, ev.SessionID, maxFrames, maxMs, skip)

		case EventFrame:
			label, _ := ev.Data["label"].(string) //nolint:errcheck
			frame := jsonNumber(ev.Data["frame"])
			conf := jsonFloat(ev.Data["confidence"])
			dev := jsonFloat(ev.Data["deviation"])
			fmt.Fprintf(w, "[%s]    frame %4d  %-22s conf=%.2f  dev=%.2f\n", ts, frame, label, conf, dev)

		case EventBaselineForced:
			frames := jsonNumber(ev.Data["baseline_frames"])
			minSamples := jsonNumber(ev.Data["min_samples"])
			fmt.Fprintf(w, "[%s] ⏩ Baseline forced after %d frames (min samples %d)\n", ts, frames, minSamples)

		case EventSkipAdjusted:
			skip := jsonNumber(ev.Data["skip_factor"])
			dur := jsonNumber(ev.Data["duration_ms"])
			fmt.Fprintf(w, "[%s] 🐢 Slow frame (%dms), skip now %d\n", ts, dur, skip)

		case EventFrameError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			frame := jsonNumber(ev.Data["frame"])
			fmt.Fprintf(w, "[%s] ❌ Frame %d skipped: %s\n", ts, frame, msg)

		case EventInsufficientData:
			fmt.Fprintf(w, "[%s] ⚠  Insufficient data, using fallback verdict\n", ts)

		case EventSessionEnd:
			prediction, _ := ev.Data["prediction"].(string) //nolint:errcheck
			reason, _ := ev.Data["stop_reason"].(string)    //nolint:errcheck
			conf := jsonFloat(ev.Data["confidence"])
			processed := jsonNumber(ev.Data["processed_frames"])
			valid := jsonNumber(ev.Data["valid_verdicts"])
			dur := jsonNumber(ev.Data["duration_ms"])
			fmt.Fprintf(w, "[%s] 🏁 Session complete  %s (%.1f%%)  %d/%d frames valid  stop=%s  (%dms)\n",
				ts, prediction, conf, valid, processed, reason, dur)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts an integer from decoded or in-memory event data.
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}

func jsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64() //nolint:errcheck
		return f
	}
	return 0
}
