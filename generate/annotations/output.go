package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stderr
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle implements the Handler interface - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)
	data := event.Data

	switch event.Name {
	case QueryInvoked:
		return fmt.Sprintf("%s %s %s: %s",
			latency,
			f.colorize("===", color.FgYellow),
			data["kind"],
			truncateQuery(fmt.Sprint(data["query"])))

	case QueryPlanCreated:
		return fmt.Sprintf("\n%s\n", data["plan"])

	case QueryComplete:
		if success, _ := data["success"].(bool); !success {
			return fmt.Sprintf("%s %s Query failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				data["error"])
		}
		return fmt.Sprintf("%s %s Query done with %s.",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount(fmt.Sprint(data["unit"]), intOf(data["count"])))

	case IteratorExpanded:
		return fmt.Sprintf("%s Iterator <%s> expanded %s into %s",
			latency,
			data["iterator"],
			f.colorizeCount("bindings", intOf(data["bindings.in"])),
			f.colorizeCount("bindings", intOf(data["bindings.out"])))

	case SourceFetched:
		return fmt.Sprintf("%s Source %s fetched as %s",
			latency,
			data["locator"],
			data["media-type"])

	case WhereMatched:
		return fmt.Sprintf("%s Matched %d patterns: %s",
			latency,
			intOf(data["pattern.count"]),
			f.colorizeCount("solutions", intOf(data["solutions"])))

	case SubQueryInvoked:
		return fmt.Sprintf("%s %s call %s invoked %s",
			latency,
			data["kind"],
			data["callee"],
			f.colorizeCount("times", intOf(data["calls"])))

	case TriplesEmitted:
		return fmt.Sprintf("%s Emitted %s",
			latency,
			f.colorizeCount("triples", intOf(data["triples"])))

	case EvalFailed:
		return fmt.Sprintf("%s %s %v: %v",
			latency,
			f.colorize("⚠", color.FgYellow),
			data["expr"],
			data["error"])

	case ErrorTimeout:
		return fmt.Sprintf("%s %s Timed out after %v",
			latency,
			f.colorize("✗", color.FgRed),
			data["timeout"])

	default:
		if strings.HasPrefix(event.Name, "error/") {
			return fmt.Sprintf("%s %s %s: %v",
				latency,
				f.colorize("✗", color.FgRed),
				event.Name,
				data["error"])
		}
		return fmt.Sprintf("%s %s %v", latency, event.Name, data)
	}
}

// formatLatency formats duration with color based on magnitude.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with label and color.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "triples":
		return color.CyanString(text)
	case "rows", "solutions", "bindings":
		return color.MagentaString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// truncateQuery shortens long queries for display.
func truncateQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")

	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}

	return query[:maxLen-3] + "..."
}

func intOf(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
