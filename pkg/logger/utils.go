package logger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Preview renders up to max bytes of b as a quoted, escape-safe string for
// diagnostics, noting how much was omitted. Raw request bytes go through
// here before they reach a log line.
func Preview(b []byte, max int) string {
	if max <= 0 || len(b) <= max {
		return strconv.Quote(string(b))
	}
	return strconv.Quote(string(b[:max])) + fmt.Sprintf(" (+%d bytes)", len(b)-max)
}

// EnvSummary renders a request-context map as a sorted, bounded key=value
// list. Scalar values are truncated to maxVal runes; non-scalar values are
// reported by type only.
func EnvSummary(env map[string]any, maxVal int) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := env[k].(type) {
		case string:
			parts = append(parts, k+"="+truncateValue(v, maxVal))
		case []byte:
			parts = append(parts, k+"="+Preview(v, maxVal))
		case int, int64, uint64, bool:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=<%T>", k, v))
		}
	}
	return strings.Join(parts, "; ")
}

func truncateValue(v string, max int) string {
	if max <= 0 || len(v) <= max {
		return v
	}
	return v[:max] + "..."
}
