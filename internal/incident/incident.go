// Package incident fingerprints recurring failures and escalates them
// by in-window frequency. The same error shape repeating within the
// window climbs levels; distinct errors stay independent.
package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Level is an escalation severity derived from in-window frequency.
type Level int

const (
	LevelNone Level = iota
	Level1
	Level2
	Level3
)

func (l Level) String() string {
	switch l {
	case Level1:
		return "L1"
	case Level2:
		return "L2"
	case Level3:
		return "L3"
	default:
		return "L0"
	}
}

// Escalation frequency steps: occurrences within the window.
const (
	level1Count = 3
	level2Count = 5
	level3Count = 8
)

// LevelForCount maps an in-window occurrence count to a level.
func LevelForCount(n int) Level {
	switch {
	case n >= level3Count:
		return Level3
	case n >= level2Count:
		return Level2
	case n >= level1Count:
		return Level1
	default:
		return LevelNone
	}
}

// ShouldGenerateReport reports whether a level warrants a written
// incident report. L2 and above always produce one; reports are never
// deduplicated so repeated escalations leave a paper trail.
func ShouldGenerateReport(l Level) bool {
	return l >= Level2
}

// Fingerprint derives a stable 20-hex-char id for an error shape.
// Context keys are sorted so the same map always hashes identically.
func Fingerprint(errorType, message, stack string, context map[string]string) string {
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(errorType)
	b.WriteString("|")
	b.WriteString(message)
	b.WriteString("|")
	b.WriteString(stack)
	b.WriteString("|")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(context[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:20]
}
