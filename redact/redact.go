// Package redact scrubs secrets from text before it reaches session logs.
// Agent tool output routinely echoes environment variables, config files,
// and command output, so everything logged passes through here first.
package redact

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Placeholder replaces detected secrets.
const Placeholder = "REDACTED"

// secretPattern matches token-shaped runs that are worth an entropy check.
var secretPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy for a candidate run to be
// treated as a secret. High enough to pass over ordinary identifiers, low
// enough to catch typical API keys, which sit above 5.0.
const entropyThreshold = 4.5

var (
	detector     *detect.Detector
	detectorOnce sync.Once
)

func getDetector() *detect.Detector {
	detectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		detector = d
	})
	return detector
}

// span is a byte range to redact.
type span struct{ start, end int }

// String replaces secrets in s with the placeholder using two detection
// layers: gitleaks' rule set for known secret formats, and a Shannon
// entropy check for opaque high-entropy runs. Either layer alone flags a
// span.
func String(s string) string {
	spans := findSpans(s)
	if len(spans) == 0 {
		return s
	}

	var b strings.Builder
	prev := 0
	for _, r := range spans {
		b.WriteString(s[prev:r.start])
		b.WriteString(Placeholder)
		prev = r.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// Bytes is a convenience wrapper around String for []byte content.
func Bytes(b []byte) []byte {
	s := string(b)
	redacted := String(s)
	if redacted == s {
		return b
	}
	return []byte(redacted)
}

// findSpans returns merged, sorted secret spans in s.
func findSpans(s string) []span {
	var spans []span

	for _, loc := range secretPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}

	if d := getDetector(); d != nil {
		for _, f := range d.DetectString(s) {
			if f.Secret == "" {
				continue
			}
			from := 0
			for {
				idx := strings.Index(s[from:], f.Secret)
				if idx < 0 {
					break
				}
				abs := from + idx
				spans = append(spans, span{abs, abs + len(f.Secret)})
				from = abs + len(f.Secret)
			}
		}
	}

	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, r := range spans[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
