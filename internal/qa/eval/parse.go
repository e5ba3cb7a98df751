package eval

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	scoreTagPattern   = regexp.MustCompile(`(?i)SCORE:\s*([0-9.]+)`)
	leadingNumPattern = regexp.MustCompile(`(?i)^([0-9.]+)[,\s]+(?:REASONING:)?`)
	anyNumPattern     = regexp.MustCompile(`\b([0-9]+(?:\.[0-9]+)?)\b`)
	reasoningPattern  = regexp.MustCompile(`(?is)REASONING:\s*(.+?)(?:\n|$)`)
)

// ParseJudgeResponse extracts a score and reasoning from a judge reply.
// Judges are asked for "SCORE: <n>, REASONING: <text>" but smaller models
// drift, so parsing degrades through looser formats and finally to a
// neutral 0.5 rather than failing the evaluation.
func ParseJudgeResponse(response string) (float64, string) {
	response = strings.TrimSpace(response)

	score := 0.5
	matchEnd := -1

	if m := scoreTagPattern.FindStringSubmatchIndex(response); m != nil {
		if v, err := strconv.ParseFloat(response[m[2]:m[3]], 64); err == nil {
			score = v
			matchEnd = m[1]
		}
	} else if m := leadingNumPattern.FindStringSubmatchIndex(response); m != nil {
		if v, err := strconv.ParseFloat(response[m[2]:m[3]], 64); err == nil {
			score = v
			matchEnd = m[1]
		}
	} else if m := anyNumPattern.FindStringSubmatchIndex(response); m != nil {
		if v, err := strconv.ParseFloat(response[m[2]:m[3]], 64); err == nil {
			// Accept 0-1 directly; treat 0-10 as a ten-point scale.
			if v >= 0 && v <= 1 {
				score = v
				matchEnd = m[1]
			} else if v > 1 && v <= 10 {
				score = v / 10.0
				matchEnd = m[1]
			}
		}
	}

	reasoning := response
	if m := reasoningPattern.FindStringSubmatch(response); m != nil {
		reasoning = strings.TrimSpace(m[1])
	} else if matchEnd >= 0 {
		reasoning = strings.TrimLeft(strings.TrimSpace(response[matchEnd:]), ",: \t")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return score, reasoning
}
