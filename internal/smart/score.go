// Package smart scores transcript text against the five SMART criteria:
// specific, measurable, assignable, relevant, and time-bound.
package smart

import "regexp"

// Score holds the five independent SMART checks for one transcript.
type Score struct {
	Specific   bool
	Measurable bool
	Assignable bool
	Relevant   bool
	TimeBound  bool
}

// Total returns the number of satisfied checks, 0 through 5.
func (s Score) Total() int {
	total := 0
	for _, ok := range []bool{s.Specific, s.Measurable, s.Assignable, s.Relevant, s.TimeBound} {
		if ok {
			total++
		}
	}
	return total
}

// Each check is a single pattern match; no check depends on another's result.
var (
	specificPattern = regexp.MustCompile(`(?i)\b(call|phone|schedule|email|text|write|finish|start|buy|clean|cook|walk|visit|complete|send|pay|book|attend|exercise|read|organize|submit|prepare|pick up|fill out|drop off)\b`)

	measurablePattern = regexp.MustCompile(`(?i)\b(\d+(?::\d{2})?\s*(?:am|pm)?|once|twice|every|each|daily|weekly|monthly|half|minutes?|hours?|times|pages?|steps?)\b`)

	assignablePattern = regexp.MustCompile(`(?i)\b(i will|i'll|i am going to|i'm going to|i can|i need to|i want to|i plan to|i promise to|we will|we'll|my job|my task)\b`)

	relevantPattern = regexp.MustCompile(`(?i)\b(because|so that|in order to|important|matters?|helps? me|my health|my goals?|my family|my recovery|priority)\b`)

	timeBoundPattern = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|today|tonight|tomorrow|by \w+|before \w+|deadline|next week|this week|next month|morning|afternoon|evening|noon|midnight|january|february|march|april|june|july|august|september|october|november|december|\d{1,2}:\d{2}|\d{1,2}\s*(?:am|pm))\b`)
)

// Evaluate scores one transcript fragment. It is pure and cheap enough to
// run on every transcript delta; an empty or unmatched transcript scores 0.
func Evaluate(transcript string) Score {
	return Score{
		Specific:   specificPattern.MatchString(transcript),
		Measurable: measurablePattern.MatchString(transcript),
		Assignable: assignablePattern.MatchString(transcript),
		Relevant:   relevantPattern.MatchString(transcript),
		TimeBound:  timeBoundPattern.MatchString(transcript),
	}
}
