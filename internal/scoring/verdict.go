package scoring

import "quizdesk/internal/domain"

// DefaultPassThreshold is the minimum percentage that earns a certificate.
const DefaultPassThreshold = 80

// Interpreter classifies grading results against a pass threshold.
type Interpreter struct {
	Threshold int
}

// New returns an Interpreter; a threshold outside 1..100 falls back to DefaultPassThreshold.
func New(threshold int) Interpreter {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultPassThreshold
	}
	return Interpreter{Threshold: threshold}
}

// Interpret derives the verdict for a result using the default threshold.
func Interpret(result domain.Result) domain.Verdict {
	return New(DefaultPassThreshold).Interpret(result)
}

// Interpret computes round-half-up(score/total*100) and compares it with the threshold.
// A result with a non-positive total yields a zero, failing verdict.
func (i Interpreter) Interpret(result domain.Result) domain.Verdict {
	pct := Percentage(result.Score, result.Total)
	threshold := i.Threshold
	if threshold <= 0 {
		threshold = DefaultPassThreshold
	}
	return domain.Verdict{
		Percentage: pct,
		Passed:     result.Total > 0 && pct >= threshold,
	}
}

// Percentage rounds half up in integer arithmetic, clamping score into [0, total].
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	if score < 0 {
		score = 0
	}
	if score > total {
		score = total
	}
	return (200*score + total) / (2 * total)
}
