// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Outcome is the result of one stage for one entity.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// String returns the progress-line verb for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// StageCounts tallies outcomes of one stage across a batch.
type StageCounts struct {
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Add counts one outcome.
func (c *StageCounts) Add(o Outcome) {
	switch o {
	case OutcomeSucceeded:
		c.Succeeded++
	case OutcomeFailed:
		c.Failed++
	default:
		c.Skipped++
	}
}

// Merge adds other's counts to c.
func (c *StageCounts) Merge(other StageCounts) {
	c.Succeeded += other.Succeeded
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// Total returns the number of counted outcomes.
func (c StageCounts) Total() int {
	return c.Succeeded + c.Skipped + c.Failed
}
