// Package facematch provides face descriptor matching shared between the
// punch coordinator, enrollment and the CLI.
package facematch

import "errors"

var (
	// ErrNoSamples is returned when a match is requested without live descriptors.
	ErrNoSamples = errors.New("at least one live descriptor is required")
	// ErrDimensionMismatch is returned when descriptors of different lengths are compared.
	ErrDimensionMismatch = errors.New("descriptor dimensionality mismatch")
)

// Candidate is an enrolled identity the live samples are compared against.
type Candidate struct {
	ID         string
	Descriptor []float32
}

// Options controls thresholding and voting for a single Match call.
type Options struct {
	// Threshold is the exclusive maximum Euclidean distance for a match-frame.
	Threshold float64
	// MinVotes is the number of match-frames a candidate needs when more
	// than one live sample is supplied. A single sample always needs one.
	MinVotes int
	// EarlyExit stops at the first candidate reaching the required votes
	// instead of scanning all candidates for the smallest distance.
	EarlyExit bool
}

// Result is the outcome of a Match call. CandidateID is empty on no-match.
type Result struct {
	CandidateID string
	Distance    float64
	Confidence  float64
	Votes       int
}

// Matched reports whether a candidate qualified.
func (r Result) Matched() bool {
	return r.CandidateID != ""
}
