package facematch

import "fmt"

// Match finds the candidate that best explains the live samples.
//
// A sample whose distance to a candidate is below opts.Threshold is a vote for
// that candidate. With several samples a candidate needs opts.MinVotes votes,
// with one sample a single vote suffices. Among qualifying candidates the one
// with the smallest distance wins; on exact ties the first scanned wins.
// With opts.EarlyExit the scan stops at the first qualifying candidate.
func Match(candidates []Candidate, samples [][]float32, opts Options) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoSamples
	}
	dim := len(samples[0])
	for i, s := range samples {
		if len(s) != dim || dim == 0 {
			return Result{}, fmt.Errorf("%w: sample %d has %d values, expected %d", ErrDimensionMismatch, i, len(s), dim)
		}
	}

	required := 1
	if len(samples) > 1 {
		required = max(opts.MinVotes, 1)
	}

	var best Result
	found := false

	for _, c := range candidates {
		if len(c.Descriptor) != dim {
			return Result{}, fmt.Errorf("%w: candidate %s has %d values, expected %d",
				ErrDimensionMismatch, c.ID, len(c.Descriptor), dim)
		}

		votes := 0
		closest := 0.0
		for _, s := range samples {
			d, err := EuclideanDistance(s, c.Descriptor)
			if err != nil {
				return Result{}, err
			}
			if d >= opts.Threshold {
				continue
			}
			if votes == 0 || d < closest {
				closest = d
			}
			votes++
		}

		if votes < required {
			continue
		}
		if !found || closest < best.Distance {
			best = Result{CandidateID: c.ID, Distance: closest, Votes: votes}
			found = true
		}
		if opts.EarlyExit {
			break
		}
	}

	if !found {
		return Result{}, nil
	}
	best.Confidence = Confidence(best.Distance)
	return best, nil
}

// FindDuplicate returns the candidate closest to descriptor when that distance
// is strictly below threshold. Used at enrollment to keep one record per person.
func FindDuplicate(candidates []Candidate, descriptor []float32, threshold float64) (Candidate, float64, bool) {
	var dup Candidate
	closest := threshold
	found := false
	for _, c := range candidates {
		d, err := EuclideanDistance(descriptor, c.Descriptor)
		if err != nil {
			continue
		}
		if d < closest {
			dup, closest, found = c, d, true
		}
	}
	return dup, closest, found
}
