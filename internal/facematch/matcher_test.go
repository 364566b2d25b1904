package facematch

import (
	"errors"
	"math"
	"testing"
)

const testDim = 128

// vecAt returns a descriptor that lies exactly dist away from the zero vector.
func vecAt(dist float32) []float32 {
	v := make([]float32, testDim)
	v[0] = dist
	return v
}

func zero() []float32 {
	return make([]float32, testDim)
}

func TestEuclideanDistance(t *testing.T) {
	a := make([]float32, testDim)
	b := make([]float32, testDim)
	for i := range a {
		a[i] = float32(i) * 0.01
		b[i] = float32(testDim-i) * 0.003
	}

	ab, err := EuclideanDistance(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := EuclideanDistance(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab != ba {
		t.Errorf("distance not symmetric: %v vs %v", ab, ba)
	}

	aa, err := EuclideanDistance(a, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aa != 0 {
		t.Errorf("distance(d, d) = %v, want 0", aa)
	}

	d, _ := EuclideanDistance([]float32{0, 0}, []float32{3, 4})
	if d != 5 {
		t.Errorf("distance = %v, want 5", d)
	}
}

func TestEuclideanDistance_DimensionMismatch(t *testing.T) {
	_, err := EuclideanDistance(make([]float32, 128), make([]float32, 127))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		distance float64
		expected float64
	}{
		{0.40, 0.60},
		{0.0, 1.0},
		{0.123456, 0.88},
		{1.5, 0},
	}

	for _, tt := range tests {
		got := Confidence(tt.distance)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Confidence(%v) = %v, want %v", tt.distance, got, tt.expected)
		}
	}
}

func TestValidateDescriptor(t *testing.T) {
	if err := ValidateDescriptor(zero(), testDim); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDescriptor(make([]float32, 64), testDim); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	bad := zero()
	bad[5] = float32(math.NaN())
	if err := ValidateDescriptor(bad, testDim); err == nil {
		t.Error("expected error for NaN value")
	}
}

func TestMatch_FrameThreshold(t *testing.T) {
	opts := Options{Threshold: 0.55, MinVotes: 2}

	tests := []struct {
		name     string
		dist     float32
		expected bool
	}{
		{"0.30 is a match frame", 0.30, true},
		{"0.60 is not", 0.60, false},
		{"exactly threshold is not", 0.55, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := []Candidate{{ID: "emp-1", Descriptor: zero()}}
			res, err := Match(candidates, [][]float32{vecAt(tt.dist)}, opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Matched() != tt.expected {
				t.Errorf("Matched() = %v, want %v (distance %v)", res.Matched(), tt.expected, res.Distance)
			}
		})
	}
}

func TestMatch_TwoSamplesConfidence(t *testing.T) {
	candidates := []Candidate{{ID: "emp-1", Descriptor: zero()}}
	samples := [][]float32{vecAt(0.40), vecAt(0.45)}

	res, err := Match(candidates, samples, Options{Threshold: 0.55, MinVotes: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CandidateID != "emp-1" {
		t.Fatalf("expected emp-1, got %q", res.CandidateID)
	}
	if res.Votes != 2 {
		t.Errorf("expected 2 votes, got %d", res.Votes)
	}
	if res.Confidence != 0.60 {
		t.Errorf("expected confidence 0.60, got %v", res.Confidence)
	}
}

func TestMatch_MultiFrameNeedsVotes(t *testing.T) {
	candidates := []Candidate{{ID: "emp-1", Descriptor: zero()}}
	// Only one of the three frames is within threshold.
	samples := [][]float32{vecAt(0.30), vecAt(0.90), vecAt(0.80)}

	res, err := Match(candidates, samples, Options{Threshold: 0.55, MinVotes: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched() {
		t.Errorf("expected no match with a single vote, got %+v", res)
	}
}

func TestMatch_GlobalBest(t *testing.T) {
	far := vecAt(0.50)
	near := vecAt(0.10)
	candidates := []Candidate{
		{ID: "first", Descriptor: far},
		{ID: "second", Descriptor: near},
	}
	samples := [][]float32{zero(), zero()}

	res, err := Match(candidates, samples, Options{Threshold: 0.55, MinVotes: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CandidateID != "second" {
		t.Errorf("expected closest candidate to win, got %q", res.CandidateID)
	}

	res, err = Match(candidates, samples, Options{Threshold: 0.55, MinVotes: 2, EarlyExit: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CandidateID != "first" {
		t.Errorf("expected early exit to stop at first qualifying candidate, got %q", res.CandidateID)
	}
}

func TestMatch_NonQualifyingCandidateCannotWin(t *testing.T) {
	// "close" has the globally smallest frame distance but only one vote.
	closeOne := vecAt(0.05)
	candidates := []Candidate{
		{ID: "close", Descriptor: closeOne},
		{ID: "steady", Descriptor: zero()},
	}
	samples := [][]float32{vecAt(0.05), vecAt(-0.40), vecAt(0.30)}

	res, err := Match(candidates, samples, Options{Threshold: 0.45, MinVotes: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CandidateID != "steady" {
		t.Errorf("expected steady, got %+v", res)
	}
}

func TestMatch_TieKeepsFirstScanned(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Descriptor: vecAt(0.2)},
		{ID: "b", Descriptor: vecAt(-0.2)},
	}
	res, err := Match(candidates, [][]float32{zero()}, Options{Threshold: 0.55, MinVotes: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CandidateID != "a" {
		t.Errorf("expected a, got %q", res.CandidateID)
	}
}

func TestMatch_NoCandidates(t *testing.T) {
	res, err := Match(nil, [][]float32{zero()}, Options{Threshold: 0.55, MinVotes: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched() || res.Confidence != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestMatch_Errors(t *testing.T) {
	opts := Options{Threshold: 0.55, MinVotes: 2}

	if _, err := Match(nil, nil, opts); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}

	_, err := Match(nil, [][]float32{zero(), make([]float32, 64)}, opts)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for mixed samples, got %v", err)
	}

	_, err = Match([]Candidate{{ID: "x", Descriptor: make([]float32, 64)}}, [][]float32{zero()}, opts)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for candidate, got %v", err)
	}
}

func TestFindDuplicate(t *testing.T) {
	candidates := []Candidate{
		{ID: "far", Descriptor: vecAt(0.9)},
		{ID: "near", Descriptor: vecAt(0.2)},
		{ID: "nearer", Descriptor: vecAt(0.1)},
	}

	dup, dist, ok := FindDuplicate(candidates, zero(), 0.35)
	if !ok {
		t.Fatal("expected a duplicate")
	}
	if dup.ID != "nearer" {
		t.Errorf("expected nearer, got %q", dup.ID)
	}
	if math.Abs(dist-0.1) > 1e-6 {
		t.Errorf("expected distance 0.1, got %v", dist)
	}

	// 0.40 would pass the 0.55 verification threshold but is not a duplicate.
	_, _, ok = FindDuplicate([]Candidate{{ID: "other", Descriptor: vecAt(0.40)}}, zero(), 0.35)
	if ok {
		t.Error("expected no duplicate at distance 0.40")
	}
}
