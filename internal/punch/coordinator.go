// Package punch orchestrates identify-then-punch: face verification against
// an organization's enrolled employees, punch-in/out through the attendance
// ledger, and employee enrollment.
package punch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/punchclock/internal/attendance"
	"github.com/kozaktomas/punchclock/internal/config"
	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/extractor"
	"github.com/kozaktomas/punchclock/internal/facematch"
	"github.com/kozaktomas/punchclock/internal/location"
	"github.com/kozaktomas/punchclock/internal/logging"
)

// Extractor turns an image into a single face descriptor.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// Coordinator serves the verify, punch and enrollment operations.
type Coordinator struct {
	employees       database.EmployeeStore
	ledger          *attendance.Ledger
	matching        config.MatchingPolicy
	extractor       Extractor
	resolver        location.Resolver
	locationTimeout time.Duration
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithExtractor enables image verification.
func WithExtractor(e Extractor) Option {
	return func(c *Coordinator) { c.extractor = e }
}

// WithResolver sets the reverse geocoder used to label punches.
func WithResolver(r location.Resolver, timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.resolver = r
		c.locationTimeout = timeout
	}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(employees database.EmployeeStore, ledger *attendance.Ledger, matching config.MatchingPolicy, opts ...Option) *Coordinator {
	c := &Coordinator{
		employees:       employees,
		ledger:          ledger,
		matching:        matching,
		locationTimeout: location.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmployeeRef identifies a verified employee.
type EmployeeRef struct {
	ID   string
	Name string
	Code string
}

// Verification is the outcome of a verify call. Employee, Confidence and
// AttendanceStatus are set only when Verified.
type Verification struct {
	Verified         bool
	Employee         *EmployeeRef
	Confidence       float64
	Distance         float64
	AttendanceStatus attendance.PunchState
	Message          string
}

// VerifyAndIdentify matches live samples against the organization's active,
// enrolled employees. A single sample uses the single-frame threshold, a
// burst uses the live threshold with multi-frame voting.
func (c *Coordinator) VerifyAndIdentify(ctx context.Context, orgID string, samples [][]float32) (*Verification, error) {
	if len(samples) == 0 {
		return nil, validationError("at least one descriptor is required")
	}
	for i, s := range samples {
		if err := facematch.ValidateDescriptor(s, c.matching.DescriptorDim); err != nil {
			return nil, validationError("descriptor %d: %v", i, err)
		}
	}

	employees, err := c.employees.ListCandidates(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	byID := make(map[string]database.Employee, len(employees))
	candidates := make([]facematch.Candidate, 0, len(employees))
	for _, e := range employees {
		if len(e.Descriptor) != c.matching.DescriptorDim {
			logging.FromContext(ctx).Warn("skipping candidate with unexpected descriptor size",
				"employee", e.Code, "size", len(e.Descriptor))
			continue
		}
		byID[e.ID] = e
		candidates = append(candidates, facematch.Candidate{ID: e.ID, Descriptor: e.Descriptor})
	}

	opts := facematch.Options{Threshold: c.matching.SingleFrameThreshold, MinVotes: 1}
	if len(samples) > 1 {
		opts = facematch.Options{
			Threshold: c.matching.LiveThreshold,
			MinVotes:  c.matching.MinVotes,
			EarlyExit: c.matching.EarlyExit,
		}
	}

	result, err := matchAsync(ctx, candidates, samples, opts)
	if err != nil {
		return nil, err
	}
	if !result.Matched() {
		logging.FromContext(ctx).Info("face not recognized", "samples", len(samples), "candidates", len(candidates))
		return &Verification{Verified: false, Message: "Face not recognized"}, nil
	}

	emp := byID[result.CandidateID]
	state, err := c.ledger.State(ctx, orgID, emp.ID)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("face verified",
		"employee", emp.Code, "distance", result.Distance, "votes", result.Votes)
	return &Verification{
		Verified:         true,
		Employee:         &EmployeeRef{ID: emp.ID, Name: emp.Name, Code: emp.Code},
		Confidence:       result.Confidence,
		Distance:         result.Distance,
		AttendanceStatus: state,
	}, nil
}

// matchAsync runs the matcher on its own goroutine so the caller can give up
// when ctx is done. The goroutine finishes on its own.
func matchAsync(ctx context.Context, candidates []facematch.Candidate, samples [][]float32, opts facematch.Options) (facematch.Result, error) {
	if err := ctx.Err(); err != nil {
		return facematch.Result{}, err
	}

	type outcome struct {
		result facematch.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := facematch.Match(candidates, samples, opts)
		done <- outcome{r, err}
	}()

	select {
	case <-ctx.Done():
		return facematch.Result{}, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return facematch.Result{}, fmt.Errorf("match descriptors: %w", o.err)
		}
		return o.result, nil
	}
}

// VerifyImage extracts a descriptor from an image and verifies it as a
// single frame.
func (c *Coordinator) VerifyImage(ctx context.Context, orgID string, image []byte) (*Verification, error) {
	if c.extractor == nil {
		return nil, ErrExtractorUnavailable
	}
	if len(image) == 0 {
		return nil, validationError("image is required")
	}

	descriptor, err := c.extractor.Extract(ctx, image)
	switch {
	case errors.Is(err, extractor.ErrFaceNotDetected):
		return &Verification{Verified: false, Message: "No face detected in image"}, nil
	case errors.Is(err, extractor.ErrInvalidImage):
		return nil, validationError("%v", err)
	case err != nil:
		return nil, fmt.Errorf("extract descriptor: %w", err)
	}
	return c.VerifyAndIdentify(ctx, orgID, [][]float32{descriptor})
}

// PunchIn records today's arrival of an active employee.
func (c *Coordinator) PunchIn(ctx context.Context, orgID, employeeID string, coords *location.Coordinates) (*database.AttendanceRecord, error) {
	emp, err := c.activeEmployee(ctx, orgID, employeeID)
	if err != nil {
		return nil, err
	}
	label := location.Label(ctx, c.resolver, coords, c.locationTimeout)
	return c.ledger.PunchIn(ctx, emp, label)
}

// PunchOut records today's departure of an active employee.
func (c *Coordinator) PunchOut(ctx context.Context, orgID, employeeID string, coords *location.Coordinates) (*database.AttendanceRecord, error) {
	emp, err := c.activeEmployee(ctx, orgID, employeeID)
	if err != nil {
		return nil, err
	}
	label := location.Label(ctx, c.resolver, coords, c.locationTimeout)
	return c.ledger.PunchOut(ctx, emp, label)
}

func (c *Coordinator) activeEmployee(ctx context.Context, orgID, employeeID string) (*database.Employee, error) {
	if employeeID == "" {
		return nil, validationError("employeeId is required")
	}
	emp, err := c.employees.GetEmployee(ctx, orgID, employeeID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	if emp.Status != database.EmployeeActive {
		return nil, ErrEmployeeInactive
	}
	return emp, nil
}

// Ledger exposes the attendance ledger for read operations.
func (c *Coordinator) Ledger() *attendance.Ledger {
	return c.ledger
}
