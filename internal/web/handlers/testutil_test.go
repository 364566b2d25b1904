package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/punchclock/internal/attendance"
	"github.com/kozaktomas/punchclock/internal/config"
	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/database/mock"
	"github.com/kozaktomas/punchclock/internal/punch"
	"github.com/kozaktomas/punchclock/internal/testfixtures"
	"github.com/kozaktomas/punchclock/internal/web/middleware"
)

const testOrg = "acme"

var testMatching = config.MatchingPolicy{
	DescriptorDim:        4,
	LiveThreshold:        0.55,
	SingleFrameThreshold: 0.6,
	MinVotes:             2,
	DuplicateThreshold:   0.35,
}

// vec returns a descriptor at distance d from the origin.
func vec(d float32) []float32 {
	return []float32{d, 0, 0, 0}
}

// testEnv wires handlers to in-memory stores behind a chi router.
type testEnv struct {
	router     *chi.Mux
	coord      *punch.Coordinator
	employees  *mock.MockEmployeeStore
	attendance *mock.MockAttendanceStore
	clock      *testfixtures.Clock
}

func newTestEnv(t *testing.T, opts ...punch.Option) *testEnv {
	t.Helper()
	employees := mock.NewMockEmployeeStore()
	records := mock.NewMockAttendanceStore()
	clock := testfixtures.At(time.UTC, 2026, 3, 2, 9, 45)
	policy := attendance.Policy{Location: time.UTC, StartHour: 9, StartMinute: 30, FullDay: 480, HalfDay: 240}
	ledger := attendance.NewLedger(records, policy, attendance.WithClock(clock.Now))
	coord := punch.NewCoordinator(employees, ledger, testMatching, opts...)

	att := NewAttendanceHandler(coord)
	emp := NewEmployeesHandler(coord)

	r := chi.NewRouter()
	r.Route("/orgs/{orgID}", func(r chi.Router) {
		r.Use(middleware.RequireOrg)
		r.Post("/attendance/verify-face", att.VerifyFace)
		r.Post("/attendance/punch-in", att.PunchIn)
		r.Post("/attendance/punch-out", att.PunchOut)
		r.Get("/attendance", att.List)
		r.Get("/attendance/today", att.Today)
		r.Get("/attendance/range", att.Range)
		r.Get("/attendance/export", att.Export)
		r.Get("/attendance/employee/{employeeID}", att.ByEmployee)
		r.Get("/employees", emp.List)
		r.Post("/employees", emp.Onboard)
		r.Get("/employees/{employeeID}", emp.Get)
		r.Put("/employees/{employeeID}/descriptor", emp.Enroll)
	})

	return &testEnv{router: r, coord: coord, employees: employees, attendance: records, clock: clock}
}

func (e *testEnv) addEmployee(id, code string, descriptor []float32) {
	e.employees.AddEmployee(database.Employee{
		ID: id, OrgID: testOrg, Code: code, Name: "Employee " + code,
		Email: code + "@example.com", Status: database.EmployeeActive, Descriptor: descriptor,
	})
}

// do sends a request through the router. body is JSON encoded unless it is
// already a string.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/orgs/"+testOrg+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
