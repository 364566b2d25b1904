package handlers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/punchclock/internal/attendance"
	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/location"
	"github.com/kozaktomas/punchclock/internal/logging"
	"github.com/kozaktomas/punchclock/internal/punch"
	"github.com/kozaktomas/punchclock/internal/report"
)

// AttendanceHandler serves face verification, punches and ledger reads.
type AttendanceHandler struct {
	coord  *punch.Coordinator
	ledger *attendance.Ledger
	render func(io.Writer, []database.AttendanceRecord, *time.Location) error
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(coord *punch.Coordinator) *AttendanceHandler {
	return &AttendanceHandler{coord: coord, ledger: coord.Ledger(), render: report.Write}
}

// VerifyFaceRequest carries exactly one of a descriptor burst, a single
// descriptor or a base64 encoded image.
type VerifyFaceRequest struct {
	Descriptors [][]float32 `json:"descriptors" validate:"omitempty,max=10,excluded_with=Descriptor Image"`
	Descriptor  []float32   `json:"descriptor" validate:"omitempty,excluded_with=Image"`
	Image       string      `json:"image"`
}

type employeeRefResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type verificationResponse struct {
	Verified         bool                 `json:"verified"`
	Employee         *employeeRefResponse `json:"employee"`
	Confidence       float64              `json:"confidence"`
	AttendanceStatus string               `json:"attendanceStatus,omitempty"`
	Message          string               `json:"message,omitempty"`
}

// VerifyFace identifies an employee from live descriptors or an image.
func (h *AttendanceHandler) VerifyFace(w http.ResponseWriter, r *http.Request) {
	var req VerifyFaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		v   *punch.Verification
		err error
	)
	switch {
	case len(req.Descriptors) > 0:
		v, err = h.coord.VerifyAndIdentify(r.Context(), orgID(r), req.Descriptors)
	case len(req.Descriptor) > 0:
		v, err = h.coord.VerifyAndIdentify(r.Context(), orgID(r), [][]float32{req.Descriptor})
	case req.Image != "":
		data, decodeErr := decodeImage(req.Image)
		if decodeErr != nil {
			respondError(w, http.StatusBadRequest, "image must be base64 encoded")
			return
		}
		v, err = h.coord.VerifyImage(r.Context(), orgID(r), data)
	default:
		respondError(w, http.StatusBadRequest, "one of descriptors, descriptor or image is required")
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := verificationResponse{Verified: v.Verified, Message: v.Message}
	if v.Verified {
		resp.Employee = &employeeRefResponse{ID: v.Employee.ID, Name: v.Employee.Name, Code: v.Employee.Code}
		resp.Confidence = v.Confidence
		resp.AttendanceStatus = string(v.AttendanceStatus)
	}
	respondJSON(w, http.StatusOK, resp)
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if _, payload, ok := strings.Cut(s, ";base64,"); ok && strings.HasPrefix(s, "data:") {
		s = payload
	}
	return base64.StdEncoding.DecodeString(s)
}

// PunchRequest identifies the employee and where the device is.
type PunchRequest struct {
	EmployeeID string   `json:"employeeId" validate:"required,max=64"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (p PunchRequest) coordinates() *location.Coordinates {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return &location.Coordinates{Latitude: *p.Latitude, Longitude: *p.Longitude}
}

type recordResponse struct {
	ID             string     `json:"id"`
	EmployeeID     string     `json:"employeeId"`
	EmployeeCode   string     `json:"employeeCode"`
	EmployeeName   string     `json:"employeeName"`
	Date           string     `json:"date"`
	InTime         time.Time  `json:"inTime"`
	InLocation     string     `json:"inLocation"`
	OutTime        *time.Time `json:"outTime"`
	OutLocation    string     `json:"outLocation,omitempty"`
	LateMinutes    int        `json:"lateMinutes"`
	WorkingMinutes int        `json:"workingMinutes"`
	Status         string     `json:"status"`
}

func toRecordResponse(rec database.AttendanceRecord) recordResponse {
	return recordResponse{
		ID:             rec.ID,
		EmployeeID:     rec.EmployeeID,
		EmployeeCode:   rec.EmployeeCode,
		EmployeeName:   rec.EmployeeName,
		Date:           rec.WorkDate,
		InTime:         rec.InTime,
		InLocation:     rec.InLocation,
		OutTime:        rec.OutTime,
		OutLocation:    rec.OutLocation,
		LateMinutes:    rec.LateMinutes,
		WorkingMinutes: rec.WorkingMinutes,
		Status:         rec.Status,
	}
}

func toRecordResponses(records []database.AttendanceRecord) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

// PunchIn records the employee's arrival.
func (h *AttendanceHandler) PunchIn(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.coord.PunchIn(r.Context(), orgID(r), req.EmployeeID, req.coordinates())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":     "Punch IN successful",
		"inTime":      rec.InTime,
		"lateMinutes": rec.LateMinutes,
		"location":    rec.InLocation,
		"attendance":  toRecordResponse(*rec),
	})
}

// PunchOut records the employee's departure.
func (h *AttendanceHandler) PunchOut(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.coord.PunchOut(r.Context(), orgID(r), req.EmployeeID, req.coordinates())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":        "Punch OUT successful",
		"outTime":        rec.OutTime,
		"workingMinutes": rec.WorkingMinutes,
		"status":         rec.Status,
		"location":       rec.OutLocation,
		"attendance":     toRecordResponse(*rec),
	})
}

// Today lists the organization's records for the current work date.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.TodayRecords(r.Context(), orgID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    h.ledger.Today(),
		"count":   len(records),
		"records": toRecordResponses(records),
	})
}

type pageResponse struct {
	Records    []recordResponse `json:"records"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

func toPageResponse(p attendance.Page) pageResponse {
	return pageResponse{
		Records:    toRecordResponses(p.Records),
		Total:      p.Total,
		Page:       p.Page,
		Limit:      p.PageSize,
		TotalPages: p.TotalPages(),
	}
}

// parseQuery reads page, limit, from, to and status query parameters.
func parseQuery(r *http.Request) (attendance.Query, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return attendance.Query{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return attendance.Query{}, err
	}
	q := r.URL.Query()
	return attendance.Query{
		EmployeeID: q.Get("employeeId"),
		From:       q.Get("from"),
		To:         q.Get("to"),
		Status:     strings.ToUpper(q.Get("status")),
		Page:       page,
		PageSize:   limit,
	}, nil
}

// ByEmployee lists one employee's records, newest first.
func (h *AttendanceHandler) ByEmployee(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	page, err := h.ledger.ByEmployee(r.Context(), orgID(r), chi.URLParam(r, "employeeID"), q)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPageResponse(page))
}

// Range lists records between two inclusive dates.
func (h *AttendanceHandler) Range(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	records, err := h.ledger.Range(r.Context(), orgID(r), from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"from":    from,
		"to":      to,
		"count":   len(records),
		"records": toRecordResponses(records),
	})
}

// List returns a page of records filtered by status, employee and dates.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	page, err := h.ledger.List(r.Context(), orgID(r), q)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPageResponse(page))
}

// Export sends the records between two dates as an XLSX workbook. The
// workbook is rendered fully before any header is written.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	records, err := h.ledger.Range(r.Context(), orgID(r), from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.render(&buf, records, h.ledger.Policy().Location); err != nil {
		logging.FromContext(r.Context()).Error("export failed", "from", from, "to", to, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to build attendance report")
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance_%s_%s.xlsx"`, from, to))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
