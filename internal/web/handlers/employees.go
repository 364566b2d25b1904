package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/punch"
)

// EmployeesHandler serves onboarding, enrollment and employee search.
type EmployeesHandler struct {
	coord *punch.Coordinator
}

// NewEmployeesHandler creates a new employees handler
func NewEmployeesHandler(coord *punch.Coordinator) *EmployeesHandler {
	return &EmployeesHandler{coord: coord}
}

type employeeResponse struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Department  string    `json:"department,omitempty"`
	Designation string    `json:"designation,omitempty"`
	Status      string    `json:"status"`
	Enrolled    bool      `json:"enrolled"`
	FaceImage   string    `json:"faceImage,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toEmployeeResponse(e *database.Employee) employeeResponse {
	return employeeResponse{
		ID:          e.ID,
		Code:        e.Code,
		Name:        e.Name,
		Email:       e.Email,
		Phone:       e.Phone,
		Department:  e.Department,
		Designation: e.Designation,
		Status:      e.Status,
		Enrolled:    e.Enrolled(),
		FaceImage:   e.FaceImage,
		CreatedAt:   e.CreatedAt,
	}
}

// OnboardRequest is the body of the onboarding endpoint.
type OnboardRequest struct {
	Name           string    `json:"name" validate:"required,max=200"`
	Email          string    `json:"email" validate:"required,email,max=254"`
	Phone          string    `json:"phone" validate:"max=32"`
	Department     string    `json:"department" validate:"max=100"`
	Designation    string    `json:"designation" validate:"max=100"`
	Password       string    `json:"password" validate:"omitempty,min=8,max=72"`
	FaceDescriptor []float32 `json:"faceDescriptor"`
	FaceImage      string    `json:"faceImage" validate:"max=512"`
}

// Onboard creates an employee with a login account.
func (h *EmployeesHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	var req OnboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.coord.Onboard(r.Context(), orgID(r), punch.OnboardRequest{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Department:  req.Department,
		Designation: req.Designation,
		Password:    req.Password,
		Descriptor:  req.FaceDescriptor,
		FaceImage:   req.FaceImage,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	body := map[string]any{
		"message":  "Employee added successfully",
		"employee": toEmployeeResponse(res.Employee),
	}
	if res.TemporaryPassword != "" {
		body["temporaryPassword"] = res.TemporaryPassword
	}
	respondJSON(w, http.StatusCreated, body)
}

// EnrollRequest replaces an employee's face descriptor.
type EnrollRequest struct {
	Descriptor []float32 `json:"descriptor" validate:"required"`
	FaceImage  string    `json:"faceImage" validate:"max=512"`
}

// Enroll stores a new descriptor for the employee.
func (h *EmployeesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	if err := h.coord.Enroll(r.Context(), orgID(r), employeeID, req.Descriptor, req.FaceImage); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Face enrolled successfully"})
}

// List searches the organization's employees by name, code or email.
func (h *EmployeesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	employees, err := h.coord.SearchEmployees(r.Context(), orgID(r), database.EmployeeFilter{
		Search:     q.Get("search"),
		Status:     q.Get("status"),
		Department: q.Get("department"),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]employeeResponse, 0, len(employees))
	for i := range employees {
		out = append(out, toEmployeeResponse(&employees[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(out), "employees": out})
}

// Get returns one employee.
func (h *EmployeesHandler) Get(w http.ResponseWriter, r *http.Request) {
	emp, err := h.coord.GetEmployee(r.Context(), orgID(r), chi.URLParam(r, "employeeID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toEmployeeResponse(emp))
}
