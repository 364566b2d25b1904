package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/punchclock/internal/web/handlers"
	"github.com/kozaktomas/punchclock/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.coord)
	employeesHandler := handlers.NewEmployeesHandler(s.coord)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1/orgs/{orgID}", func(r chi.Router) {
		r.Use(middleware.RequireOrg)

		// Kiosk flow
		r.Post("/attendance/verify-face", attendanceHandler.VerifyFace)
		r.Post("/attendance/punch-in", attendanceHandler.PunchIn)
		r.Post("/attendance/punch-out", attendanceHandler.PunchOut)

		// Ledger reads
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/attendance/range", attendanceHandler.Range)
		r.Get("/attendance/export", attendanceHandler.Export)
		r.Get("/attendance/employee/{employeeID}", attendanceHandler.ByEmployee)

		// Employees
		r.Get("/employees", employeesHandler.List)
		r.Post("/employees", employeesHandler.Onboard)
		r.Get("/employees/{employeeID}", employeesHandler.Get)
		r.Put("/employees/{employeeID}/descriptor", employeesHandler.Enroll)
	})
}
