package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"gatecheck/cmd/middleware"
	"gatecheck/internal/auth"
	"gatecheck/internal/service"
)

type Routers struct {
	Service  service.Service
	Sessions auth.Store
	// PhotoDir is served statically when the disk photo store is in use.
	PhotoDir string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	apiGroup := app.Group("/v1")
	apiGroup.POST("/login", r.Service.Login)

	// Supplier capability links: token in the query string, no session.
	links := apiGroup.Group("/links")
	links.GET("/register", r.Service.LinkRegisterInfo)
	links.POST("/register", r.Service.LinkRegister)
	links.GET("/roster", r.Service.LinkRoster)
	links.POST("/roster/:attendeeId/substitution", r.Service.LinkSubstitution)
	links.POST("/roster/:attendeeId/removal", r.Service.LinkRemoval)

	adm := apiGroup.Group("")
	adm.Use(middleware.SessionAuth(r.Sessions))

	adm.POST("/logout", r.Service.Logout)

	adm.POST("/events", r.Service.CreateEvent)
	adm.GET("/events", r.Service.GetAllEvents)
	adm.GET("/events/:id", r.Service.GetEvent)
	adm.PUT("/events/:id", r.Service.UpdateEvent)
	adm.DELETE("/events/:id", r.Service.DeleteEvent)
	adm.GET("/events/:id/stream", r.Service.Stream)

	adm.POST("/events/:id/sectors", r.Service.AddSector)
	adm.GET("/events/:id/sectors", r.Service.ListSectors)
	adm.PUT("/events/:id/sectors/:sectorId", r.Service.UpdateSector)
	adm.DELETE("/events/:id/sectors/:sectorId", r.Service.DeleteSector)

	adm.POST("/events/:id/suppliers", r.Service.AddSupplier)
	adm.GET("/events/:id/suppliers", r.Service.ListSuppliers)
	adm.PUT("/events/:id/suppliers/:supplierId", r.Service.UpdateSupplier)
	adm.DELETE("/events/:id/suppliers/:supplierId", r.Service.DeleteSupplier)
	adm.POST("/events/:id/suppliers/:supplierId/tokens/:purpose", r.Service.RegenerateToken)

	adm.POST("/events/:id/attendees", r.Service.RegisterAttendee)
	adm.GET("/events/:id/attendees", r.Service.ListAttendees)
	adm.POST("/events/:id/attendees/bulk-sectors", r.Service.BulkReassign)
	adm.POST("/events/:id/attendees/import", r.Service.Import)
	adm.POST("/events/:id/scan", r.Service.Scan)

	adm.GET("/attendees/:attendeeId", r.Service.GetAttendee)
	adm.DELETE("/attendees/:attendeeId", r.Service.DeleteAttendee)
	adm.POST("/attendees/:attendeeId/checkin", r.Service.CheckIn)
	adm.POST("/attendees/:attendeeId/checkin/revert", r.Service.RevertCheckIn)
	adm.POST("/attendees/:attendeeId/checkout", r.Service.CheckOut)
	adm.POST("/attendees/:attendeeId/cancel", r.Service.CancelAttendee)
	adm.POST("/attendees/:attendeeId/block", r.Service.Block)
	adm.POST("/attendees/:attendeeId/unblock", r.Service.Unblock)
	adm.POST("/attendees/:attendeeId/status", r.Service.SetStatus)
	adm.DELETE("/attendees/:attendeeId/wristbands", r.Service.ClearWristbands)

	adm.POST("/attendees/:attendeeId/substitution/open", r.Service.OpenSubstitution)
	adm.POST("/attendees/:attendeeId/substitution", r.Service.RequestSubstitution)
	adm.POST("/attendees/:attendeeId/substitution/approve", r.Service.ApproveSubstitution)
	adm.POST("/attendees/:attendeeId/substitution/reject", r.Service.RejectSubstitution)

	adm.POST("/attendees/:attendeeId/sector-change", r.Service.RequestSectorChange)
	adm.POST("/attendees/:attendeeId/sector-change/approve", r.Service.ApproveSectorChange)
	adm.POST("/attendees/:attendeeId/sector-change/reject", r.Service.RejectSectorChange)

	adm.POST("/attendees/:attendeeId/registration/approve", r.Service.ApproveRegistration)
	adm.POST("/attendees/:attendeeId/registration/reject", r.Service.RejectRegistration)
	adm.POST("/attendees/:attendeeId/removal/approve", r.Service.ApproveRemoval)
	adm.POST("/attendees/:attendeeId/removal/reject", r.Service.RejectRemoval)

	if r.PhotoDir != "" {
		app.Static("/photos", r.PhotoDir)
	}

	return app
}
