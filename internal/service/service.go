package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"gatecheck/internal/auth"
	"gatecheck/internal/dto"
	"gatecheck/internal/lifecycle"
	"gatecheck/internal/mailer"
	"gatecheck/internal/model"
	"gatecheck/internal/oracle"
	"gatecheck/internal/rabbit"
	"gatecheck/internal/realtime"
	"gatecheck/internal/registry"
	"gatecheck/internal/repo"
	"gatecheck/internal/token"
	"gatecheck/pkg/validator"
)

type Service interface {
	Login(ctx *ginext.Context)
	Logout(ctx *ginext.Context)

	CreateEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	UpdateEvent(ctx *ginext.Context)
	DeleteEvent(ctx *ginext.Context)
	Stream(ctx *ginext.Context)

	AddSector(ctx *ginext.Context)
	UpdateSector(ctx *ginext.Context)
	DeleteSector(ctx *ginext.Context)
	ListSectors(ctx *ginext.Context)

	AddSupplier(ctx *ginext.Context)
	UpdateSupplier(ctx *ginext.Context)
	DeleteSupplier(ctx *ginext.Context)
	ListSuppliers(ctx *ginext.Context)
	RegenerateToken(ctx *ginext.Context)

	ListAttendees(ctx *ginext.Context)
	GetAttendee(ctx *ginext.Context)
	RegisterAttendee(ctx *ginext.Context)
	DeleteAttendee(ctx *ginext.Context)
	CheckIn(ctx *ginext.Context)
	RevertCheckIn(ctx *ginext.Context)
	CheckOut(ctx *ginext.Context)
	CancelAttendee(ctx *ginext.Context)
	Block(ctx *ginext.Context)
	Unblock(ctx *ginext.Context)
	SetStatus(ctx *ginext.Context)
	ClearWristbands(ctx *ginext.Context)
	OpenSubstitution(ctx *ginext.Context)
	RequestSubstitution(ctx *ginext.Context)
	ApproveSubstitution(ctx *ginext.Context)
	RejectSubstitution(ctx *ginext.Context)
	RequestSectorChange(ctx *ginext.Context)
	ApproveSectorChange(ctx *ginext.Context)
	RejectSectorChange(ctx *ginext.Context)
	ApproveRegistration(ctx *ginext.Context)
	RejectRegistration(ctx *ginext.Context)
	ApproveRemoval(ctx *ginext.Context)
	RejectRemoval(ctx *ginext.Context)
	BulkReassign(ctx *ginext.Context)
	Import(ctx *ginext.Context)
	Scan(ctx *ginext.Context)

	LinkRegisterInfo(ctx *ginext.Context)
	LinkRegister(ctx *ginext.Context)
	LinkRoster(ctx *ginext.Context)
	LinkSubstitution(ctx *ginext.Context)
	LinkRemoval(ctx *ginext.Context)
}

type service struct {
	engine   *lifecycle.Engine
	registry *registry.Registry
	tokens   *token.Registry
	repo     repo.Repository
	sessions auth.Store
	checker  auth.CredentialChecker
	matcher  oracle.Matcher
	bus      realtime.Bus
	rbt      *rabbit.Client
	mailCfg  mailer.Config
	log      *zerolog.Logger
}

type Deps struct {
	Engine   *lifecycle.Engine
	Registry *registry.Registry
	Tokens   *token.Registry
	Repo     repo.Repository
	Sessions auth.Store
	Checker  auth.CredentialChecker
	Matcher  oracle.Matcher
	Bus      realtime.Bus
	Rabbit   *rabbit.Client
	Mail     mailer.Config
	Log      *zerolog.Logger
}

func NewService(d Deps) Service {
	return &service{
		engine:   d.Engine,
		registry: d.Registry,
		tokens:   d.Tokens,
		repo:     d.Repo,
		sessions: d.Sessions,
		checker:  d.Checker,
		matcher:  d.Matcher,
		bus:      d.Bus,
		rbt:      d.Rabbit,
		mailCfg:  d.Mail,
		log:      d.Log,
	}
}

// respondError maps engine and registry failures onto distinct response
// codes. Anything that falls through the switch is an infrastructure
// failure, logged and answered with the generic 500 envelope so the UI
// can show a connection banner instead of a field error.
func (s *service) respondError(ctx *ginext.Context, err error) {
	var dup *repo.DuplicateWristbandError
	switch {
	case errors.As(err, &dup):
		dto.ConflictError(ctx, dto.DuplicateWristband, dup.Error(), dup.Conflicts)
	case errors.Is(err, lifecycle.ErrValidation):
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		dto.BadResponseError(ctx, dto.InvalidTransition, err.Error())
	case errors.Is(err, lifecycle.ErrMissingSubstitutionData),
		errors.Is(err, lifecycle.ErrMissingSectorChangeData),
		errors.Is(err, lifecycle.ErrNoRemovalRequested):
		dto.BadResponseError(ctx, dto.MissingPendingData, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidSubstitutionData):
		dto.BadResponseError(ctx, dto.InvalidPendingData, err.Error())
	case errors.Is(err, lifecycle.ErrPendingRequestExists):
		dto.BadResponseError(ctx, dto.InvalidTransition, err.Error())
	case errors.Is(err, repo.ErrDuplicateCpf):
		dto.ConflictError(ctx, dto.DuplicateCpf, "An attendee with this CPF is already registered for this event", nil)
	case errors.Is(err, repo.ErrCapacityExceeded):
		dto.BadResponseError(ctx, dto.CapacityExceeded, "The supplier registration limit has been reached")
	case errors.Is(err, repo.ErrSupplierInactive):
		dto.BadResponseError(ctx, dto.SupplierInactive, "The supplier is inactive")
	case errors.Is(err, repo.ErrResourceInUse):
		dto.ConflictError(ctx, dto.ResourceInUse, "The resource is still referenced and cannot be deleted", nil)
	case errors.Is(err, repo.ErrEventNotFound):
		dto.NotFoundError(ctx, dto.EventNotFound, "Event not found")
	case errors.Is(err, repo.ErrSectorNotFound):
		dto.NotFoundError(ctx, dto.SectorNotFound, "Sector not found")
	case errors.Is(err, repo.ErrSupplierNotFound):
		dto.NotFoundError(ctx, dto.SupplierNotFound, "Supplier not found")
	case errors.Is(err, repo.ErrAttendeeNotFound):
		dto.NotFoundError(ctx, dto.AttendeeNotFound, "Attendee not found")
	case errors.Is(err, token.ErrInvalidToken):
		dto.NotFoundError(ctx, dto.InvalidToken, "This link is not valid")
	case errors.Is(err, token.ErrWrongPurpose):
		dto.BadResponseError(ctx, dto.WrongPurpose, "This link cannot be used for that")
	case errors.Is(err, auth.ErrBadCredentials):
		dto.UnauthorizedError(ctx, "Wrong password")
	case errors.Is(err, oracle.ErrUnavailable):
		dto.OracleUnavailableError(ctx)
	default:
		s.log.Error().Err(err).Msg("unexpected failure")
		dto.InternalServerError(ctx)
	}
}

// ---- auth ----

func (s *service) Login(ctx *ginext.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if err := s.checker.Check(ctx.Request.Context(), req.Password); err != nil {
		s.respondError(ctx, err)
		return
	}
	sess, err := s.sessions.Create(ctx.Request.Context())
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, sess)
}

func (s *service) Logout(ctx *ginext.Context) {
	tok := ctx.GetHeader("X-Session-Token")
	if err := s.sessions.Destroy(ctx.Request.Context(), tok); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

// ---- events ----

// scheduleSweep publishes the delayed event-end message that marks
// no-shows as missed once the event is over.
func (s *service) scheduleSweep(e *model.Event) {
	if s.rbt == nil || e.EndsAt == nil {
		return
	}
	delay := int(time.Until(*e.EndsAt).Seconds())
	if delay < 0 {
		delay = 0
	}
	msg := dto.EventSweepMessage{EventID: e.ID, EndsAt: *e.EndsAt}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal sweep message")
		return
	}
	if err := s.rbt.Publish(payload, delay); err != nil {
		s.log.Error().Err(err).Msg("failed to publish sweep message")
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event := &model.Event{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Modules:          req.Modules,
		GuestPhotoChange: req.GuestPhotoChange,
		GuestUpload:      req.GuestUpload,
		EndsAt:           req.EndsAt,
	}
	if err := s.repo.CreateEvent(ctx.Request.Context(), event); err != nil {
		s.respondError(ctx, err)
		return
	}

	s.log.Info().Str("event_id", event.ID).Msg("event created")
	s.scheduleSweep(event)
	dto.SuccessCreatedResponse(ctx, event)
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx.Request.Context())
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, events)
}

func (s *service) GetEvent(ctx *ginext.Context) {
	event, err := s.repo.GetEventByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, event)
}

func (s *service) UpdateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	endsAtChanged := !equalTimes(event.EndsAt, req.EndsAt)
	event.Name = req.Name
	event.Modules = req.Modules
	event.GuestPhotoChange = req.GuestPhotoChange
	event.GuestUpload = req.GuestUpload
	event.EndsAt = req.EndsAt
	if err := s.repo.UpdateEvent(ctx.Request.Context(), event); err != nil {
		s.respondError(ctx, err)
		return
	}
	if endsAtChanged {
		s.scheduleSweep(event)
	}
	s.bus.Publish(ctx.Request.Context(), realtime.Change{
		EventID: event.ID, Collection: "events", ID: event.ID, Action: "updated",
	})
	dto.SuccessResponse(ctx, event)
}

func equalTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *service) DeleteEvent(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := s.repo.DeleteEventCascadeTx(ctx.Request.Context(), id); err != nil {
		s.respondError(ctx, err)
		return
	}
	s.log.Info().Str("event_id", id).Msg("event deleted with full cascade")
	dto.SuccessResponse(ctx, nil)
}

// Stream pushes change notifications to the UI over SSE; the UI re-reads
// the affected snapshot on every message.
func (s *service) Stream(ctx *ginext.Context) {
	eventID := ctx.Param("id")
	if _, err := s.repo.GetEventByID(ctx.Request.Context(), eventID); err != nil {
		s.respondError(ctx, err)
		return
	}

	ch, cancel := s.bus.Subscribe(ctx.Request.Context(), eventID)
	defer cancel()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Writer.Flush()

	for {
		select {
		case change, ok := <-ch:
			if !ok {
				return
			}
			ctx.SSEvent("change", change)
			ctx.Writer.Flush()
		case <-ctx.Request.Context().Done():
			return
		}
	}
}

// ---- sectors ----

func (s *service) AddSector(ctx *ginext.Context) {
	var req dto.SectorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	sector, err := s.registry.AddSector(ctx.Request.Context(), ctx.Param("id"), req.Label, req.Color)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, sector)
}

func (s *service) UpdateSector(ctx *ginext.Context) {
	var req dto.SectorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	sector, err := s.registry.UpdateSector(ctx.Request.Context(), ctx.Param("id"), ctx.Param("sectorId"), req.Label, req.Color)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, sector)
}

func (s *service) DeleteSector(ctx *ginext.Context) {
	if err := s.registry.DeleteSector(ctx.Request.Context(), ctx.Param("id"), ctx.Param("sectorId")); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) ListSectors(ctx *ginext.Context) {
	sectors, err := s.registry.ListSectors(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, sectors)
}

// ---- suppliers ----

func subCompanies(in []dto.SubCompanyRequest) []model.SubCompany {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.SubCompany, 0, len(in))
	for _, sc := range in {
		out = append(out, model.SubCompany{Name: sc.Name, SectorID: sc.SectorID})
	}
	return out
}

func (s *service) AddSupplier(ctx *ginext.Context) {
	var req dto.CreateSupplierRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	supplier, tokens, err := s.registry.AddSupplier(ctx.Request.Context(), ctx.Param("id"), registry.SupplierInput{
		Name:         req.Name,
		SectorIDs:    req.SectorIDs,
		Limit:        req.Limit,
		SubCompanies: subCompanies(req.SubCompanies),
	})
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, dto.SupplierResponse{Supplier: *supplier, Tokens: tokens})
}

func (s *service) UpdateSupplier(ctx *ginext.Context) {
	var req dto.UpdateSupplierRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	supplier, err := s.registry.UpdateSupplier(ctx.Request.Context(), ctx.Param("id"), ctx.Param("supplierId"), registry.SupplierInput{
		Name:         req.Name,
		SectorIDs:    req.SectorIDs,
		Limit:        req.Limit,
		SubCompanies: subCompanies(req.SubCompanies),
		Active:       req.Active,
	})
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, supplier)
}

func (s *service) DeleteSupplier(ctx *ginext.Context) {
	if err := s.registry.DeleteSupplier(ctx.Request.Context(), ctx.Param("id"), ctx.Param("supplierId")); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) ListSuppliers(ctx *ginext.Context) {
	suppliers, err := s.registry.ListSuppliers(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	resp := make([]dto.SupplierResponse, 0, len(suppliers))
	for _, sup := range suppliers {
		usage, err := s.registry.SupplierUsage(ctx.Request.Context(), sup.ID)
		if err != nil {
			s.respondError(ctx, err)
			return
		}
		tokens, err := s.repo.GetTokensBySupplier(ctx.Request.Context(), sup.ID)
		if err != nil {
			s.respondError(ctx, err)
			return
		}
		resp = append(resp, dto.SupplierResponse{Supplier: sup, Usage: usage, Tokens: tokens})
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) RegenerateToken(ctx *ginext.Context) {
	purpose, ok := model.ParseTokenPurpose(ctx.Param("purpose"))
	if !ok {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown token purpose")
		return
	}
	t, err := s.tokens.Regenerate(ctx.Request.Context(), ctx.Param("id"), ctx.Param("supplierId"), purpose)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, t)
}
