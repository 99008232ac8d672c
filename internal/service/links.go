package service

import (
	"fmt"

	"github.com/wb-go/wbf/ginext"

	"gatecheck/internal/dto"
	"gatecheck/internal/lifecycle"
	"gatecheck/internal/mailer"
	"gatecheck/internal/model"
	"gatecheck/internal/repo"
	"gatecheck/pkg/validator"
)

// Supplier self-service: everything under /v1/links authenticates with a
// capability token instead of an organizer session. Registration tokens
// can only add people; admin tokens can also read the roster and file
// substitution and removal proposals.

func (s *service) resolveLink(ctx *ginext.Context, purpose model.TokenPurpose) (*model.Event, *model.Supplier, bool) {
	event, supplier, err := s.tokens.Resolve(ctx.Request.Context(), ctx.Query("token"), purpose)
	if err != nil {
		s.respondError(ctx, err)
		return nil, nil, false
	}
	return event, supplier, true
}

// supplierSectors is the set of sectors a link holder may register into:
// the supplier's own plus any sub-company sectors.
func supplierSectors(sup *model.Supplier) map[string]bool {
	allowed := make(map[string]bool, len(sup.SectorIDs))
	for _, id := range sup.SectorIDs {
		allowed[id] = true
	}
	for _, sc := range sup.SubCompanies {
		allowed[sc.SectorID] = true
	}
	return allowed
}

func (s *service) LinkRegisterInfo(ctx *ginext.Context) {
	event, supplier, ok := s.resolveLink(ctx, model.PurposeRegistration)
	if !ok {
		return
	}
	usage, err := s.registry.SupplierUsage(ctx.Request.Context(), supplier.ID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	sectors, err := s.registry.ListSectors(ctx.Request.Context(), event.ID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	allowed := supplierSectors(supplier)
	visible := make([]model.Sector, 0, len(sectors))
	for _, sec := range sectors {
		if allowed[sec.ID] {
			visible = append(visible, sec)
		}
	}
	remaining := supplier.Limit - usage
	if remaining < 0 {
		remaining = 0
	}
	dto.SuccessResponse(ctx, dto.LinkInfoResponse{
		EventName: event.Name,
		Supplier:  supplier,
		Usage:     usage,
		Remaining: remaining,
		Sectors:   visible,
	})
}

func (s *service) LinkRegister(ctx *ginext.Context) {
	event, supplier, ok := s.resolveLink(ctx, model.PurposeRegistration)
	if !ok {
		return
	}
	var req dto.LinkRegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	allowed := supplierSectors(supplier)
	for _, id := range req.SectorIDs {
		if !allowed[id] {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Sector is not available to this supplier")
			return
		}
	}

	attendee, err := s.engine.Register(ctx.Request.Context(), event.ID, lifecycle.RegisterInput{
		Name:            req.Name,
		CPF:             req.CPF,
		Photo:           req.Photo,
		SectorIDs:       req.SectorIDs,
		SubCompany:      req.SubCompany,
		SupplierID:      supplier.ID,
		RequireApproval: true,
	})
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	if err := mailer.SendApprovalNotification(s.log, s.mailCfg, event.Name, supplier.Name, "registration"); err != nil {
		s.log.Warn().Err(err).Msg("approval notification not sent")
	}
	dto.SuccessCreatedResponse(ctx, attendee)
}

func (s *service) LinkRoster(ctx *ginext.Context) {
	event, supplier, ok := s.resolveLink(ctx, model.PurposeAdmin)
	if !ok {
		return
	}
	attendees, err := s.repo.GetAttendeesBySupplier(ctx.Request.Context(), supplier.ID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, dto.RosterResponse{
		EventName: event.Name,
		Supplier:  supplier,
		Attendees: attendees,
	})
}

// ownAttendee loads the attendee and verifies the link holder actually
// manages them. Cross-supplier ids answer 404 so the link leaks nothing.
func (s *service) ownAttendee(ctx *ginext.Context, supplier *model.Supplier) (*model.Attendee, bool) {
	attendee, err := s.repo.GetAttendeeByID(ctx.Request.Context(), ctx.Param("attendeeId"))
	if err != nil {
		s.respondError(ctx, err)
		return nil, false
	}
	if attendee.SupplierID != supplier.ID {
		s.respondError(ctx, repo.ErrAttendeeNotFound)
		return nil, false
	}
	return attendee, true
}

func (s *service) LinkSubstitution(ctx *ginext.Context) {
	event, supplier, ok := s.resolveLink(ctx, model.PurposeAdmin)
	if !ok {
		return
	}
	attendee, ok := s.ownAttendee(ctx, supplier)
	if !ok {
		return
	}
	var req dto.SubstitutionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	updated, err := s.engine.RequestSubstitution(ctx.Request.Context(), attendee.ID, model.SubstitutionData{
		Name:      req.Name,
		CPF:       req.CPF,
		Photo:     req.Photo,
		SectorIDs: req.SectorIDs,
	})
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	if err := mailer.SendApprovalNotification(s.log, s.mailCfg, event.Name, supplier.Name, "substitution"); err != nil {
		s.log.Warn().Err(err).Msg("approval notification not sent")
	}
	dto.SuccessResponse(ctx, updated)
}

func (s *service) LinkRemoval(ctx *ginext.Context) {
	event, supplier, ok := s.resolveLink(ctx, model.PurposeAdmin)
	if !ok {
		return
	}
	attendee, ok := s.ownAttendee(ctx, supplier)
	if !ok {
		return
	}
	updated, err := s.engine.RequestRemoval(ctx.Request.Context(), attendee.ID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	if err := mailer.SendApprovalNotification(s.log, s.mailCfg, event.Name, supplier.Name, "removal"); err != nil {
		s.log.Warn().Err(err).Msg("approval notification not sent")
	}
	dto.SuccessResponse(ctx, updated)
}
