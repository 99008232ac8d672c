package service

import (
	"fmt"

	"github.com/wb-go/wbf/ginext"

	"gatecheck/internal/dto"
	"gatecheck/internal/lifecycle"
	"gatecheck/internal/model"
	"gatecheck/internal/oracle"
	"gatecheck/pkg/validator"
)

func (s *service) ListAttendees(ctx *ginext.Context) {
	eventID := ctx.Param("id")
	if status := ctx.Query("status"); status != "" {
		st, ok := model.ParseStatus(status)
		if !ok {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown status filter")
			return
		}
		attendees, err := s.repo.GetAttendeesByStatus(ctx.Request.Context(), eventID, st)
		if err != nil {
			s.respondError(ctx, err)
			return
		}
		dto.SuccessResponse(ctx, attendees)
		return
	}
	attendees, err := s.repo.GetAttendeesByEventID(ctx.Request.Context(), eventID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, attendees)
}

func (s *service) GetAttendee(ctx *ginext.Context) {
	attendee, err := s.repo.GetAttendeeByID(ctx.Request.Context(), ctx.Param("attendeeId"))
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, attendee)
}

func (s *service) RegisterAttendee(ctx *ginext.Context) {
	var req dto.RegisterAttendeeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	attendee, err := s.engine.Register(ctx.Request.Context(), ctx.Param("id"), lifecycle.RegisterInput{
		Name:       req.Name,
		CPF:        req.CPF,
		Photo:      req.Photo,
		SectorIDs:  req.SectorIDs,
		SubCompany: req.SubCompany,
		SupplierID: req.SupplierID,
	})
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, attendee)
}

func (s *service) DeleteAttendee(ctx *ginext.Context) {
	if err := s.engine.Delete(ctx.Request.Context(), ctx.Param("attendeeId")); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) CheckIn(ctx *ginext.Context) {
	var req dto.CheckInRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	attendee, err := s.engine.CheckIn(ctx.Request.Context(), ctx.Param("attendeeId"), req.Wristbands)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, attendee)
}

// respondTransition is the shared tail of the single-verb lifecycle
// handlers.
func (s *service) respondTransition(ctx *ginext.Context, attendee *model.Attendee, err error) {
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, attendee)
}

func (s *service) RevertCheckIn(ctx *ginext.Context) {
	a, err := s.engine.RevertCheckIn(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) CheckOut(ctx *ginext.Context) {
	a, err := s.engine.CheckOut(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) CancelAttendee(ctx *ginext.Context) {
	a, err := s.engine.Cancel(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) Block(ctx *ginext.Context) {
	var req dto.BlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	a, err := s.engine.Block(ctx.Request.Context(), ctx.Param("attendeeId"), req.Reason)
	s.respondTransition(ctx, a, err)
}

func (s *service) Unblock(ctx *ginext.Context) {
	a, err := s.engine.Unblock(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) SetStatus(ctx *ginext.Context) {
	var req dto.SetStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	st, ok := model.ParseStatus(req.Status)
	if !ok {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown status")
		return
	}
	a, err := s.engine.SetStatus(ctx.Request.Context(), ctx.Param("attendeeId"), st)
	s.respondTransition(ctx, a, err)
}

func (s *service) ClearWristbands(ctx *ginext.Context) {
	if err := s.engine.ClearWristbands(ctx.Request.Context(), ctx.Param("attendeeId")); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) OpenSubstitution(ctx *ginext.Context) {
	a, err := s.engine.OpenSubstitution(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) RequestSubstitution(ctx *ginext.Context) {
	var req dto.SubstitutionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	a, err := s.engine.RequestSubstitution(ctx.Request.Context(), ctx.Param("attendeeId"), model.SubstitutionData{
		Name:      req.Name,
		CPF:       req.CPF,
		Photo:     req.Photo,
		SectorIDs: req.SectorIDs,
	})
	s.respondTransition(ctx, a, err)
}

func (s *service) ApproveSubstitution(ctx *ginext.Context) {
	a, err := s.engine.ApproveSubstitution(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) RejectSubstitution(ctx *ginext.Context) {
	a, err := s.engine.RejectSubstitution(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) RequestSectorChange(ctx *ginext.Context) {
	var req dto.SectorChangeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	a, err := s.engine.RequestSectorChange(ctx.Request.Context(), ctx.Param("attendeeId"), req.SectorID, req.Justification)
	s.respondTransition(ctx, a, err)
}

func (s *service) ApproveSectorChange(ctx *ginext.Context) {
	a, err := s.engine.ApproveSectorChange(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) RejectSectorChange(ctx *ginext.Context) {
	a, err := s.engine.RejectSectorChange(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) ApproveRegistration(ctx *ginext.Context) {
	a, err := s.engine.ApproveRegistration(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) RejectRegistration(ctx *ginext.Context) {
	a, err := s.engine.RejectRegistration(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) ApproveRemoval(ctx *ginext.Context) {
	if err := s.engine.ApproveRemoval(ctx.Request.Context(), ctx.Param("attendeeId")); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) RejectRemoval(ctx *ginext.Context) {
	a, err := s.engine.RejectRemoval(ctx.Request.Context(), ctx.Param("attendeeId"))
	s.respondTransition(ctx, a, err)
}

func (s *service) BulkReassign(ctx *ginext.Context) {
	var req dto.BulkReassignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	if err := s.engine.BulkReassignSectors(ctx.Request.Context(), ctx.Param("id"), req.AttendeeIDs, req.SectorIDs); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) Import(ctx *ginext.Context) {
	var req dto.ImportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	results, err := s.engine.ImportRows(ctx.Request.Context(), ctx.Param("id"), req.Rows)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, results)
}

// Scan runs the camera frame against the pending roster through the face
// matching provider. Only PENDING attendees with a stored photo are
// candidates, so an already checked-in guest can never match twice.
func (s *service) Scan(ctx *ginext.Context) {
	var req dto.ScanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	pending, err := s.repo.GetAttendeesByStatus(ctx.Request.Context(), ctx.Param("id"), model.StatusPending)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	candidates := make([]oracle.Candidate, 0, len(pending))
	for _, a := range pending {
		candidates = append(candidates, oracle.Candidate{ID: a.ID, Photo: a.Photo})
	}

	matchID, err := s.matcher.Match(ctx.Request.Context(), req.LiveImage, candidates)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	if matchID == "" {
		dto.SuccessResponse(ctx, dto.ScanResponse{Matched: false})
		return
	}
	attendee, err := s.repo.GetAttendeeByID(ctx.Request.Context(), matchID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, dto.ScanResponse{Matched: true, Attendee: attendee})
}
