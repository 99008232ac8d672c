package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"gatecheck/internal/model"
	"gatecheck/internal/repo"
)

const (
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound      = "EVENT_NOT_FOUND"
	SectorNotFound     = "SECTOR_NOT_FOUND"
	SupplierNotFound   = "SUPPLIER_NOT_FOUND"
	AttendeeNotFound   = "ATTENDEE_NOT_FOUND"
	DuplicateCpf       = "DUPLICATE_CPF"
	DuplicateWristband = "DUPLICATE_WRISTBAND"
	CapacityExceeded   = "CAPACITY_EXCEEDED"
	SupplierInactive   = "SUPPLIER_INACTIVE"
	ResourceInUse      = "RESOURCE_IN_USE"
	InvalidToken       = "INVALID_TOKEN"
	WrongPurpose       = "WRONG_PURPOSE"
	InvalidTransition  = "INVALID_TRANSITION"
	MissingPendingData = "MISSING_PENDING_DATA"
	InvalidPendingData = "INVALID_PENDING_DATA"
	OracleUnavailable  = "ORACLE_UNAVAILABLE"
	Unauthorized       = "UNAUTHORIZED"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code      string                   `json:"code"`
	Desc      string                   `json:"desc"`
	Conflicts []repo.WristbandConflict `json:"conflicts,omitempty"`
}

// ---- requests ----

type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type CreateEventRequest struct {
	Name             string             `json:"name" validate:"required,max=255"`
	Modules          model.EventModules `json:"modules"`
	GuestPhotoChange bool               `json:"guest_photo_change"`
	GuestUpload      bool               `json:"guest_upload"`
	EndsAt           *time.Time         `json:"ends_at"`
}

type SectorRequest struct {
	Label string `json:"label" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor6"`
}

type SubCompanyRequest struct {
	Name     string `json:"name" validate:"required"`
	SectorID string `json:"sector_id" validate:"required"`
}

type CreateSupplierRequest struct {
	Name         string              `json:"name" validate:"required,max=255"`
	SectorIDs    []string            `json:"sector_ids" validate:"required,min=1"`
	Limit        int                 `json:"limit" validate:"required,positive"`
	SubCompanies []SubCompanyRequest `json:"sub_companies"`
}

type UpdateSupplierRequest struct {
	Name         string              `json:"name"`
	SectorIDs    []string            `json:"sector_ids"`
	Limit        int                 `json:"limit"`
	SubCompanies []SubCompanyRequest `json:"sub_companies"`
	Active       *bool               `json:"active"`
}

type RegisterAttendeeRequest struct {
	Name       string   `json:"name" validate:"required,max=255"`
	CPF        string   `json:"cpf" validate:"required"`
	Photo      string   `json:"photo" validate:"required"`
	SectorIDs  []string `json:"sector_ids" validate:"required,min=1"`
	SubCompany string   `json:"sub_company"`
	SupplierID string   `json:"supplier_id"`
}

type CheckInRequest struct {
	Wristbands map[string]string `json:"wristbands"`
}

type BlockRequest struct {
	Reason string `json:"reason"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type SubstitutionRequest struct {
	Name      string   `json:"name" validate:"required"`
	CPF       string   `json:"cpf" validate:"required"`
	Photo     string   `json:"photo"`
	SectorIDs []string `json:"sector_ids"`
}

type SectorChangeRequest struct {
	SectorID      string `json:"sector_id" validate:"required"`
	Justification string `json:"justification"`
}

type BulkReassignRequest struct {
	AttendeeIDs []string `json:"attendee_ids" validate:"required,min=1"`
	SectorIDs   []string `json:"sector_ids" validate:"required,min=1"`
}

type ImportRequest struct {
	Rows []repo.ImportRow `json:"rows" validate:"required,min=1"`
}

type ScanRequest struct {
	LiveImage string `json:"live_image" validate:"required"`
}

type LinkRegisterRequest struct {
	Name       string   `json:"name" validate:"required,max=255"`
	CPF        string   `json:"cpf" validate:"required"`
	Photo      string   `json:"photo" validate:"required"`
	SectorIDs  []string `json:"sector_ids" validate:"required,min=1"`
	SubCompany string   `json:"sub_company"`
}

// ---- responses ----

type SupplierResponse struct {
	Supplier model.Supplier `json:"supplier"`
	Usage    int            `json:"usage"`
	Tokens   []model.Token  `json:"tokens,omitempty"`
}

type ScanResponse struct {
	Matched  bool            `json:"matched"`
	Attendee *model.Attendee `json:"attendee,omitempty"`
}

type LinkInfoResponse struct {
	EventName string          `json:"event_name"`
	Supplier  *model.Supplier `json:"supplier"`
	Usage     int             `json:"usage"`
	Remaining int             `json:"remaining"`
	Sectors   []model.Sector  `json:"sectors"`
}

type RosterResponse struct {
	EventName string           `json:"event_name"`
	Supplier  *model.Supplier  `json:"supplier"`
	Attendees []model.Attendee `json:"attendees"`
}

// EventSweepMessage is the delayed RabbitMQ payload scheduling the end-of-
// event MISSED sweep.
type EventSweepMessage struct {
	EventID string    `json:"event_id"`
	EndsAt  time.Time `json:"ends_at"`
}

// ---- writers ----

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func ConflictError(c *ginext.Context, code, desc string, conflicts []repo.WristbandConflict) {
	c.JSON(409, Response{
		Status: "error",
		Error: &Error{
			Code:      code,
			Desc:      desc,
			Conflicts: conflicts,
		},
	})
}

func NotFoundError(c *ginext.Context, code, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func UnauthorizedError(c *ginext.Context, desc string) {
	c.JSON(401, Response{
		Status: "error",
		Error: &Error{
			Code: Unauthorized,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func OracleUnavailableError(c *ginext.Context) {
	c.JSON(503, Response{
		Status: "error",
		Error: &Error{
			Code: OracleUnavailable,
			Desc: "Face matching is temporarily unavailable. Stop scanning and try again.",
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
