package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gatecheck/internal/lifecycle"
	"gatecheck/internal/model"
	"gatecheck/internal/realtime"
	"gatecheck/internal/repo"
	"gatecheck/internal/token"
)

// Registry owns sector and supplier CRUD with the referential-integrity
// guards around deletion, plus supplier token issuance.
type Registry struct {
	repo repo.Repository
	bus  realtime.Bus
	log  *zerolog.Logger
}

func New(r repo.Repository, bus realtime.Bus, log *zerolog.Logger) *Registry {
	return &Registry{repo: r, bus: bus, log: log}
}

func (g *Registry) notify(ctx context.Context, eventID, collection, id, action string) {
	g.bus.Publish(ctx, realtime.Change{
		EventID:    eventID,
		Collection: collection,
		ID:         id,
		Action:     action,
	})
}

// ---- sectors ----

func (g *Registry) AddSector(ctx context.Context, eventID, label, color string) (*model.Sector, error) {
	if _, err := g.repo.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", lifecycle.ErrValidation)
	}
	s := &model.Sector{
		ID:      uuid.NewString(),
		EventID: eventID,
		Label:   label,
		Color:   color,
	}
	if err := g.repo.CreateSector(ctx, s); err != nil {
		return nil, err
	}
	g.notify(ctx, eventID, "sectors", s.ID, "created")
	return s, nil
}

func (g *Registry) UpdateSector(ctx context.Context, eventID, sectorID, label, color string) (*model.Sector, error) {
	s, err := g.repo.GetSectorByID(ctx, eventID, sectorID)
	if err != nil {
		return nil, err
	}
	if label = strings.TrimSpace(label); label != "" {
		s.Label = label
	}
	if color != "" {
		s.Color = color
	}
	if err := g.repo.UpdateSector(ctx, s); err != nil {
		return nil, err
	}
	g.notify(ctx, eventID, "sectors", sectorID, "updated")
	return s, nil
}

// DeleteSector refuses to delete a sector any attendee or supplier still
// references; both collections are checked before the delete, never after.
func (g *Registry) DeleteSector(ctx context.Context, eventID, sectorID string) error {
	if err := g.repo.DeleteSectorTx(ctx, eventID, sectorID); err != nil {
		return err
	}
	g.notify(ctx, eventID, "sectors", sectorID, "deleted")
	return nil
}

func (g *Registry) ListSectors(ctx context.Context, eventID string) ([]model.Sector, error) {
	return g.repo.GetSectorsByEventID(ctx, eventID)
}

// ---- suppliers ----

type SupplierInput struct {
	Name         string
	SectorIDs    []string
	Limit        int
	SubCompanies []model.SubCompany
	Active       *bool
}

// AddSupplier creates the supplier together with its registration and
// admin tokens in one atomic write.
func (g *Registry) AddSupplier(ctx context.Context, eventID string, in SupplierInput) (*model.Supplier, []model.Token, error) {
	if _, err := g.repo.GetEventByID(ctx, eventID); err != nil {
		return nil, nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, nil, fmt.Errorf("%w: name is required", lifecycle.ErrValidation)
	}
	if in.Limit <= 0 {
		return nil, nil, fmt.Errorf("%w: registration limit must be positive", lifecycle.ErrValidation)
	}
	if len(in.SectorIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one sector is required", lifecycle.ErrValidation)
	}
	for _, sectorID := range in.SectorIDs {
		if _, err := g.repo.GetSectorByID(ctx, eventID, sectorID); err != nil {
			return nil, nil, fmt.Errorf("%w: unknown sector %s", lifecycle.ErrValidation, sectorID)
		}
	}
	for _, sc := range in.SubCompanies {
		if _, err := g.repo.GetSectorByID(ctx, eventID, sc.SectorID); err != nil {
			return nil, nil, fmt.Errorf("%w: unknown sector %s for sub company %s", lifecycle.ErrValidation, sc.SectorID, sc.Name)
		}
	}

	s := &model.Supplier{
		ID:           uuid.NewString(),
		EventID:      eventID,
		Name:         in.Name,
		SectorIDs:    append([]string(nil), in.SectorIDs...),
		Limit:        in.Limit,
		SubCompanies: in.SubCompanies,
		Active:       true,
	}
	if in.Active != nil {
		s.Active = *in.Active
	}

	tokens, err := token.NewPair(eventID, s.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := g.repo.CreateSupplierTx(ctx, s, tokens); err != nil {
		return nil, nil, err
	}

	g.log.Info().Str("supplier_id", s.ID).Str("event_id", eventID).Msg("supplier created")
	g.notify(ctx, eventID, "suppliers", s.ID, "created")
	return s, tokens, nil
}

// UpdateSupplier applies a partial update. Lowering the limit below
// current usage is allowed; capacity is only enforced at registration
// time, so an over-limit supplier simply cannot register anyone else.
func (g *Registry) UpdateSupplier(ctx context.Context, eventID, supplierID string, in SupplierInput) (*model.Supplier, error) {
	s, err := g.repo.GetSupplierByID(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	if s.EventID != eventID {
		return nil, repo.ErrSupplierNotFound
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		s.Name = name
	}
	if len(in.SectorIDs) > 0 {
		for _, sectorID := range in.SectorIDs {
			if _, err := g.repo.GetSectorByID(ctx, eventID, sectorID); err != nil {
				return nil, fmt.Errorf("%w: unknown sector %s", lifecycle.ErrValidation, sectorID)
			}
		}
		s.SectorIDs = append([]string(nil), in.SectorIDs...)
	}
	if in.Limit > 0 {
		s.Limit = in.Limit
	}
	if in.SubCompanies != nil {
		s.SubCompanies = in.SubCompanies
	}
	if in.Active != nil {
		s.Active = *in.Active
	}
	if err := g.repo.UpdateSupplier(ctx, s); err != nil {
		return nil, err
	}
	g.notify(ctx, eventID, "suppliers", supplierID, "updated")
	return s, nil
}

func (g *Registry) DeleteSupplier(ctx context.Context, eventID, supplierID string) error {
	if err := g.repo.DeleteSupplierTx(ctx, eventID, supplierID); err != nil {
		return err
	}
	g.notify(ctx, eventID, "suppliers", supplierID, "deleted")
	return nil
}

func (g *Registry) ListSuppliers(ctx context.Context, eventID string) ([]model.Supplier, error) {
	return g.repo.GetSuppliersByEventID(ctx, eventID)
}

func (g *Registry) SupplierUsage(ctx context.Context, supplierID string) (int, error) {
	return g.repo.CountAttendeesBySupplier(ctx, supplierID)
}
