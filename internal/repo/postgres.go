package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"gatecheck/internal/model"
)

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

// ---- events ----

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	modules, err := json.Marshal(e.Modules)
	if err != nil {
		return fmt.Errorf("failed to marshal event modules: %w", err)
	}
	query := `
		INSERT INTO events (id, name, modules, guest_photo_change, guest_upload, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.Name, modules, e.GuestPhotoChange, e.GuestUpload, e.EndsAt,
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `
		SELECT id, name, modules, guest_photo_change, guest_upload, ends_at, created_at, updated_at
		FROM events WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var e model.Event
	var modules []byte
	if err := row.Scan(
		&e.ID, &e.Name, &modules, &e.GuestPhotoChange, &e.GuestUpload,
		&e.EndsAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, ErrEventNotFound
	}
	if err := json.Unmarshal(modules, &e.Modules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event modules: %w", err)
	}
	return &e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	query := `
		SELECT id, name, modules, guest_photo_change, guest_upload, ends_at, created_at, updated_at
		FROM events ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var modules []byte
		if err := rows.Scan(
			&e.ID, &e.Name, &modules, &e.GuestPhotoChange, &e.GuestUpload,
			&e.EndsAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal(modules, &e.Modules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event modules: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *repository) UpdateEvent(ctx context.Context, e *model.Event) error {
	modules, err := json.Marshal(e.Modules)
	if err != nil {
		return fmt.Errorf("failed to marshal event modules: %w", err)
	}
	query := `
		UPDATE events
		SET name = $1, modules = $2, guest_photo_change = $3, guest_upload = $4, ends_at = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING id
	`
	var id string
	if err := r.db.QueryRowContext(ctx, query,
		e.Name, modules, e.GuestPhotoChange, e.GuestUpload, e.EndsAt, e.ID,
	).Scan(&id); err != nil {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) DeleteEventCascadeTx(ctx context.Context, id string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	// child tables carry ON DELETE CASCADE; a single guarded delete keeps
	// the cascade atomic.
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrEventNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event deletion: %w", err)
	}
	return nil
}

// ---- sectors ----

func (r *repository) CreateSector(ctx context.Context, s *model.Sector) error {
	query := `INSERT INTO sectors (id, event_id, label, color) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.EventID, s.Label, s.Color); err != nil {
		return fmt.Errorf("failed to insert sector: %w", err)
	}
	return nil
}

func (r *repository) UpdateSector(ctx context.Context, s *model.Sector) error {
	query := `UPDATE sectors SET label = $1, color = $2 WHERE id = $3 AND event_id = $4 RETURNING id`
	var id string
	if err := r.db.QueryRowContext(ctx, query, s.Label, s.Color, s.ID, s.EventID).Scan(&id); err != nil {
		return ErrSectorNotFound
	}
	return nil
}

func (r *repository) DeleteSectorTx(ctx context.Context, eventID, sectorID string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	// both collections are scanned before the delete is allowed
	var attendees int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendees WHERE event_id = $1 AND $2 = ANY(sector_ids)
	`, eventID, sectorID).Scan(&attendees); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to count attendee references: %w", err)
	}
	var suppliers int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM suppliers WHERE event_id = $1 AND $2 = ANY(sector_ids)
	`, eventID, sectorID).Scan(&suppliers); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to count supplier references: %w", err)
	}
	if attendees > 0 || suppliers > 0 {
		_ = tx.Rollback()
		return ErrResourceInUse
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sectors WHERE id = $1 AND event_id = $2`, sectorID, eventID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete sector: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrSectorNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sector deletion: %w", err)
	}
	return nil
}

func (r *repository) GetSectorByID(ctx context.Context, eventID, sectorID string) (*model.Sector, error) {
	query := `SELECT id, event_id, label, color FROM sectors WHERE id = $1 AND event_id = $2`
	var s model.Sector
	if err := r.db.QueryRowContext(ctx, query, sectorID, eventID).Scan(&s.ID, &s.EventID, &s.Label, &s.Color); err != nil {
		return nil, ErrSectorNotFound
	}
	return &s, nil
}

func (r *repository) GetSectorsByEventID(ctx context.Context, eventID string) ([]model.Sector, error) {
	query := `SELECT id, event_id, label, color FROM sectors WHERE event_id = $1 ORDER BY label ASC`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sectors: %w", err)
	}
	defer rows.Close()

	var sectors []model.Sector
	for rows.Next() {
		var s model.Sector
		if err := rows.Scan(&s.ID, &s.EventID, &s.Label, &s.Color); err != nil {
			return nil, fmt.Errorf("failed to scan sector: %w", err)
		}
		sectors = append(sectors, s)
	}
	return sectors, rows.Err()
}

func (r *repository) GetSectorByLabel(ctx context.Context, eventID, label string) (*model.Sector, error) {
	query := `SELECT id, event_id, label, color FROM sectors WHERE event_id = $1 AND LOWER(label) = LOWER($2)`
	var s model.Sector
	if err := r.db.QueryRowContext(ctx, query, eventID, label).Scan(&s.ID, &s.EventID, &s.Label, &s.Color); err != nil {
		return nil, ErrSectorNotFound
	}
	return &s, nil
}

// ---- suppliers ----

func (r *repository) CreateSupplierTx(ctx context.Context, s *model.Supplier, tokens []model.Token) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	subCompanies, err := json.Marshal(s.SubCompanies)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to marshal sub companies: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO suppliers (id, event_id, name, sector_ids, reg_limit, sub_companies, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, s.ID, s.EventID, s.Name, pq.Array([]string(s.SectorIDs)), s.Limit, subCompanies, s.Active); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert supplier: %w", err)
	}

	for _, t := range tokens {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tokens (token, event_id, supplier_id, purpose, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, t.Token, t.EventID, t.SupplierID, t.Purpose); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert supplier token: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit supplier creation: %w", err)
	}
	return nil
}

func (r *repository) UpdateSupplier(ctx context.Context, s *model.Supplier) error {
	subCompanies, err := json.Marshal(s.SubCompanies)
	if err != nil {
		return fmt.Errorf("failed to marshal sub companies: %w", err)
	}
	query := `
		UPDATE suppliers
		SET name = $1, sector_ids = $2, reg_limit = $3, sub_companies = $4, active = $5
		WHERE id = $6
		RETURNING id
	`
	var id string
	if err := r.db.QueryRowContext(ctx, query,
		s.Name, pq.Array([]string(s.SectorIDs)), s.Limit, subCompanies, s.Active, s.ID,
	).Scan(&id); err != nil {
		return ErrSupplierNotFound
	}
	return nil
}

func (r *repository) DeleteSupplierTx(ctx context.Context, eventID, supplierID string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	var attendees int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendees WHERE supplier_id = $1
	`, supplierID).Scan(&attendees); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to count attendee references: %w", err)
	}
	if attendees > 0 {
		_ = tx.Rollback()
		return ErrResourceInUse
	}

	// tokens go with the supplier via ON DELETE CASCADE
	res, err := tx.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1 AND event_id = $2`, supplierID, eventID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete supplier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrSupplierNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit supplier deletion: %w", err)
	}
	return nil
}

func scanSupplier(scan func(dest ...any) error) (*model.Supplier, error) {
	var s model.Supplier
	var subCompanies []byte
	if err := scan(
		&s.ID, &s.EventID, &s.Name, (*pq.StringArray)(&s.SectorIDs),
		&s.Limit, &subCompanies, &s.Active, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(subCompanies) > 0 {
		if err := json.Unmarshal(subCompanies, &s.SubCompanies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sub companies: %w", err)
		}
	}
	return &s, nil
}

func (r *repository) GetSupplierByID(ctx context.Context, supplierID string) (*model.Supplier, error) {
	query := `
		SELECT id, event_id, name, sector_ids, reg_limit, sub_companies, active, created_at
		FROM suppliers WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, supplierID)
	s, err := scanSupplier(row.Scan)
	if err != nil {
		return nil, ErrSupplierNotFound
	}
	return s, nil
}

func (r *repository) GetSuppliersByEventID(ctx context.Context, eventID string) ([]model.Supplier, error) {
	query := `
		SELECT id, event_id, name, sector_ids, reg_limit, sub_companies, active, created_at
		FROM suppliers WHERE event_id = $1 ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []model.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		suppliers = append(suppliers, *s)
	}
	return suppliers, rows.Err()
}

func (r *repository) CountAttendeesBySupplier(ctx context.Context, supplierID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendees WHERE supplier_id = $1
	`, supplierID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count supplier attendees: %w", err)
	}
	return count, nil
}

// ---- attendees ----

const attendeeColumns = `
	id, event_id, name, cpf, photo, sector_ids, sub_company, supplier_id,
	status, checkin_at, wristbands, block_reason, substitution, sector_change,
	removal_requested, created_at, updated_at
`

func scanAttendee(scan func(dest ...any) error) (*model.Attendee, error) {
	var a model.Attendee
	var supplierID sql.NullString
	var wristbands, substitution, sectorChange []byte
	var status string
	if err := scan(
		&a.ID, &a.EventID, &a.Name, &a.CPF, &a.Photo,
		(*pq.StringArray)(&a.SectorIDs), &a.SubCompany, &supplierID,
		&status, &a.CheckinAt, &wristbands, &a.BlockReason,
		&substitution, &sectorChange, &a.RemovalRequested,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.SupplierID = supplierID.String
	st, ok := model.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown attendee status %q", status)
	}
	a.Status = st
	if len(wristbands) > 0 {
		if err := json.Unmarshal(wristbands, &a.Wristbands); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wristbands: %w", err)
		}
	}
	if len(substitution) > 0 {
		if err := json.Unmarshal(substitution, &a.Substitution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal substitution data: %w", err)
		}
	}
	if len(sectorChange) > 0 {
		if err := json.Unmarshal(sectorChange, &a.SectorChange); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sector change data: %w", err)
		}
	}
	return &a, nil
}

func attendeeWriteArgs(a *model.Attendee) ([]any, error) {
	wristbands, err := json.Marshal(a.Wristbands)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wristbands: %w", err)
	}
	var substitution, sectorChange any
	if a.Substitution != nil {
		b, err := json.Marshal(a.Substitution)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal substitution data: %w", err)
		}
		substitution = b
	}
	if a.SectorChange != nil {
		b, err := json.Marshal(a.SectorChange)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sector change data: %w", err)
		}
		sectorChange = b
	}
	var supplierID any
	if a.SupplierID != "" {
		supplierID = a.SupplierID
	}
	return []any{
		a.Name, a.CPF, a.Photo, pq.Array([]string(a.SectorIDs)), a.SubCompany,
		supplierID, a.Status.String(), a.CheckinAt, wristbands, a.BlockReason,
		substitution, sectorChange, a.RemovalRequested,
	}, nil
}

func (r *repository) RegisterAttendeeTx(ctx context.Context, a *model.Attendee) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	if a.SupplierID != "" {
		var limit int
		var active bool
		err := tx.QueryRowContext(ctx, `
			SELECT reg_limit, active FROM suppliers WHERE id = $1 FOR UPDATE
		`, a.SupplierID).Scan(&limit, &active)
		if err != nil {
			_ = tx.Rollback()
			return ErrSupplierNotFound
		}
		if !active {
			_ = tx.Rollback()
			return ErrSupplierInactive
		}

		var count int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM attendees WHERE supplier_id = $1
		`, a.SupplierID).Scan(&count); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to count supplier attendees: %w", err)
		}
		if count+1 > limit {
			_ = tx.Rollback()
			return ErrCapacityExceeded
		}
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendees WHERE event_id = $1 AND cpf = $2
	`, a.EventID, a.CPF).Scan(&existing); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to check duplicate cpf: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return ErrDuplicateCpf
	}

	args, err := attendeeWriteArgs(a)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	insertArgs := append([]any{a.ID, a.EventID}, args...)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendees (`+attendeeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`, insertArgs...); err != nil {
		_ = tx.Rollback()
		// the unique index is the backstop for two racing registrations
		if isUniqueViolation(err) {
			return ErrDuplicateCpf
		}
		return fmt.Errorf("failed to insert attendee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (r *repository) GetAttendeeByID(ctx context.Context, id string) (*model.Attendee, error) {
	query := `SELECT ` + attendeeColumns + ` FROM attendees WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	a, err := scanAttendee(row.Scan)
	if err != nil {
		return nil, ErrAttendeeNotFound
	}
	return a, nil
}

func (r *repository) listAttendees(ctx context.Context, query string, args ...any) ([]model.Attendee, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

func (r *repository) GetAttendeesByEventID(ctx context.Context, eventID string) ([]model.Attendee, error) {
	return r.listAttendees(ctx, `
		SELECT `+attendeeColumns+` FROM attendees WHERE event_id = $1 ORDER BY name ASC
	`, eventID)
}

func (r *repository) GetAttendeesByStatus(ctx context.Context, eventID string, st model.Status) ([]model.Attendee, error) {
	return r.listAttendees(ctx, `
		SELECT `+attendeeColumns+` FROM attendees WHERE event_id = $1 AND status = $2 ORDER BY name ASC
	`, eventID, st.String())
}

func (r *repository) GetAttendeesBySupplier(ctx context.Context, supplierID string) ([]model.Attendee, error) {
	return r.listAttendees(ctx, `
		SELECT `+attendeeColumns+` FROM attendees WHERE supplier_id = $1 ORDER BY name ASC
	`, supplierID)
}

func (r *repository) UpdateAttendee(ctx context.Context, a *model.Attendee) error {
	args, err := attendeeWriteArgs(a)
	if err != nil {
		return err
	}
	args = append(args, a.ID)
	query := `
		UPDATE attendees
		SET name = $1, cpf = $2, photo = $3, sector_ids = $4, sub_company = $5,
		    supplier_id = $6, status = $7, checkin_at = $8, wristbands = $9,
		    block_reason = $10, substitution = $11, sector_change = $12,
		    removal_requested = $13, updated_at = NOW()
		WHERE id = $14
		RETURNING id
	`
	var id string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return ErrAttendeeNotFound
	}
	return nil
}

func (r *repository) DeleteAttendeeTx(ctx context.Context, id string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	// wristband rows cascade with the attendee
	res, err := tx.ExecContext(ctx, `DELETE FROM attendees WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete attendee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrAttendeeNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attendee deletion: %w", err)
	}
	return nil
}

func (r *repository) CheckInTx(ctx context.Context, a *model.Attendee, touched map[string]string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	var conflicts []WristbandConflict
	for sectorID, code := range touched {
		var holder string
		err := tx.QueryRowContext(ctx, `
			SELECT attendee_id FROM wristbands
			WHERE event_id = $1 AND sector_id = $2 AND code = $3 AND attendee_id <> $4
		`, a.EventID, sectorID, code, a.ID).Scan(&holder)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			_ = tx.Rollback()
			return fmt.Errorf("failed to check wristband conflicts: %w", err)
		default:
			conflicts = append(conflicts, WristbandConflict{SectorID: sectorID, Code: code})
		}
	}
	if len(conflicts) > 0 {
		_ = tx.Rollback()
		return &DuplicateWristbandError{Conflicts: conflicts}
	}

	for sectorID, code := range touched {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM wristbands WHERE attendee_id = $1 AND sector_id = $2
		`, a.ID, sectorID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to clear previous wristband: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wristbands (event_id, sector_id, code, attendee_id)
			VALUES ($1, $2, $3, $4)
		`, a.EventID, sectorID, code, a.ID); err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				// lost the race against a concurrent check-in
				return &DuplicateWristbandError{Conflicts: []WristbandConflict{{SectorID: sectorID, Code: code}}}
			}
			return fmt.Errorf("failed to insert wristband: %w", err)
		}
	}

	args, err := attendeeWriteArgs(a)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	args = append(args, a.ID)
	var id string
	if err := tx.QueryRowContext(ctx, `
		UPDATE attendees
		SET name = $1, cpf = $2, photo = $3, sector_ids = $4, sub_company = $5,
		    supplier_id = $6, status = $7, checkin_at = $8, wristbands = $9,
		    block_reason = $10, substitution = $11, sector_change = $12,
		    removal_requested = $13, updated_at = NOW()
		WHERE id = $14
		RETURNING id
	`, args...).Scan(&id); err != nil {
		_ = tx.Rollback()
		return ErrAttendeeNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit check-in: %w", err)
	}
	return nil
}

func (r *repository) ClearWristbandsTx(ctx context.Context, attendeeID string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM wristbands WHERE attendee_id = $1`, attendeeID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete wristbands: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE attendees SET wristbands = '{}'::jsonb, updated_at = NOW() WHERE id = $1
	`, attendeeID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear attendee wristbands: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrAttendeeNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wristband clearing: %w", err)
	}
	return nil
}

func (r *repository) BulkReassignSectorsTx(ctx context.Context, eventID string, attendeeIDs []string, sectorIDs []string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	for _, id := range attendeeIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE attendees SET sector_ids = $1, updated_at = NOW()
			WHERE id = $2 AND event_id = $3
		`, pq.Array(sectorIDs), id, eventID)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to reassign sectors for %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_ = tx.Rollback()
			return ErrAttendeeNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk reassignment: %w", err)
	}
	return nil
}

func (r *repository) MarkMissedTx(ctx context.Context, eventID string) (int, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE attendees SET status = $1, updated_at = NOW()
		WHERE event_id = $2 AND status = $3
	`, model.StatusMissed.String(), eventID, model.StatusPending.String())
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to mark missed attendees: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit missed sweep: %w", err)
	}
	return int(n), nil
}

// ---- tokens ----

func (r *repository) GetTokenByValue(ctx context.Context, token string) (*model.Token, error) {
	query := `SELECT token, event_id, supplier_id, purpose, created_at FROM tokens WHERE token = $1`
	var t model.Token
	var purpose string
	if err := r.db.QueryRowContext(ctx, query, token).Scan(
		&t.Token, &t.EventID, &t.SupplierID, &purpose, &t.CreatedAt,
	); err != nil {
		return nil, ErrTokenNotFound
	}
	p, ok := model.ParseTokenPurpose(purpose)
	if !ok {
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
	t.Purpose = p
	return &t, nil
}

func (r *repository) GetTokensBySupplier(ctx context.Context, supplierID string) ([]model.Token, error) {
	query := `SELECT token, event_id, supplier_id, purpose, created_at FROM tokens WHERE supplier_id = $1`
	rows, err := r.db.QueryContext(ctx, query, supplierID)
	if err != nil {
		return nil, fmt.Errorf("failed to get supplier tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var t model.Token
		var purpose string
		if err := rows.Scan(&t.Token, &t.EventID, &t.SupplierID, &purpose, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		p, ok := model.ParseTokenPurpose(purpose)
		if !ok {
			return nil, fmt.Errorf("unknown token purpose %q", purpose)
		}
		t.Purpose = p
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *repository) RegenerateTokenTx(ctx context.Context, t *model.Token) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM tokens WHERE event_id = $1 AND supplier_id = $2 AND purpose = $3
	`, t.EventID, t.SupplierID, t.Purpose.String()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete previous token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tokens (token, event_id, supplier_id, purpose, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, t.Token, t.EventID, t.SupplierID, t.Purpose.String()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert regenerated token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token regeneration: %w", err)
	}
	return nil
}

func rollbackOnPanic(tx *sql.Tx) {
	if p := recover(); p != nil {
		_ = tx.Rollback()
		panic(p)
	}
}
