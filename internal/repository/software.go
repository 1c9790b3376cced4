package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lab-inventory-api/internal/model"

	"github.com/google/uuid"
)

var (
	ErrSoftwareNotFound  = errors.New("software not found")
	ErrDuplicateSoftware = errors.New("software with this name and version already exists")
)

const softwareColumns = `id, nome, versao, fabricante, tipo_licenca, quantidade_licencas,
		data_expiracao, data_instalacao, chave_licenca, detectado_por_agente, status,
		created_at, updated_at`

// SoftwareRepository is an interface for interacting with software data.
type SoftwareRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Software, error)
	GetByDedupKey(ctx context.Context, name string, version *string) (*model.Software, error)
	Create(ctx context.Context, s model.Software) error
	MergeUpdate(ctx context.Context, id uuid.UUID, upd model.SoftwareUpdate, restore bool) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type softwareRepository struct {
	db DBTX
}

// NewSoftwareRepository creates a new SoftwareRepository bound to the
// given unit of work.
func NewSoftwareRepository(db DBTX) SoftwareRepository {
	return &softwareRepository{db: db}
}

// GetByID retrieves a single software row by its surrogate id, any status.
func (r *softwareRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Software, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM softwares WHERE id = $1`, softwareColumns)

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByDedupKey retrieves the software row matching (name, version),
// including tombstoned rows. A nil version matches only rows whose versao
// is NULL; NULL is a distinct key from any version string. Matching is
// exact, case-sensitive.
func (r *softwareRepository) GetByDedupKey(ctx context.Context, name string, version *string) (*model.Software, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if version == nil {
		query := fmt.Sprintf(`SELECT %s FROM softwares WHERE nome = $1 AND versao IS NULL ORDER BY created_at LIMIT 1`, softwareColumns)
		return r.scanOne(r.db.QueryRowContext(ctx, query, name))
	}

	query := fmt.Sprintf(`SELECT %s FROM softwares WHERE nome = $1 AND versao = $2 ORDER BY created_at LIMIT 1`, softwareColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, name, *version))
}

// Create inserts a new software row.
func (r *softwareRepository) Create(ctx context.Context, s model.Software) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO softwares (id, nome, versao, fabricante, tipo_licenca, data_instalacao,
			chave_licenca, detectado_por_agente, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Name,
		s.Version,
		nullString(s.Manufacturer),
		s.LicenseType,
		s.InstalledAt,
		nullString(s.LicenseKey),
		s.AgentDetected,
		s.Status,
	)

	if err != nil {
		// The partial unique index on (nome, coalesce(versao, '')) catches
		// two concurrent reports racing to create the same product.
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return fmt.Errorf("%w: %s", ErrDuplicateSoftware, s.Name)
		}
		return fmt.Errorf("failed to create software: %w", err)
	}

	return nil
}

// MergeUpdate applies a partial update: only present fields overwrite
// stored values, the agent-detected flag is always set and, when restore
// is true, the lifecycle flips back to active. Absent fields never null
// out existing data.
func (r *softwareRepository) MergeUpdate(ctx context.Context, id uuid.UUID, upd model.SoftwareUpdate, restore bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := []string{"detectado_por_agente = TRUE", "updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}

	if restore {
		set = append(set, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, model.StatusActive)
	}
	if upd.Manufacturer != nil {
		set = append(set, fmt.Sprintf("fabricante = $%d", len(args)+1))
		args = append(args, *upd.Manufacturer)
	}
	if upd.InstalledAt != nil {
		set = append(set, fmt.Sprintf("data_instalacao = $%d", len(args)+1))
		args = append(args, *upd.InstalledAt)
	}
	if upd.LicenseKey != nil {
		set = append(set, fmt.Sprintf("chave_licenca = $%d", len(args)+1))
		args = append(args, *upd.LicenseKey)
	}

	query := fmt.Sprintf(`UPDATE softwares SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args)+1)
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update software: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSoftwareNotFound
	}

	return nil
}

// Exists checks if a software row with the given id exists, any status.
func (r *softwareRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	query := `SELECT EXISTS(SELECT 1 FROM softwares WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check software existence: %w", err)
	}

	return exists, nil
}

func (r *softwareRepository) scanOne(row *sql.Row) (*model.Software, error) {
	var (
		s            model.Software
		manufacturer sql.NullString
		licenseType  sql.NullString
		licenseCount sql.NullInt64
		licenseKey   sql.NullString
	)

	err := row.Scan(&s.ID, &s.Name, &s.Version, &manufacturer, &licenseType, &licenseCount,
		&s.ExpiresAt, &s.InstalledAt, &licenseKey, &s.AgentDetected, &s.Status,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSoftwareNotFound
		}
		return nil, fmt.Errorf("failed to scan software: %w", err)
	}

	s.Manufacturer = manufacturer.String
	s.LicenseType = licenseType.String
	s.LicenseCount = int(licenseCount.Int64)
	s.LicenseKey = licenseKey.String

	return &s, nil
}
