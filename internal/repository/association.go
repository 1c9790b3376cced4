package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AssociationRepository manages the equipamento_software pair table for
// agent-driven relation syncs.
type AssociationRepository interface {
	ReplaceForEquipment(ctx context.Context, equipmentID uuid.UUID, softwareIDs []uuid.UUID) error
	ListSoftwareIDs(ctx context.Context, equipmentID uuid.UUID) ([]uuid.UUID, error)
}

type associationRepository struct {
	db DBTX
}

// NewAssociationRepository creates a new AssociationRepository bound to
// the given unit of work.
func NewAssociationRepository(db DBTX) AssociationRepository {
	return &associationRepository{db: db}
}

// ReplaceForEquipment makes the association set of the equipment exactly
// softwareIDs: pairs outside the new set are removed, missing pairs are
// inserted, surviving pairs are left untouched so their data_instalacao
// is preserved. An empty set clears all associations.
func (r *associationRepository) ReplaceForEquipment(ctx context.Context, equipmentID uuid.UUID, softwareIDs []uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if len(softwareIDs) == 0 {
		query := `DELETE FROM equipamento_software WHERE equipamento_id = $1`
		if _, err := r.db.ExecContext(ctx, query, equipmentID); err != nil {
			return fmt.Errorf("failed to clear associations: %w", err)
		}
		return nil
	}

	ids := make([]string, len(softwareIDs))
	for i, id := range softwareIDs {
		ids[i] = id.String()
	}

	deleteQuery := `
		DELETE FROM equipamento_software
		WHERE equipamento_id = $1 AND NOT (software_id = ANY($2))`

	if _, err := r.db.ExecContext(ctx, deleteQuery, equipmentID, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to remove stale associations: %w", err)
	}

	insertQuery := `
		INSERT INTO equipamento_software (equipamento_id, software_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT (equipamento_id, software_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, insertQuery, equipmentID, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to insert associations: %w", err)
	}

	return nil
}

// ListSoftwareIDs returns the software ids currently associated with the
// equipment, ordered by creation time.
func (r *associationRepository) ListSoftwareIDs(ctx context.Context, equipmentID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT software_id FROM equipamento_software
		WHERE equipamento_id = $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query associations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}
