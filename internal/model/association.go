package model

import (
	"time"

	"github.com/google/uuid"
)

// Association links one equipment row to one software row. The pair is
// unique; the install date lives on the pair and must survive a relation
// sync that keeps the pair.
type Association struct {
	EquipmentID uuid.UUID  `json:"equipamento_id"`
	SoftwareID  uuid.UUID  `json:"software_id"`
	InstalledAt *time.Time `json:"data_instalacao,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
