package model

import (
	"time"

	"github.com/google/uuid"
)

// Default license type assigned when the agent cannot know it.
const DefaultLicenseType = "proprietario"

// Software represents one softwares row. The dedup key is (Name, Version)
// where an absent Version (nil) is a distinct key from any version string.
type Software struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"nome"`
	Version       *string         `json:"versao,omitempty"`
	Manufacturer  string          `json:"fabricante,omitempty"`
	LicenseType   string          `json:"tipo_licenca,omitempty"`
	LicenseCount  int             `json:"quantidade_licencas,omitempty"`
	ExpiresAt     *time.Time      `json:"data_expiracao,omitempty"`
	InstalledAt   *time.Time      `json:"data_instalacao,omitempty"`
	LicenseKey    string          `json:"chave_licenca,omitempty"`
	AgentDetected bool            `json:"detectado_por_agente"`
	Status        LifecycleStatus `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Tombstoned reports whether the record is soft deleted.
func (s *Software) Tombstoned() bool {
	return s.Status == StatusTombstoned
}

// SoftwareUpdate is a typed partial update for the merge path of the batch
// reconciler: only non-nil fields overwrite stored values, so an absent
// incoming value can never null out manually entered data.
type SoftwareUpdate struct {
	Manufacturer *string
	InstalledAt  *time.Time
	LicenseKey   *string
}
