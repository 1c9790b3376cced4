package model

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleStatus is the explicit lifecycle state of a registry record.
// Tombstoned records stay in storage and can be restored by the agent
// sync pipeline; they are excluded from default active views.
type LifecycleStatus string

const (
	StatusActive     LifecycleStatus = "active"
	StatusTombstoned LifecycleStatus = "tombstoned"
)

// Equipment represents one equipamento row in the canonical registry.
// Natural keys: SerialNumber (unique across active and tombstoned rows)
// and MACAddress (secondary, not enforced unique).
type Equipment struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"nome"`
	Hostname     string          `json:"hostname"`
	Manufacturer string          `json:"fabricante,omitempty"`
	Model        string          `json:"modelo,omitempty"`
	SerialNumber string          `json:"numero_serie,omitempty"`
	Processor    string          `json:"processador,omitempty"`
	MemoryRAM    string          `json:"memoria_ram,omitempty"`
	Disk         string          `json:"disco,omitempty"`
	LocalIP      string          `json:"ip_local,omitempty"`
	MACAddress   string          `json:"mac_address,omitempty"`
	Gateway      string          `json:"gateway,omitempty"`
	DNSServers   []string        `json:"dns_servers,omitempty"`
	LabID        uuid.UUID       `json:"laboratorio_id"`
	AgentManaged bool            `json:"gerenciado_por_agente"`
	AgentVersion string          `json:"agent_version,omitempty"`
	LastSyncAt   *time.Time      `json:"ultima_sincronizacao,omitempty"`
	DataHash     string          `json:"dados_hash,omitempty"`
	Status       LifecycleStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Tombstoned reports whether the record is soft deleted.
func (e *Equipment) Tombstoned() bool {
	return e.Status == StatusTombstoned
}
