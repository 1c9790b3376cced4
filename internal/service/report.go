package service

import (
	"github.com/google/uuid"
)

// SyncAction is the outcome of reconciling one equipment report.
type SyncAction string

const (
	ActionCreated   SyncAction = "created"
	ActionRestored  SyncAction = "restored"
	ActionUpdated   SyncAction = "updated"
	ActionUnchanged SyncAction = "unchanged"
)

// EquipmentReport is the ephemeral payload of one agent equipment sync.
// It lives only for the duration of the request and is never persisted
// as-is.
type EquipmentReport struct {
	Hostname     string
	SerialNumber string
	Manufacturer string
	Model        string
	Processor    string
	MemoryRAM    string
	Disk         string
	LocalIP      string
	MACAddress   string
	Gateway      string
	DNSServers   []string
	LabID        uuid.UUID
	AgentVersion string
	DataHash     string
}

// SoftwareItem is one entry of an agent software batch. Only Name is
// required; InstallDate is a raw date-like string parsed best-effort.
type SoftwareItem struct {
	Name         string
	Version      string
	Manufacturer string
	InstallDate  string
	LicenseKey   string
}

// BatchItemError records one non-fatal per-item failure inside a
// software batch. The index refers to the item's position in the input
// list; chunking never reorders items, so indices stay stable.
type BatchItemError struct {
	Index int    `json:"index"`
	Name  string `json:"nome"`
	Error string `json:"error"`
}
