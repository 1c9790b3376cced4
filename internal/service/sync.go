package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"lab-inventory-api/internal/model"
	"lab-inventory-api/internal/repository"
	apperrors "lab-inventory-api/pkg/errors"
	"lab-inventory-api/pkg/sanitize"
	"lab-inventory-api/pkg/validation"

	"github.com/google/uuid"
)

// softwareChunkSize bounds per-iteration resource use inside a software
// batch. Chunk boundaries carry no transactional meaning; the whole
// batch commits or rolls back together.
const softwareChunkSize = 50

// Syncer is the contract the agent endpoints consume.
type Syncer interface {
	ReconcileEquipment(ctx context.Context, report EquipmentReport) (uuid.UUID, SyncAction, error)
	ReconcileSoftwareBatch(ctx context.Context, items []SoftwareItem) ([]uuid.UUID, []BatchItemError, error)
	SyncAssociations(ctx context.Context, equipmentID uuid.UUID, softwareIDs []uuid.UUID) (int, error)
}

// EventNotifier receives sync events for delivery to an external sink.
type EventNotifier interface {
	NotifyEquipmentSynced(ctx context.Context, equipmentID uuid.UUID, hostname string, action SyncAction) error
}

// SyncService reconciles agent telemetry into the canonical registry.
// All registry mutation for agent data goes through its three public
// operations; nothing else writes these tables on the agent path.
type SyncService struct {
	db       *sql.DB
	notifier EventNotifier
	logger   *log.Logger
}

// NewSyncService creates a new SyncService. The notifier may be nil, in
// which case sync events are not delivered.
func NewSyncService(db *sql.DB, notifier EventNotifier, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncService{
		db:       db,
		notifier: notifier,
		logger:   logger,
	}
}

var _ Syncer = (*SyncService)(nil)

// ReconcileEquipment merges one equipment report into the registry.
// Exactly one row is written, or none when the stored digest already
// matches the report.
func (s *SyncService) ReconcileEquipment(ctx context.Context, report EquipmentReport) (uuid.UUID, SyncAction, error) {
	report = sanitizeEquipmentReport(report)

	if report.Hostname == "" {
		return uuid.Nil, "", apperrors.ValidationError("hostname is required")
	}
	if report.LabID == uuid.Nil {
		return uuid.Nil, "", apperrors.ValidationError("laboratorio_id is required")
	}
	if report.DataHash == "" {
		report.DataHash = ComputeDigest(report)
	}

	repo := repository.NewEquipmentRepository(s.db)

	labExists, err := repo.LabExists(ctx, report.LabID)
	if err != nil {
		return uuid.Nil, "", apperrors.DatabaseError("failed to check laboratory reference", err)
	}
	if !labExists {
		return uuid.Nil, "", apperrors.ReferenceError("laboratorio")
	}

	existing, err := s.resolveEquipment(ctx, repo, report)
	if err != nil {
		return uuid.Nil, "", apperrors.DatabaseError("failed to resolve equipment", err)
	}

	if existing == nil {
		equipment := buildEquipment(report)
		equipment.ID = uuid.New()

		if err := repo.Create(ctx, equipment); err != nil {
			if errors.Is(err, repository.ErrDuplicateSerial) {
				// Lost the create race against a concurrent report for the
				// same machine; the agent retries and lands on the update path.
				return uuid.Nil, "", apperrors.ConflictError("equipment with this serial number already exists")
			}
			return uuid.Nil, "", apperrors.DatabaseError("failed to create equipment", err)
		}

		s.logger.Printf("Equipment created by agent: ID=%s, hostname=%s", equipment.ID, equipment.Hostname)
		s.emitEquipmentEvent(equipment.ID, equipment.Hostname, ActionCreated)
		return equipment.ID, ActionCreated, nil
	}

	if existing.Tombstoned() {
		// Restore overwrites everything, digest comparison does not apply.
		equipment := buildEquipment(report)
		if err := repo.Overwrite(ctx, existing.ID, equipment); err != nil {
			return uuid.Nil, "", apperrors.DatabaseError("failed to restore equipment", err)
		}

		s.logger.Printf("Equipment restored by agent: ID=%s, hostname=%s", existing.ID, equipment.Hostname)
		s.emitEquipmentEvent(existing.ID, equipment.Hostname, ActionRestored)
		return existing.ID, ActionRestored, nil
	}

	if existing.DataHash == report.DataHash {
		s.logger.Printf("Equipment unchanged: ID=%s, hostname=%s", existing.ID, report.Hostname)
		return existing.ID, ActionUnchanged, nil
	}

	equipment := buildEquipment(report)
	if err := repo.Overwrite(ctx, existing.ID, equipment); err != nil {
		return uuid.Nil, "", apperrors.DatabaseError("failed to update equipment", err)
	}

	s.logger.Printf("Equipment updated by agent: ID=%s, hostname=%s", existing.ID, equipment.Hostname)
	return existing.ID, ActionUpdated, nil
}

// resolveEquipment finds the canonical row a report refers to, tombstoned
// rows included. Serial number has priority; when both keys are present
// and would resolve to different rows, the serial match wins and the MAC
// alternative is ignored. Pure read.
func (s *SyncService) resolveEquipment(ctx context.Context, repo repository.EquipmentRepository, report EquipmentReport) (*model.Equipment, error) {
	if report.SerialNumber != "" {
		equipment, err := repo.GetBySerialNumber(ctx, report.SerialNumber)
		if err == nil {
			return equipment, nil
		}
		if !errors.Is(err, repository.ErrEquipmentNotFound) {
			return nil, err
		}
	}

	if report.MACAddress != "" {
		equipment, err := repo.GetByMACAddress(ctx, report.MACAddress)
		if err == nil {
			return equipment, nil
		}
		if !errors.Is(err, repository.ErrEquipmentNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// ReconcileSoftwareBatch upserts a batch of software entries inside one
// transaction. Items with an empty name after sanitization are skipped
// and reported per-item; any other failure rolls back the whole batch.
func (s *SyncService) ReconcileSoftwareBatch(ctx context.Context, items []SoftwareItem) ([]uuid.UUID, []BatchItemError, error) {
	if len(items) == 0 {
		return nil, nil, apperrors.ValidationError("softwares list must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apperrors.DatabaseError("failed to begin transaction", err)
	}
	// No-op once the transaction is committed.
	defer tx.Rollback()

	repo := repository.NewSoftwareRepository(tx)

	ids := make([]uuid.UUID, 0, len(items))
	var itemErrors []BatchItemError

	for start := 0; start < len(items); start += softwareChunkSize {
		end := start + softwareChunkSize
		if end > len(items) {
			end = len(items)
		}

		for offset, item := range items[start:end] {
			index := start + offset

			id, itemErr, err := s.reconcileSoftwareItem(ctx, repo, index, item)
			if err != nil {
				return nil, nil, err
			}
			if itemErr != nil {
				itemErrors = append(itemErrors, *itemErr)
				continue
			}
			ids = append(ids, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apperrors.DatabaseError("failed to commit software batch", err)
	}

	s.logger.Printf("Software batch reconciled: total=%d, ok=%d, errors=%d", len(items), len(ids), len(itemErrors))
	return ids, itemErrors, nil
}

// reconcileSoftwareItem handles one batch item. A BatchItemError return
// is non-fatal; an error return aborts the whole transaction.
func (s *SyncService) reconcileSoftwareItem(ctx context.Context, repo repository.SoftwareRepository, index int, item SoftwareItem) (uuid.UUID, *BatchItemError, error) {
	name := sanitize.Clean(item.Name)
	if name == "" {
		return uuid.Nil, &BatchItemError{
			Index: index,
			Name:  item.Name,
			Error: "nome is required",
		}, nil
	}

	version := sanitize.CleanOptional(item.Version)

	existing, err := repo.GetByDedupKey(ctx, name, version)
	if err != nil && !errors.Is(err, repository.ErrSoftwareNotFound) {
		return uuid.Nil, nil, apperrors.DatabaseError(fmt.Sprintf("failed to look up software %q", name), err)
	}

	if existing != nil {
		upd := model.SoftwareUpdate{
			Manufacturer: sanitize.CleanOptional(item.Manufacturer),
			InstalledAt:  validation.ParseDate(item.InstallDate),
			LicenseKey:   sanitize.CleanOptional(item.LicenseKey),
		}

		if err := repo.MergeUpdate(ctx, existing.ID, upd, existing.Tombstoned()); err != nil {
			return uuid.Nil, nil, apperrors.DatabaseError(fmt.Sprintf("failed to update software %q", name), err)
		}

		if existing.Tombstoned() {
			s.logger.Printf("Software restored by agent: ID=%s, nome=%s", existing.ID, name)
		}
		return existing.ID, nil, nil
	}

	software := model.Software{
		ID:            uuid.New(),
		Name:          name,
		Version:       version,
		Manufacturer:  sanitize.Clean(item.Manufacturer),
		LicenseType:   model.DefaultLicenseType,
		InstalledAt:   validation.ParseDate(item.InstallDate),
		LicenseKey:    sanitize.Clean(item.LicenseKey),
		AgentDetected: true,
		Status:        model.StatusActive,
	}

	if err := repo.Create(ctx, software); err != nil {
		return uuid.Nil, nil, apperrors.DatabaseError(fmt.Sprintf("failed to create software %q", name), err)
	}

	s.logger.Printf("Software created by agent: ID=%s, nome=%s", software.ID, name)
	return software.ID, nil, nil
}

// SyncAssociations makes the equipment's software set exactly softwareIDs.
// Surviving pairs keep their install date; an empty set clears every
// association. Idempotent.
func (s *SyncService) SyncAssociations(ctx context.Context, equipmentID uuid.UUID, softwareIDs []uuid.UUID) (int, error) {
	equipmentRepo := repository.NewEquipmentRepository(s.db)

	exists, err := equipmentRepo.Exists(ctx, equipmentID)
	if err != nil {
		return 0, apperrors.DatabaseError("failed to check equipment reference", err)
	}
	if !exists {
		return 0, apperrors.ReferenceError("equipamento")
	}

	softwareRepo := repository.NewSoftwareRepository(s.db)
	for _, id := range softwareIDs {
		exists, err := softwareRepo.Exists(ctx, id)
		if err != nil {
			return 0, apperrors.DatabaseError("failed to check software reference", err)
		}
		if !exists {
			return 0, apperrors.ReferenceError("software").WithDetail("software_id", id.String())
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := repository.NewAssociationRepository(tx).ReplaceForEquipment(ctx, equipmentID, softwareIDs); err != nil {
		return 0, apperrors.DatabaseError("failed to sync associations", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.DatabaseError("failed to commit association sync", err)
	}

	s.logger.Printf("Associations synced: equipment=%s, total=%d", equipmentID, len(softwareIDs))
	return len(softwareIDs), nil
}

// emitEquipmentEvent delivers a sync event asynchronously; delivery
// failures are logged and never affect the sync outcome.
func (s *SyncService) emitEquipmentEvent(equipmentID uuid.UUID, hostname string, action SyncAction) {
	if s.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.notifier.NotifyEquipmentSynced(ctx, equipmentID, hostname, action); err != nil {
			s.logger.Printf("Failed to deliver sync event for equipment %s: %v", equipmentID, err)
		}
	}()
}

// sanitizeEquipmentReport normalizes every string field of the report.
func sanitizeEquipmentReport(report EquipmentReport) EquipmentReport {
	report.Hostname = sanitize.Clean(report.Hostname)
	report.SerialNumber = sanitize.Clean(report.SerialNumber)
	report.Manufacturer = sanitize.Clean(report.Manufacturer)
	report.Model = sanitize.Clean(report.Model)
	report.Processor = sanitize.Clean(report.Processor)
	report.MemoryRAM = sanitize.Clean(report.MemoryRAM)
	report.Disk = sanitize.Clean(report.Disk)
	report.LocalIP = sanitize.Clean(report.LocalIP)
	report.Gateway = sanitize.Clean(report.Gateway)
	report.DNSServers = sanitize.CleanSlice(report.DNSServers)
	report.AgentVersion = sanitize.Clean(report.AgentVersion)
	report.DataHash = sanitize.Clean(report.DataHash)

	// A malformed MAC is dropped rather than rejected: it is an optional
	// natural key, and a bad value must not poison resolution.
	if mac := sanitize.Clean(report.MACAddress); mac != "" {
		if normalized, err := validation.ValidateMAC(mac); err == nil {
			report.MACAddress = normalized
		} else {
			report.MACAddress = ""
		}
	} else {
		report.MACAddress = ""
	}

	return report
}

// buildEquipment maps a sanitized report onto a registry row. The
// display name follows the hostname for agent-managed machines.
func buildEquipment(report EquipmentReport) model.Equipment {
	now := time.Now().UTC()
	return model.Equipment{
		Name:         report.Hostname,
		Hostname:     report.Hostname,
		Manufacturer: report.Manufacturer,
		Model:        report.Model,
		SerialNumber: report.SerialNumber,
		Processor:    report.Processor,
		MemoryRAM:    report.MemoryRAM,
		Disk:         report.Disk,
		LocalIP:      report.LocalIP,
		MACAddress:   report.MACAddress,
		Gateway:      report.Gateway,
		DNSServers:   report.DNSServers,
		LabID:        report.LabID,
		AgentManaged: true,
		AgentVersion: report.AgentVersion,
		LastSyncAt:   &now,
		DataHash:     report.DataHash,
		Status:       model.StatusActive,
	}
}
