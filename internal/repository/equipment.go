package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lab-inventory-api/internal/model"

	"github.com/google/uuid"
)

// Custom errors for better error handling
var (
	ErrEquipmentNotFound = errors.New("equipment not found")
	ErrDuplicateSerial   = errors.New("equipment with this serial number already exists")
	ErrLabNotFound       = errors.New("laboratory not found")
)

const equipmentColumns = `id, nome, hostname, fabricante, modelo, numero_serie, processador,
		memoria_ram, disco, ip_local, mac_address, gateway, dns_servers, laboratorio_id,
		gerenciado_por_agente, agent_version, ultima_sincronizacao, dados_hash, status,
		created_at, updated_at`

// EquipmentRepository is an interface for interacting with equipment data.
// Lookups by natural key include tombstoned rows so the reconciler can
// restore a soft-deleted record instead of creating a duplicate.
type EquipmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Equipment, error)
	GetBySerialNumber(ctx context.Context, serial string) (*model.Equipment, error)
	GetByMACAddress(ctx context.Context, mac string) (*model.Equipment, error)
	Create(ctx context.Context, e model.Equipment) error
	Overwrite(ctx context.Context, id uuid.UUID, e model.Equipment) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	LabExists(ctx context.Context, labID uuid.UUID) (bool, error)
}

type equipmentRepository struct {
	db DBTX
}

// NewEquipmentRepository creates a new EquipmentRepository bound to the
// given unit of work.
func NewEquipmentRepository(db DBTX) EquipmentRepository {
	return &equipmentRepository{db: db}
}

// GetByID retrieves a single equipment row by its surrogate id, any status.
func (r *equipmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Equipment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM equipamentos WHERE id = $1`, equipmentColumns)

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetBySerialNumber retrieves the equipment row holding the given serial
// number, including tombstoned rows. The serial is globally unique, so at
// most one row can match.
func (r *equipmentRepository) GetBySerialNumber(ctx context.Context, serial string) (*model.Equipment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM equipamentos WHERE numero_serie = $1`, equipmentColumns)

	return r.scanOne(r.db.QueryRowContext(ctx, query, serial))
}

// GetByMACAddress retrieves one equipment row by MAC address, including
// tombstoned rows. MAC is not constrained unique; the oldest row wins.
func (r *equipmentRepository) GetByMACAddress(ctx context.Context, mac string) (*model.Equipment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM equipamentos WHERE mac_address = $1 ORDER BY created_at LIMIT 1`, equipmentColumns)

	return r.scanOne(r.db.QueryRowContext(ctx, query, mac))
}

// Create inserts a new equipment row.
func (r *equipmentRepository) Create(ctx context.Context, e model.Equipment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dns, err := marshalDNS(e.DNSServers)
	if err != nil {
		return fmt.Errorf("failed to encode dns servers: %w", err)
	}

	query := `
		INSERT INTO equipamentos (id, nome, hostname, fabricante, modelo, numero_serie, processador,
			memoria_ram, disco, ip_local, mac_address, gateway, dns_servers, laboratorio_id,
			gerenciado_por_agente, agent_version, ultima_sincronizacao, dados_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = r.db.ExecContext(ctx, query,
		e.ID,
		e.Name,
		e.Hostname,
		nullString(e.Manufacturer),
		nullString(e.Model),
		nullString(e.SerialNumber),
		nullString(e.Processor),
		nullString(e.MemoryRAM),
		nullString(e.Disk),
		nullString(e.LocalIP),
		nullString(e.MACAddress),
		nullString(e.Gateway),
		dns,
		e.LabID,
		e.AgentManaged,
		nullString(e.AgentVersion),
		e.LastSyncAt,
		nullString(e.DataHash),
		e.Status,
	)

	if err != nil {
		// Unique constraint violation on the serial number means a
		// concurrent report already created this machine (PostgreSQL 23505).
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			if strings.Contains(err.Error(), "equipamentos_numero_serie_key") || strings.Contains(err.Error(), "equipamentos_pkey") {
				return fmt.Errorf("%w: %s", ErrDuplicateSerial, e.SerialNumber)
			}
		}
		return fmt.Errorf("failed to create equipment: %w", err)
	}

	return nil
}

// Overwrite replaces every agent-mapped field of the row and forces the
// lifecycle back to active. Used for both the updated and the restored
// paths of the reconciler.
func (r *equipmentRepository) Overwrite(ctx context.Context, id uuid.UUID, e model.Equipment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dns, err := marshalDNS(e.DNSServers)
	if err != nil {
		return fmt.Errorf("failed to encode dns servers: %w", err)
	}

	query := `
		UPDATE equipamentos
		SET nome = $1, hostname = $2, fabricante = $3, modelo = $4, numero_serie = $5,
			processador = $6, memoria_ram = $7, disco = $8, ip_local = $9, mac_address = $10,
			gateway = $11, dns_servers = $12, laboratorio_id = $13, gerenciado_por_agente = $14,
			agent_version = $15, ultima_sincronizacao = $16, dados_hash = $17, status = $18,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $19`

	result, err := r.db.ExecContext(ctx, query,
		e.Name,
		e.Hostname,
		nullString(e.Manufacturer),
		nullString(e.Model),
		nullString(e.SerialNumber),
		nullString(e.Processor),
		nullString(e.MemoryRAM),
		nullString(e.Disk),
		nullString(e.LocalIP),
		nullString(e.MACAddress),
		nullString(e.Gateway),
		dns,
		e.LabID,
		e.AgentManaged,
		nullString(e.AgentVersion),
		e.LastSyncAt,
		nullString(e.DataHash),
		model.StatusActive,
		id,
	)

	if err != nil {
		return fmt.Errorf("failed to overwrite equipment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrEquipmentNotFound
	}

	return nil
}

// Exists checks if an equipment row with the given id exists, any status.
func (r *equipmentRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	query := `SELECT EXISTS(SELECT 1 FROM equipamentos WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check equipment existence: %w", err)
	}

	return exists, nil
}

// LabExists checks the laboratorio_id reference before a report is merged.
func (r *equipmentRepository) LabExists(ctx context.Context, labID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	query := `SELECT EXISTS(SELECT 1 FROM laboratorios WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, labID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check laboratory existence: %w", err)
	}

	return exists, nil
}

func (r *equipmentRepository) scanOne(row *sql.Row) (*model.Equipment, error) {
	var (
		e            model.Equipment
		manufacturer sql.NullString
		mdl          sql.NullString
		serial       sql.NullString
		processor    sql.NullString
		memory       sql.NullString
		disk         sql.NullString
		localIP      sql.NullString
		mac          sql.NullString
		gateway      sql.NullString
		dns          []byte
		agentVersion sql.NullString
		dataHash     sql.NullString
	)

	err := row.Scan(&e.ID, &e.Name, &e.Hostname, &manufacturer, &mdl, &serial, &processor,
		&memory, &disk, &localIP, &mac, &gateway, &dns, &e.LabID,
		&e.AgentManaged, &agentVersion, &e.LastSyncAt, &dataHash, &e.Status,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("failed to scan equipment: %w", err)
	}

	e.Manufacturer = manufacturer.String
	e.Model = mdl.String
	e.SerialNumber = serial.String
	e.Processor = processor.String
	e.MemoryRAM = memory.String
	e.Disk = disk.String
	e.LocalIP = localIP.String
	e.MACAddress = mac.String
	e.Gateway = gateway.String
	e.AgentVersion = agentVersion.String
	e.DataHash = dataHash.String

	if len(dns) > 0 {
		if err := json.Unmarshal(dns, &e.DNSServers); err != nil {
			return nil, fmt.Errorf("failed to decode dns servers: %w", err)
		}
	}

	return &e, nil
}

func marshalDNS(servers []string) (interface{}, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	return json.Marshal(servers)
}
