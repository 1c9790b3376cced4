package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"lab-inventory-api/internal/model"
	apperrors "lab-inventory-api/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var equipmentColumns = []string{
	"id", "nome", "hostname", "fabricante", "modelo", "numero_serie", "processador",
	"memoria_ram", "disco", "ip_local", "mac_address", "gateway", "dns_servers", "laboratorio_id",
	"gerenciado_por_agente", "agent_version", "ultima_sincronizacao", "dados_hash", "status",
	"created_at", "updated_at",
}

var softwareColumns = []string{
	"id", "nome", "versao", "fabricante", "tipo_licenca", "quantidade_licencas",
	"data_expiracao", "data_instalacao", "chave_licenca", "detectado_por_agente", "status",
	"created_at", "updated_at",
}

func newTestService(t testing.TB) (*SyncService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	svc := NewSyncService(db, nil, nil)
	return svc, mock, func() { db.Close() }
}

func equipmentRow(id, labID uuid.UUID, hostname, serial, hash string, status model.LifecycleStatus) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id.String(), hostname, hostname, nil, nil, serial, nil,
		nil, nil, nil, nil, nil, nil, labID.String(),
		true, nil, now, hash, string(status),
		now, now,
	}
}

func softwareRow(id uuid.UUID, name, version string, status model.LifecycleStatus) []driver.Value {
	now := time.Now()
	var v driver.Value
	if version != "" {
		v = version
	}
	return []driver.Value{
		id.String(), name, v, nil, model.DefaultLicenseType, 0,
		nil, nil, nil, true, string(status),
		now, now,
	}
}

func expectLabExists(mock sqlmock.Sqlmock, labID uuid.UUID, exists bool) {
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM laboratorios WHERE id = \$1\)`).
		WithArgs(labID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func assertAppErrorCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected *AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestReconcileEquipment_MissingHostname(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	_, _, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname: "   ",
		LabID:    uuid.New(),
	})

	assert.Error(t, err)
	assertAppErrorCode(t, err, apperrors.ErrorCodeValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileEquipment_MissingLab(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	_, _, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname: "LAB01-PC07",
	})

	assert.Error(t, err)
	assertAppErrorCode(t, err, apperrors.ErrorCodeValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileEquipment_UnknownLab(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	labID := uuid.New()
	expectLabExists(mock, labID, false)

	_, _, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname: "LAB01-PC07",
		LabID:    labID,
		DataHash: "abc",
	})

	assert.Error(t, err)
	assertAppErrorCode(t, err, apperrors.ErrorCodeReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileEquipment_CreatedWhenNoKeyMatches(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	labID := uuid.New()
	expectLabExists(mock, labID, true)

	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE numero_serie = \$1`).
		WithArgs("SN-0099").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE mac_address = \$1`).
		WithArgs("AA:BB:CC:DD:EE:FF").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO equipamentos`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, action, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname:     "LAB01-PC07",
		SerialNumber: "SN-0099",
		MACAddress:   "aa-bb-cc-dd-ee-ff",
		LabID:        labID,
		DataHash:     "abc",
	})

	require.NoError(t, err)
	assert.Equal(t, ActionCreated, action)
	assert.NotEqual(t, uuid.Nil, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// When the serial resolves, the MAC must not even be looked up, so a
// conflicting MAC match cannot hijack the resolution.
func TestReconcileEquipment_SerialWinsOverMAC(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	labID := uuid.New()
	existingID := uuid.New()
	expectLabExists(mock, labID, true)

	rows := sqlmock.NewRows(equipmentColumns).
		AddRow(equipmentRow(existingID, labID, "LAB01-PC07", "SN-0099", "old-hash", model.StatusActive)...)
	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE numero_serie = \$1`).
		WithArgs("SN-0099").
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE equipamentos`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, action, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname:     "LAB01-PC07",
		SerialNumber: "SN-0099",
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		LabID:        labID,
		DataHash:     "new-hash",
	})

	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, action)
	assert.Equal(t, existingID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileEquipment_MACFallback(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	labID := uuid.New()
	existingID := uuid.New()
	expectLabExists(mock, labID, true)

	rows := sqlmock.NewRows(equipmentColumns).
		AddRow(equipmentRow(existingID, labID, "LAB01-PC07", "", "old-hash", model.StatusActive)...)
	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE mac_address = \$1`).
		WithArgs("AA:BB:CC:DD:EE:FF").
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE equipamentos`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, action, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname:   "LAB01-PC07",
		MACAddress: "AA:BB:CC:DD:EE:FF",
		LabID:      labID,
		DataHash:   "new-hash",
	})

	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, action)
	assert.Equal(t, existingID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A matching digest skips the write entirely; replaying the same report
// is idempotent.
func TestReconcileEquipment_UnchangedSkipsWrite(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	labID := uuid.New()
	existingID := uuid.New()
	expectLabExists(mock, labID, true)

	rows := sqlmock.NewRows(equipmentColumns).
		AddRow(equipmentRow(existingID, labID, "LAB01-PC07", "SN-0099", "same-hash", model.StatusActive)...)
	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE numero_serie = \$1`).
		WithArgs("SN-0099").
		WillReturnRows(rows)

	id, action, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname:     "LAB01-PC07",
		SerialNumber: "SN-0099",
		LabID:        labID,
		DataHash:     "same-hash",
	})

	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, action)
	assert.Equal(t, existingID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A tombstoned row is restored with a full overwrite even when the
// stored digest matches the report.
func TestReconcileEquipment_RestoreIgnoresDigest(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	labID := uuid.New()
	existingID := uuid.New()
	expectLabExists(mock, labID, true)

	rows := sqlmock.NewRows(equipmentColumns).
		AddRow(equipmentRow(existingID, labID, "LAB01-PC07", "SN-0099", "same-hash", model.StatusTombstoned)...)
	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE numero_serie = \$1`).
		WithArgs("SN-0099").
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE equipamentos`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, action, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname:     "LAB01-PC07",
		SerialNumber: "SN-0099",
		LabID:        labID,
		DataHash:     "same-hash",
	})

	require.NoError(t, err)
	assert.Equal(t, ActionRestored, action)
	assert.Equal(t, existingID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileEquipment_CreateRaceMapsToConflict(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	labID := uuid.New()
	expectLabExists(mock, labID, true)

	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE numero_serie = \$1`).
		WithArgs("SN-0099").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO equipamentos`).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "equipamentos_numero_serie_key"`))

	_, _, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname:     "LAB01-PC07",
		SerialNumber: "SN-0099",
		LabID:        labID,
		DataHash:     "abc",
	})

	assert.Error(t, err)
	assertAppErrorCode(t, err, apperrors.ErrorCodeConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileEquipment_EmitsEventOnCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	events := make(chan SyncAction, 1)
	svc := NewSyncService(db, &fakeNotifier{events: events}, nil)

	labID := uuid.New()
	expectLabExists(mock, labID, true)
	mock.ExpectQuery(`SELECT (.+) FROM equipamentos WHERE numero_serie = \$1`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO equipamentos`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, action, err := svc.ReconcileEquipment(context.Background(), EquipmentReport{
		Hostname:     "LAB01-PC07",
		SerialNumber: "SN-0099",
		LabID:        labID,
		DataHash:     "abc",
	})

	require.NoError(t, err)
	assert.Equal(t, ActionCreated, action)

	select {
	case got := <-events:
		assert.Equal(t, ActionCreated, got)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sync event to be delivered")
	}
}

type fakeNotifier struct {
	events chan SyncAction
}

func (f *fakeNotifier) NotifyEquipmentSynced(ctx context.Context, equipmentID uuid.UUID, hostname string, action SyncAction) error {
	f.events <- action
	return nil
}

func TestReconcileSoftwareBatch_EmptyList(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	_, _, err := svc.ReconcileSoftwareBatch(context.Background(), nil)

	assert.Error(t, err)
	assertAppErrorCode(t, err, apperrors.ErrorCodeValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Items with an empty name are reported per-item with their original
// index; everything else still commits. ok + failed must add up to the
// batch size.
func TestReconcileSoftwareBatch_SkipsEmptyNames(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	items := []SoftwareItem{
		{Name: "LibreOffice", Version: "7.6.2"},
		{Name: "GIMP", Version: "2.10"},
		{Name: "   "},
		{Name: "7-Zip"},
		{Name: "VLC", Version: "3.0.20"},
	}

	mock.ExpectBegin()
	for i := 0; i < 4; i++ {
		mock.ExpectQuery(`SELECT (.+) FROM softwares WHERE nome = \$1`).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(`INSERT INTO softwares`).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	ids, itemErrors, err := svc.ReconcileSoftwareBatch(context.Background(), items)

	require.NoError(t, err)
	assert.Len(t, ids, 4)
	require.Len(t, itemErrors, 1)
	assert.Equal(t, 2, itemErrors[0].Index)
	assert.Equal(t, "nome is required", itemErrors[0].Error)
	assert.Equal(t, len(items), len(ids)+len(itemErrors))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An existing entry gets a merge update. Absent fields never reach the
// SET clause, so they cannot null out stored values.
func TestReconcileSoftwareBatch_MergeNeverNulls(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	existingID := uuid.New()

	mock.ExpectBegin()
	rows := sqlmock.NewRows(softwareColumns).
		AddRow(softwareRow(existingID, "LibreOffice", "7.6.2", model.StatusActive)...)
	mock.ExpectQuery(`SELECT (.+) FROM softwares WHERE nome = \$1 AND versao = \$2`).
		WithArgs("LibreOffice", "7.6.2").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE softwares SET detectado_por_agente = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`)).
		WithArgs(existingID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ids, itemErrors, err := svc.ReconcileSoftwareBatch(context.Background(), []SoftwareItem{
		{Name: "LibreOffice", Version: "7.6.2"},
	})

	require.NoError(t, err)
	assert.Empty(t, itemErrors)
	require.Len(t, ids, 1)
	assert.Equal(t, existingID, ids[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileSoftwareBatch_RestoresTombstoned(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	existingID := uuid.New()

	mock.ExpectBegin()
	rows := sqlmock.NewRows(softwareColumns).
		AddRow(softwareRow(existingID, "GIMP", "2.10", model.StatusTombstoned)...)
	mock.ExpectQuery(`SELECT (.+) FROM softwares WHERE nome = \$1 AND versao = \$2`).
		WithArgs("GIMP", "2.10").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE softwares SET detectado_por_agente = TRUE, updated_at = CURRENT_TIMESTAMP, status = $1 WHERE id = $2`)).
		WithArgs(model.StatusActive, existingID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ids, itemErrors, err := svc.ReconcileSoftwareBatch(context.Background(), []SoftwareItem{
		{Name: "GIMP", Version: "2.10"},
	})

	require.NoError(t, err)
	assert.Empty(t, itemErrors)
	require.Len(t, ids, 1)
	assert.Equal(t, existingID, ids[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A storage failure in a later chunk rolls back the entire batch,
// including entries already processed in earlier chunks.
func TestReconcileSoftwareBatch_RollbackSpansChunks(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	items := make([]SoftwareItem, 60)
	for i := range items {
		items[i] = SoftwareItem{Name: fmt.Sprintf("app-%02d", i)}
	}

	mock.ExpectBegin()
	for i := 0; i < 55; i++ {
		mock.ExpectQuery(`SELECT (.+) FROM softwares WHERE nome = \$1`).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(`INSERT INTO softwares`).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectQuery(`SELECT (.+) FROM softwares WHERE nome = \$1`).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	ids, itemErrors, err := svc.ReconcileSoftwareBatch(context.Background(), items)

	assert.Error(t, err)
	assertAppErrorCode(t, err, apperrors.ErrorCodeDatabase)
	assert.Nil(t, ids)
	assert.Nil(t, itemErrors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncAssociations_UnknownEquipment(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	equipmentID := uuid.New()
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM equipamentos WHERE id = \$1\)`).
		WithArgs(equipmentID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := svc.SyncAssociations(context.Background(), equipmentID, nil)

	assert.Error(t, err)
	assertAppErrorCode(t, err, apperrors.ErrorCodeReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncAssociations_UnknownSoftware(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	equipmentID := uuid.New()
	known := uuid.New()
	missing := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM equipamentos WHERE id = \$1\)`).
		WithArgs(equipmentID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM softwares WHERE id = \$1\)`).
		WithArgs(known).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM softwares WHERE id = \$1\)`).
		WithArgs(missing).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := svc.SyncAssociations(context.Background(), equipmentID, []uuid.UUID{known, missing})

	assert.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorCodeReference, appErr.Code)
	assert.Equal(t, missing.String(), appErr.Details["software_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncAssociations_ReplacesSet(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	equipmentID := uuid.New()
	softwareIDs := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM equipamentos WHERE id = \$1\)`).
		WithArgs(equipmentID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for _, id := range softwareIDs {
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM softwares WHERE id = \$1\)`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM equipamento_software`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO equipamento_software`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	total, err := svc.SyncAssociations(context.Background(), equipmentID, softwareIDs)

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncAssociations_EmptySetClears(t *testing.T) {
	svc, mock, closeDB := newTestService(t)
	defer closeDB()

	equipmentID := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM equipamentos WHERE id = \$1\)`).
		WithArgs(equipmentID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM equipamento_software WHERE equipamento_id = \$1`).
		WithArgs(equipmentID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	total, err := svc.SyncAssociations(context.Background(), equipmentID, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
