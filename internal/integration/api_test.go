package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"lab-inventory-api/internal/config"
	"lab-inventory-api/internal/database"
	"lab-inventory-api/internal/handler"
	"lab-inventory-api/internal/router"
	"lab-inventory-api/internal/service"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// IntegrationTestSuite holds the test dependencies
type IntegrationTestSuite struct {
	DB     *sql.DB
	Router http.Handler
	LabID  uuid.UUID
}

// setupIntegrationTest initializes the test environment
func setupIntegrationTest(t *testing.T) *IntegrationTestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := loadTestConfig(t)
	db := initTestDatabase(t, cfg)
	ensureSchema(t, db)
	cleanDatabase(t, db)

	labID := seedLab(t, db, "Laboratório de Informática 1")

	syncService := service.NewSyncService(db, nil, nil)
	agentHandler := handler.NewAgentHandler(syncService, nil, 0)

	cfg.Security = config.SecurityConfig{
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		TrustedProxies:  []string{},
	}

	return &IntegrationTestSuite{
		DB:     db,
		Router: router.NewRouter(agentHandler, cfg),
		LabID:  labID,
	}
}

// teardownIntegrationTest cleans up test resources
func teardownIntegrationTest(t *testing.T, suite *IntegrationTestSuite) {
	t.Helper()
	if suite.DB != nil {
		cleanDatabase(t, suite.DB)
		suite.DB.Close()
	}
}

// loadTestConfig loads configuration for testing
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Port:     8080,
		LogLevel: "info",
		Database: config.DatabaseConfig{
			Host:     getEnv("TEST_DB_HOST", "127.0.0.1"),
			Port:     getEnvAsInt("TEST_DB_PORT", 5432),
			User:     getEnv("TEST_DB_USER", "postgres"),
			Password: getEnv("TEST_DB_PASSWORD", "postgres"),
			Name:     getEnv("TEST_DB_NAME", "postgres"),
			SSLMode:  "disable",
		},
	}
}

// initTestDatabase initializes the test database connection
func initTestDatabase(t *testing.T, cfg *config.Config) *sql.DB {
	t.Helper()

	db, err := database.InitDB(cfg)
	if err != nil {
		t.Skipf("Failed to connect to test database: %v. Ensure test database is running.", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Failed to ping test database: %v", err)
	}

	return db
}

// ensureSchema creates the registry tables when they do not exist yet.
func ensureSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS laboratorios (
			id UUID PRIMARY KEY,
			nome VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS equipamentos (
			id UUID PRIMARY KEY,
			nome VARCHAR(255) NOT NULL,
			hostname VARCHAR(255) NOT NULL,
			fabricante VARCHAR(255),
			modelo VARCHAR(255),
			numero_serie VARCHAR(255),
			processador VARCHAR(255),
			memoria_ram VARCHAR(255),
			disco VARCHAR(255),
			ip_local VARCHAR(255),
			mac_address VARCHAR(255),
			gateway VARCHAR(255),
			dns_servers JSONB,
			laboratorio_id UUID NOT NULL REFERENCES laboratorios(id),
			gerenciado_por_agente BOOLEAN NOT NULL DEFAULT FALSE,
			agent_version VARCHAR(255),
			ultima_sincronizacao TIMESTAMP,
			dados_hash VARCHAR(255),
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT equipamentos_numero_serie_key UNIQUE (numero_serie)
		)`,
		`CREATE TABLE IF NOT EXISTS softwares (
			id UUID PRIMARY KEY,
			nome VARCHAR(255) NOT NULL,
			versao VARCHAR(255),
			fabricante VARCHAR(255),
			tipo_licenca VARCHAR(50),
			quantidade_licencas INTEGER,
			data_expiracao TIMESTAMP,
			data_instalacao TIMESTAMP,
			chave_licenca VARCHAR(255),
			detectado_por_agente BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS softwares_nome_versao_key
			ON softwares (nome, COALESCE(versao, ''))`,
		`CREATE TABLE IF NOT EXISTS equipamento_software (
			equipamento_id UUID NOT NULL REFERENCES equipamentos(id) ON DELETE CASCADE,
			software_id UUID NOT NULL REFERENCES softwares(id) ON DELETE CASCADE,
			data_instalacao TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (equipamento_id, software_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to create test schema: %v", err)
		}
	}
}

// cleanDatabase removes all test data
func cleanDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec("TRUNCATE TABLE equipamento_software, equipamentos, softwares, laboratorios CASCADE")
	if err != nil {
		t.Logf("Warning: Failed to clean database: %v", err)
	}
}

func seedLab(t *testing.T, db *sql.DB, name string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	if _, err := db.Exec("INSERT INTO laboratorios (id, nome) VALUES ($1, $2)", id, name); err != nil {
		t.Fatalf("Failed to seed laboratory: %v", err)
	}
	return id
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// Test helper to create HTTP request with JSON body
func createJSONRequest(method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Test helper to parse JSON response
func parseJSONResponse(t *testing.T, resp *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("Failed to decode JSON response: %v. Body: %s", err, resp.Body.String())
	}
}
