package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ComputeDigest returns the hex SHA-256 of the report's canonical JSON
// form (sorted keys, dados_hash blanked), matching how agents hash the
// payload before sending it. Used as a fallback when a report arrives
// without its own digest, and by tests.
func ComputeDigest(report EquipmentReport) string {
	canonical := map[string]interface{}{
		"hostname":       report.Hostname,
		"numero_serie":   report.SerialNumber,
		"fabricante":     report.Manufacturer,
		"modelo":         report.Model,
		"processador":    report.Processor,
		"memoria_ram":    report.MemoryRAM,
		"disco":          report.Disk,
		"ip_local":       report.LocalIP,
		"mac_address":    report.MACAddress,
		"gateway":        report.Gateway,
		"dns_servers":    report.DNSServers,
		"laboratorio_id": report.LabID.String(),
		"dados_hash":     "",
	}

	// Map keys marshal in sorted order, so the digest is stable.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
