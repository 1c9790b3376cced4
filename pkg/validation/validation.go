package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Date layouts accepted from agent payloads, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"20060102",
}

var macRegex = regexp.MustCompile(`^([0-9A-F]{2}:){5}([0-9A-F]{2})$`)

// ValidateMAC validates a MAC address format and returns normalized version
func ValidateMAC(mac string) (string, error) {
	// Remove any spaces and convert to uppercase
	normalized := strings.ToUpper(strings.ReplaceAll(mac, " ", ""))

	// Convert hyphens to colons for consistency
	normalized = strings.ReplaceAll(normalized, "-", ":")

	if !macRegex.MatchString(normalized) {
		return "", fmt.Errorf("invalid MAC address format: %s", mac)
	}

	return normalized, nil
}

// ValidateIP validates an IP address format (IPv4 or IPv6)
func ValidateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address format: %s", ip)
	}
	return nil
}

// ParseDate parses a date-like string from an agent payload on a
// best-effort basis. Agents run on heterogeneous machines and report
// install dates in whatever format the OS gives them; a value matching
// none of the known layouts is treated as absent (nil, no error).
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}

	return nil
}

// ValidateRequired checks if a string field is not empty
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
