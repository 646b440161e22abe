// internal/core/whatsapp/status.go
package whatsapp

import (
	"strconv"
	"strings"
)

// Status is the canonical delivery status reported by a provider callback.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Per-provider vocabularies. Anything missing from a table maps to
// StatusSent, the weakest forward status.
var (
	zapiStatuses = map[string]Status{
		"PENDING":   StatusSent,
		"SENT":      StatusSent,
		"RECEIVED":  StatusDelivered,
		"DELIVERED": StatusDelivered,
		"READ":      StatusRead,
		"PLAYED":    StatusRead,
		"FAILED":    StatusFailed,
		"ERROR":     StatusFailed,
	}

	wahaStatuses = map[string]Status{
		"ERROR":   StatusFailed,
		"PENDING": StatusSent,
		"SERVER":  StatusSent,
		"DEVICE":  StatusDelivered,
		"READ":    StatusRead,
		"PLAYED":  StatusRead,
	}

	// WAHA also sends the numeric ack without ackName on some engines.
	wahaAckNames = map[int]string{
		-1: "ERROR",
		0:  "PENDING",
		1:  "SERVER",
		2:  "DEVICE",
		3:  "READ",
		4:  "PLAYED",
	}

	cloudAPIStatuses = map[string]Status{
		"sent":      StatusSent,
		"delivered": StatusDelivered,
		"read":      StatusRead,
		"failed":    StatusFailed,
	}
)

// zapiSkippedStatuses are callbacks about our own reads of inbound messages.
var zapiSkippedStatuses = map[string]bool{
	"READ_BY_ME": true,
}

// MapStatus translates a provider status string to the canonical enum.
func MapStatus(p Provider, raw string) Status {
	var (
		table map[string]Status
		key   = strings.TrimSpace(raw)
	)
	switch p {
	case ProviderZAPI:
		table, key = zapiStatuses, strings.ToUpper(key)
	case ProviderWAHA:
		table, key = wahaStatuses, strings.ToUpper(key)
		if n, err := strconv.Atoi(key); err == nil {
			key = wahaAckNames[n]
		}
	case ProviderCloudAPI:
		table, key = cloudAPIStatuses, strings.ToLower(key)
	}
	if st, ok := table[key]; ok {
		return st
	}
	return StatusSent
}
