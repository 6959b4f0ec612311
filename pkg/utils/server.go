package utils

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// ServerID names this process on the event bus. Events a process relays from
// Valkey are filtered by it, so two processes on one host must differ:
// the hostname is only a readable prefix to a random suffix.
func ServerID(override string) string {
	if override != "" {
		return override
	}

	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	hostname, err := os.Hostname()
	if err != nil {
		return "azcompare-" + suffix
	}
	cleanHost := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return -1
	}, hostname)
	if cleanHost == "" || cleanHost == "localhost" {
		return "azcompare-" + suffix
	}
	return cleanHost + "-" + suffix
}
