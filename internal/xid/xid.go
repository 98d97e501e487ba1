package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier, e.g. "audit-3f2c...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
