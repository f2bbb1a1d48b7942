package api

import "github.com/emotiox/recruit/internal/services"

// Store is the full persistence surface the router wires up. The service
// layer only ever sees its own narrow interface; any implementation of
// Store satisfies all of them.
type Store interface {
	services.ConfigStore
	services.ParticipantStore
	services.LinkStore
	services.AuthStore

	ListAudit() []services.AuditEntry
}

var _ Store = (*memoryStore)(nil)
