package ports

import (
	"context"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// Presence reporta qué usuarios rastreados están presentes en un guild.
// Alimenta la entrada y salida del estado POLLING_START del monitor.
type Presence interface {
	// TrackedUsers devuelve los usuarios rastreados presentes ahora mismo.
	TrackedUsers(ctx context.Context, guildID string) ([]domain.PlayerRef, error)
}
