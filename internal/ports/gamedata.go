package ports

import (
	"context"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// GameData es el adapter de datos de juego. El protocolo de obtención es caja
// negra: el monitor solo conoce estas dos operaciones y sus errores centinela.
type GameData interface {
	// ActiveMatch devuelve la partida activa del jugador, o
	// domain.ErrNoActiveMatch si no está en ninguna.
	ActiveMatch(ctx context.Context, player domain.PlayerRef) (domain.ActiveMatch, error)

	// FinishedMatch devuelve el registro final de una partida terminada.
	// domain.ErrNotReady indica un fallo reintentable: el servidor todavía
	// no publicó el registro.
	FinishedMatch(ctx context.Context, matchID string) (*domain.MatchRecord, error)
}
