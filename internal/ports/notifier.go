package ports

import (
	"context"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// Notifier entrega los outputs del core a las capas de bot/web. Los errores de
// notificación se loguean y no interrumpen el procesamiento de la partida.
type Notifier interface {
	// MatchActive: el monitor detectó una partida compartida en curso.
	MatchActive(ctx context.Context, guildID string, match domain.ActiveMatch) error

	// MatchEnded: la partida terminó con el status dado. El record es nil
	// para missing/duplicate.
	MatchEnded(ctx context.Context, guildID string, status domain.MatchStatus, rec *domain.MatchRecord) error

	// AwardDecided: veredicto de premios de una partida procesada.
	AwardDecided(ctx context.Context, guildID string, award domain.AwardResult) error

	// WagersSettled: resultado de liquidar los tickets pendientes del guild.
	WagersSettled(ctx context.Context, guildID string, tickets []domain.SettledTicket) error
}
