package ports

import (
	"context"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// Ledger es la persistencia de apuestas, balances e historial. Todas las
// operaciones que tocan balances son atómicas: un fallo a mitad de camino
// nunca deja un débito o crédito parcial. Las implementaciones serializan
// escrituras conflictivas sobre el mismo usuario.
type Ledger interface {
	// Balance devuelve el saldo actual del usuario (0 si nunca operó).
	Balance(ctx context.Context, userID string) (int64, error)

	// Deposit acredita tokens al usuario. Crea la cuenta si no existe.
	Deposit(ctx context.Context, userID string, amount int64) error

	// PlaceTicket debita el monto de cada pata e inserta las filas pendientes
	// en una sola transacción. Si algún débito dejaría el saldo negativo,
	// nada se persiste y devuelve domain.ErrInsufficientFunds.
	PlaceTicket(ctx context.Context, legs []domain.Wager) error

	// CancelTicket borra las patas pendientes del ticket y reembolsa el monto
	// exacto debitado, en una sola transacción. Devuelve el total reembolsado
	// o domain.ErrTicketNotFound.
	CancelTicket(ctx context.Context, ticketID string) (int64, error)

	// SettleTicket persiste el estado final de cada pata y acredita el pago
	// agregado al apostador en una sola transacción.
	SettleTicket(ctx context.Context, bettorID string, legs []domain.Wager, payout int64) error

	// PendingWagers devuelve todas las patas pendientes del guild.
	PendingWagers(ctx context.Context, guildID string) ([]domain.Wager, error)

	// HasPendingWager chequea el invariante de unicidad: a lo sumo una apuesta
	// sin resolver por (apostador, guild, evento, target).
	HasPendingWager(ctx context.Context, bettorID, guildID string, kind domain.EventKind, target string) (bool, error)

	// GamesPlayed cuenta las partidas procesadas del guild; con target no
	// vacío, solo aquellas donde ese jugador participó.
	GamesPlayed(ctx context.Context, guildID, target string) (int64, error)

	// EventOccurrences cuenta cuántas veces ocurrió el evento en el historial
	// del guild (scoped al target donde aplique).
	EventOccurrences(ctx context.Context, guildID string, kind domain.EventKind, target string) (int64, error)

	// IsProcessed consulta el set de idempotencia de partidas procesadas.
	IsProcessed(ctx context.Context, matchID string) (bool, error)

	// SaveMatch persiste el registro final, sus stats por jugador, las
	// ocurrencias de eventos para el historial de cuotas y la marca de
	// idempotencia, todo en una transacción.
	SaveMatch(ctx context.Context, guildID string, rec *domain.MatchRecord, occs []domain.EventOccurrence) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
