package domain

import "errors"

// Errores centinela compartidos entre ports, adapters y aplicación.
var (
	// ErrNoActiveMatch: el jugador no está en partida según el adapter.
	ErrNoActiveMatch = errors.New("no active match")

	// ErrNotReady: el registro final todavía no está disponible; reintentable.
	ErrNotReady = errors.New("match record not ready")

	// Errores de validación de colocación de apuestas. Se devuelven síncronos
	// con la razón precisa y sin mutar estado.
	ErrUnknownEvent      = errors.New("unknown event kind")
	ErrTargetRequired    = errors.New("event requires a target player")
	ErrAmountTooLow      = errors.New("amount below minimum bet")
	ErrWindowExpired     = errors.New("betting window expired")
	ErrDuplicateWager    = errors.New("unresolved wager already exists for this event")
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrMatchStarted: cancelación rechazada porque la partida ya comenzó.
	ErrMatchStarted = errors.New("match already started")

	// ErrTicketNotFound: el ticket no existe o ya fue resuelto.
	ErrTicketNotFound = errors.New("ticket not found")
)
