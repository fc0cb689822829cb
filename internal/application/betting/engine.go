package betting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gambot/internal/domain"
	"github.com/alejandrodnm/gambot/internal/ports"
)

// Config controla la colocación y liquidación de apuestas.
type Config struct {
	MinBet    int64
	MaxWindow time.Duration // ventana desde el inicio de partida para colocar
	BaseOdds  map[domain.EventKind]float64 // overrides de cuota base por evento
}

// DefaultConfig devuelve la configuración de producción.
func DefaultConfig() Config {
	return Config{
		MinBet:    5,
		MaxWindow: 5 * time.Minute,
	}
}

// Engine coloca, cancela y liquida apuestas contra el ledger. Toda mutación de
// balances pasa por las primitivas transaccionales del ledger: el engine nunca
// puede dejar un débito o crédito a medias.
type Engine struct {
	cfg    Config
	ledger ports.Ledger
}

// New crea un Engine con el ledger inyectado.
func New(cfg Config, ledger ports.Ledger) *Engine {
	if cfg.MinBet <= 0 {
		cfg.MinBet = 1
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = 5 * time.Minute
	}
	return &Engine{cfg: cfg, ledger: ledger}
}

// LegRequest es una pata solicitada por el apostador.
type LegRequest struct {
	Event  string
	Target string
	Amount int64
}

// Place valida y coloca un ticket con una o más patas. Las patas comparten un
// ticket id nuevo, se les fija la cuota dinámica del momento y se debitan de
// inmediato en una sola transacción. Cualquier error de validación se devuelve
// síncrono, con la razón precisa y sin mutar estado.
func (e *Engine) Place(ctx context.Context, guildID, bettorID string, reqs []LegRequest, elapsed time.Duration) ([]domain.Wager, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("betting.Place: %w", domain.ErrUnknownEvent)
	}
	if elapsed > e.cfg.MaxWindow {
		return nil, fmt.Errorf("betting.Place: %w", domain.ErrWindowExpired)
	}

	ticketID := uuid.New().String()
	legs := make([]domain.Wager, 0, len(reqs))
	seen := make(map[string]bool, len(reqs))

	for _, req := range reqs {
		kind, err := domain.ParseEventKind(req.Event)
		if err != nil {
			return nil, fmt.Errorf("betting.Place: %w", err)
		}
		spec, _ := kind.Spec()

		if spec.NeedsTarget && req.Target == "" {
			return nil, fmt.Errorf("betting.Place: %s: %w", kind, domain.ErrTargetRequired)
		}
		if !spec.NeedsTarget {
			req.Target = ""
		}
		if req.Amount < e.cfg.MinBet {
			return nil, fmt.Errorf("betting.Place: %s: %w (min %d)", kind, domain.ErrAmountTooLow, e.cfg.MinBet)
		}

		// Unicidad dentro del mismo ticket y contra lo ya persistido.
		dupKey := string(kind) + "|" + req.Target
		if seen[dupKey] {
			return nil, fmt.Errorf("betting.Place: %s: %w", kind, domain.ErrDuplicateWager)
		}
		seen[dupKey] = true

		dup, err := e.ledger.HasPendingWager(ctx, bettorID, guildID, kind, req.Target)
		if err != nil {
			return nil, fmt.Errorf("betting.Place: check duplicate: %w", err)
		}
		if dup {
			return nil, fmt.Errorf("betting.Place: %s: %w", kind, domain.ErrDuplicateWager)
		}

		odds, err := e.Odds(ctx, guildID, kind, req.Target)
		if err != nil {
			return nil, fmt.Errorf("betting.Place: %w", err)
		}

		legs = append(legs, domain.Wager{
			ID:       uuid.New().String(),
			TicketID: ticketID,
			BettorID: bettorID,
			GuildID:  guildID,
			Kind:     kind,
			Target:   req.Target,
			Amount:   req.Amount,
			Odds:     odds,
			PlacedAt: int64(elapsed.Seconds()),
			Status:   domain.WagerPending,
		})
	}

	// Débito e inserción atómicos; el ledger rechaza saldos negativos.
	if err := e.ledger.PlaceTicket(ctx, legs); err != nil {
		return nil, fmt.Errorf("betting.Place: %w", err)
	}

	slog.Info("ticket placed",
		"guild", guildID,
		"bettor", bettorID,
		"ticket", ticketID,
		"legs", len(legs),
	)
	return legs, nil
}

// Odds calcula la cuota dinámica actual de un evento sobre el historial del
// guild: partidas con el target / ocurrencias del evento, con fallback a la
// cuota base del tipo de evento cuando no hay historial.
func (e *Engine) Odds(ctx context.Context, guildID string, kind domain.EventKind, target string) (float64, error) {
	games, err := e.ledger.GamesPlayed(ctx, guildID, target)
	if err != nil {
		return 0, fmt.Errorf("betting.Odds: games played: %w", err)
	}
	occs, err := e.ledger.EventOccurrences(ctx, guildID, kind, target)
	if err != nil {
		return 0, fmt.Errorf("betting.Odds: occurrences: %w", err)
	}
	return domain.Odds(games, occs, e.baseOdds(kind)), nil
}

func (e *Engine) baseOdds(kind domain.EventKind) float64 {
	if odds, ok := e.cfg.BaseOdds[kind]; ok && odds > 0 {
		return odds
	}
	spec, _ := kind.Spec()
	return spec.BaseOdds
}

// Cancel anula un ticket completo antes del inicio de partida: borra las patas
// y reembolsa exactamente lo debitado. Con la partida ya iniciada se rechaza.
func (e *Engine) Cancel(ctx context.Context, ticketID string, matchStarted bool) (int64, error) {
	if matchStarted {
		return 0, fmt.Errorf("betting.Cancel: %w", domain.ErrMatchStarted)
	}
	refund, err := e.ledger.CancelTicket(ctx, ticketID)
	if err != nil {
		return 0, fmt.Errorf("betting.Cancel: %w", err)
	}
	slog.Info("ticket cancelled", "ticket", ticketID, "refund", refund)
	return refund, nil
}

// Settle liquida todos los tickets pendientes del guild contra el resultado de
// la partida. Cada ticket es todo-o-nada: todas las patas ganadas pagan la
// suma escalada, una sola perdida deja el ticket en exactamente 0. Los cambios
// de estado y el crédito de cada ticket van en una transacción del ledger; un
// fallo deja ese ticket pendiente para reintento del operador, nunca a medias.
func (e *Engine) Settle(ctx context.Context, guildID string, rctx domain.ResolveContext) ([]domain.SettledTicket, error) {
	pending, err := e.ledger.PendingWagers(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("betting.Settle: pending wagers: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	participants := len(rctx.Record.Players)
	tickets := groupByTicket(pending)

	var settled []domain.SettledTicket
	for _, legs := range tickets {
		st, err := e.settleTicket(ctx, legs, rctx, participants)
		if err != nil {
			// Nada de este ticket se persistió: queda pendiente y se
			// reintenta; los tickets ya liquidados no se tocan de nuevo.
			return settled, fmt.Errorf("betting.Settle: ticket %s: %w", legs[0].TicketID, err)
		}
		settled = append(settled, st)
	}

	slog.Info("settlement complete",
		"guild", guildID,
		"match", rctx.Record.MatchID,
		"tickets", len(settled),
	)
	return settled, nil
}

// settleTicket evalúa cada pata con el resolver de su evento y persiste el
// resultado agregado en una transacción.
func (e *Engine) settleTicket(ctx context.Context, legs []domain.Wager, rctx domain.ResolveContext, participants int) (domain.SettledTicket, error) {
	allWon := true
	raw := make([]int64, len(legs))
	won := make([]bool, len(legs))
	specialMult := 1.0

	for i, leg := range legs {
		spec, ok := leg.Kind.Spec()
		if !ok {
			allWon = false
			continue
		}
		if spec.Multiplier > specialMult {
			specialMult = spec.Multiplier
		}
		if !spec.Resolve(rctx, leg.Target) {
			allWon = false
			continue
		}
		won[i] = true

		mult := 1
		if spec.NeedsTarget {
			mult = participants
		}
		decay := domain.DecayRatio(time.Duration(leg.PlacedAt)*time.Second, e.cfg.MaxWindow)
		raw[i] = domain.LegPayout(leg.Amount, leg.Odds, decay, mult)
	}

	// Cada pata conserva su desenlace real, pero el pago es todo-o-nada:
	// una sola pata perdida deja el ticket completo en 0.
	var total int64
	var legPayouts []int64
	if allWon {
		legPayouts, total = domain.SettleLegPayouts(raw, specialMult)
	}

	for i := range legs {
		if won[i] {
			legs[i].Status = domain.WagerWon
		} else {
			legs[i].Status = domain.WagerLost
		}
		if allWon {
			legs[i].Payout = legPayouts[i]
		} else {
			legs[i].Payout = 0
		}
	}

	if err := e.ledger.SettleTicket(ctx, legs[0].BettorID, legs, total); err != nil {
		return domain.SettledTicket{}, err
	}

	return domain.SettledTicket{
		TicketID: legs[0].TicketID,
		BettorID: legs[0].BettorID,
		Won:      allWon,
		Payout:   total,
		Legs:     legs,
	}, nil
}

// groupByTicket agrupa las patas pendientes por ticket, en orden estable.
func groupByTicket(wagers []domain.Wager) [][]domain.Wager {
	byTicket := make(map[string][]domain.Wager)
	var order []string
	for _, w := range wagers {
		if _, ok := byTicket[w.TicketID]; !ok {
			order = append(order, w.TicketID)
		}
		byTicket[w.TicketID] = append(byTicket[w.TicketID], w)
	}
	sort.Strings(order)

	tickets := make([][]domain.Wager, 0, len(order))
	for _, id := range order {
		tickets = append(tickets, byTicket[id])
	}
	return tickets
}
