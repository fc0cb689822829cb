package betting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// fakeLedger implementa ports.Ledger en memoria con la misma semántica
// atómica que los adapters reales: o toda la operación aplica, o nada.
type fakeLedger struct {
	balances    map[string]int64
	wagers      map[string]domain.Wager
	games       map[string]int64 // target ("" = guild) → partidas
	occurrences map[string]int64 // kind|target → ocurrencias
	failSettle  bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:    make(map[string]int64),
		wagers:      make(map[string]domain.Wager),
		games:       make(map[string]int64),
		occurrences: make(map[string]int64),
	}
}

func (f *fakeLedger) Balance(_ context.Context, userID string) (int64, error) {
	return f.balances[userID], nil
}

func (f *fakeLedger) Deposit(_ context.Context, userID string, amount int64) error {
	f.balances[userID] += amount
	return nil
}

func (f *fakeLedger) PlaceTicket(_ context.Context, legs []domain.Wager) error {
	var total int64
	for _, w := range legs {
		total += w.Amount
	}
	if f.balances[legs[0].BettorID] < total {
		return domain.ErrInsufficientFunds
	}
	f.balances[legs[0].BettorID] -= total
	for _, w := range legs {
		f.wagers[w.ID] = w
	}
	return nil
}

func (f *fakeLedger) CancelTicket(_ context.Context, ticketID string) (int64, error) {
	var total int64
	var bettor string
	for id, w := range f.wagers {
		if w.TicketID == ticketID && w.Status == domain.WagerPending {
			total += w.Amount
			bettor = w.BettorID
			delete(f.wagers, id)
		}
	}
	if bettor == "" {
		return 0, domain.ErrTicketNotFound
	}
	f.balances[bettor] += total
	return total, nil
}

func (f *fakeLedger) SettleTicket(_ context.Context, bettorID string, legs []domain.Wager, payout int64) error {
	if f.failSettle {
		return errors.New("ledger unavailable")
	}
	for _, w := range legs {
		stored, ok := f.wagers[w.ID]
		if !ok || stored.Status != domain.WagerPending {
			return domain.ErrTicketNotFound
		}
	}
	for _, w := range legs {
		f.wagers[w.ID] = w
	}
	f.balances[bettorID] += payout
	return nil
}

func (f *fakeLedger) PendingWagers(_ context.Context, guildID string) ([]domain.Wager, error) {
	var out []domain.Wager
	for _, w := range f.wagers {
		if w.GuildID == guildID && w.Status == domain.WagerPending {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeLedger) HasPendingWager(_ context.Context, bettorID, guildID string, kind domain.EventKind, target string) (bool, error) {
	for _, w := range f.wagers {
		if w.BettorID == bettorID && w.GuildID == guildID &&
			w.Kind == kind && w.Target == target && w.Status == domain.WagerPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) GamesPlayed(_ context.Context, _, target string) (int64, error) {
	return f.games[target], nil
}

func (f *fakeLedger) EventOccurrences(_ context.Context, _ string, kind domain.EventKind, target string) (int64, error) {
	return f.occurrences[string(kind)+"|"+target], nil
}

func (f *fakeLedger) IsProcessed(context.Context, string) (bool, error) { return false, nil }

func (f *fakeLedger) SaveMatch(context.Context, string, *domain.MatchRecord, []domain.EventOccurrence) error {
	return nil
}

func (f *fakeLedger) Close() error { return nil }

func testEngine(ledger *fakeLedger) *Engine {
	return New(Config{MinBet: 5, MaxWindow: 5 * time.Minute}, ledger)
}

// record de 4 jugadores: p1 gana en kills, el equipo 100 gana la partida.
func fourPlayerCtx() domain.ResolveContext {
	rec := &domain.MatchRecord{
		MatchID:  "m1",
		Duration: 25 * time.Minute,
		Players: []domain.PlayerStat{
			{PlayerID: "p1", TeamID: 100, Kills: 12, Deaths: 1, Damage: 30000},
			{PlayerID: "p2", TeamID: 100, Kills: 3, Deaths: 3, Damage: 12000},
			{PlayerID: "p3", TeamID: 200, Kills: 2, Deaths: 7, Damage: 15000},
			{PlayerID: "p4", TeamID: 200, Kills: 1, Deaths: 9, Damage: 8000},
		},
		Teams: []domain.TeamAggregate{
			{TeamID: 100, Win: true, TotalDamage: 42000},
			{TeamID: 200, TotalDamage: 23000},
		},
	}
	return domain.ResolveContext{Record: rec, Award: domain.AwardResult{MatchID: "m1"}, TrackedTeam: 100}
}

func TestPlace_ValidationErrors(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)
	ctx := context.Background()

	cases := []struct {
		name string
		legs []LegRequest
		want error
	}{
		{"unknown event", []LegRequest{{Event: "coinflip", Amount: 10}}, domain.ErrUnknownEvent},
		{"missing target", []LegRequest{{Event: "most_kills", Amount: 10}}, domain.ErrTargetRequired},
		{"amount too low", []LegRequest{{Event: "win", Amount: 2}}, domain.ErrAmountTooLow},
		{"duplicate in ticket", []LegRequest{
			{Event: "win", Amount: 10},
			{Event: "win", Amount: 10},
		}, domain.ErrDuplicateWager},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Place(ctx, "g1", "u1", tc.legs, 0)
			assert.ErrorIs(t, err, tc.want)
			// Ningún error de validación muta estado.
			assert.Equal(t, int64(100), ledger.balances["u1"])
			assert.Empty(t, ledger.wagers)
		})
	}
}

func TestPlace_WindowExpired(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)

	_, err := e.Place(context.Background(), "g1", "u1",
		[]LegRequest{{Event: "win", Amount: 10}}, 6*time.Minute)
	assert.ErrorIs(t, err, domain.ErrWindowExpired)
}

func TestPlace_DuplicateAgainstPending(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)
	ctx := context.Background()

	_, err := e.Place(ctx, "g1", "u1", []LegRequest{{Event: "win", Amount: 10}}, 0)
	require.NoError(t, err)

	_, err = e.Place(ctx, "g1", "u1", []LegRequest{{Event: "win", Amount: 10}}, 0)
	assert.ErrorIs(t, err, domain.ErrDuplicateWager)
}

func TestPlace_InsufficientFunds(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 5
	e := testEngine(ledger)

	_, err := e.Place(context.Background(), "g1", "u1",
		[]LegRequest{{Event: "win", Amount: 10}}, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(5), ledger.balances["u1"])
}

func TestPlace_DebitsImmediatelyAndLocksOdds(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)

	legs, err := e.Place(context.Background(), "g1", "u1",
		[]LegRequest{{Event: "win", Amount: 20}}, 0)
	require.NoError(t, err)
	require.Len(t, legs, 1)

	assert.Equal(t, int64(80), ledger.balances["u1"])
	assert.Equal(t, 2.0, legs[0].Odds) // cuota base de win, sin historial
	assert.NotEmpty(t, legs[0].TicketID)
}

func TestOdds_HistoryDriven(t *testing.T) {
	ledger := newFakeLedger()
	e := testEngine(ledger)
	ctx := context.Background()

	// Sin historial → cuota base.
	odds, err := e.Odds(ctx, "g1", domain.EventWin, "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, odds)

	// 30 partidas, el evento nunca ocurrió → cuota = partidas jugadas.
	ledger.games[""] = 30
	odds, _ = e.Odds(ctx, "g1", domain.EventWin, "")
	assert.Equal(t, 30.0, odds)

	// 30 partidas, 10 ocurrencias → 3.0.
	ledger.occurrences["win|"] = 10
	odds, _ = e.Odds(ctx, "g1", domain.EventWin, "")
	assert.Equal(t, 3.0, odds)
}

// Escenario del spec: saldo 100, apuesta 20 a cuota base 2.0 colocada antes
// del inicio; el evento ocurre → pago 40, saldo final 120.
func TestSettle_BaseScenario(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)
	ctx := context.Background()

	_, err := e.Place(ctx, "g1", "u1", []LegRequest{{Event: "win", Amount: 20}}, 0)
	require.NoError(t, err)

	settled, err := e.Settle(ctx, "g1", fourPlayerCtx())
	require.NoError(t, err)
	require.Len(t, settled, 1)

	assert.True(t, settled[0].Won)
	assert.Equal(t, int64(40), settled[0].Payout)
	assert.Equal(t, int64(120), ledger.balances["u1"])
}

// Escenario del spec: ticket de 2 patas, 10 tokens cada una, partida de 4
// jugadores, ambas ganadas; una pata dirigida → (10×2 + 10×3×4) × 2 = 280.
func TestSettle_TwoLegTargetedScenario(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	// Historial que produce cuota 2.0 para win y 3.0 para most_kills(p1).
	ledger.games[""] = 10
	ledger.occurrences["win|"] = 5
	ledger.games["p1"] = 12
	ledger.occurrences["most_kills|p1"] = 4
	e := testEngine(ledger)
	ctx := context.Background()

	_, err := e.Place(ctx, "g1", "u1", []LegRequest{
		{Event: "win", Amount: 10},
		{Event: "most_kills", Target: "p1", Amount: 10},
	}, 0)
	require.NoError(t, err)

	settled, err := e.Settle(ctx, "g1", fourPlayerCtx())
	require.NoError(t, err)
	require.Len(t, settled, 1)

	assert.True(t, settled[0].Won)
	assert.Equal(t, int64((10*2+10*3*4)*2), settled[0].Payout)

	// La suma de pagos por pata persistidos iguala el total del ticket.
	var sum int64
	for _, leg := range settled[0].Legs {
		sum += leg.Payout
	}
	assert.Equal(t, settled[0].Payout, sum)
}

// Todo-o-nada: una pata perdida deja el ticket completo en exactamente 0,
// aunque la otra pata haya acertado.
func TestSettle_OneLostLegZeroesTicket(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)
	ctx := context.Background()

	_, err := e.Place(ctx, "g1", "u1", []LegRequest{
		{Event: "win", Amount: 10},
		{Event: "loss", Amount: 10},
	}, 0)
	require.NoError(t, err)

	settled, err := e.Settle(ctx, "g1", fourPlayerCtx())
	require.NoError(t, err)
	require.Len(t, settled, 1)

	assert.False(t, settled[0].Won)
	assert.Equal(t, int64(0), settled[0].Payout)
	for _, leg := range settled[0].Legs {
		assert.Equal(t, int64(0), leg.Payout)
	}
	assert.Equal(t, int64(80), ledger.balances["u1"])
}

// Piso del spec: toda apuesta ganada paga al menos 1 token.
func TestSettle_PayoutFloor(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)
	ctx := context.Background()

	// Colocada casi al cierre de la ventana: decaimiento cercano a 0.
	_, err := e.Place(ctx, "g1", "u1",
		[]LegRequest{{Event: "win", Amount: 5}}, 5*time.Minute-time.Second)
	require.NoError(t, err)

	settled, err := e.Settle(ctx, "g1", fourPlayerCtx())
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.True(t, settled[0].Won)
	assert.GreaterOrEqual(t, settled[0].Payout, int64(1))
}

func TestSettle_LedgerFailureKeepsPending(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)
	ctx := context.Background()

	_, err := e.Place(ctx, "g1", "u1", []LegRequest{{Event: "win", Amount: 20}}, 0)
	require.NoError(t, err)

	ledger.failSettle = true
	_, err = e.Settle(ctx, "g1", fourPlayerCtx())
	require.Error(t, err)

	// El ticket sigue pendiente y el saldo no se tocó a medias: el operador
	// puede reintentar la liquidación.
	pending, _ := ledger.PendingWagers(ctx, "g1")
	assert.Len(t, pending, 1)
	assert.Equal(t, int64(80), ledger.balances["u1"])

	ledger.failSettle = false
	settled, err := e.Settle(ctx, "g1", fourPlayerCtx())
	require.NoError(t, err)
	assert.Len(t, settled, 1)
	assert.Equal(t, int64(120), ledger.balances["u1"])
}

func TestCancel_RejectedAfterStart(t *testing.T) {
	e := testEngine(newFakeLedger())
	_, err := e.Cancel(context.Background(), "t1", true)
	assert.ErrorIs(t, err, domain.ErrMatchStarted)
}

func TestCancel_RoundTrip(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["u1"] = 100
	e := testEngine(ledger)
	ctx := context.Background()

	legs, err := e.Place(ctx, "g1", "u1", []LegRequest{{Event: "win", Amount: 30}}, 0)
	require.NoError(t, err)
	require.Equal(t, int64(70), ledger.balances["u1"])

	refund, err := e.Cancel(ctx, legs[0].TicketID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(30), refund)
	assert.Equal(t, int64(100), ledger.balances["u1"])
}
