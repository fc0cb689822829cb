package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gambot/internal/domain"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func testWager(id, ticket, bettor string, amount int64) domain.Wager {
	return domain.Wager{
		ID:       id,
		TicketID: ticket,
		BettorID: bettor,
		GuildID:  "g1",
		Kind:     domain.EventWin,
		Amount:   amount,
		Odds:     2.0,
		Status:   domain.WagerPending,
	}
}

func TestBalance_UnknownUserIsZero(t *testing.T) {
	l := newTestLedger(t)
	bal, err := l.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestDeposit_Accumulates(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "u1", 100))
	require.NoError(t, l.Deposit(ctx, "u1", 50))

	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), bal)
}

func TestPlaceTicket_DebitsAndPersists(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "u1", 100))

	legs := []domain.Wager{testWager("w1", "t1", "u1", 30)}
	require.NoError(t, l.PlaceTicket(ctx, legs))

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(70), bal)

	pending, err := l.PendingWagers(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "w1", pending[0].ID)
	assert.Equal(t, domain.WagerPending, pending[0].Status)
}

func TestPlaceTicket_InsufficientFundsIsAtomic(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "u1", 25))

	// Dos patas de 15: el total (30) excede el saldo; nada debe persistirse.
	legs := []domain.Wager{
		testWager("w1", "t1", "u1", 15),
		{ID: "w2", TicketID: "t1", BettorID: "u1", GuildID: "g1",
			Kind: domain.EventBlunderAny, Amount: 15, Odds: 3.0, Status: domain.WagerPending},
	}
	err := l.PlaceTicket(ctx, legs)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(25), bal)

	pending, _ := l.PendingWagers(ctx, "g1")
	assert.Empty(t, pending)
}

// Propiedad del spec: colocar y cancelar antes del inicio restaura el saldo exacto.
func TestCancelTicket_RoundTripRestoresBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "u1", 100))

	require.NoError(t, l.PlaceTicket(ctx, []domain.Wager{testWager("w1", "t1", "u1", 40)}))

	refund, err := l.CancelTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), refund)

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(100), bal)

	pending, _ := l.PendingWagers(ctx, "g1")
	assert.Empty(t, pending)
}

func TestCancelTicket_UnknownTicket(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.CancelTicket(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestSettleTicket_CreditsPayout(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "u1", 100))

	legs := []domain.Wager{testWager("w1", "t1", "u1", 20)}
	require.NoError(t, l.PlaceTicket(ctx, legs))

	legs[0].Status = domain.WagerWon
	legs[0].Payout = 40
	require.NoError(t, l.SettleTicket(ctx, "u1", legs, 40))

	// 100 - 20 + 40 = 120, el escenario base del spec.
	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(120), bal)

	pending, _ := l.PendingWagers(ctx, "g1")
	assert.Empty(t, pending)
}

func TestSettleTicket_LostPaysNothing(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "u1", 100))

	legs := []domain.Wager{testWager("w1", "t1", "u1", 20)}
	require.NoError(t, l.PlaceTicket(ctx, legs))

	legs[0].Status = domain.WagerLost
	legs[0].Payout = 0
	require.NoError(t, l.SettleTicket(ctx, "u1", legs, 0))

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(80), bal)
}

func TestSettleTicket_AlreadySettledFails(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "u1", 100))

	legs := []domain.Wager{testWager("w1", "t1", "u1", 20)}
	require.NoError(t, l.PlaceTicket(ctx, legs))

	legs[0].Status = domain.WagerWon
	legs[0].Payout = 40
	require.NoError(t, l.SettleTicket(ctx, "u1", legs, 40))

	// Segunda liquidación del mismo ticket: falla y no acredita de nuevo.
	err := l.SettleTicket(ctx, "u1", legs, 40)
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(120), bal)
}

func TestHasPendingWager(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "u1", 100))
	require.NoError(t, l.PlaceTicket(ctx, []domain.Wager{testWager("w1", "t1", "u1", 10)}))

	dup, err := l.HasPendingWager(ctx, "u1", "g1", domain.EventWin, "")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = l.HasPendingWager(ctx, "u1", "g1", domain.EventLoss, "")
	require.NoError(t, err)
	assert.False(t, dup)
}

func savedMatch(id string) *domain.MatchRecord {
	return &domain.MatchRecord{
		MatchID:  id,
		QueueID:  420,
		Duration: 25 * time.Minute,
		Players: []domain.PlayerStat{
			{PlayerID: "p1", TeamID: 100, Win: true, Kills: 10, Deaths: 2},
			{PlayerID: "p2", TeamID: 200, Kills: 2, Deaths: 10},
		},
		Teams: []domain.TeamAggregate{
			{TeamID: 100, Win: true},
			{TeamID: 200},
		},
	}
}

func TestSaveMatch_HistoryCounts(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	occs := []domain.EventOccurrence{
		{Kind: domain.EventWin},
		{Kind: domain.EventMostKills, Target: "p1"},
	}
	require.NoError(t, l.SaveMatch(ctx, "g1", savedMatch("m1"), occs))
	require.NoError(t, l.SaveMatch(ctx, "g1", savedMatch("m2"), []domain.EventOccurrence{
		{Kind: domain.EventWin},
	}))

	games, err := l.GamesPlayed(ctx, "g1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), games)

	games, err = l.GamesPlayed(ctx, "g1", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), games)

	wins, err := l.EventOccurrences(ctx, "g1", domain.EventWin, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), wins)

	mk, err := l.EventOccurrences(ctx, "g1", domain.EventMostKills, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mk)

	mk, err = l.EventOccurrences(ctx, "g1", domain.EventMostKills, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), mk)
}

func TestSaveMatch_MarksProcessed(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	processed, err := l.IsProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, l.SaveMatch(ctx, "g1", savedMatch("m1"), nil))

	processed, err = l.IsProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, processed)
}
