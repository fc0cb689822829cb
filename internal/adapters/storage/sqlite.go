package storage

// sqlite.go — ledger sobre SQLite (pure Go, sin CGo).
//
// Consistencia financiera:
//   - Conexión single-writer (SQLite lo es de todas formas) + transacciones:
//     dos liquidaciones que tocan al mismo apostador nunca se intercalan.
//   - El débito condiciona `amount >= ?` en el UPDATE: un saldo nunca queda
//     negativo ni parcialmente debitado.
//   - El índice único parcial sobre wagers pendientes respalda en la DB el
//     invariante de "una apuesta sin resolver por (apostador, guild, evento,
//     target)" que el engine ya chequea.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/gambot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS balances (
    user_id TEXT PRIMARY KEY,
    amount  INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS wagers (
    id          TEXT PRIMARY KEY,
    ticket_id   TEXT    NOT NULL,
    bettor_id   TEXT    NOT NULL,
    guild_id    TEXT    NOT NULL,
    event_kind  TEXT    NOT NULL,
    target      TEXT    NOT NULL DEFAULT '',
    amount      INTEGER NOT NULL,
    odds        REAL    NOT NULL,
    placed_at_s INTEGER NOT NULL,
    status      TEXT    NOT NULL DEFAULT 'pending',
    payout      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_wagers_ticket ON wagers(ticket_id);
CREATE INDEX IF NOT EXISTS idx_wagers_guild_status ON wagers(guild_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_wagers_unresolved
    ON wagers(bettor_id, guild_id, event_kind, target) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS matches (
    match_id   TEXT PRIMARY KEY,
    guild_id   TEXT    NOT NULL,
    queue_id   INTEGER NOT NULL DEFAULT 0,
    duration_s INTEGER NOT NULL DEFAULT 0,
    played_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_matches_guild ON matches(guild_id);

CREATE TABLE IF NOT EXISTS player_stats (
    match_id      TEXT    NOT NULL,
    player_id     TEXT    NOT NULL,
    team_id       INTEGER NOT NULL DEFAULT 0,
    win           INTEGER NOT NULL DEFAULT 0,
    kills         INTEGER NOT NULL DEFAULT 0,
    deaths        INTEGER NOT NULL DEFAULT 0,
    assists       INTEGER NOT NULL DEFAULT 0,
    gold          INTEGER NOT NULL DEFAULT 0,
    damage        INTEGER NOT NULL DEFAULT 0,
    pentakills    INTEGER NOT NULL DEFAULT 0,
    objectives    INTEGER NOT NULL DEFAULT 0,
    vision        INTEGER NOT NULL DEFAULT 0,
    has_vision    INTEGER NOT NULL DEFAULT 0,
    kill_part     REAL    NOT NULL DEFAULT 0,
    has_kill_part INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (match_id, player_id)
);

CREATE TABLE IF NOT EXISTS event_history (
    guild_id   TEXT NOT NULL,
    match_id   TEXT NOT NULL,
    event_kind TEXT NOT NULL,
    target     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (guild_id, match_id, event_kind, target)
);

CREATE TABLE IF NOT EXISTS processed_matches (
    match_id     TEXT PRIMARY KEY,
    processed_at DATETIME NOT NULL
);
`

// SQLiteLedger implementa ports.Ledger usando SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Balance devuelve el saldo del usuario; 0 si nunca operó.
func (l *SQLiteLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var amount int64
	err := l.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE user_id = ?`, userID,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.Balance: %w", err)
	}
	return amount, nil
}

// Deposit acredita tokens, creando la cuenta si hace falta.
func (l *SQLiteLedger) Deposit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("storage.Deposit: non-positive amount %d", amount)
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET amount = amount + excluded.amount
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("storage.Deposit: %w", err)
	}
	return nil
}

// debit descuenta del saldo dentro de la transacción dada. El WHERE con
// `amount >= ?` garantiza que el saldo jamás queda negativo: si no alcanza,
// cero filas afectadas y la transacción completa se revierte.
func debit(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount - ? WHERE user_id = ? AND amount >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if n == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

func credit(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET amount = amount + excluded.amount
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	return nil
}

// PlaceTicket debita el total del ticket e inserta las patas pendientes,
// todo o nada.
func (l *SQLiteLedger) PlaceTicket(ctx context.Context, legs []domain.Wager) error {
	if len(legs) == 0 {
		return nil
	}

	var total int64
	for _, w := range legs {
		total += w.Amount
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.PlaceTicket: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := debit(ctx, tx, legs[0].BettorID, total); err != nil {
		return fmt.Errorf("storage.PlaceTicket: %w", err)
	}

	for _, w := range legs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wagers
				(id, ticket_id, bettor_id, guild_id, event_kind, target,
				 amount, odds, placed_at_s, status, payout)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		`, w.ID, w.TicketID, w.BettorID, w.GuildID, string(w.Kind), w.Target,
			w.Amount, w.Odds, w.PlacedAt, string(domain.WagerPending),
		); err != nil {
			return fmt.Errorf("storage.PlaceTicket: insert wager %s: %w", w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.PlaceTicket: commit: %w", err)
	}
	return nil
}

// CancelTicket borra las patas pendientes del ticket y reembolsa el monto
// exacto debitado.
func (l *SQLiteLedger) CancelTicket(ctx context.Context, ticketID string) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: begin tx: %w", err)
	}
	defer tx.Rollback()

	var bettorID string
	var total int64
	err = tx.QueryRowContext(ctx, `
		SELECT bettor_id, SUM(amount) FROM wagers
		WHERE ticket_id = ? AND status = 'pending'
		GROUP BY bettor_id
	`, ticketID).Scan(&bettorID, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("storage.CancelTicket: %w", domain.ErrTicketNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM wagers WHERE ticket_id = ? AND status = 'pending'`, ticketID,
	); err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: delete: %w", err)
	}
	if err := credit(ctx, tx, bettorID, total); err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: commit: %w", err)
	}
	return total, nil
}

// SettleTicket persiste el estado final de cada pata y acredita el pago en
// una sola transacción: o todo el ticket queda liquidado y pagado, o nada.
func (l *SQLiteLedger) SettleTicket(ctx context.Context, bettorID string, legs []domain.Wager, payout int64) error {
	if len(legs) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SettleTicket: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, w := range legs {
		res, err := tx.ExecContext(ctx,
			`UPDATE wagers SET status = ?, payout = ? WHERE id = ? AND status = 'pending'`,
			string(w.Status), w.Payout, w.ID,
		)
		if err != nil {
			return fmt.Errorf("storage.SettleTicket: update wager %s: %w", w.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("storage.SettleTicket: update wager %s: %w", w.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("storage.SettleTicket: wager %s: %w", w.ID, domain.ErrTicketNotFound)
		}
	}

	if payout > 0 {
		if err := credit(ctx, tx, bettorID, payout); err != nil {
			return fmt.Errorf("storage.SettleTicket: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SettleTicket: commit: %w", err)
	}
	return nil
}

// PendingWagers devuelve las patas pendientes del guild ordenadas por ticket.
func (l *SQLiteLedger) PendingWagers(ctx context.Context, guildID string) ([]domain.Wager, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ticket_id, bettor_id, guild_id, event_kind, target,
		       amount, odds, placed_at_s, status, payout
		FROM wagers
		WHERE guild_id = ? AND status = 'pending'
		ORDER BY ticket_id, id
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingWagers: query: %w", err)
	}
	defer rows.Close()

	var wagers []domain.Wager
	for rows.Next() {
		var w domain.Wager
		var kind, status string
		if err := rows.Scan(
			&w.ID, &w.TicketID, &w.BettorID, &w.GuildID, &kind, &w.Target,
			&w.Amount, &w.Odds, &w.PlacedAt, &status, &w.Payout,
		); err != nil {
			return nil, fmt.Errorf("storage.PendingWagers: scan: %w", err)
		}
		w.Kind = domain.EventKind(kind)
		w.Status = domain.WagerStatus(status)
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}

// HasPendingWager chequea el invariante de unicidad de apuestas sin resolver.
func (l *SQLiteLedger) HasPendingWager(ctx context.Context, bettorID, guildID string, kind domain.EventKind, target string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wagers
		WHERE bettor_id = ? AND guild_id = ? AND event_kind = ? AND target = ?
		  AND status = 'pending'
	`, bettorID, guildID, string(kind), target).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.HasPendingWager: %w", err)
	}
	return n > 0, nil
}

// GamesPlayed cuenta partidas procesadas del guild, opcionalmente solo
// aquellas donde participó el target.
func (l *SQLiteLedger) GamesPlayed(ctx context.Context, guildID, target string) (int64, error) {
	var n int64
	var err error
	if target == "" {
		err = l.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM matches WHERE guild_id = ?`, guildID,
		).Scan(&n)
	} else {
		err = l.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM player_stats ps
			JOIN matches m ON m.match_id = ps.match_id
			WHERE m.guild_id = ? AND ps.player_id = ?
		`, guildID, target).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("storage.GamesPlayed: %w", err)
	}
	return n, nil
}

// EventOccurrences cuenta las ocurrencias históricas del evento en el guild.
func (l *SQLiteLedger) EventOccurrences(ctx context.Context, guildID string, kind domain.EventKind, target string) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_history
		WHERE guild_id = ? AND event_kind = ? AND target = ?
	`, guildID, string(kind), target).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.EventOccurrences: %w", err)
	}
	return n, nil
}

// IsProcessed consulta el set de idempotencia.
func (l *SQLiteLedger) IsProcessed(ctx context.Context, matchID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_matches WHERE match_id = ?`, matchID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.IsProcessed: %w", err)
	}
	return n > 0, nil
}

// SaveMatch persiste registro, stats, historial de eventos y la marca de
// idempotencia en una transacción.
func (l *SQLiteLedger) SaveMatch(ctx context.Context, guildID string, rec *domain.MatchRecord, occs []domain.EventOccurrence) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveMatch: begin tx: %w", err)
	}
	defer tx.Rollback()

	playedAt := rec.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO matches (match_id, guild_id, queue_id, duration_s, played_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.MatchID, guildID, rec.QueueID, int64(rec.Duration.Seconds()), playedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveMatch: insert match: %w", err)
	}

	for _, p := range rec.Players {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO player_stats
				(match_id, player_id, team_id, win, kills, deaths, assists,
				 gold, damage, pentakills, objectives,
				 vision, has_vision, kill_part, has_kill_part)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.MatchID, p.PlayerID, p.TeamID, boolToInt(p.Win),
			p.Kills, p.Deaths, p.Assists,
			p.GoldEarned, p.Damage, p.Pentakills, p.Objectives,
			p.VisionScore, boolToInt(p.HasVision), p.KillPart, boolToInt(p.HasKillPart),
		); err != nil {
			return fmt.Errorf("storage.SaveMatch: insert stats %s: %w", p.PlayerID, err)
		}
	}

	for _, occ := range occs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO event_history (guild_id, match_id, event_kind, target)
			VALUES (?, ?, ?, ?)
		`, guildID, rec.MatchID, string(occ.Kind), occ.Target,
		); err != nil {
			return fmt.Errorf("storage.SaveMatch: insert occurrence: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_matches (match_id, processed_at)
		VALUES (?, ?)
	`, rec.MatchID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveMatch: mark processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveMatch: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
