package storage

// postgres.go — ledger sobre PostgreSQL vía el driver stdlib de pgx.
//
// Mismo contrato que el ledger SQLite; la serialización de escrituras
// conflictivas la da el row lock del UPDATE sobre balances dentro de cada
// transacción. El débito condicionado (`amount >= $n`) mantiene el invariante
// de saldo nunca negativo sin round-trips extra.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/gambot/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS balances (
    user_id TEXT PRIMARY KEY,
    amount  BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS wagers (
    id          TEXT PRIMARY KEY,
    ticket_id   TEXT   NOT NULL,
    bettor_id   TEXT   NOT NULL,
    guild_id    TEXT   NOT NULL,
    event_kind  TEXT   NOT NULL,
    target      TEXT   NOT NULL DEFAULT '',
    amount      BIGINT NOT NULL,
    odds        DOUBLE PRECISION NOT NULL,
    placed_at_s BIGINT NOT NULL,
    status      TEXT   NOT NULL DEFAULT 'pending',
    payout      BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_wagers_ticket ON wagers(ticket_id);
CREATE INDEX IF NOT EXISTS idx_wagers_guild_status ON wagers(guild_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_wagers_unresolved
    ON wagers(bettor_id, guild_id, event_kind, target) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS matches (
    match_id   TEXT PRIMARY KEY,
    guild_id   TEXT   NOT NULL,
    queue_id   INTEGER NOT NULL DEFAULT 0,
    duration_s BIGINT NOT NULL DEFAULT 0,
    played_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_matches_guild ON matches(guild_id);

CREATE TABLE IF NOT EXISTS player_stats (
    match_id      TEXT    NOT NULL,
    player_id     TEXT    NOT NULL,
    team_id       INTEGER NOT NULL DEFAULT 0,
    win           BOOLEAN NOT NULL DEFAULT FALSE,
    kills         INTEGER NOT NULL DEFAULT 0,
    deaths        INTEGER NOT NULL DEFAULT 0,
    assists       INTEGER NOT NULL DEFAULT 0,
    gold          BIGINT  NOT NULL DEFAULT 0,
    damage        BIGINT  NOT NULL DEFAULT 0,
    pentakills    INTEGER NOT NULL DEFAULT 0,
    objectives    INTEGER NOT NULL DEFAULT 0,
    vision        INTEGER NOT NULL DEFAULT 0,
    has_vision    BOOLEAN NOT NULL DEFAULT FALSE,
    kill_part     DOUBLE PRECISION NOT NULL DEFAULT 0,
    has_kill_part BOOLEAN NOT NULL DEFAULT FALSE,
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
    processed_at TIMESTAMPTZ NOT NULL
);
`

// PostgresLedger implementa ports.Ledger usando PostgreSQL.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger abre la conexión con el DSN dado y aplica el schema.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresLedger: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewPostgresLedger: apply schema: %w", err)
	}
	return &PostgresLedger{db: db}, nil
}

// Balance devuelve el saldo del usuario; 0 si nunca operó.
func (l *PostgresLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var amount int64
	err := l.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE user_id = $1`, userID,
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
func (l *PostgresLedger) Deposit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("storage.Deposit: non-positive amount %d", amount)
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("storage.Deposit: %w", err)
	}
	return nil
}

func pgDebit(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount - $1 WHERE user_id = $2 AND amount >= $1`,
		amount, userID,
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

func pgCredit(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	return nil
}

// PlaceTicket debita el total del ticket e inserta las patas pendientes,
// todo o nada.
func (l *PostgresLedger) PlaceTicket(ctx context.Context, legs []domain.Wager) error {
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

	if err := pgDebit(ctx, tx, legs[0].BettorID, total); err != nil {
		return fmt.Errorf("storage.PlaceTicket: %w", err)
	}

	for _, w := range legs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wagers
				(id, ticket_id, bettor_id, guild_id, event_kind, target,
				 amount, odds, placed_at_s, status, payout)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
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
func (l *PostgresLedger) CancelTicket(ctx context.Context, ticketID string) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: begin tx: %w", err)
	}
	defer tx.Rollback()

	var bettorID string
	var total int64
	err = tx.QueryRowContext(ctx, `
		SELECT bettor_id, SUM(amount) FROM wagers
		WHERE ticket_id = $1 AND status = 'pending'
		GROUP BY bettor_id
	`, ticketID).Scan(&bettorID, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("storage.CancelTicket: %w", domain.ErrTicketNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM wagers WHERE ticket_id = $1 AND status = 'pending'`, ticketID,
	); err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: delete: %w", err)
	}
	if err := pgCredit(ctx, tx, bettorID, total); err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.CancelTicket: commit: %w", err)
	}
	return total, nil
}

// SettleTicket persiste el estado final de cada pata y acredita el pago en
// una sola transacción.
func (l *PostgresLedger) SettleTicket(ctx context.Context, bettorID string, legs []domain.Wager, payout int64) error {
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
			`UPDATE wagers SET status = $1, payout = $2 WHERE id = $3 AND status = 'pending'`,
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
		if err := pgCredit(ctx, tx, bettorID, payout); err != nil {
			return fmt.Errorf("storage.SettleTicket: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SettleTicket: commit: %w", err)
	}
	return nil
}

// PendingWagers devuelve las patas pendientes del guild ordenadas por ticket.
func (l *PostgresLedger) PendingWagers(ctx context.Context, guildID string) ([]domain.Wager, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ticket_id, bettor_id, guild_id, event_kind, target,
		       amount, odds, placed_at_s, status, payout
		FROM wagers
		WHERE guild_id = $1 AND status = 'pending'
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
func (l *PostgresLedger) HasPendingWager(ctx context.Context, bettorID, guildID string, kind domain.EventKind, target string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wagers
		WHERE bettor_id = $1 AND guild_id = $2 AND event_kind = $3 AND target = $4
		  AND status = 'pending'
	`, bettorID, guildID, string(kind), target).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.HasPendingWager: %w", err)
	}
	return n > 0, nil
}

// GamesPlayed cuenta partidas procesadas del guild, opcionalmente solo
// aquellas donde participó el target.
func (l *PostgresLedger) GamesPlayed(ctx context.Context, guildID, target string) (int64, error) {
	var n int64
	var err error
	if target == "" {
		err = l.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM matches WHERE guild_id = $1`, guildID,
		).Scan(&n)
	} else {
		err = l.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM player_stats ps
			JOIN matches m ON m.match_id = ps.match_id
			WHERE m.guild_id = $1 AND ps.player_id = $2
		`, guildID, target).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("storage.GamesPlayed: %w", err)
	}
	return n, nil
}

// EventOccurrences cuenta las ocurrencias históricas del evento en el guild.
func (l *PostgresLedger) EventOccurrences(ctx context.Context, guildID string, kind domain.EventKind, target string) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_history
		WHERE guild_id = $1 AND event_kind = $2 AND target = $3
	`, guildID, string(kind), target).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.EventOccurrences: %w", err)
	}
	return n, nil
}

// IsProcessed consulta el set de idempotencia.
func (l *PostgresLedger) IsProcessed(ctx context.Context, matchID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_matches WHERE match_id = $1`, matchID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.IsProcessed: %w", err)
	}
	return n > 0, nil
}

// SaveMatch persiste registro, stats, historial de eventos y la marca de
// idempotencia en una transacción.
func (l *PostgresLedger) SaveMatch(ctx context.Context, guildID string, rec *domain.MatchRecord, occs []domain.EventOccurrence) error {
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
		VALUES ($1, $2, $3, $4, $5)
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, rec.MatchID, p.PlayerID, p.TeamID, p.Win,
			p.Kills, p.Deaths, p.Assists,
			p.GoldEarned, p.Damage, p.Pentakills, p.Objectives,
			p.VisionScore, p.HasVision, p.KillPart, p.HasKillPart,
		); err != nil {
			return fmt.Errorf("storage.SaveMatch: insert stats %s: %w", p.PlayerID, err)
		}
	}

	for _, occ := range occs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_history (guild_id, match_id, event_kind, target)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, guildID, rec.MatchID, string(occ.Kind), occ.Target,
		); err != nil {
			return fmt.Errorf("storage.SaveMatch: insert occurrence: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO processed_matches (match_id, processed_at)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
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
func (l *PostgresLedger) Close() error {
	return l.db.Close()
}
