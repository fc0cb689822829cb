package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/gambot/internal/application/betting"
	"github.com/alejandrodnm/gambot/internal/domain"
	"github.com/alejandrodnm/gambot/internal/ports"
)

// monitor.go — máquina de estados de sesión por guild.
//
// DORMANT → POLLING_START → ACTIVE → PROCESSING_END → DORMANT. Un monitor es
// una goroutine independiente: las transiciones dentro de un guild son
// estrictamente secuenciales y nada mutable se comparte entre guilds salvo el
// ledger, que serializa sus propias escrituras.

// State es el estado actual del monitor.
type State int32

const (
	StateDormant State = iota
	StatePollingStart
	StateActive
	StateProcessingEnd
)

func (s State) String() string {
	switch s {
	case StateDormant:
		return "dormant"
	case StatePollingStart:
		return "polling_start"
	case StateActive:
		return "active"
	case StateProcessingEnd:
		return "processing_end"
	}
	return "unknown"
}

// Config controla los intervalos de sondeo y los filtros de elegibilidad.
type Config struct {
	PresenceInterval time.Duration // sondeo de presencia en DORMANT
	StartInterval    time.Duration // sondeo de partida compartida en POLLING_START
	ActiveInterval   time.Duration // sondeo de fin de partida en ACTIVE
	FetchRetries     int           // intentos de fetch del registro final
	FetchBackoff     time.Duration // espera fija entre intentos
	MinPresent       int           // usuarios rastreados mínimos para armar sesión

	MinDuration    time.Duration // partidas más cortas se saltan (remakes)
	EligibleQueues []int         // colas elegibles; vacío = todas
}

// DefaultConfig devuelve los intervalos de producción.
func DefaultConfig() Config {
	return Config{
		PresenceInterval: 60 * time.Second,
		StartInterval:    120 * time.Second,
		ActiveInterval:   30 * time.Second,
		FetchRetries:     3,
		FetchBackoff:     30 * time.Second,
		MinPresent:       2,
		MinDuration:      10 * time.Minute,
	}
}

// Monitor es la máquina de estados de un guild. Su GuildSession es privada:
// solo la goroutine de Run la muta.
type Monitor struct {
	guildID  string
	cfg      Config
	game     ports.GameData
	presence ports.Presence
	ledger   ports.Ledger
	engine   *betting.Engine
	notifier ports.Notifier
	awardCfg domain.AwardConfig

	state   atomic.Int32
	session domain.GuildSession
}

// NewMonitor crea el monitor de un guild con sus dependencias inyectadas.
func NewMonitor(
	guildID string,
	cfg Config,
	game ports.GameData,
	presence ports.Presence,
	ledger ports.Ledger,
	engine *betting.Engine,
	notifier ports.Notifier,
	awardCfg domain.AwardConfig,
) *Monitor {
	if cfg.MinPresent < 2 {
		cfg.MinPresent = 2
	}
	if cfg.FetchRetries < 1 {
		cfg.FetchRetries = 1
	}
	return &Monitor{
		guildID:  guildID,
		cfg:      cfg,
		game:     game,
		presence: presence,
		ledger:   ledger,
		engine:   engine,
		notifier: notifier,
		awardCfg: awardCfg,
		session:  domain.GuildSession{GuildID: guildID},
	}
}

// State devuelve el estado actual; seguro desde otras goroutines.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// MatchInProgress indica si hay una partida en curso o en procesamiento.
// La capa de bot lo usa para rechazar cancelaciones tardías.
func (m *Monitor) MatchInProgress() bool {
	s := m.State()
	return s == StateActive || s == StateProcessingEnd
}

func (m *Monitor) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		slog.Debug("monitor transition",
			"guild", m.guildID,
			"from", prev.String(),
			"to", s.String(),
		)
	}
}

// Run ejecuta la máquina de estados hasta que el contexto se cancele. Los
// sleeps son cooperativos: la cancelación corta cualquier espera, pero una
// partida ya detectada se procesa hasta el final dentro de la iteración.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor starting", "guild", m.guildID)

	for {
		if ctx.Err() != nil {
			slog.Info("monitor stopped", "guild", m.guildID)
			return nil
		}

		switch m.State() {
		case StateDormant:
			if m.presentCount(ctx) >= m.cfg.MinPresent {
				m.setState(StatePollingStart)
				continue
			}
			if !m.sleep(ctx, m.cfg.PresenceInterval) {
				continue
			}

		case StatePollingStart:
			// La caída de presencia cancela solo este estado: una partida
			// ya detectada se rastrea hasta el final.
			if m.presentCount(ctx) < m.cfg.MinPresent {
				m.setState(StateDormant)
				m.session.Reset()
				continue
			}
			if m.detectSharedMatch(ctx) {
				m.setState(StateActive)
				continue
			}
			m.sleep(ctx, m.cfg.StartInterval)

		case StateActive:
			if m.matchStillActive(ctx) {
				m.sleep(ctx, m.cfg.ActiveInterval)
				continue
			}
			m.setState(StateProcessingEnd)

		case StateProcessingEnd:
			if err := m.processEnd(ctx); err != nil {
				slog.Error("end-of-match processing failed",
					"guild", m.guildID,
					"match", m.session.MatchID,
					"err", err,
				)
			}
			m.session.Reset()
			// Vuelta a DORMANT con reevaluación inmediata de presencia.
			m.setState(StateDormant)
		}
	}
}

// presentCount consulta la presencia; un error del colaborador cuenta como
// cero presentes esta ronda.
func (m *Monitor) presentCount(ctx context.Context) int {
	refs, err := m.presence.TrackedUsers(ctx, m.guildID)
	if err != nil {
		slog.Debug("presence check failed", "guild", m.guildID, "err", err)
		return 0
	}
	return len(refs)
}

// detectSharedMatch sondea la partida activa de cada usuario presente. Si
// todos los activos comparten exactamente un match id (y son al menos
// MinPresent), arma la sesión y devuelve true. Usuarios repartidos en partidas
// distintas es ambiguo: no se hace nada esta ronda.
func (m *Monitor) detectSharedMatch(ctx context.Context) bool {
	refs, err := m.presence.TrackedUsers(ctx, m.guildID)
	if err != nil {
		return false
	}

	byMatch := make(map[string][]domain.PlayerRef)
	info := make(map[string]domain.ActiveMatch)
	for _, ref := range refs {
		active, err := m.game.ActiveMatch(ctx, ref)
		if err != nil {
			// Adapter caído o jugador fuera de partida: ambos cuentan
			// como "sin partida activa esta ronda".
			if !errors.Is(err, domain.ErrNoActiveMatch) {
				slog.Debug("active match check failed",
					"guild", m.guildID,
					"player", ref.GameID,
					"err", err,
				)
			}
			continue
		}
		byMatch[active.ID] = append(byMatch[active.ID], ref)
		info[active.ID] = active
	}

	if len(byMatch) != 1 {
		if len(byMatch) > 1 {
			slog.Debug("tracked users split across matches",
				"guild", m.guildID,
				"matches", len(byMatch),
			)
		}
		return false
	}

	for id, players := range byMatch {
		if len(players) < m.cfg.MinPresent {
			return false
		}
		active := info[id]
		m.session.MatchID = id
		m.session.Tracked = players
		m.session.StartedAt = active.StartedAt(time.Now())

		slog.Info("shared match detected",
			"guild", m.guildID,
			"match", id,
			"tracked", len(players),
		)
		if err := m.notifier.MatchActive(ctx, m.guildID, active); err != nil {
			slog.Warn("notifier error", "guild", m.guildID, "err", err)
		}
		return true
	}
	return false
}

// matchStillActive sondea si la partida de la sesión sigue en curso. Un error
// de transporte mantiene el estado (se sigue sondeando); solo la respuesta
// limpia "sin partida" dispara el procesamiento de fin.
func (m *Monitor) matchStillActive(ctx context.Context) bool {
	sawEnded := false
	for _, ref := range m.session.Tracked {
		active, err := m.game.ActiveMatch(ctx, ref)
		if err != nil {
			if errors.Is(err, domain.ErrNoActiveMatch) {
				sawEnded = true
			}
			continue
		}
		if active.ID == m.session.MatchID {
			return true
		}
	}
	return !sawEnded
}

// processEnd obtiene el registro final con reintentos acotados y, si todo
// cuadra, dispara premios, liquidación y persistencia. El orden importa:
// calificar → liquidar → persistir; la marca de idempotencia se escribe junto
// con el registro, así un fallo previo deja la partida reprocesable.
func (m *Monitor) processEnd(ctx context.Context) error {
	matchID := m.session.MatchID

	rec := m.fetchFinished(ctx, matchID)
	if rec == nil {
		// Reintentos agotados: se registra para reconciliación manual y la
		// sesión termina sin tocar premios ni apuestas.
		slog.Error("match record missing after retries",
			"guild", m.guildID,
			"match", matchID,
			"attempts", m.cfg.FetchRetries,
		)
		m.notify(ctx, domain.StatusMissing, nil)
		return nil
	}

	processed, err := m.ledger.IsProcessed(ctx, matchID)
	if err != nil {
		return fmt.Errorf("monitor.processEnd: idempotency check: %w", err)
	}
	if processed {
		// Ya procesada: descarte silencioso, sin notificación al bot.
		slog.Debug("duplicate match discarded", "guild", m.guildID, "match", matchID)
		return nil
	}

	if !m.eligible(rec) {
		slog.Info("match skipped by eligibility filter",
			"guild", m.guildID,
			"match", matchID,
			"queue", rec.QueueID,
			"duration", rec.Duration,
		)
		m.notify(ctx, domain.StatusSkipped, rec)
		return nil
	}

	award := domain.Qualify(rec, m.awardCfg)
	if err := m.notifier.AwardDecided(ctx, m.guildID, award); err != nil {
		slog.Warn("notifier error", "guild", m.guildID, "err", err)
	}

	rctx := domain.ResolveContext{
		Record:      rec,
		Award:       award,
		TrackedTeam: m.trackedTeam(rec),
	}

	settled, err := m.engine.Settle(ctx, m.guildID, rctx)
	if err != nil {
		// Los tickets no liquidados siguen pendientes y la partida no se
		// marca procesada: el operador puede reintentar sin doble pago.
		return fmt.Errorf("monitor.processEnd: settle: %w", err)
	}

	if err := m.ledger.SaveMatch(ctx, m.guildID, rec, domain.Occurrences(rctx)); err != nil {
		return fmt.Errorf("monitor.processEnd: save match: %w", err)
	}

	if len(settled) > 0 {
		if err := m.notifier.WagersSettled(ctx, m.guildID, settled); err != nil {
			slog.Warn("notifier error", "guild", m.guildID, "err", err)
		}
	}
	m.notify(ctx, domain.StatusProcessed, rec)

	slog.Info("match processed",
		"guild", m.guildID,
		"match", matchID,
		"blunder", award.BlunderPlayer,
		"highlights", len(award.Highlights),
		"tickets_settled", len(settled),
	)
	return nil
}

// fetchFinished reintenta el fetch del registro final con backoff fijo: un
// loop acotado y explícito, nada de recursión.
func (m *Monitor) fetchFinished(ctx context.Context, matchID string) *domain.MatchRecord {
	for attempt := 1; attempt <= m.cfg.FetchRetries; attempt++ {
		rec, err := m.game.FinishedMatch(ctx, matchID)
		if err == nil && rec != nil {
			return rec
		}
		if err != nil && !errors.Is(err, domain.ErrNotReady) {
			slog.Warn("finished match fetch failed",
				"guild", m.guildID,
				"match", matchID,
				"attempt", attempt,
				"err", err,
			)
		}
		if attempt < m.cfg.FetchRetries {
			if !m.sleep(ctx, m.cfg.FetchBackoff) {
				return nil
			}
		}
	}
	return nil
}

// eligible aplica los filtros de modo y duración.
func (m *Monitor) eligible(rec *domain.MatchRecord) bool {
	if rec.Duration < m.cfg.MinDuration {
		return false
	}
	if len(m.cfg.EligibleQueues) == 0 {
		return true
	}
	for _, q := range m.cfg.EligibleQueues {
		if rec.QueueID == q {
			return true
		}
	}
	return false
}

// trackedTeam devuelve el equipo de los jugadores rastreados en el registro final.
func (m *Monitor) trackedTeam(rec *domain.MatchRecord) int {
	for _, ref := range m.session.Tracked {
		if p, ok := rec.Player(ref.GameID); ok {
			return p.TeamID
		}
	}
	return 0
}

func (m *Monitor) notify(ctx context.Context, status domain.MatchStatus, rec *domain.MatchRecord) {
	if err := m.notifier.MatchEnded(ctx, m.guildID, status, rec); err != nil {
		slog.Warn("notifier error", "guild", m.guildID, "err", err)
	}
}

// sleep espera la duración dada o hasta que el contexto se cancele.
// Devuelve false si la espera fue interrumpida.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
