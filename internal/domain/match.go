package domain

import "time"

// PlayerRef identifica a un usuario rastreado: su id de usuario en el chat
// y su cuenta en el juego (puuid).
type PlayerRef struct {
	UserID string
	GameID string
}

// ActiveMatch es lo que el adapter de juego reporta para un jugador en partida.
// StartEpoch puede ser 0 si el servidor todavía no lo publicó.
type ActiveMatch struct {
	ID         string
	StartEpoch int64
	QueueID    int
}

// StartedAt devuelve el instante de inicio, con fallback a "ahora" cuando el
// adapter reporta 0.
func (a ActiveMatch) StartedAt(now time.Time) time.Time {
	if a.StartEpoch <= 0 {
		return now
	}
	return time.Unix(a.StartEpoch, 0)
}

// MatchStatus clasifica el desenlace del procesamiento de fin de partida.
type MatchStatus string

const (
	// StatusProcessed: partida finalizada, premios y apuestas resueltos.
	StatusProcessed MatchStatus = "processed"
	// StatusMissing: el adapter nunca entregó el registro final tras agotar reintentos.
	StatusMissing MatchStatus = "missing"
	// StatusDuplicate: la partida ya fue procesada antes (idempotencia).
	StatusDuplicate MatchStatus = "duplicate"
	// StatusSkipped: la partida no es elegible (modo o duración fuera de filtro).
	StatusSkipped MatchStatus = "skipped"
)

// MatchRecord es el registro final e inmutable de una partida terminada.
type MatchRecord struct {
	MatchID  string
	QueueID  int
	Duration time.Duration
	PlayedAt time.Time
	Players  []PlayerStat
	Teams    []TeamAggregate
}

// Team devuelve el agregado del equipo dado, o un TeamAggregate vacío si no existe.
func (m *MatchRecord) Team(teamID int) TeamAggregate {
	for _, t := range m.Teams {
		if t.TeamID == teamID {
			return t
		}
	}
	return TeamAggregate{TeamID: teamID}
}

// Player busca el stat de un jugador por id. El id es único dentro del record.
func (m *MatchRecord) Player(playerID string) (PlayerStat, bool) {
	for _, p := range m.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return PlayerStat{}, false
}

// TeamAggregate son los totales por equipo usados por los criterios de highlight
// y por la resolución win/loss.
type TeamAggregate struct {
	TeamID      int
	Win         bool
	TotalKills  int
	TotalDamage int64
	Objectives  int // dragones + barones + heraldos asegurados por el equipo
}

// PlayerStat son las estadísticas finales de un jugador en una partida.
// KillParticipation y VisionScore pueden faltar en colas antiguas; los flags
// Has* permiten excluirlos del ranking en vez de tratarlos como 0.
type PlayerStat struct {
	PlayerID   string
	TeamID     int
	Win        bool
	Kills      int
	Deaths     int
	Assists    int
	GoldEarned int64
	Damage     int64
	Pentakills int
	Objectives int // objetivos épicos asegurados por este jugador

	VisionScore    int
	HasVision      bool
	KillPart       float64 // 0.0 – 1.0
	HasKillPart    bool
}

// KDA devuelve (kills+assists)/deaths. Con 0 muertes el ratio es "perfecto":
// kills+assists, la convención estándar de los trackers.
func (p PlayerStat) KDA() float64 {
	if p.Deaths == 0 {
		return float64(p.Kills + p.Assists)
	}
	return float64(p.Kills+p.Assists) / float64(p.Deaths)
}

// GuildSession es el estado mutable de la sesión de un guild. Solo el monitor
// del guild la toca; nunca se comparte entre goroutines.
type GuildSession struct {
	GuildID   string
	MatchID   string
	Tracked   []PlayerRef
	StartedAt time.Time
	TeamID    int // equipo de los jugadores rastreados, fijado al detectar la partida
}

// Reset limpia la sesión al volver a DORMANT.
func (s *GuildSession) Reset() {
	s.MatchID = ""
	s.Tracked = nil
	s.StartedAt = time.Time{}
	s.TeamID = 0
}
