package domain

import "fmt"

// wager.go — tipos de apuesta y despacho de resolución.
//
// Cada tipo de evento es una variante del enum EventKind que lleva consigo su
// resolver: nada de rangos numéricos mágicos, el switch es la tabla eventSpecs.

// WagerStatus es el estado de una pata de apuesta.
type WagerStatus string

const (
	WagerPending WagerStatus = "pending"
	WagerWon     WagerStatus = "won"
	WagerLost    WagerStatus = "lost"
)

// Wager es una pata de apuesta. Las patas colocadas juntas comparten TicketID
// y se resuelven todo-o-nada. Solo la liquidación muta Status/Payout; la
// cancelación borra la fila y reembolsa.
type Wager struct {
	ID        string
	TicketID  string
	BettorID  string
	GuildID   string
	Kind      EventKind
	Target    string // GameID del jugador apuntado, vacío si el evento no lo requiere
	Amount    int64
	Odds      float64 // cuota fijada en el momento de colocar
	PlacedAt  int64   // segundos de partida transcurridos al colocar
	Status    WagerStatus
	Payout    int64
}

// SettledTicket es el resultado de liquidar un ticket completo.
type SettledTicket struct {
	TicketID string
	BettorID string
	Won      bool
	Payout   int64
	Legs     []Wager
}

// EventOccurrence registra que un evento ocurrió en una partida procesada;
// alimenta los contadores históricos de las cuotas dinámicas.
type EventOccurrence struct {
	Kind   EventKind
	Target string
}

// ResolveContext es todo lo que un resolver necesita para decidir una pata.
type ResolveContext struct {
	Record      *MatchRecord
	Award       AwardResult
	TrackedTeam int // equipo de los jugadores rastreados del guild
}

func (c ResolveContext) trackedWon() bool {
	return c.Record.Team(c.TrackedTeam).Win
}

// EventKind identifica el tipo de evento apostable.
type EventKind string

const (
	EventWin             EventKind = "win"
	EventLoss            EventKind = "loss"
	EventBlunderAny      EventKind = "blunder_any"
	EventBlunderTarget   EventKind = "blunder_target"
	EventBlunderDeaths   EventKind = "blunder_deaths"
	EventBlunderKDA      EventKind = "blunder_kda"
	EventBlunderVision   EventKind = "blunder_vision"
	EventBlunderKillPart EventKind = "blunder_killpart"
	EventHighlightAny    EventKind = "highlight_any"
	EventHighlightTarget EventKind = "highlight_target"
	EventPentakill       EventKind = "pentakill"
	EventMostKills       EventKind = "most_kills"
	EventMostDeaths      EventKind = "most_deaths"
	EventMostDamage      EventKind = "most_damage"
)

// EventSpec describe una variante de evento: si exige target, su cuota base
// cuando no hay historial, el multiplicador especial del ticket y el resolver.
type EventSpec struct {
	Kind        EventKind
	NeedsTarget bool
	BaseOdds    float64
	Multiplier  float64 // multiplicador especial aplicado al ticket completo
	Resolve     func(ResolveContext, string) bool
}

// eventSpecs es la tabla de despacho completa. Los superlativos reutilizan el
// primitivo Outlier, así que los empates se comportan igual que en los premios:
// en general pierden, salvo los eventos tie-inclusive como most_damage.
var eventSpecs = map[EventKind]EventSpec{
	EventWin: {EventWin, false, 2.0, 1.0, func(c ResolveContext, _ string) bool {
		return c.trackedWon()
	}},
	EventLoss: {EventLoss, false, 2.0, 1.0, func(c ResolveContext, _ string) bool {
		return !c.trackedWon()
	}},
	EventBlunderAny: {EventBlunderAny, false, 3.0, 1.0, func(c ResolveContext, _ string) bool {
		return c.Award.HasBlunder()
	}},
	EventBlunderTarget: {EventBlunderTarget, true, 5.0, 1.0, func(c ResolveContext, target string) bool {
		return c.Award.BlunderPlayer == target
	}},
	EventBlunderDeaths: {EventBlunderDeaths, false, 4.0, 1.0, blunderReason(BlunderMostDeaths)},
	EventBlunderKDA: {EventBlunderKDA, false, 4.0, 1.0, blunderReason(BlunderWorstKDA)},
	EventBlunderVision: {EventBlunderVision, false, 6.0, 1.0, blunderReason(BlunderLowVision)},
	EventBlunderKillPart: {EventBlunderKillPart, false, 6.0, 1.0, blunderReason(BlunderLowKillPart)},
	EventHighlightAny: {EventHighlightAny, false, 3.0, 1.0, func(c ResolveContext, _ string) bool {
		return len(c.Award.Highlights) > 0
	}},
	EventHighlightTarget: {EventHighlightTarget, true, 5.0, 1.0, func(c ResolveContext, target string) bool {
		return c.Award.Highlights[target] != 0
	}},
	EventPentakill: {EventPentakill, false, 20.0, 2.0, func(c ResolveContext, _ string) bool {
		for _, crit := range c.Award.Highlights {
			if crit&HighlightPentakill != 0 {
				return true
			}
		}
		return false
	}},
	EventMostKills: {EventMostKills, true, 4.0, 1.0, func(c ResolveContext, target string) bool {
		return IsUniqueOutlier(c.Record.Players, StatKills, false, target)
	}},
	EventMostDeaths: {EventMostDeaths, true, 4.0, 1.0, func(c ResolveContext, target string) bool {
		return IsUniqueOutlier(c.Record.Players, StatDeaths, false, target)
	}},
	EventMostDamage: {EventMostDamage, true, 4.0, 1.0, func(c ResolveContext, target string) bool {
		return InOutlierSet(c.Record.Players, StatDamage, false, target)
	}},
}

func blunderReason(crit BlunderCriteria) func(ResolveContext, string) bool {
	return func(c ResolveContext, _ string) bool {
		return c.Award.HasBlunder() && c.Award.BlunderReasons&crit != 0
	}
}

// Spec devuelve la especificación del tipo de evento.
func (k EventKind) Spec() (EventSpec, bool) {
	s, ok := eventSpecs[k]
	return s, ok
}

// ParseEventKind valida un nombre de evento recibido del exterior.
func ParseEventKind(name string) (EventKind, error) {
	k := EventKind(name)
	if _, ok := eventSpecs[k]; !ok {
		return "", fmt.Errorf("domain.ParseEventKind: %w: %q", ErrUnknownEvent, name)
	}
	return k, nil
}

// EventKinds devuelve todos los tipos de evento registrados.
func EventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(eventSpecs))
	for k := range eventSpecs {
		kinds = append(kinds, k)
	}
	return kinds
}

// Occurrences evalúa todos los eventos contra una partida procesada y devuelve
// los que ocurrieron, target incluido donde aplique. Alimenta el historial de
// cuotas: cada partida procesada hace las cuotas futuras un poco más honestas.
func Occurrences(c ResolveContext) []EventOccurrence {
	var occs []EventOccurrence
	for _, kind := range orderedKinds() {
		spec := eventSpecs[kind]
		if !spec.NeedsTarget {
			if spec.Resolve(c, "") {
				occs = append(occs, EventOccurrence{Kind: kind})
			}
			continue
		}
		for _, p := range c.Record.Players {
			if spec.Resolve(c, p.PlayerID) {
				occs = append(occs, EventOccurrence{Kind: kind, Target: p.PlayerID})
			}
		}
	}
	return occs
}

// orderedKinds fija un orden estable para que Occurrences sea determinista.
func orderedKinds() []EventKind {
	return []EventKind{
		EventWin, EventLoss,
		EventBlunderAny, EventBlunderTarget,
		EventBlunderDeaths, EventBlunderKDA, EventBlunderVision, EventBlunderKillPart,
		EventHighlightAny, EventHighlightTarget, EventPentakill,
		EventMostKills, EventMostDeaths, EventMostDamage,
	}
}
