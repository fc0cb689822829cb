package domain

// award.go — calificación determinista de premios sobre el registro final.
//
// Cada criterio de "blunder" combina una condición relativa (ser el extremo del
// lobby, empates incluidos) con un umbral absoluto estricto: en partidas limpias
// nadie califica aunque alguien sea "el peor". Los highlights son independientes
// y no exclusivos: un jugador puede acumular varios.

// BlunderCriteria es el bitset de criterios negativos que dispararon.
type BlunderCriteria uint32

const (
	BlunderWorstKDA BlunderCriteria = 1 << iota
	BlunderMostDeaths
	BlunderLowKillPart
	BlunderLowVision
)

// HighlightCriteria es el bitset de criterios positivos.
type HighlightCriteria uint32

const (
	HighlightKDA HighlightCriteria = 1 << iota
	HighlightKills
	HighlightDamageCarry
	HighlightPentakill
	HighlightVision
	HighlightKillPart
	HighlightObjectives
)

// AwardConfig son los umbrales absolutos de cada criterio.
type AwardConfig struct {
	MaxKDA        float64 // blunder: KDA por debajo de esto (y deaths por encima de MinDeaths)
	MinDeaths     int     // blunder KDA: muertes mínimas para que el KDA bajo cuente
	DeathsOver    int     // blunder: muertes estrictamente por encima de esto
	KillPartUnder float64 // blunder: participación estrictamente por debajo (0-1)
	VisionUnder   int     // blunder: visión estrictamente por debajo

	HighKDA        float64 // highlight: KDA desde aquí
	HighKills      int     // highlight: kills estrictamente por encima
	HighVision     int     // highlight: visión desde aquí
	HighKillPart   float64 // highlight: participación desde aquí (0-1)
	MinSweepObjs   int     // highlight: mínimo de objetivos del equipo para contar un "sweep"
}

// DefaultAwardConfig devuelve los umbrales de producción.
func DefaultAwardConfig() AwardConfig {
	return AwardConfig{
		MaxKDA:        1.3,
		MinDeaths:     2,
		DeathsOver:    9,
		KillPartUnder: 0.25,
		VisionUnder:   10,
		HighKDA:       10.0,
		HighKills:     20,
		HighVision:    100,
		HighKillPart:  0.80,
		MinSweepObjs:  3,
	}
}

// AwardResult es el veredicto inmutable de una partida: a lo sumo un blunder
// (con sus razones) y cero o más highlights por jugador.
type AwardResult struct {
	MatchID        string
	BlunderPlayer  string // vacío si nadie califica o el empate no se resolvió
	BlunderReasons BlunderCriteria
	Tally          map[string]BlunderCriteria // criterios disparados por jugador
	Highlights     map[string]HighlightCriteria
}

// HasBlunder indica si hubo asignación de blunder.
func (r AwardResult) HasBlunder() bool { return r.BlunderPlayer != "" }

// Labels devuelve los nombres legibles de los criterios activos, en orden fijo.
func (c BlunderCriteria) Labels() []string {
	var out []string
	for _, l := range []struct {
		bit  BlunderCriteria
		name string
	}{
		{BlunderWorstKDA, "worst KDA"},
		{BlunderMostDeaths, "most deaths"},
		{BlunderLowKillPart, "low kill participation"},
		{BlunderLowVision, "low vision"},
	} {
		if c&l.bit != 0 {
			out = append(out, l.name)
		}
	}
	return out
}

// Labels devuelve los nombres legibles de los criterios activos, en orden fijo.
func (c HighlightCriteria) Labels() []string {
	var out []string
	for _, l := range []struct {
		bit  HighlightCriteria
		name string
	}{
		{HighlightKDA, "monster KDA"},
		{HighlightKills, "kill leader"},
		{HighlightDamageCarry, "damage carry"},
		{HighlightPentakill, "pentakill"},
		{HighlightVision, "vision god"},
		{HighlightKillPart, "omnipresent"},
		{HighlightObjectives, "objective sweep"},
	} {
		if c&l.bit != 0 {
			out = append(out, l.name)
		}
	}
	return out
}

// blunderRule es un criterio negativo: el extremo del lobby en key debe además
// cumplir el umbral absoluto. Las reglas viven como datos para poder testearlas
// una a una.
type blunderRule struct {
	criteria  BlunderCriteria
	key       StatKey
	ascending bool
	meets     func(PlayerStat, AwardConfig) bool
}

func blunderRules() []blunderRule {
	return []blunderRule{
		{BlunderWorstKDA, StatKDA, true, func(p PlayerStat, c AwardConfig) bool {
			return p.KDA() < c.MaxKDA && p.Deaths > c.MinDeaths
		}},
		{BlunderMostDeaths, StatDeaths, false, func(p PlayerStat, c AwardConfig) bool {
			return p.Deaths > c.DeathsOver
		}},
		{BlunderLowKillPart, StatKillPart, true, func(p PlayerStat, c AwardConfig) bool {
			return p.HasKillPart && p.KillPart < c.KillPartUnder
		}},
		{BlunderLowVision, StatVision, true, func(p PlayerStat, c AwardConfig) bool {
			return p.HasVision && p.VisionScore < c.VisionUnder
		}},
	}
}

// tieBreak es un paso de la cascada de desempate del blunder.
type tieBreak struct {
	key       StatKey
	ascending bool
}

// blunderTieBreaks se aplica en orden hasta reducir los candidatos a uno:
// más muertes, luego peor KDA, luego menos oro.
var blunderTieBreaks = []tieBreak{
	{StatDeaths, false},
	{StatKDA, true},
	{StatGold, true},
}

// highlightRule es un criterio positivo evaluado por jugador contra umbrales
// absolutos; no hay comparación entre jugadores ni desempates.
type highlightRule struct {
	criteria HighlightCriteria
	meets    func(PlayerStat, TeamAggregate, AwardConfig) bool
}

func highlightRules() []highlightRule {
	return []highlightRule{
		{HighlightKDA, func(p PlayerStat, _ TeamAggregate, c AwardConfig) bool {
			return p.KDA() >= c.HighKDA && p.Kills+p.Assists > 0
		}},
		{HighlightKills, func(p PlayerStat, _ TeamAggregate, c AwardConfig) bool {
			return p.Kills > c.HighKills
		}},
		{HighlightDamageCarry, func(p PlayerStat, team TeamAggregate, _ AwardConfig) bool {
			// Daño mayor al del resto del equipo combinado.
			return p.Damage > team.TotalDamage-p.Damage && team.TotalDamage > 0
		}},
		{HighlightPentakill, func(p PlayerStat, _ TeamAggregate, _ AwardConfig) bool {
			return p.Pentakills > 0
		}},
		{HighlightVision, func(p PlayerStat, _ TeamAggregate, c AwardConfig) bool {
			return p.HasVision && p.VisionScore >= c.HighVision
		}},
		{HighlightKillPart, func(p PlayerStat, _ TeamAggregate, c AwardConfig) bool {
			return p.HasKillPart && p.KillPart >= c.HighKillPart
		}},
		{HighlightObjectives, func(p PlayerStat, team TeamAggregate, c AwardConfig) bool {
			// Sweep: el jugador aseguró todos los objetivos épicos de su equipo.
			return team.Objectives >= c.MinSweepObjs && p.Objectives >= team.Objectives
		}},
	}
}

// Qualify evalúa todos los criterios sobre el registro final y devuelve el
// veredicto. Es una función pura: mismo record y config, mismo resultado.
func Qualify(rec *MatchRecord, cfg AwardConfig) AwardResult {
	res := AwardResult{
		MatchID:    rec.MatchID,
		Tally:      make(map[string]BlunderCriteria),
		Highlights: make(map[string]HighlightCriteria),
	}

	// Blunder: cada criterio marca a todo el conjunto extremo empatado que
	// además cruce el umbral absoluto.
	for _, rule := range blunderRules() {
		for _, p := range Outlier(rec.Players, rule.key, rule.ascending, true) {
			if rule.meets(p, cfg) {
				res.Tally[p.PlayerID] |= rule.criteria
			}
		}
	}

	if assignee, ok := pickBlunder(rec, res.Tally); ok {
		res.BlunderPlayer = assignee
		res.BlunderReasons = res.Tally[assignee]
	}

	// Highlights: umbrales absolutos por jugador, acumulables.
	for _, p := range rec.Players {
		team := rec.Team(p.TeamID)
		for _, rule := range highlightRules() {
			if rule.meets(p, team, cfg) {
				res.Highlights[p.PlayerID] |= rule.criteria
			}
		}
	}

	return res
}

// pickBlunder elige al jugador con más criterios disparados, aplicando la
// cascada de desempate hasta quedar uno. Un empate perfecto que sobrevive a
// toda la cascada no asigna blunder: mejor ningún premio que uno arbitrario.
func pickBlunder(rec *MatchRecord, tally map[string]BlunderCriteria) (string, bool) {
	maxCount := 0
	for _, crit := range tally {
		if n := countBits(crit); n > maxCount {
			maxCount = n
		}
	}
	if maxCount == 0 {
		return "", false
	}

	var candidates []PlayerStat
	for _, p := range rec.Players {
		if countBits(tally[p.PlayerID]) == maxCount {
			candidates = append(candidates, p)
		}
	}

	for _, tb := range blunderTieBreaks {
		if len(candidates) == 1 {
			break
		}
		candidates = Outlier(candidates, tb.key, tb.ascending, true)
	}

	if len(candidates) != 1 {
		return "", false
	}
	return candidates[0].PlayerID, true
}

func countBits(c BlunderCriteria) int {
	n := 0
	for c != 0 {
		c &= c - 1
		n++
	}
	return n
}
