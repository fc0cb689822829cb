package domain

import "sort"

// StatKey extrae el valor de una estadística de un PlayerStat. El segundo
// retorno indica si el jugador tiene la estadística; los que no la tienen
// quedan excluidos del ranking en vez de contar como 0.
type StatKey struct {
	Name  string
	Value func(PlayerStat) (float64, bool)
}

var (
	StatKills = StatKey{"kills", func(p PlayerStat) (float64, bool) {
		return float64(p.Kills), true
	}}
	StatDeaths = StatKey{"deaths", func(p PlayerStat) (float64, bool) {
		return float64(p.Deaths), true
	}}
	StatKDA = StatKey{"kda", func(p PlayerStat) (float64, bool) {
		return p.KDA(), true
	}}
	StatGold = StatKey{"gold", func(p PlayerStat) (float64, bool) {
		return float64(p.GoldEarned), true
	}}
	StatDamage = StatKey{"damage", func(p PlayerStat) (float64, bool) {
		return float64(p.Damage), true
	}}
	StatVision = StatKey{"vision", func(p PlayerStat) (float64, bool) {
		return float64(p.VisionScore), p.HasVision
	}}
	StatKillPart = StatKey{"kill_participation", func(p PlayerStat) (float64, bool) {
		return p.KillPart, p.HasKillPart
	}}
)

// Outlier devuelve el/los jugadores con el valor extremo de la estadística.
// Con ascending=true el extremo es el mínimo; con includeTies se devuelven
// todos los jugadores empatados en el valor extremo, si no, uno solo (el
// primero tras ordenar, con desempate por PlayerID para que el resultado sea
// determinista). Jugadores sin la estadística se excluyen.
//
// Este es el único primitivo de ranking del módulo: premios y apuestas de
// superlativos pasan por aquí, así que la semántica de empates es idéntica
// en todos lados.
func Outlier(players []PlayerStat, key StatKey, ascending, includeTies bool) []PlayerStat {
	ranked := make([]PlayerStat, 0, len(players))
	for _, p := range players {
		if _, ok := key.Value(p); ok {
			ranked = append(ranked, p)
		}
	}
	if len(ranked) == 0 {
		return nil
	}

	sort.Slice(ranked, func(i, j int) bool {
		vi, _ := key.Value(ranked[i])
		vj, _ := key.Value(ranked[j])
		if vi != vj {
			if ascending {
				return vi < vj
			}
			return vi > vj
		}
		return ranked[i].PlayerID < ranked[j].PlayerID
	})

	if !includeTies {
		return ranked[:1]
	}

	extreme, _ := key.Value(ranked[0])
	cut := 1
	for cut < len(ranked) {
		v, _ := key.Value(ranked[cut])
		if v != extreme {
			break
		}
		cut++
	}
	return ranked[:cut]
}

// IsUniqueOutlier indica si playerID es el único extremo de la estadística.
// Lo usan los resolvers de superlativos donde los empates pierden.
func IsUniqueOutlier(players []PlayerStat, key StatKey, ascending bool, playerID string) bool {
	out := Outlier(players, key, ascending, true)
	return len(out) == 1 && out[0].PlayerID == playerID
}

// InOutlierSet indica si playerID está en el conjunto extremo (empates incluidos).
// Para eventos tie-inclusive como "más daño".
func InOutlierSet(players []PlayerStat, key StatKey, ascending bool, playerID string) bool {
	for _, p := range Outlier(players, key, ascending, true) {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}
