package domain

import (
	"math"
	"time"
)

// odds.go — matemática pura de cuotas, decaimiento temporal y pagos.
// Todo es determinista y sin estado: el engine alimenta los contadores
// históricos desde el ledger y estas funciones solo calculan.

// gracePeriod: apuestas dentro de los primeros segundos de partida se
// consideran "antes del inicio" y no sufren decaimiento.
const gracePeriod = 2 * time.Second

// minPayout es el piso de pago de una pata ganada, por mucho que decaiga.
const minPayout int64 = 1

// Odds calcula la cuota dinámica de un evento a partir del historial:
// partidas jugadas con el target / ocurrencias históricas del evento.
//
//   - Sin historial (0 partidas) → baseOdds configurada para el tipo de evento.
//   - El evento nunca ocurrió → la cuota es el número de partidas jugadas,
//     reflejando su rareza observada.
//
// La cuota se autocalibra por jugador y por guild a medida que crece el historial.
func Odds(gamesWithTarget, occurrences int64, baseOdds float64) float64 {
	if gamesWithTarget <= 0 {
		return baseOdds
	}
	if occurrences <= 0 {
		return float64(gamesWithTarget)
	}
	return float64(gamesWithTarget) / float64(occurrences)
}

// DecayRatio devuelve el factor de decaimiento temporal de una apuesta según
// cuánto tardó en colocarse tras el inicio de la partida. Colocada en el
// período de gracia → 1.0; después decae linealmente hasta 0 en maxWindow.
func DecayRatio(elapsed, maxWindow time.Duration) float64 {
	if elapsed <= gracePeriod {
		return 1.0
	}
	if maxWindow <= 0 {
		return 1.0
	}
	ratio := 1.0 - (elapsed-gracePeriod).Seconds()/maxWindow.Seconds()
	if ratio < 0 {
		return 0
	}
	return ratio
}

// LegPayout calcula el pago bruto de una pata ganada:
// monto × cuota × decaimiento × multiplicador de target.
//
// participants multiplica las apuestas dirigidas a un jugador concreto
// (predecir a un individuo es más difícil que predecir "alguien"); para
// apuestas sin target debe ser 1. El resultado nunca baja del piso de 1 token.
func LegPayout(amount int64, odds, decay float64, participants int) int64 {
	if participants < 1 {
		participants = 1
	}
	raw := float64(amount) * odds * decay * float64(participants)
	payout := int64(math.Floor(raw))
	if payout < minPayout {
		return minPayout
	}
	return payout
}

// SettleLegPayouts escala los pagos brutos de un ticket ganado: cada pata se
// multiplica por el número de patas y por el multiplicador especial, y el
// total del ticket es exactamente la suma de las patas escaladas. Así la suma
// de pagos por pata persistidos siempre iguala el total pagado — nunca hay
// pago parcial.
func SettleLegPayouts(raw []int64, specialMultiplier float64) (legs []int64, total int64) {
	if len(raw) == 0 {
		return nil, 0
	}
	if specialMultiplier <= 0 {
		specialMultiplier = 1.0
	}
	legs = make([]int64, len(raw))
	for i, p := range raw {
		scaled := int64(math.Floor(float64(p) * float64(len(raw)) * specialMultiplier))
		if scaled < minPayout {
			scaled = minPayout
		}
		legs[i] = scaled
		total += scaled
	}
	return legs, total
}

// TicketPayout devuelve el total de un ticket ganado:
// (Σ pagos por pata) × número de patas × multiplicador especial.
//
// La condición todo-o-nada no vive aquí: el caller solo llama con un ticket
// cuyas patas ganaron todas; un ticket con alguna pata perdida paga exactamente 0.
func TicketPayout(legPayouts []int64, specialMultiplier float64) int64 {
	_, total := SettleLegPayouts(legPayouts, specialMultiplier)
	return total
}
