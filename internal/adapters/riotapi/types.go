package riotapi

import (
	"encoding/json"
	"io"
)

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

// activeGameDTO es la respuesta de spectator-v5. gameStartTime viene en epoch
// ms y puede ser 0 en los primeros segundos de la partida.
type activeGameDTO struct {
	GameID            int64  `json:"gameId"`
	GameStartTime     int64  `json:"gameStartTime"`
	GameQueueConfigID int    `json:"gameQueueConfigId"`
	PlatformID        string `json:"platformId"`
}

// matchDTO es la respuesta de match-v5, recortada a los campos que usamos.
type matchDTO struct {
	Metadata struct {
		MatchID string `json:"matchId"`
	} `json:"metadata"`
	Info matchInfoDTO `json:"info"`
}

type matchInfoDTO struct {
	// gameDuration está en segundos cuando gameEndTimestamp está presente;
	// en partidas anteriores a ese campo venía en milisegundos.
	GameDuration     int64            `json:"gameDuration"`
	GameEndTimestamp int64            `json:"gameEndTimestamp"`
	GameCreation     int64            `json:"gameCreation"`
	QueueID          int              `json:"queueId"`
	Participants     []participantDTO `json:"participants"`
	Teams            []teamDTO        `json:"teams"`
}

// participantDTO usa punteros para los campos que faltan en colas antiguas:
// un null no es un cero y los criterios de premio los excluyen del ranking.
type participantDTO struct {
	PUUID       string `json:"puuid"`
	TeamID      int    `json:"teamId"`
	Win         bool   `json:"win"`
	Kills       int    `json:"kills"`
	Deaths      int    `json:"deaths"`
	Assists     int    `json:"assists"`
	GoldEarned  int64  `json:"goldEarned"`
	TotalDamage int64  `json:"totalDamageDealtToChampions"`
	PentaKills  int    `json:"pentaKills"`
	DragonKills int    `json:"dragonKills"`
	BaronKills  int    `json:"baronKills"`

	VisionScore *int           `json:"visionScore"`
	Challenges  *challengesDTO `json:"challenges"`
}

type challengesDTO struct {
	KillParticipation *float64 `json:"killParticipation"`
}

type teamDTO struct {
	TeamID     int           `json:"teamId"`
	Win        bool          `json:"win"`
	Objectives objectivesDTO `json:"objectives"`
}

type objectivesDTO struct {
	Baron      objectiveDTO `json:"baron"`
	Champion   objectiveDTO `json:"champion"`
	Dragon     objectiveDTO `json:"dragon"`
	RiftHerald objectiveDTO `json:"riftHerald"`
}

type objectiveDTO struct {
	Kills int `json:"kills"`
}
