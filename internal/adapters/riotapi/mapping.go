package riotapi

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// toActiveMatch traduce la respuesta del spectator al dominio. El id se arma
// con el formato de match-v5 (PLATFORM_gameId) para que el mismo id sirva
// luego para pedir el registro final.
func toActiveMatch(dto activeGameDTO) domain.ActiveMatch {
	return domain.ActiveMatch{
		ID:         fmt.Sprintf("%s_%d", dto.PlatformID, dto.GameID),
		StartEpoch: dto.GameStartTime / 1000,
		QueueID:    dto.GameQueueConfigID,
	}
}

// toMatchRecord traduce un match-v5 al registro inmutable del dominio.
func toMatchRecord(dto matchDTO) *domain.MatchRecord {
	info := dto.Info

	rec := &domain.MatchRecord{
		MatchID:  dto.Metadata.MatchID,
		QueueID:  info.QueueID,
		Duration: gameDuration(info),
		PlayedAt: time.UnixMilli(info.GameCreation),
		Players:  make([]domain.PlayerStat, 0, len(info.Participants)),
		Teams:    make([]domain.TeamAggregate, 0, len(info.Teams)),
	}

	damageByTeam := make(map[int]int64)
	for _, p := range info.Participants {
		stat := domain.PlayerStat{
			PlayerID:   p.PUUID,
			TeamID:     p.TeamID,
			Win:        p.Win,
			Kills:      p.Kills,
			Deaths:     p.Deaths,
			Assists:    p.Assists,
			GoldEarned: p.GoldEarned,
			Damage:     p.TotalDamage,
			Pentakills: p.PentaKills,
			Objectives: p.DragonKills + p.BaronKills,
		}
		if p.VisionScore != nil {
			stat.VisionScore = *p.VisionScore
			stat.HasVision = true
		}
		if p.Challenges != nil && p.Challenges.KillParticipation != nil {
			stat.KillPart = *p.Challenges.KillParticipation
			stat.HasKillPart = true
		}
		rec.Players = append(rec.Players, stat)
		damageByTeam[p.TeamID] += p.TotalDamage
	}

	for _, t := range info.Teams {
		obj := t.Objectives
		rec.Teams = append(rec.Teams, domain.TeamAggregate{
			TeamID:      t.TeamID,
			Win:         t.Win,
			TotalKills:  obj.Champion.Kills,
			TotalDamage: damageByTeam[t.TeamID],
			Objectives:  obj.Baron.Kills + obj.Dragon.Kills + obj.RiftHerald.Kills,
		})
	}
	return rec
}

// gameDuration normaliza el cambio de unidades de Riot: con gameEndTimestamp
// presente la duración viene en segundos, sin él venía en milisegundos.
func gameDuration(info matchInfoDTO) time.Duration {
	if info.GameEndTimestamp > 0 {
		return time.Duration(info.GameDuration) * time.Second
	}
	return time.Duration(info.GameDuration) * time.Millisecond
}
