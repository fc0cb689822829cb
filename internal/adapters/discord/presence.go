package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// GuildConfig es el cableado de un guild: el canal de anuncios y el mapa de
// usuarios rastreados (id de Discord → puuid de la cuenta de juego).
type GuildConfig struct {
	ChannelID string
	Players   map[string]string
}

// Presence implementa ports.Presence sobre los voice states de Discord: un
// usuario rastreado cuenta como presente si está en un canal de voz del guild.
type Presence struct {
	session *discordgo.Session
	guilds  map[string]GuildConfig
}

// NewPresence crea el adapter de presencia. La sesión debe tener el intent
// GuildVoiceStates activo para que el state cache reciba los voice states.
func NewPresence(session *discordgo.Session, guilds map[string]GuildConfig) *Presence {
	return &Presence{session: session, guilds: guilds}
}

// TrackedUsers devuelve los jugadores rastreados actualmente en voz.
func (p *Presence) TrackedUsers(_ context.Context, guildID string) ([]domain.PlayerRef, error) {
	cfg, ok := p.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("discord.TrackedUsers: guild %s not configured", guildID)
	}

	guild, err := p.session.State.Guild(guildID)
	if err != nil {
		guild, err = p.session.Guild(guildID)
		if err != nil {
			return nil, fmt.Errorf("discord.TrackedUsers: fetch guild: %w", err)
		}
	}
	return trackedInVoice(guild.VoiceStates, cfg.Players), nil
}

// trackedInVoice filtra los voice states al subconjunto rastreado. Mute no
// descalifica: alguien muteado sigue jugando; solo cuenta estar conectado.
func trackedInVoice(states []*discordgo.VoiceState, players map[string]string) []domain.PlayerRef {
	var refs []domain.PlayerRef
	for _, vs := range states {
		if vs.ChannelID == "" {
			continue
		}
		puuid, ok := players[vs.UserID]
		if !ok {
			continue
		}
		refs = append(refs, domain.PlayerRef{UserID: vs.UserID, GameID: puuid})
	}
	return refs
}
