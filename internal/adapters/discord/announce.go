package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/alejandrodnm/gambot/internal/domain"
)

const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorYellow = 0xf1c40f
	colorBlue   = 0x3498db
)

// Announcer implementa ports.Notifier publicando embeds en el canal de
// anuncios de cada guild.
type Announcer struct {
	session *discordgo.Session
	guilds  map[string]GuildConfig
}

// NewAnnouncer crea el notificador de Discord.
func NewAnnouncer(session *discordgo.Session, guilds map[string]GuildConfig) *Announcer {
	return &Announcer{session: session, guilds: guilds}
}

func (a *Announcer) send(guildID string, embed *discordgo.MessageEmbed) error {
	cfg, ok := a.guilds[guildID]
	if !ok || cfg.ChannelID == "" {
		return fmt.Errorf("discord.Announcer: guild %s has no announce channel", guildID)
	}
	if _, err := a.session.ChannelMessageSendEmbed(cfg.ChannelID, embed); err != nil {
		return fmt.Errorf("discord.Announcer: send embed: %w", err)
	}
	return nil
}

// MatchActive anuncia la partida detectada y abre la ventana de apuestas.
func (a *Announcer) MatchActive(_ context.Context, guildID string, match domain.ActiveMatch) error {
	return a.send(guildID, matchActiveEmbed(match))
}

// MatchEnded anuncia el desenlace del procesamiento.
func (a *Announcer) MatchEnded(_ context.Context, guildID string, status domain.MatchStatus, rec *domain.MatchRecord) error {
	return a.send(guildID, matchEndedEmbed(status, rec))
}

// AwardDecided anuncia el veredicto de premios.
func (a *Announcer) AwardDecided(_ context.Context, guildID string, award domain.AwardResult) error {
	return a.send(guildID, awardEmbed(award))
}

// WagersSettled anuncia la liquidación, un field por ticket.
func (a *Announcer) WagersSettled(_ context.Context, guildID string, tickets []domain.SettledTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	return a.send(guildID, settlementEmbed(tickets))
}

// Los constructores de embeds son puros para poder testearlos sin sesión.

func matchActiveEmbed(match domain.ActiveMatch) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎮 Match detected",
		Description: fmt.Sprintf("Match `%s` is live. Place your bets!", match.ID),
		Color:       colorBlue,
	}
}

func matchEndedEmbed(status domain.MatchStatus, rec *domain.MatchRecord) *discordgo.MessageEmbed {
	switch status {
	case domain.StatusProcessed:
		return &discordgo.MessageEmbed{
			Title:       "🏁 Match over",
			Description: fmt.Sprintf("Match `%s` processed (%s).", rec.MatchID, rec.Duration.Truncate(time.Second)),
			Color:       colorGreen,
		}
	case domain.StatusSkipped:
		return &discordgo.MessageEmbed{
			Title:       "⏭️ Match skipped",
			Description: fmt.Sprintf("Match `%s` doesn't count (queue %d, %s). Pending bets carry over.", rec.MatchID, rec.QueueID, rec.Duration.Truncate(time.Second)),
			Color:       colorYellow,
		}
	case domain.StatusMissing:
		return &discordgo.MessageEmbed{
			Title:       "⚠️ Match record missing",
			Description: "The match ended but the record never arrived. An operator will sort it out.",
			Color:       colorRed,
		}
	}
	return &discordgo.MessageEmbed{
		Title: "Match ended",
		Color: colorYellow,
	}
}

func awardEmbed(award domain.AwardResult) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🏆 Match awards",
		Color: colorYellow,
	}

	blunder := "Nobody earned it this time."
	if award.HasBlunder() {
		blunder = fmt.Sprintf("<@%s> — %s", award.BlunderPlayer,
			strings.Join(award.BlunderReasons.Labels(), ", "))
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "💀 Blunder of the game",
		Value: blunder,
	})

	for player, crit := range award.Highlights {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "⭐ Highlight",
			Value: fmt.Sprintf("<@%s> — %s", player, strings.Join(crit.Labels(), ", ")),
		})
	}
	return embed
}

func settlementEmbed(tickets []domain.SettledTicket) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "💰 Bets settled",
		Color: colorGreen,
	}

	for _, t := range tickets {
		var sb strings.Builder
		for _, leg := range t.Legs {
			target := ""
			if leg.Target != "" {
				target = fmt.Sprintf(" on <@%s>", leg.Target)
			}
			fmt.Fprintf(&sb, "%s%s — %d @ %.2f → **%d**\n",
				leg.Kind, target, leg.Amount, leg.Odds, leg.Payout)
		}

		name := fmt.Sprintf("❌ <@%s> lost", t.BettorID)
		if t.Won {
			name = fmt.Sprintf("✅ <@%s> won %d", t.BettorID, t.Payout)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  name,
			Value: sb.String(),
		})
	}
	return embed
}
