package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/alejandrodnm/gambot/config"
	"github.com/alejandrodnm/gambot/internal/adapters/discord"
	"github.com/alejandrodnm/gambot/internal/adapters/notify"
	"github.com/alejandrodnm/gambot/internal/adapters/riotapi"
	"github.com/alejandrodnm/gambot/internal/adapters/storage"
	"github.com/alejandrodnm/gambot/internal/application/betting"
	"github.com/alejandrodnm/gambot/internal/application/monitor"
	"github.com/alejandrodnm/gambot/internal/domain"
	"github.com/alejandrodnm/gambot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	console := flag.Bool("console", false, "announce to stdout instead of Discord")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	guildIDs := cfg.GuildIDs()
	if len(guildIDs) == 0 {
		slog.Error("no guilds configured")
		os.Exit(1)
	}

	slog.Info("gambot starting",
		"config", *configPath,
		"guilds", len(guildIDs),
		"storage", cfg.Storage.Driver,
		"console", *console,
	)

	ledger, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open ledger", "err", err, "driver", cfg.Storage.Driver)
		os.Exit(1)
	}
	defer ledger.Close()

	game := riotapi.NewClient(cfg.Riot.Platform, cfg.Riot.Region, cfg.Riot.APIKey)

	var (
		presence ports.Presence
		notifier ports.Notifier
	)
	if *console || cfg.Discord.Token == "" {
		slog.Warn("discord token missing or console mode: announcing to stdout")
		notifier = notify.NewConsole()
		presence = staticPresence(cfg.Discord.Guilds)
	} else {
		session, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			slog.Error("failed to create discord session", "err", err)
			os.Exit(1)
		}
		session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
		if err := session.Open(); err != nil {
			slog.Error("failed to open discord session", "err", err)
			os.Exit(1)
		}
		defer session.Close()

		guilds := guildWiring(cfg.Discord.Guilds)
		presence = discord.NewPresence(session, guilds)
		notifier = discord.NewAnnouncer(session, guilds)
	}

	engine := betting.New(bettingConfig(cfg.Betting), ledger)

	orch := monitor.NewOrchestrator(
		guildIDs,
		monitorConfig(cfg.Monitor),
		game,
		presence,
		ledger,
		engine,
		notifier,
		awardConfig(cfg.Awards),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := orch.Run(ctx); err != nil {
		slog.Error("monitor exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("gambot stopped cleanly")
}

func monitorConfig(cfg config.MonitorConfig) monitor.Config {
	return monitor.Config{
		PresenceInterval: cfg.PresenceInterval(),
		StartInterval:    cfg.StartInterval(),
		ActiveInterval:   cfg.ActiveInterval(),
		FetchRetries:     cfg.FetchRetries,
		FetchBackoff:     cfg.FetchBackoff(),
		MinPresent:       cfg.MinPresent,
		MinDuration:      cfg.MinDuration(),
		EligibleQueues:   cfg.EligibleQueues,
	}
}

func bettingConfig(cfg config.BettingConfig) betting.Config {
	out := betting.Config{
		MinBet:    cfg.MinBet,
		MaxWindow: cfg.MaxWindow(),
	}
	if len(cfg.BaseOdds) > 0 {
		out.BaseOdds = make(map[domain.EventKind]float64, len(cfg.BaseOdds))
		for name, odds := range cfg.BaseOdds {
			kind, err := domain.ParseEventKind(name)
			if err != nil {
				slog.Warn("ignoring base odds for unknown event", "event", name)
				continue
			}
			out.BaseOdds[kind] = odds
		}
	}
	return out
}

func awardConfig(cfg config.AwardsConfig) domain.AwardConfig {
	out := domain.DefaultAwardConfig()
	if cfg.MaxKDA > 0 {
		out.MaxKDA = cfg.MaxKDA
	}
	if cfg.DeathsOver > 0 {
		out.DeathsOver = cfg.DeathsOver
	}
	if cfg.KillPartUnder > 0 {
		out.KillPartUnder = cfg.KillPartUnder
	}
	if cfg.VisionUnder > 0 {
		out.VisionUnder = cfg.VisionUnder
	}
	return out
}

// staticPresence trata a todos los jugadores configurados como siempre
// presentes: útil en consola, donde no hay voice states que consultar.
type staticPresence map[string]config.GuildConfig

func (p staticPresence) TrackedUsers(_ context.Context, guildID string) ([]domain.PlayerRef, error) {
	guild, ok := p[guildID]
	if !ok {
		return nil, nil
	}
	refs := make([]domain.PlayerRef, 0, len(guild.Players))
	for userID, puuid := range guild.Players {
		refs = append(refs, domain.PlayerRef{UserID: userID, GameID: puuid})
	}
	return refs, nil
}

func guildWiring(guilds map[string]config.GuildConfig) map[string]discord.GuildConfig {
	out := make(map[string]discord.GuildConfig, len(guilds))
	for id, g := range guilds {
		out[id] = discord.GuildConfig{ChannelID: g.ChannelID, Players: g.Players}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
