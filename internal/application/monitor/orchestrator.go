package monitor

import (
	"context"
	"sync"

	"github.com/alejandrodnm/gambot/internal/application/betting"
	"github.com/alejandrodnm/gambot/internal/domain"
	"github.com/alejandrodnm/gambot/internal/ports"
)

// Orchestrator es la tabla explícita de monitores, una entrada por guild.
// Cada entrada es una máquina de estados independiente con su propia
// goroutine; el orquestador solo las arranca y las consulta.
type Orchestrator struct {
	guilds map[string]*Monitor
}

// NewOrchestrator construye un monitor por guild con dependencias compartidas.
// Los monitores no comparten estado mutable entre sí: el único punto de
// contacto es el ledger, que serializa sus escrituras.
func NewOrchestrator(
	guildIDs []string,
	cfg Config,
	game ports.GameData,
	presence ports.Presence,
	ledger ports.Ledger,
	engine *betting.Engine,
	notifier ports.Notifier,
	awardCfg domain.AwardConfig,
) *Orchestrator {
	guilds := make(map[string]*Monitor, len(guildIDs))
	for _, id := range guildIDs {
		guilds[id] = NewMonitor(id, cfg, game, presence, ledger, engine, notifier, awardCfg)
	}
	return &Orchestrator{guilds: guilds}
}

// Run arranca todos los monitores y bloquea hasta que el contexto se cancele
// y todos terminen. El trabajo entre guilds es totalmente paralelo.
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, m := range o.guilds {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
	}
	wg.Wait()
	return nil
}

// Guild devuelve el monitor del guild, o nil si no está configurado.
func (o *Orchestrator) Guild(guildID string) *Monitor {
	return o.guilds[guildID]
}

// MatchInProgress indica si el guild tiene una partida en curso o en
// procesamiento; la capa de bot lo usa para bloquear cancelaciones tardías.
func (o *Orchestrator) MatchInProgress(guildID string) bool {
	m := o.guilds[guildID]
	return m != nil && m.MatchInProgress()
}
