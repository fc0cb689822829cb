package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/gambot/internal/domain"
)

// Console implementa ports.Notifier escribiendo a un writer. Es el notificador
// de desarrollo y el fallback cuando el bot de Discord no está configurado.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// MatchActive anuncia la partida compartida recién detectada.
func (c *Console) MatchActive(_ context.Context, guildID string, match domain.ActiveMatch) error {
	fmt.Fprintf(c.out, "[%s] guild %s: match %s in progress (queue %d) — bets open\n",
		time.Now().Format("15:04:05"), guildID, match.ID, match.QueueID)
	return nil
}

// MatchEnded anuncia el desenlace del procesamiento. El record es nil para
// missing/duplicate.
func (c *Console) MatchEnded(_ context.Context, guildID string, status domain.MatchStatus, rec *domain.MatchRecord) error {
	now := time.Now().Format("15:04:05")
	switch status {
	case domain.StatusProcessed:
		fmt.Fprintf(c.out, "[%s] guild %s: match %s processed (%s)\n",
			now, guildID, rec.MatchID, rec.Duration.Truncate(time.Second))
	case domain.StatusSkipped:
		fmt.Fprintf(c.out, "[%s] guild %s: match %s skipped (queue %d, %s)\n",
			now, guildID, rec.MatchID, rec.QueueID, rec.Duration.Truncate(time.Second))
	case domain.StatusMissing:
		fmt.Fprintf(c.out, "[%s] guild %s: match record never arrived, needs manual review\n",
			now, guildID)
	default:
		fmt.Fprintf(c.out, "[%s] guild %s: match ended (%s)\n", now, guildID, status)
	}
	return nil
}

// AwardDecided imprime el veredicto: blunder con sus razones y los highlights.
func (c *Console) AwardDecided(_ context.Context, guildID string, award domain.AwardResult) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] guild %s: awards for %s",
		time.Now().Format("15:04:05"), guildID, award.MatchID)

	if award.BlunderPlayer != "" {
		fmt.Fprintf(&sb, " | blunder: %s (%s)",
			award.BlunderPlayer, strings.Join(award.BlunderReasons.Labels(), ", "))
	} else {
		sb.WriteString(" | blunder: none")
	}

	if len(award.Highlights) > 0 {
		players := make([]string, 0, len(award.Highlights))
		for id := range award.Highlights {
			players = append(players, id)
		}
		sort.Strings(players)
		fmt.Fprintf(&sb, " | highlights: %s", strings.Join(players, ", "))
	}

	fmt.Fprintln(c.out, sb.String())
	return nil
}

// WagersSettled imprime la tabla de liquidación, una fila por pata.
func (c *Console) WagersSettled(_ context.Context, guildID string, tickets []domain.SettledTicket) error {
	if len(tickets) == 0 {
		return nil
	}

	won := 0
	var paid int64
	for _, t := range tickets {
		if t.Won {
			won++
			paid += t.Payout
		}
	}
	fmt.Fprintf(c.out, "\n[%s] guild %s: %d tickets settled — %d won, %d tokens paid\n",
		time.Now().Format("15:04:05"), guildID, len(tickets), won, paid)

	table := tablewriter.NewWriter(c.out)
	table.Header("Ticket", "Bettor", "Event", "Target", "Stake", "Odds", "Result", "Payout")

	for _, t := range tickets {
		for _, leg := range t.Legs {
			target := leg.Target
			if target == "" {
				target = "-"
			}
			table.Append(
				shortID(t.TicketID),
				t.BettorID,
				string(leg.Kind),
				target,
				fmt.Sprintf("%d", leg.Amount),
				fmt.Sprintf("%.2f", leg.Odds),
				string(leg.Status),
				fmt.Sprintf("%d", leg.Payout),
			)
		}
	}
	table.Render()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
