package commands

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/jwebster45206/villager-trader/internal/storage"
	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/state"
)

const (
	replyNotWhitelisted = "You are not whitelisted."
	replyNoPosition     = "Cannot detect your position."
)

// Sender identifies who issued a command. Console senders are the local
// operator and skip the whitelist.
type Sender struct {
	Name    string
	Console bool
}

// Runner is the run controller.
type Runner interface {
	Start(by string) bool
	Stop(by string) bool
	Running() bool
}

// Dispatcher authorizes and executes commands against RunState.
type Dispatcher struct {
	state  *state.RunState
	runner Runner
	world  world.World
	ledger storage.Ledger
	quit   func()
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. quit is invoked for the console-only
// quit command and may be nil.
func NewDispatcher(st *state.RunState, runner Runner, w world.World, ledger storage.Ledger, quit func(), logger *slog.Logger) *Dispatcher {
	if ledger == nil {
		ledger = storage.NewMemoryLedger()
	}
	return &Dispatcher{
		state:  st,
		runner: runner,
		world:  w,
		ledger: ledger,
		quit:   quit,
		logger: logger,
	}
}

// Handle executes one command line and returns the reply text.
func (d *Dispatcher) Handle(ctx context.Context, from Sender, input string) string {
	if !from.Console && !d.state.IsWhitelisted(from.Name) {
		d.logger.Info("Rejected command from non-whitelisted player", "player", from.Name)
		return replyNotWhitelisted
	}

	cmd := Parse(input)
	d.logger.Info("Command received", "from", from.Name, "console", from.Console, "command", cmd.Name)

	var pos geom.Position
	if cmd.Kind.NeedsPosition() {
		p, err := d.issuerPosition(ctx, from)
		if err != nil {
			d.logger.Debug("Issuer position unavailable", "from", from.Name, "error", err)
			return replyNoPosition
		}
		pos = p
	}

	switch cmd.Kind {
	case CmdStart:
		d.runner.Start(from.Name)
		return "Trading bot started."

	case CmdStop:
		d.runner.Stop(from.Name)
		return "Trading bot stopped."

	case CmdSetDeposit:
		d.state.SetDeposit(pos)
		return fmt.Sprintf("Deposit chest set to %s", pos)

	case CmdSetRefill:
		d.state.SetRefill(pos)
		return fmt.Sprintf("Refill chest set to %s", pos)

	case CmdSetBound1:
		d.state.SetCorner(1, pos)
		return fmt.Sprintf("Bound 1 set to %s", pos)

	case CmdSetBound2:
		d.state.SetCorner(2, pos)
		return fmt.Sprintf("Bound 2 set to %s", pos)

	case CmdAddWhitelist:
		name := cmd.Arg()
		if name == "" {
			return "Usage: addWhitelist <name>"
		}
		if !d.state.AddWhitelist(name) {
			return fmt.Sprintf("%s is already whitelisted.", name)
		}
		return fmt.Sprintf("%s added to whitelist.", name)

	case CmdRemoveWhitelist:
		name := cmd.Arg()
		if name == "" {
			return "Usage: removeWhitelist <name>"
		}
		d.state.RemoveWhitelist(name)
		return fmt.Sprintf("%s removed from whitelist.", name)

	case CmdWhitelist:
		names := d.state.Whitelist()
		if len(names) == 0 {
			return "Whitelist: None"
		}
		return "Whitelist: " + strings.Join(names, ", ")

	case CmdStatus:
		return d.status()

	case CmdStats:
		if strings.EqualFold(cmd.Arg(), "reset") {
			return d.resetStats(ctx, from.Name)
		}
		return d.stats(ctx)

	case CmdHelp:
		return help(from.Console)

	case CmdQuit:
		if !from.Console || d.quit == nil {
			return "quit is only available from the console."
		}
		d.runner.Stop(from.Name)
		d.quit()
		return "Shutting down."

	default:
		return fmt.Sprintf("Unknown command. Use /msg %s help", d.world.Username())
	}
}

// Serve answers whispers until ctx ends or the channel closes. Whispers from
// the bot itself are ignored.
func (d *Dispatcher) Serve(ctx context.Context, whispers <-chan world.Whisper) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case wh, ok := <-whispers:
			if !ok {
				return nil
			}
			if wh.From == d.world.Username() {
				continue
			}
			reply := d.Handle(ctx, Sender{Name: wh.From}, wh.Message)
			if err := d.world.Whisper(ctx, wh.From, reply); err != nil {
				d.logger.Warn("Failed to send reply", "player", wh.From, "error", err)
			}
		}
	}
}

// issuerPosition uses the player's entity, or the bot's own position for the
// console.
func (d *Dispatcher) issuerPosition(ctx context.Context, from Sender) (geom.Position, error) {
	var (
		e   world.Entity
		err error
	)
	if from.Console {
		e, err = d.world.Self(ctx)
	} else {
		e, err = d.world.PlayerEntity(ctx, from.Name)
	}
	if err != nil {
		return geom.Position{}, err
	}
	return e.Position, nil
}

func (d *Dispatcher) status() string {
	snap := d.state.Snapshot()
	var b strings.Builder
	if snap.Running {
		b.WriteString("Bot is trading.")
	} else {
		b.WriteString("Bot is idle.")
	}
	fmt.Fprintf(&b, " Deposit: %s, Refill: %s, Bounds: %s", posOrUnset(snap.Deposit), posOrUnset(snap.Refill), snap.Bounds)
	return b.String()
}

func (d *Dispatcher) stats(ctx context.Context) string {
	totals, err := d.ledger.Totals(ctx)
	if err != nil {
		d.logger.Warn("Failed to load trade totals", "error", err)
		return "Trade stats unavailable."
	}
	if len(totals) == 0 {
		return "No trades yet."
	}
	parts := make([]string, 0, len(totals))
	for _, item := range slices.Sorted(maps.Keys(totals)) {
		parts = append(parts, fmt.Sprintf("%s x%d", item, totals[item]))
	}
	return "Traded: " + strings.Join(parts, ", ")
}

func (d *Dispatcher) resetStats(ctx context.Context, by string) string {
	if err := d.ledger.Reset(ctx); err != nil {
		d.logger.Warn("Failed to reset trade totals", "error", err)
		return "Trade stats unavailable."
	}
	d.logger.Info("Trade stats reset", "by", by)
	return "Trade stats reset."
}

func posOrUnset(p *geom.Position) string {
	if p == nil {
		return "unset"
	}
	return p.String()
}

func help(console bool) string {
	msg := "Commands: start, stop, setDeposit, setRefill, setBound1, setBound2, addWhitelist <name>, removeWhitelist <name>, whitelist, status, stats [reset]"
	if console {
		msg += ", quit"
	}
	return msg
}
