// Package shell is an interactive console for a running runtime. It
// installs, inspects and removes modules through the dispatcher, resolves
// coordinates and shows the service boot sequence.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"minho/internal/coordinate"
	"minho/internal/dispatcher"
	"minho/internal/formatting"
	"minho/internal/loader"
	"minho/internal/services"
)

// commandTimeout bounds a single install, remove or resolve.
const commandTimeout = 5 * time.Minute

const prompt = "minho» "

// errExit is returned by the exit command.
var errExit = errors.New("exit")

type command struct {
	usage       string
	description string
	aliases     []string
	run         func(ctx context.Context, args []string) error
}

// Shell executes console commands against one registry.
type Shell struct {
	dispatcher *dispatcher.Dispatcher
	resolver   *coordinate.Service
	sequence   func() []loader.Entry
	out        io.Writer
	printer    *formatting.Printer

	commands map[string]*command
	names    []string
}

// New creates a shell over r. The dispatcher is required; the resolver is
// optional. sequence supplies the boot sequence for the services command.
func New(r *services.Registry, sequence func() []loader.Entry, out io.Writer) (*Shell, error) {
	d, err := services.Require[*dispatcher.Dispatcher](r)
	if err != nil {
		return nil, err
	}
	res, _, err := services.Get[*coordinate.Service](r)
	if err != nil {
		return nil, err
	}

	s := &Shell{
		dispatcher: d,
		resolver:   res,
		sequence:   sequence,
		out:        out,
		printer:    formatting.NewPrinter(out, formatting.FormatTable),
		commands:   make(map[string]*command),
	}
	s.registerCommands()
	return s, nil
}

func (s *Shell) register(name string, cmd *command) {
	s.commands[name] = cmd
	for _, alias := range cmd.aliases {
		s.commands[alias] = cmd
	}
	s.names = append(s.names, name)
}

func (s *Shell) registerCommands() {
	s.register("help", &command{
		usage:       "help",
		description: "Show available commands",
		aliases:     []string{"?"},
		run:         s.help,
	})
	s.register("list", &command{
		usage:       "list",
		description: "List installed modules",
		aliases:     []string{"ls"},
		run:         s.list,
	})
	s.register("info", &command{
		usage:       "info <id>",
		description: "Show a module and its metadata",
		run:         s.info,
	})
	s.register("install", &command{
		usage:       "install <location> [handler=<name>] [key=value...]",
		description: "Install a path, URL or mvn: coordinate",
		run:         s.install,
	})
	s.register("remove", &command{
		usage:       "remove <id>",
		description: "Uninstall a module",
		aliases:     []string{"rm", "uninstall"},
		run:         s.remove,
	})
	s.register("status", &command{
		usage:       "status <id>",
		description: "Report whether a module is alive",
		run:         s.status,
	})
	s.register("resolve", &command{
		usage:       "resolve <coordinate>...",
		description: "Resolve coordinates to local paths",
		run:         s.resolve,
	})
	s.register("handlers", &command{
		usage:       "handlers",
		description: "List handlers in selection order",
		run:         s.handlers,
	})
	s.register("services", &command{
		usage:       "services",
		description: "Show the service boot sequence",
		run:         s.services,
	})
	s.register("exit", &command{
		usage:       "exit",
		description: "Leave the shell",
		aliases:     []string{"quit"},
		run:         func(context.Context, []string) error { return errExit },
	})
}

// Execute runs one input line. It returns errExit for the exit command.
func (s *Shell) Execute(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd, ok := s.commands[strings.ToLower(parts[0])]
	if !ok {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", parts[0])
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return cmd.run(ctx, parts[1:])
}

// Run reads commands until exit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:              prompt,
		HistoryFile:         filepath.Join(os.TempDir(), ".minho_shell_history"),
		AutoComplete:        s.completer(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(s.out, "Type 'help' for available commands. Use TAB for completion.")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func (s *Shell) completer() *readline.PrefixCompleter {
	ids := readline.PcItemDynamic(func(string) []string { return s.dispatcher.IDs() })

	items := make([]readline.PrefixCompleterInterface, 0, len(s.names))
	for _, name := range s.names {
		switch name {
		case "info", "remove", "status":
			items = append(items, readline.PcItem(name, ids))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

// filterInput blocks Ctrl+Z.
func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}

func (s *Shell) help(ctx context.Context, args []string) error {
	names := append([]string(nil), s.names...)
	sort.Strings(names)
	for _, name := range names {
		cmd := s.commands[name]
		fmt.Fprintf(s.out, "  %-50s %s\n", cmd.usage, cmd.description)
	}
	return nil
}

func (s *Shell) list(ctx context.Context, args []string) error {
	records := s.dispatcher.List()
	modules := make([]formatting.Module, len(records))
	for i, rec := range records {
		alive, _ := s.dispatcher.IsAlive(rec.ID)
		modules[i] = formatting.ModuleFromRecord(rec, alive)
	}
	return s.printer.Modules(modules)
}

func (s *Shell) info(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: info <id>")
	}
	rec, ok := s.dispatcher.Get(args[0])
	if !ok {
		return fmt.Errorf("module %s: %w", args[0], dispatcher.ErrNotFound)
	}
	alive, _ := s.dispatcher.IsAlive(rec.ID)
	return s.printer.Module(formatting.ModuleFromRecord(rec, alive))
}

func (s *Shell) install(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: install <location> [handler=<name>] [key=value...]")
	}

	location := args[0]
	var handler string
	props := map[string]string{}
	for _, arg := range args[1:] {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid property %q, expected key=value", arg)
		}
		if k == "handler" {
			handler = v
			continue
		}
		props[k] = v
	}

	rec, err := s.dispatcher.Install(ctx, location, handler, props)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Installed %s as %s (%s)\n", location, rec.ID, rec.Handler)
	return nil
}

func (s *Shell) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: remove <id>")
	}
	if err := s.dispatcher.Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Removed %s\n", args[0])
	return nil
}

func (s *Shell) status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: status <id>")
	}
	alive, err := s.dispatcher.IsAlive(args[0])
	if err != nil {
		return err
	}
	state := "stopped"
	if alive {
		state = "alive"
	}
	fmt.Fprintf(s.out, "%s is %s\n", args[0], state)
	return nil
}

func (s *Shell) resolve(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: resolve <coordinate>...")
	}
	if s.resolver == nil {
		return fmt.Errorf("no resolver registered")
	}

	results := make([]formatting.Resolution, len(args))
	for i, uri := range args {
		results[i] = Resolve(ctx, s.resolver, uri)
	}
	return s.printer.Resolutions(results)
}

func (s *Shell) handlers(ctx context.Context, args []string) error {
	for i, name := range s.dispatcher.Handlers() {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, name)
	}
	return nil
}

func (s *Shell) services(ctx context.Context, args []string) error {
	if s.sequence == nil {
		return fmt.Errorf("boot sequence not available")
	}
	return s.printer.Services(formatting.ServicesFromSequence(s.sequence()))
}

// Resolver is the resolution capability used by Resolve.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (string, bool, error)
}

// Resolve resolves uri into a printable result.
func Resolve(ctx context.Context, r Resolver, uri string) formatting.Resolution {
	res := formatting.Resolution{Coordinate: uri}
	location, found, err := r.Resolve(ctx, uri)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Location = location
	res.Found = found
	return res
}
