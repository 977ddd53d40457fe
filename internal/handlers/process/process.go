// Package process installs executables and "#!" scripts as supervised
// child processes.
//
// Installation properties:
//
//	args      whitespace separated command line arguments
//	env.NAME  extra environment variable NAME
//	dir       working directory, defaults to the directory of the file
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"minho/internal/config"
	"minho/internal/dispatcher"
	"minho/internal/services"
	"minho/pkg/logging"
)

const subsystem = "Process"

// DefaultGrace is how long a process has to exit after SIGTERM before it
// is killed.
const DefaultGrace = 10 * time.Second

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

type process struct {
	id       string
	location string
	cmd      *exec.Cmd
	started  time.Time

	done chan struct{}
	err  error
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// stop sends SIGTERM to the process group, then kills it if it is still
// running after grace.
func (p *process) stop(grace time.Duration) error {
	if p.exited() {
		return nil
	}

	if err := signalGroup(p.cmd.Process, syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-p.done
			return nil
		}
		logging.Debug(subsystem, "SIGTERM failed for %s, killing: %v", p.id, err)
		return p.kill()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		logging.Warn(subsystem, "Process %s did not exit within %s, killing it", p.id, grace)
		return p.kill()
	}
}

func (p *process) kill() error {
	if err := signalGroup(p.cmd.Process, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %s: %w", p.id, err)
	}
	<-p.done
	return nil
}

// Handler is the process handler.
type Handler struct {
	services.Base

	mu    sync.RWMutex
	procs map[string]*process
	grace time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a process handler. grace is replaced by minho.process.grace
// at registration when it is zero.
func New(grace time.Duration) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		Base:   services.NewBase("process", services.DefaultPriority+1),
		procs:  make(map[string]*process),
		grace:  grace,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnRegister adds the handler to the dispatcher.
func (h *Handler) OnRegister(r *services.Registry) error {
	if h.grace == 0 {
		h.grace = DefaultGrace
		cfg, ok, err := services.Get[*config.Service](r)
		if err != nil {
			return err
		}
		if ok {
			h.grace = cfg.Duration(config.KeyProcessGrace, DefaultGrace)
		}
	}

	d, err := services.Require[*dispatcher.Dispatcher](r)
	if err != nil {
		return err
	}
	return d.AddHandler(h)
}

// CanHandle accepts regular files that are executable or start with "#!".
func (h *Handler) CanHandle(ctx context.Context, location string) bool {
	info, err := os.Stat(location)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if info.Mode().Perm()&0o111 != 0 {
		return true
	}
	_, ok := interpreter(location)
	return ok
}

// interpreter returns the command line of a "#!" header.
func interpreter(path string) ([]string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return nil, false
	}
	if !strings.HasPrefix(line, "#!") {
		return nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

// command builds the exec.Cmd for location without starting it.
func (h *Handler) command(location string, args map[string]string) (*exec.Cmd, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	name := abs
	var argv []string
	if info.Mode().Perm()&0o111 == 0 {
		interp, ok := interpreter(abs)
		if !ok {
			return nil, fmt.Errorf("%s is neither executable nor a script", location)
		}
		name = interp[0]
		argv = append(argv, interp[1:]...)
		argv = append(argv, abs)
	}
	argv = append(argv, strings.Fields(args["args"])...)

	cmd := execCommandContext(h.ctx, name, argv...)
	configureProcAttr(cmd)
	cmd.Dir = filepath.Dir(abs)
	if dir := args["dir"]; dir != "" {
		cmd.Dir = dir
	}

	env := os.Environ()
	keys := make([]string, 0, len(args))
	for k := range args {
		if strings.HasPrefix(k, "env.") && len(k) > len("env.") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, strings.TrimPrefix(k, "env.")+"="+args[k])
	}
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// Install starts the process and returns a generated id.
func (h *Handler) Install(ctx context.Context, location string, args map[string]string) (string, error) {
	cmd, err := h.command(location, args)
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start %s: %w", location, err)
	}

	p := &process{
		id:       uuid.NewString(),
		location: location,
		cmd:      cmd,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
		logging.Debug(subsystem, "Process %s (pid %d) exited: %v", p.id, cmd.Process.Pid, p.err)
	}()

	h.mu.Lock()
	h.procs[p.id] = p
	h.mu.Unlock()

	logging.Info(subsystem, "Started %s as process %s (pid %d)", location, p.id, cmd.Process.Pid)
	return p.id, nil
}

// IsAlive reports whether the process has not exited.
func (h *Handler) IsAlive(id string) bool {
	h.mu.RLock()
	p, ok := h.procs[id]
	h.mu.RUnlock()
	return ok && !p.exited()
}

// Uninstall stops the process and forgets it.
func (h *Handler) Uninstall(ctx context.Context, id string) error {
	h.mu.RLock()
	p, ok := h.procs[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown process %s", id)
	}

	if err := p.stop(h.grace); err != nil {
		return err
	}

	h.mu.Lock()
	delete(h.procs, id)
	h.mu.Unlock()
	return nil
}

// Metadata returns the pid, the command line and, once exited, the exit
// code.
func (h *Handler) Metadata(id string) map[string]string {
	h.mu.RLock()
	p, ok := h.procs[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	md := map[string]string{
		"pid":     strconv.Itoa(p.cmd.Process.Pid),
		"command": strings.Join(p.cmd.Args, " "),
		"dir":     p.cmd.Dir,
		"started": p.started.Format(time.RFC3339),
	}
	if p.exited() {
		md["exit"] = strconv.Itoa(p.cmd.ProcessState.ExitCode())
	}
	return md
}

// Close stops every running process concurrently. Stopped processes stay
// known so a later Uninstall still succeeds.
func (h *Handler) Close() error {
	h.mu.RLock()
	procs := make([]*process, 0, len(h.procs))
	for _, p := range h.procs {
		procs = append(procs, p)
	}
	h.mu.RUnlock()

	errs := make([]error, len(procs))
	var wg sync.WaitGroup
	for i, p := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.stop(h.grace)
		}()
	}
	wg.Wait()
	h.cancel()

	return services.NewAggregateError(h.Name(), errs)
}
