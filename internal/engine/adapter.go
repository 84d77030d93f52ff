// Package engine drives external UCI engine processes: one Adapter per
// subprocess and a Pool that bounds how many run at once.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chessbot/internal/core"
)

// State is the adapter lifecycle state
type State int32

const (
	StateStarting State = iota
	StateReady
	StateBusy
	StateCrashed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var errAdapterBusy = errors.New("adapter already has an outstanding request")

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultGrace            = 2 * time.Second
	stopDrainTimeout        = 500 * time.Millisecond
	exitWait                = time.Second
)

// Config describes how to launch the engine binary
type Config struct {
	Path             string
	Args             []string
	Env              []string // appended to the process environment when set
	Options          map[string]string
	HandshakeTimeout time.Duration
	Grace            time.Duration // added to the movetime before a reply counts as lost
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.Grace <= 0 {
		c.Grace = defaultGrace
	}
	return c
}

// process is one spawned subprocess; replaced wholesale on restart
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string   // closed when stdout reaches EOF
	exited chan struct{} // closed after Wait returns

	closing  chan struct{}
	stopOnce sync.Once
}

func (p *process) stopReading() {
	p.stopOnce.Do(func() { close(p.closing) })
}

// Adapter wraps exactly one engine subprocess and serves one request at a time
type Adapter struct {
	id    int
	cfg   Config
	log   zerolog.Logger
	state atomic.Int32

	mu    sync.Mutex // held for the whole of Start, Submit, Restart and Close
	proc  *process
	skill int

	onSpawn func()
	onExit  func()
}

// NewAdapter creates an adapter in the starting state, Start spawns the process
func NewAdapter(id int, cfg Config, log zerolog.Logger) *Adapter {
	a := &Adapter{
		id:    id,
		cfg:   cfg.withDefaults(),
		log:   log.With().Int("adapter", id).Logger(),
		skill: -1,
	}
	a.state.Store(int32(StateStarting))
	return a
}

func (a *Adapter) ID() int { return a.id }

func (a *Adapter) State() State { return State(a.state.Load()) }

func (a *Adapter) setState(s State) {
	old := State(a.state.Swap(int32(s)))
	if old != s {
		a.log.Debug().Str("from", old.String()).Str("to", s.String()).Msg("adapter state")
	}
}

// Start spawns the process and performs the uci/isready handshake
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.start(ctx)
}

func (a *Adapter) start(ctx context.Context) error {
	if a.State() == StateTerminated {
		return fmt.Errorf("adapter %d terminated", a.id)
	}
	a.setState(StateStarting)
	a.skill = -1

	cmd := exec.Command(a.cfg.Path, a.cfg.Args...)
	if len(a.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), a.cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		a.setState(StateCrashed)
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		a.setState(StateCrashed)
		return err
	}
	if err := cmd.Start(); err != nil {
		a.setState(StateCrashed)
		return fmt.Errorf("failed to start engine: %w", err)
	}
	if a.onSpawn != nil {
		a.onSpawn()
	}

	p := &process{
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan string, 64),
		exited:  make(chan struct{}),
		closing: make(chan struct{}),
	}
	go a.readLoop(p, stdout)
	a.proc = p

	hctx, cancel := context.WithTimeout(ctx, a.cfg.HandshakeTimeout)
	defer cancel()
	if err := a.handshake(hctx); err != nil {
		a.kill()
		a.setState(StateCrashed)
		return &core.EngineError{Err: core.ErrEngineProtocol, AdapterID: a.id, Detail: err.Error()}
	}
	a.setState(StateReady)
	a.log.Info().Int("pid", cmd.Process.Pid).Msg("engine ready")
	return nil
}

func (a *Adapter) readLoop(p *process, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-p.closing:
		}
	}
	close(p.lines)
	_ = p.cmd.Wait()
	if a.onExit != nil {
		a.onExit()
	}
	close(p.exited)
}

func (a *Adapter) handshake(ctx context.Context) error {
	if err := a.send("uci"); err != nil {
		return err
	}
	if err := a.waitFor(ctx, "uciok"); err != nil {
		return err
	}
	for name, value := range a.cfg.Options {
		if err := a.send(formatOption(name, value)); err != nil {
			return err
		}
	}
	if err := a.send("isready"); err != nil {
		return err
	}
	return a.waitFor(ctx, "readyok")
}

func (a *Adapter) waitFor(ctx context.Context, token string) error {
	for {
		select {
		case line, ok := <-a.proc.lines:
			if !ok {
				return errors.New("engine closed unexpectedly")
			}
			if strings.TrimSpace(line) == token {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", token)
		}
	}
}

func (a *Adapter) send(cmd string) error {
	if a.proc == nil {
		return errors.New("engine not running")
	}
	_, err := io.WriteString(a.proc.stdin, cmd+"\n")
	return err
}

// Submit sends one search and blocks until bestmove, the deadline
// (movetime + grace) or ctx cancellation. A timeout or protocol violation
// leaves the adapter crashed with its process killed.
func (a *Adapter) Submit(ctx context.Context, req Request) (Reply, error) {
	if !a.mu.TryLock() {
		return Reply{}, errAdapterBusy
	}
	defer a.mu.Unlock()

	if st := a.State(); st != StateReady {
		return Reply{}, a.fail(core.ErrEngineProtocol, req, "adapter "+st.String())
	}
	a.setState(StateBusy)

	if req.Budget.Skill >= 0 && req.Budget.Skill != a.skill {
		if err := a.send(formatSkill(req.Budget.Skill)); err != nil {
			return Reply{}, a.crash(core.ErrEngineProtocol, req, err.Error())
		}
		a.skill = req.Budget.Skill
	}
	if err := a.send(formatPosition(req.FEN)); err != nil {
		return Reply{}, a.crash(core.ErrEngineProtocol, req, err.Error())
	}
	if err := a.send(formatGo(req.Budget)); err != nil {
		return Reply{}, a.crash(core.ErrEngineProtocol, req, err.Error())
	}

	timer := time.NewTimer(req.Budget.Deadline(a.cfg.Grace))
	defer timer.Stop()

	reply := Reply{CorrelationID: req.CorrelationID, AdapterID: a.id}
	for {
		select {
		case line, ok := <-a.proc.lines:
			if !ok {
				return Reply{}, a.crash(core.ErrEngineProtocol, req, "engine exited")
			}
			switch {
			case strings.HasPrefix(line, "info "):
				parseInfo(line, &reply)
			case strings.HasPrefix(line, "bestmove"):
				move, none, err := parseBestMove(line)
				if err != nil {
					return Reply{}, a.crash(core.ErrEngineProtocol, req, err.Error())
				}
				reply.BestMove, reply.NoMove = move, none
				a.setState(StateReady)
				return reply, nil
			}
		case <-timer.C:
			return Reply{}, a.crash(core.ErrEngineTimeout, req, "no bestmove within "+req.Budget.Deadline(a.cfg.Grace).String())
		case <-ctx.Done():
			a.abort(req)
			return Reply{}, ctx.Err()
		}
	}
}

// abort stops a search whose caller went away and drains its bestmove so the
// next request starts clean
func (a *Adapter) abort(req Request) {
	if err := a.send("stop"); err != nil {
		a.crash(core.ErrEngineProtocol, req, err.Error())
		return
	}
	drain := time.NewTimer(stopDrainTimeout)
	defer drain.Stop()
	for {
		select {
		case line, ok := <-a.proc.lines:
			if !ok {
				a.crash(core.ErrEngineProtocol, req, "engine exited")
				return
			}
			if strings.HasPrefix(line, "bestmove") {
				a.setState(StateReady)
				return
			}
		case <-drain.C:
			a.crash(core.ErrEngineTimeout, req, "no bestmove after stop")
			return
		}
	}
}

func (a *Adapter) fail(sentinel error, req Request, detail string) error {
	return &core.EngineError{Err: sentinel, AdapterID: a.id, CorrelationID: req.CorrelationID, Detail: detail}
}

// crash kills the process and marks the adapter crashed. Caller holds a.mu.
func (a *Adapter) crash(sentinel error, req Request, detail string) error {
	err := a.fail(sentinel, req, detail)
	a.log.Warn().Err(err).Str("correlation", req.CorrelationID).Msg("engine crashed")
	a.kill()
	a.setState(StateCrashed)
	return err
}

// kill terminates the current process and waits briefly for it to be reaped
func (a *Adapter) kill() {
	p := a.proc
	if p == nil {
		return
	}
	p.stopReading()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.stdin.Close()
	select {
	case <-p.exited:
	case <-time.After(exitWait):
		a.log.Warn().Msg("engine process not reaped after kill")
	}
}

// Restart replaces a crashed process: crashed -> starting -> ready
func (a *Adapter) Restart(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State() == StateTerminated {
		return fmt.Errorf("adapter %d terminated", a.id)
	}
	a.kill()
	a.proc = nil
	a.log.Info().Msg("restarting engine")
	return a.start(ctx)
}

// Close sends quit, waits for a graceful exit and kills the process otherwise
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.setState(StateTerminated)

	p := a.proc
	if p == nil {
		return nil
	}
	a.proc = nil
	p.stopReading()
	_, _ = io.WriteString(p.stdin, "quit\n")
	_ = p.stdin.Close()

	select {
	case <-p.exited:
		return nil
	case <-time.After(exitWait):
		// Force kill if doesn't exit gracefully
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-p.exited
		return nil
	}
}
