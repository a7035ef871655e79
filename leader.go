// Package ptree is the control-plane leader of a multi-process packet
// dataplane. The leader owns the authoritative configuration and the app
// graph compiled from it, serves structured RPCs over a local stream
// socket, and ships graph-mutation actions to follower processes through
// shared-memory rings.
package ptree

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/drpcorg/ptree/action"
	"github.com/drpcorg/ptree/channel"
	"github.com/drpcorg/ptree/data"
	"github.com/drpcorg/ptree/graph"
	"github.com/drpcorg/ptree/mutator"
	"github.com/drpcorg/ptree/rpc"
	"github.com/drpcorg/ptree/schema"
	"github.com/drpcorg/ptree/utils"
)

var (
	ErrOptions        = errors.New("required option missing")
	ErrSchemaMismatch = errors.New("schema does not match the leader's")
	ErrOutboxFull     = errors.New("follower outbox over capacity")
)

// SetupFn compiles a configuration into the app graph the dataplane
// should run. It must be pure: same config, same graph.
type SetupFn func(cfg data.Value) (*graph.Graph, error)

type Options struct {
	// SocketName is the control socket path; a relative name resolves
	// under the leader's pid directory in the shm root.
	SocketName    string
	Setup         SetupFn
	InitialConfig string
	SchemaName    string
	FollowerPids  []int
	Hz            int
	ShmRoot       string
	// StoreDir, when set, keeps a pebble snapshot of the last committed
	// configuration.
	StoreDir string
	Logger   utils.Logger
	Clock    clock.Clock
}

func (o *Options) SetDefaults() {
	if o.SocketName == "" {
		o.SocketName = "config-leader-socket"
	}
	if o.Hz == 0 {
		o.Hz = 100
	}
	if o.ShmRoot == "" {
		o.ShmRoot = channel.DefaultRoot()
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

type Leader struct {
	log   utils.Logger
	sch   *schema.Schema
	setup SetupFn

	config   data.Value
	appGraph *graph.Graph

	server    *rpc.Server
	followers []*Follower
	tick      *ticker
	store     *Store

	commits uint64
}

// New validates the options, builds the initial graph and binds the
// control socket. It fails on missing options, an unknown schema, an
// unusable initial configuration or setup, a bind/listen failure, or a
// pid directory or snapshot store that cannot be opened.
func New(opts Options) (*Leader, error) {
	opts.SetDefaults()
	if opts.Setup == nil || opts.SchemaName == "" || opts.InitialConfig == "" {
		return nil, ErrOptions
	}
	signal.Ignore(syscall.SIGPIPE)

	sch, err := schema.Load(opts.SchemaName)
	if err != nil {
		return nil, err
	}
	cfg, err := data.Parse(sch.Root, opts.InitialConfig)
	if err != nil {
		return nil, fmt.Errorf("initial configuration: %w", err)
	}
	g, err := opts.Setup(cfg)
	if err != nil {
		return nil, fmt.Errorf("initial setup: %w", err)
	}

	l := &Leader{
		log:      opts.Logger.With("schema", opts.SchemaName),
		sch:      sch,
		setup:    opts.Setup,
		config:   cfg,
		appGraph: g,
		tick:     newTicker(opts.Clock, opts.Hz),
	}

	sockPath := opts.SocketName
	if !filepath.IsAbs(sockPath) {
		dir, err := channel.PidDir(opts.ShmRoot, os.Getpid())
		if err != nil {
			return nil, err
		}
		sockPath = filepath.Join(dir, sockPath)
	}
	l.server, err = rpc.Listen(sockPath, l.handle, l.log)
	if err != nil {
		return nil, err
	}

	for _, pid := range opts.FollowerPids {
		l.followers = append(l.followers, newFollower(pid, opts.ShmRoot, l.log))
	}

	if opts.StoreDir != "" {
		l.store, err = OpenStore(opts.StoreDir)
		if err != nil {
			l.server.Close()
			return nil, err
		}
	}

	l.log.Info("leader up", "socket", sockPath, "followers", len(opts.FollowerPids))
	return l, nil
}

// Pull is the cooperative tick: serve peers, then ship to followers.
// Called once per engine iteration; returns immediately between periods.
func (l *Leader) Pull() {
	if !l.tick.due() {
		return
	}
	l.server.Serve()
	for _, f := range l.followers {
		f.ship()
	}
}

// Stop tears the leader down: peers, socket and socket file, rings,
// snapshot store.
func (l *Leader) Stop() error {
	err := l.server.Close()
	for _, f := range l.followers {
		f.close()
	}
	if l.store != nil {
		if cerr := l.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (l *Leader) handle(payload []byte) ([]byte, error) {
	return rpc.Dispatch(l, payload)
}

// Describe implements rpc.Methods.
func (l *Leader) Describe() (rpc.DescribeResult, error) {
	return rpc.DescribeResult{NativeSchema: l.sch.Name}, nil
}

// GetConfig implements rpc.Methods.
func (l *Leader) GetConfig(args rpc.Args) (rpc.GetConfigResult, error) {
	if err := l.checkSchema(args); err != nil {
		return rpc.GetConfigResult{}, err
	}
	get, _, err := mutator.Get(l.sch, args.Path)
	if err != nil {
		return rpc.GetConfigResult{}, err
	}
	printed, err := get(l.config)
	if err != nil {
		return rpc.GetConfigResult{}, err
	}
	return rpc.GetConfigResult{Config: printed}, nil
}

// SetConfig implements rpc.Methods.
func (l *Leader) SetConfig(args rpc.Args) error {
	if err := l.checkSchema(args); err != nil {
		return err
	}
	set, node, err := mutator.Set(l.sch, args.Path)
	if err != nil {
		return err
	}
	sub, err := data.Parse(node, args.Config)
	if err != nil {
		return err
	}
	return l.commit(args.Path, func(cfg data.Value) (data.Value, error) {
		return set(cfg, sub)
	})
}

// AddConfig implements rpc.Methods.
func (l *Leader) AddConfig(args rpc.Args) error {
	if err := l.checkSchema(args); err != nil {
		return err
	}
	add, node, err := mutator.Add(l.sch, args.Path)
	if err != nil {
		return err
	}
	sub, err := data.ParseEntries(node, args.Config)
	if err != nil {
		return err
	}
	return l.commit(args.Path, func(cfg data.Value) (data.Value, error) {
		return add(cfg, sub)
	})
}

// RemoveConfig implements rpc.Methods.
func (l *Leader) RemoveConfig(args rpc.Args) error {
	if err := l.checkSchema(args); err != nil {
		return err
	}
	remove, err := mutator.Remove(l.sch, args.Path)
	if err != nil {
		return err
	}
	return l.commit(args.Path, remove)
}

func (l *Leader) checkSchema(args rpc.Args) error {
	if args.Schema != l.sch.Name {
		return fmt.Errorf("%w: %q", ErrSchemaMismatch, args.Schema)
	}
	return nil
}

// commit runs the update pipeline: apply the mutation to a clone of the
// current configuration, recompute the graph, diff, encode and enqueue.
// Every step before the final swap is failure-isolated, so a failed
// commit leaves the leader exactly as it was.
func (l *Leader) commit(pathText string, apply func(data.Value) (data.Value, error)) error {
	newCfg, err := apply(l.config.Clone())
	if err != nil {
		return err
	}
	newGraph, err := l.setup(newCfg)
	if err != nil {
		return err
	}
	acts := graph.Diff(l.appGraph, newGraph)
	frames := make([][]byte, 0, len(acts))
	for _, a := range acts {
		frame, err := action.Encode(a)
		if err != nil {
			return err
		}
		frames = append(frames, frame)
	}
	for _, f := range l.followers {
		if !f.canEnqueue(len(frames)) {
			return fmt.Errorf("%w: pid %d", ErrOutboxFull, f.pid)
		}
	}
	for _, f := range l.followers {
		f.enqueue(frames)
	}

	l.config = newCfg
	l.appGraph = newGraph
	l.commits++
	l.log.Debug("commit", "path", pathText, "actions", len(acts))

	if l.store != nil {
		printed, err := data.Print(l.sch.Root, l.config)
		if err == nil {
			err = l.store.SaveCommitted(l.sch.Name, []byte(printed))
		}
		if err != nil {
			// the snapshot trails the live state; a miss is not fatal
			l.log.Warn("snapshot write failed", "err", err)
		}
	}
	return nil
}

// CurrentConfig prints the committed configuration.
func (l *Leader) CurrentConfig() (string, error) {
	return data.Print(l.sch.Root, l.config)
}
