// Package adapters starts native debug adapters and connects DAP clients
// to them.
//
// Two adapters are supported, both speaking DAP over stdin/stdout:
//   - gdb 14 or newer, started with --interpreter=dap
//   - lldb-dap (formerly lldb-vscode)
//
// An adapter that is already running and listening on TCP can be used
// instead of spawning one; see Connect.
package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/internal/dap"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/slogutil"
	"github.com/ctagard/dap-dump/pkg/types"
)

// Adapter starts one kind of debug adapter.
type Adapter interface {
	// Kind names the adapter.
	Kind() types.AdapterKind

	// Command returns the adapter process, not yet started.
	Command() *exec.Cmd

	// BuildAttachArgs builds the attach request arguments.
	BuildAttachArgs(req types.AttachRequest) map[string]any
}

// Options configure how clients are created.
type Options struct {
	// RequestTimeout is the client's default per-request timeout.
	RequestTimeout time.Duration
	// Stderr receives the adapter's stderr; nil means os.Stderr.
	Stderr io.Writer
	Logger *slog.Logger
}

// Registry holds all registered adapters
type Registry struct {
	adapters map[types.AdapterKind]Adapter
}

// NewRegistry creates a registry with the gdb and lldb adapters.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		adapters: make(map[types.AdapterKind]Adapter),
	}
	r.Register(NewGDBAdapter(cfg.Adapters.GDB))
	r.Register(NewLLDBAdapter(cfg.Adapters.LLDB))
	return r
}

// Register adds an adapter, replacing one of the same kind.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Get returns the adapter of the given kind.
func (r *Registry) Get(kind types.AdapterKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, errors.AdapterNotSupported(string(kind), r.Kinds())
	}
	return a, nil
}

// Kinds lists the registered adapter kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}

// Spawn starts the adapter and returns a client talking to its stdio.
// The process is not bound to ctx: it lives as long as the session.
func Spawn(a Adapter, opts Options) (*dap.Client, *exec.Cmd, error) {
	cmd := a.Command()
	cmd.Env = os.Environ()
	// Set platform-specific process attributes (procattr_unix.go / procattr_windows.go)
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, errors.AdapterSpawnFailed(string(a.Kind()), fmt.Errorf("failed to get stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, errors.AdapterSpawnFailed(string(a.Kind()), fmt.Errorf("failed to get stdout pipe: %w", err))
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, errors.AdapterSpawnFailed(string(a.Kind()), err)
	}
	logger(opts).Info("debug adapter started", "adapter", a.Kind(), "path", cmd.Path, "pid", cmd.Process.Pid)

	transport := dap.NewStdioTransport(stdin, stdout)
	return dap.NewClient(transport, opts.RequestTimeout, logger(opts)), cmd, nil
}

// Connect creates a DAP client connected to the given address via TCP,
// retrying while the adapter comes up.
func Connect(ctx context.Context, address string, maxRetries int, opts Options) (*dap.Client, error) {
	var transport *dap.Transport
	var err error

	for i := 0; i < max(maxRetries, 1); i++ {
		transport, err = dap.NewTCPTransport(address, 2*time.Second)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.AdapterConnectFailed(address, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, errors.AdapterConnectFailed(address, err)
	}
	return dap.NewClient(transport, opts.RequestTimeout, logger(opts)), nil
}

// Open returns a client for req: connected to req.Address when set,
// otherwise to a freshly spawned adapter. cmd is nil for connections.
func (r *Registry) Open(ctx context.Context, req types.AttachRequest, opts Options) (client *dap.Client, cmd *exec.Cmd, args map[string]any, err error) {
	a, err := r.Get(req.Adapter)
	if err != nil {
		return nil, nil, nil, err
	}
	if req.Address != "" {
		// 20 retries * 200ms = 4 seconds max wait
		client, err = Connect(ctx, req.Address, 20, opts)
	} else {
		client, cmd, err = Spawn(a, opts)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return client, cmd, a.BuildAttachArgs(req), nil
}

func logger(opts Options) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return slogutil.NewDiscardLogger()
}

// attachArgs holds the arguments both adapters understand.
func attachArgs(req types.AttachRequest) map[string]any {
	args := map[string]any{}
	if req.PID > 0 {
		args["pid"] = req.PID
	}
	if req.Program != "" {
		args["program"] = req.Program
	}
	return args
}
