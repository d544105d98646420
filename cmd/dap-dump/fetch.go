package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-dump/internal/adapters"
	"github.com/ctagard/dap-dump/internal/dap"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Attach to a process and print one dump",
	Long: `Attach to a stopped process, dump its variables and detach.

The adapter is spawned unless --address names one that is already
listening. The document is printed in the dumper's protocol format (text),
or converted to JSON or CBOR.

Examples:
  dap-dump fetch --pid 4242
  dap-dump fetch --adapter lldb --pid 4242 --varlist list,map --expanded local.list
  dap-dump fetch --address 127.0.0.1:4711 --pid 4242 --watch 'obj->d_ptr' --format json`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

var fetchFlags struct {
	adapter    string
	address    string
	pid        int
	program    string
	format     string
	compress   bool
	varlist    []string
	expanded   []string
	partialvar string
	watch      []string
	autoderef  bool
	noFancy    bool
	maxChild   int
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	f := fetchCmd.Flags()
	f.StringVar(&fetchFlags.adapter, "adapter", string(types.AdapterGDB), "Debug adapter: gdb or lldb")
	f.StringVar(&fetchFlags.address, "address", "", "host:port of a listening adapter; spawn one when empty")
	f.IntVar(&fetchFlags.pid, "pid", 0, "Process ID to attach to")
	f.StringVar(&fetchFlags.program, "program", "", "Path of the debuggee executable")
	f.StringVar(&fetchFlags.format, "format", "text", "Output format: text, json or cbor")
	f.BoolVar(&fetchFlags.compress, "compress", false, "zstd-compress CBOR output")
	f.StringSliceVar(&fetchFlags.varlist, "varlist", nil, "Local variables to dump (default: all)")
	f.StringSliceVar(&fetchFlags.expanded, "expanded", nil, "Inames whose children are shown")
	f.StringVar(&fetchFlags.partialvar, "partialvar", "", "Dump only this iname")
	f.StringArrayVar(&fetchFlags.watch, "watch", nil, "Watch expression, dumped as watch.<n> (repeatable)")
	f.BoolVar(&fetchFlags.autoderef, "autoderef", false, "Show pointers inline as their pointee")
	f.BoolVar(&fetchFlags.noFancy, "no-fancy", false, "Show raw structure instead of decoded library types")
	f.IntVar(&fetchFlags.maxChild, "maxnumchild", 0, "Maximum children per container (default from configuration)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	if err := checkFormat(fetchFlags.format, "text", "json", "cbor"); err != nil {
		return err
	}
	if fetchFlags.pid <= 0 && fetchFlags.program == "" {
		return errors.MissingParameter("pid", "Pass --pid, or --program with the lldb adapter.")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	opts, err := dap.NewManagerOptions(cfg, logger)
	if err != nil {
		return err
	}
	opts.SessionTimeout = 0
	sm := dap.NewSessionManager(opts)
	defer sm.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attach := types.AttachRequest{
		Adapter: types.AdapterKind(fetchFlags.adapter),
		PID:     fetchFlags.pid,
		Program: fetchFlags.program,
		Address: fetchFlags.address,
	}
	id, err := attachSession(ctx, sm, adapters.NewRegistry(cfg), attach, adapters.Options{
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	req := cfg.FetchDefaults()
	req.VarList = fetchFlags.varlist
	req.Expanded = fetchFlags.expanded
	req.PartialVar = fetchFlags.partialvar
	req.AutoDeref = req.AutoDeref || fetchFlags.autoderef
	req.MaxNumChild = fetchFlags.maxChild
	if fetchFlags.noFancy {
		req.Fancy = false
	}
	for _, exp := range fetchFlags.watch {
		req.Watchers = append(req.Watchers, types.Watcher{Expression: exp})
	}

	doc, err := sm.Fetch(ctx, id, req)
	if err != nil {
		return err
	}
	return writeDocument(cmd.OutOrStdout(), doc.String(), fetchFlags.format, fetchFlags.compress)
}

// attachSession reserves a session, opens the adapter and attaches.
func attachSession(ctx context.Context, sm *dap.SessionManager, reg *adapters.Registry, req types.AttachRequest, opts adapters.Options) (string, error) {
	if _, err := reg.Get(req.Adapter); err != nil {
		return "", err
	}
	session, err := sm.CreateSession(req.Adapter, req.Program, req.PID)
	if err != nil {
		return "", err
	}
	client, cmd, args, err := reg.Open(ctx, req, opts)
	if err != nil {
		_ = sm.TerminateSession(session.ID, false)
		return "", err
	}
	if err := sm.Attach(ctx, session.ID, client, cmd, args); err != nil {
		return "", err
	}
	return session.ID, nil
}

// writeDocument prints a protocol document as text, JSON or CBOR.
// compress applies to CBOR only.
func writeDocument(w io.Writer, doc, format string, compress bool) error {
	if format == "text" {
		_, err := fmt.Fprintln(w, doc)
		return err
	}
	data, err := output.Convert(doc, format)
	if err != nil {
		return err
	}
	if compress && format == "cbor" {
		if data, err = output.Compress(data); err != nil {
			return err
		}
	}
	_, err = w.Write(data)
	return err
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return errors.InvalidParameter("format", format, fmt.Sprintf("one of %v", allowed))
}
