package adapters

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/internal/dap"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/pkg/types"
)

// gdbWithDAP returns the gdb path when gdb 14 or newer is installed.
func gdbWithDAP(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("gdb")
	if err != nil {
		t.Skip("gdb not found, skipping test")
	}
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		t.Skipf("gdb --version failed: %v", err)
	}
	m := regexp.MustCompile(`(\d+)\.\d+`).FindSubmatch(out)
	if m == nil {
		t.Skip("cannot read gdb version, skipping test")
	}
	if major, _ := strconv.Atoi(string(m[1])); major < 14 {
		t.Skipf("gdb %s has no DAP support, skipping test", m[0])
	}
	return path
}

// TestGDBAttachAndDump attaches gdb to a running C program and dumps a
// global struct through a watch expression.
func TestGDBAttachAndDump(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	gdbPath := gdbWithDAP(t)
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("cc not found, skipping test")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	bin := filepath.Join(dir, "main")
	err = os.WriteFile(src, []byte(`
#include <unistd.h>
struct Point { int x; int y; };
struct Point g_point = { 3, 4 };
int main(void) {
    for (;;)
        sleep(1);
    return 0;
}
`), 0o644)
	if err != nil {
		t.Fatalf("failed to write test program: %v", err)
	}
	if out, err := exec.Command(cc, "-g", "-O0", "-o", bin, src).CombinedOutput(); err != nil {
		t.Fatalf("failed to compile test program: %v\n%s", err, out)
	}

	debuggee := exec.Command(bin)
	if err := debuggee.Start(); err != nil {
		t.Fatalf("failed to start test program: %v", err)
	}
	defer func() {
		_ = debuggee.Process.Kill()
		_ = debuggee.Wait()
	}()

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeReadOnly
	cfg.Adapters.GDB.Path = gdbPath
	opts, err := dap.NewManagerOptions(cfg, nil)
	if err != nil {
		t.Fatalf("NewManagerOptions() error = %v", err)
	}
	sm := dap.NewSessionManager(opts)
	defer sm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req := types.AttachRequest{Adapter: types.AdapterGDB, PID: debuggee.Process.Pid, Program: bin}
	session, err := sm.CreateSession(req.Adapter, req.Program, req.PID)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	client, cmd, args, err := NewRegistry(cfg).Open(ctx, req, Options{RequestTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := sm.Attach(ctx, session.ID, client, cmd, args); err != nil {
		if errors.CodeOf(err) == errors.CodeDAPAttachFailed {
			t.Skipf("attach not permitted here: %v", err)
		}
		t.Fatalf("Attach() error = %v", err)
	}

	doc, err := sm.Fetch(ctx, session.ID, types.FetchRequest{
		Fancy:    true,
		VarList:  []string{"__none__"},
		Watchers: []types.Watcher{{Expression: "g_point"}},
		Expanded: []string{"watch.0"},
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	parsed, err := output.Parse(doc.String())
	if err != nil {
		t.Fatalf("Parse() error = %v\n%s", err, doc)
	}

	var watch *types.Item
	for i := range parsed.Items {
		if parsed.Items[i].IName == "watch.0" {
			watch = &parsed.Items[i]
		}
	}
	if watch == nil {
		t.Fatalf("watch.0 missing in %s", doc)
	}
	got := map[string]string{}
	for _, c := range watch.Children {
		got[c.Name] = c.Value
	}
	if got["x"] != "3" || got["y"] != "4" {
		t.Errorf("g_point children = %v, want x=3 y=4", got)
	}
}
