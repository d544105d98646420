package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/pkg/types"
)

// Session Handlers

func (s *Server) handleDumpAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := request.RequireString("adapter")
	if err != nil {
		return toolError(errors.MissingParameter("adapter",
			"Specify the debug adapter: 'gdb' or 'lldb'.")), nil
	}

	req := types.AttachRequest{Adapter: types.AdapterKind(kind)}
	if pid, err := request.RequireFloat("pid"); err == nil {
		req.PID = int(pid)
	}
	if program, err := request.RequireString("program"); err == nil {
		req.Program = program
	}
	if address, err := request.RequireString("address"); err == nil {
		req.Address = address
	}
	if req.PID <= 0 && req.Program == "" {
		return toolError(errors.MissingParameter("pid",
			"Provide the pid of the process to attach to, or the program path.")), nil
	}

	if _, err := s.adapterReg.Get(req.Adapter); err != nil {
		return toolError(err), nil
	}
	session, err := s.sessionManager.CreateSession(req.Adapter, req.Program, req.PID)
	if err != nil {
		return toolError(err), nil
	}

	client, cmd, args, err := s.adapterReg.Open(ctx, req, s.adapterOptions())
	if err != nil {
		_ = s.sessionManager.TerminateSession(session.ID, false)
		return toolError(err), nil
	}
	// Attach removes the session on failure.
	if err := s.sessionManager.Attach(ctx, session.ID, client, cmd, args); err != nil {
		return toolError(err), nil
	}

	return jsonResult(session.Info())
}

func (s *Server) handleDumpDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(errors.MissingParameter("sessionId",
			"Provide the sessionId returned from dump_attach.")), nil
	}

	terminateDebuggee := request.GetBool("terminateDebuggee", false)

	if err := s.sessionManager.TerminateSession(sessionID, terminateDebuggee); err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleDumpListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessionManager.ListSessions()

	result := make([]types.SessionInfo, len(sessions))
	for i, session := range sessions {
		result[i] = session.Info()
	}

	return jsonResult(map[string]interface{}{
		"sessions": result,
	})
}

// Dump Handlers

func (s *Server) handleDumpFetch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(errors.MissingParameter("sessionId",
			"Provide the sessionId returned from dump_attach. Use dump_list_sessions to see active sessions.")), nil
	}

	format := "json"
	if f, err := request.RequireString("format"); err == nil && f != "" {
		format = f
	}
	if format != "json" && format != "text" {
		return toolError(errors.InvalidParameter("format", format, "'json' or 'text'")), nil
	}

	req, err := s.fetchRequest(request)
	if err != nil {
		return toolError(err), nil
	}

	doc, err := s.sessionManager.Fetch(ctx, sessionID, req)
	if err != nil {
		return toolError(err), nil
	}

	text := doc.String()
	if format == "text" {
		return mcp.NewToolResultText(text), nil
	}
	parsed, err := output.Parse(text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse dump document: %v", err)), nil
	}
	return jsonResult(parsed)
}

// fetchRequest builds a fetch request over the configured defaults.
func (s *Server) fetchRequest(request mcp.CallToolRequest) (types.FetchRequest, error) {
	req := s.config.FetchDefaults()

	var err error
	if req.VarList, err = stringList(request, "varlist", `["list", "map"]`); err != nil {
		return req, err
	}
	if req.Expanded, err = stringList(request, "expanded", `["local.list", "local.list.0"]`); err != nil {
		return req, err
	}
	if req.Watchers, err = watchers(request); err != nil {
		return req, err
	}
	if v, err := request.RequireString("partialvar"); err == nil {
		req.PartialVar = v
	}
	if v, err := request.RequireString("resultvarname"); err == nil {
		req.ResultVarName = v
	}
	if v, err := request.RequireFloat("maxnumchild"); err == nil {
		if v < 0 {
			return req, errors.InvalidParameter("maxnumchild", v, "a non-negative number")
		}
		req.MaxNumChild = int(v)
	}
	if v, err := request.RequireFloat("displaystringlimit"); err == nil {
		if v < 0 {
			return req, errors.InvalidParameter("displaystringlimit", v, "a non-negative number")
		}
		req.DisplayStringLimit = int(v)
	}

	req.Fancy = request.GetBool("fancy", req.Fancy)
	req.AutoDeref = request.GetBool("autoderef", req.AutoDeref)
	req.QObjectNames = request.GetBool("qobjectnames", req.QObjectNames)
	req.BreakOnAbort = request.GetBool("breakonabort", false)
	req.BreakOnWarning = request.GetBool("breakonwarning", false)
	req.BreakOnFatal = request.GetBool("breakonfatal", false)
	if (req.BreakOnAbort || req.BreakOnWarning || req.BreakOnFatal) && !s.config.CanEvaluate() {
		return req, errors.PermissionDenied("breakpoints", string(s.config.Mode))
	}
	return req, nil
}

// stringList parses an optional JSON array of strings.
func stringList(request mcp.CallToolRequest, name, example string) ([]string, error) {
	raw, err := request.RequireString(name)
	if err != nil || raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.InvalidJSON(name, err, example)
	}
	return list, nil
}

// watchers accepts objects ({"exp": ..., "iname": ...}) and bare
// expression strings.
func watchers(request mcp.CallToolRequest) ([]types.Watcher, error) {
	raw, err := request.RequireString("watchers")
	if err != nil || raw == "" {
		return nil, nil
	}
	const example = `[{"exp": "obj->d_ptr"}, "a + b"]`

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, errors.InvalidJSON("watchers", err, example)
	}
	out := make([]types.Watcher, 0, len(elems))
	for _, e := range elems {
		var w types.Watcher
		var exp string
		if err := json.Unmarshal(e, &exp); err == nil {
			w.Expression = exp
		} else if err := json.Unmarshal(e, &w); err != nil {
			return nil, errors.InvalidJSON("watchers", err, example)
		}
		if w.Expression == "" {
			return nil, errors.InvalidParameter("watchers", string(e), "a non-empty watch expression")
		}
		out = append(out, w)
	}
	return out, nil
}

// layoutEntry is the JSON form of a layout descriptor.
type layoutEntry struct {
	Name         string           `json:"name"`
	Versions     string           `json:"versions"`
	PointerWidth int              `json:"pointerWidth,omitempty"`
	OS           string           `json:"os"`
	Offsets      map[string]int64 `json:"offsets"`
}

func (s *Server) handleDumpLayouts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := request.RequireString("name")

	var descs []layout.Descriptor
	if name == "" {
		descs = s.sessionManager.Layouts().Entries()
	} else {
		descs = s.sessionManager.Layouts().Filter(name)
	}

	result := make([]layoutEntry, len(descs))
	for i, d := range descs {
		result[i] = layoutEntry{
			Name:         d.Name,
			Versions:     d.Range.String(),
			PointerWidth: d.PointerWidth,
			OS:           d.OS.String(),
			Offsets:      d.Offsets,
		}
	}

	return jsonResult(map[string]interface{}{
		"descriptors": result,
		"count":       len(result),
	})
}

// Helper functions

// toolError reports err as a tool failure, prefixed with its error code.
func toolError(err error) *mcp.CallToolResult {
	if code := errors.CodeOf(err); code != "" && code != errors.CodeUnknown {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", code, err.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
