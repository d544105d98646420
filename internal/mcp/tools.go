package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.registerDumpAttach()
	s.registerDumpDisconnect()
	s.registerDumpListSessions()
	s.registerDumpFetch()
	s.registerDumpLayouts()
}

// Session Tools

func (s *Server) registerDumpAttach() {
	tool := mcp.NewTool("dump_attach",
		mcp.WithDescription("Attach a native debugger to a running process and prepare a dump session. Returns the sessionId used by dump_fetch, plus the detected pointer size, OS and Qt version."),
		mcp.WithString("adapter",
			mcp.Required(),
			mcp.Description("Debug adapter: 'gdb' (gdb 14+ with --interpreter=dap) or 'lldb' (lldb-dap)"),
		),
		mcp.WithNumber("pid",
			mcp.Description("Process ID to attach to"),
		),
		mcp.WithString("program",
			mcp.Description("Path of the debuggee executable. With lldb and no pid, waits for the program to start."),
		),
		mcp.WithString("address",
			mcp.Description("host:port of an adapter that is already listening. When omitted the adapter is spawned."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDumpAttach)
}

func (s *Server) registerDumpDisconnect() {
	tool := mcp.NewTool("dump_disconnect",
		mcp.WithDescription("Detach from a dump session and stop its adapter"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID to disconnect from"),
		),
		mcp.WithBoolean("terminateDebuggee",
			mcp.Description("Kill the debugged process instead of detaching (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDumpDisconnect)
}

func (s *Server) registerDumpListSessions() {
	tool := mcp.NewTool("dump_list_sessions",
		mcp.WithDescription("List all active dump sessions"),
	)
	s.mcpServer.AddTool(tool, s.handleDumpListSessions)
}

// Dump Tools

func (s *Server) registerDumpFetch() {
	tool := mcp.NewTool("dump_fetch",
		mcp.WithDescription("Dump variables of the stopped debuggee as a tree of {name, iname, value, type, numchild} items. Qt containers, strings, QVariant and other known types are decoded. Children are only listed for inames named in 'expanded'; re-dump one node with 'partialvar'."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("varlist",
			mcp.Description("JSON array of local variable names to dump, e.g. [\"list\", \"map\"]. Omit for all locals."),
		),
		mcp.WithString("expanded",
			mcp.Description("JSON array of inames whose children are shown, e.g. [\"local.list\", \"local.list.0\"]"),
		),
		mcp.WithString("partialvar",
			mcp.Description("Dump only this iname, e.g. 'local.list'"),
		),
		mcp.WithString("watchers",
			mcp.Description("JSON array of watch expressions: [{\"exp\": \"obj->d_ptr\"}] or [\"a + b\"]. Dumped as watch.<n>."),
		),
		mcp.WithString("resultvarname",
			mcp.Description("Name under which the last return value is dumped as return.<name>"),
		),
		mcp.WithNumber("maxnumchild",
			mcp.Description("Maximum children listed per container (default from configuration)"),
		),
		mcp.WithNumber("displaystringlimit",
			mcp.Description("Maximum characters shown per string (default from configuration)"),
		),
		mcp.WithBoolean("fancy",
			mcp.Description("Decode known Qt and standard types (default from configuration)"),
		),
		mcp.WithBoolean("autoderef",
			mcp.Description("Show pointers inline as their pointee"),
		),
		mcp.WithBoolean("qobjectnames",
			mcp.Description("Show QObject object names"),
		),
		mcp.WithBoolean("breakonabort",
			mcp.Description("Stop when the debuggee calls abort"),
		),
		mcp.WithBoolean("breakonwarning",
			mcp.Description("Stop when the debuggee calls qWarning"),
		),
		mcp.WithBoolean("breakonfatal",
			mcp.Description("Stop when the debuggee calls qFatal"),
		),
		mcp.WithString("format",
			mcp.Description("'json' (default) for a parsed item tree, or 'text' for the raw protocol document"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDumpFetch)
}

func (s *Server) registerDumpLayouts() {
	tool := mcp.NewTool("dump_layouts",
		mcp.WithDescription("List the private layout descriptors used to decode Qt types: offsets per Qt version range, pointer width and OS"),
		mcp.WithString("name",
			mcp.Description("Only descriptors whose type name contains this text"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDumpLayouts)
}
