// Package types defines shared data types used across dap-dump.
//
// This package provides type definitions for:
//   - AdapterKind: supported native debug adapters (gdb, lldb)
//   - SessionStatus: dump session states
//   - Request types: AttachRequest, FetchRequest, Watcher
//   - Result types: Document, Item, TypeInfo, SessionInfo
//
// These types are the contract between the MCP surface, the CLI and the
// dump engine.
package types

// AdapterKind represents a supported debug adapter
type AdapterKind string

const (
	AdapterGDB  AdapterKind = "gdb"
	AdapterLLDB AdapterKind = "lldb"
)

// SessionStatus represents the status of a dump session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusAttached     SessionStatus = "attached"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// AttachRequest represents a request to attach a dump session to a process
type AttachRequest struct {
	Adapter AdapterKind `json:"adapter"`
	Program string      `json:"program,omitempty"`
	PID     int         `json:"pid,omitempty"`
	// Address of an already running adapter ("host:port"). When empty the
	// adapter is spawned.
	Address string `json:"address,omitempty"`
}

// SessionInfo represents information about a dump session
type SessionInfo struct {
	SessionID   string        `json:"sessionId"`
	Adapter     AdapterKind   `json:"adapter"`
	Status      SessionStatus `json:"status"`
	PID         int           `json:"pid,omitempty"`
	Program     string        `json:"program,omitempty"`
	PointerSize int           `json:"pointerSize,omitempty"`
	OS          string        `json:"os,omitempty"`
	QtVersion   string        `json:"qtVersion,omitempty"`
	QtNamespace string        `json:"qtNamespace,omitempty"`
	Fetches     int           `json:"fetches"`
}

// Watcher is a watch expression dumped under its iname.
type Watcher struct {
	// IName defaults to "watch.<n>".
	IName      string `json:"iname,omitempty"`
	Expression string `json:"exp"`
}

// FetchRequest configures one dump.
type FetchRequest struct {
	// VarList names the variables to dump; empty means all locals.
	VarList []string `json:"varlist,omitempty"`
	// Expanded lists the inames whose children are materialized.
	Expanded []string `json:"expanded,omitempty"`
	// PartialVar re-dumps a single node, e.g. "local.list".
	PartialVar    string    `json:"partialvar,omitempty"`
	Watchers      []Watcher `json:"watchers,omitempty"`
	ResultVarName string    `json:"resultvarname,omitempty"`

	AutoDeref      bool `json:"autoderef,omitempty"`
	Fancy          bool `json:"fancy"`
	QObjectNames   bool `json:"qobjectnames,omitempty"`
	PassExceptions bool `json:"passexception,omitempty"`
	BreakOnAbort   bool `json:"breakonabort,omitempty"`
	BreakOnWarning bool `json:"breakonwarning,omitempty"`
	BreakOnFatal   bool `json:"breakonfatal,omitempty"`

	// Zero values fall back to the session configuration.
	MaxNumChild        int `json:"maxnumchild,omitempty"`
	DisplayStringLimit int `json:"displaystringlimit,omitempty"`
}

// Item is one node of a parsed dump document.
type Item struct {
	Name     string `json:"name,omitempty"`
	IName    string `json:"iname"`
	Value    string `json:"value,omitempty"`
	Encoding string `json:"valueencoded,omitempty"`
	Elided   int    `json:"valueelided,omitempty"`
	// Text is Value decoded from its encoding when the encoding is a
	// character set.
	Text     string            `json:"text,omitempty"`
	Type     string            `json:"type,omitempty"`
	NumChild int               `json:"numchild"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Item            `json:"children,omitempty"`
}

// TypeInfo reports the size of a type seen during a fetch.
type TypeInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Document is a parsed dump document.
type Document struct {
	Items       []Item         `json:"data"`
	TypeInfo    []TypeInfo     `json:"typeinfo,omitempty"`
	QtNamespace string         `json:"qtnamespace,omitempty"`
	Partial     bool           `json:"partial"`
	Counts      map[string]int `json:"counts,omitempty"`
	TimeMS      int64          `json:"time"`
}
