// Package builtin provides the standard tool set: file operations, search,
// shell execution, web fetch, and the reasoning/completion markers used by
// bounded agent runs.
package builtin

import (
	"conductor/internal/tools"
)

// ReadOnlyToolNames lists the tools a strictly read-only agent may use.
var ReadOnlyToolNames = []string{"read_file", "list_dir", "search_files", "web_fetch", "think", "complete"}

// ActToolNames lists the tools an agent with write access may use.
var ActToolNames = append([]string{"write_file", "edit_file", "shell"}, ReadOnlyToolNames...)

// Register adds all built-in tools to the registry.
func Register(r *tools.Registry) error {
	all := []*tools.Tool{
		ReadFileTool(),
		WriteFileTool(),
		EditFileTool(),
		ListDirTool(),
		SearchFilesTool(),
		ShellTool(),
		WebFetchTool(),
		ThinkTool(),
		CompleteTool(),
	}
	for _, tool := range all {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers all built-in tools and panics on error.
func MustRegister(r *tools.Registry) {
	if err := Register(r); err != nil {
		panic(err)
	}
}
