package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"conductor/internal/logging"
	"conductor/internal/tools"
)

// ReadFileTool returns a tool for reading file contents.
func ReadFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Execute:     executeReadFile,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to read",
				},
				"start_line": {
					Type:        "integer",
					Description: "Starting line number (1-indexed, optional)",
				},
				"end_line": {
					Type:        "integer",
					Description: "Ending line number (inclusive, optional)",
				},
			},
		},
	}
}

func executeReadFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	logging.ToolsDebug("read_file: path=%s", path)

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	result := string(content)

	startLine, hasStart := intArg(args, "start_line")
	endLine, hasEnd := intArg(args, "end_line")

	if hasStart || hasEnd {
		lines := strings.Split(result, "\n")

		if !hasStart {
			startLine = 1
		}
		if !hasEnd {
			endLine = len(lines)
		}

		// Convert to 0-indexed
		startLine--
		if startLine < 0 {
			startLine = 0
		}
		if endLine > len(lines) {
			endLine = len(lines)
		}
		if startLine > endLine {
			startLine = endLine
		}

		result = strings.Join(lines[startLine:endLine], "\n")
	}

	logging.Tools("read_file completed: %s (%d bytes)", path, len(result))
	return result, nil
}

// WriteFileTool returns a tool for writing content to a file.
func WriteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:             "write_file",
		Description:      "Write content to a file, creating it if it doesn't exist",
		Execute:          executeWriteFile,
		RequiresApproval: true,
		Schema: tools.ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to write",
				},
				"content": {
					Type:        "string",
					Description: "The content to write",
				},
				"create_dirs": {
					Type:        "boolean",
					Description: "Create parent directories if they don't exist (default: true)",
					Default:     true,
				},
			},
		},
	}
}

func executeWriteFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	content, _ := args["content"].(string)

	createDirs := true
	if cd, ok := args["create_dirs"].(bool); ok {
		createDirs = cd
	}

	if createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("failed to create directories: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	logging.Tools("write_file completed: %s (%d bytes)", path, len(content))
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool returns a tool for replacing an exact substring in a file.
func EditFileTool() *tools.Tool {
	return &tools.Tool{
		Name:             "edit_file",
		Description:      "Replace an exact string in a file with a new string",
		Execute:          executeEditFile,
		RequiresApproval: true,
		Schema: tools.ToolSchema{
			Required: []string{"path", "old_string", "new_string"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to edit",
				},
				"old_string": {
					Type:        "string",
					Description: "The exact text to replace (must appear exactly once)",
				},
				"new_string": {
					Type:        "string",
					Description: "The replacement text",
				},
				"replace_all": {
					Type:        "boolean",
					Description: "Replace all occurrences instead of requiring a unique match",
					Default:     false,
				},
			},
		},
	}
}

func executeEditFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if oldStr == "" {
		return "", fmt.Errorf("old_string is required")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	text := string(content)
	count := strings.Count(text, oldStr)
	if count == 0 {
		return "", fmt.Errorf("old_string not found in %s", path)
	}

	replaceAll, _ := args["replace_all"].(bool)
	if count > 1 && !replaceAll {
		return "", fmt.Errorf("old_string appears %d times in %s; provide more context or set replace_all", count, path)
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(text, oldStr, newStr)
	} else {
		updated = strings.Replace(text, oldStr, newStr, 1)
	}

	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	logging.Tools("edit_file completed: %s (%d replacement(s))", path, count)
	return fmt.Sprintf("Replaced %d occurrence(s) in %s", count, path), nil
}

// ListDirTool returns a tool for listing directory entries.
func ListDirTool() *tools.Tool {
	return &tools.Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory",
		Execute:     executeListDir,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The directory path to list",
				},
			},
		},
	}
}

func executeListDir(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("failed to read directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return strings.Join(names, "\n"), nil
}

// intArg extracts an integer argument that may arrive as a JSON float64.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
