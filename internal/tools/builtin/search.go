package builtin

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"conductor/internal/logging"
	"conductor/internal/tools"
)

// SearchFilesTool returns a tool for searching file contents by substring or
// regular expression.
func SearchFilesTool() *tools.Tool {
	return &tools.Tool{
		Name:        "search_files",
		Description: "Search files under a directory for a substring or regular expression",
		Execute:     executeSearchFiles,
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "The text or regular expression to search for",
				},
				"path": {
					Type:        "string",
					Description: "Base directory for the search (default: current directory)",
				},
				"regex": {
					Type:        "boolean",
					Description: "Treat query as a regular expression (default: false)",
					Default:     false,
				},
				"extension": {
					Type:        "string",
					Description: "Only search files with this extension (e.g. '.go')",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of matching lines (default: 100)",
					Default:     100,
				},
			},
		},
	}
}

func executeSearchFiles(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	basePath := "."
	if bp, ok := args["path"].(string); ok && bp != "" {
		basePath = bp
	}

	maxResults := 100
	if mr, hasMr := intArg(args, "max_results"); hasMr && mr > 0 {
		maxResults = mr
	}

	extension, _ := args["extension"].(string)

	var re *regexp.Regexp
	if useRegex, _ := args["regex"].(bool); useRegex {
		var err error
		re, err = regexp.Compile(query)
		if err != nil {
			return "", fmt.Errorf("invalid regex: %w", err)
		}
	}

	logging.ToolsDebug("search_files: query=%q, base=%s", query, basePath)

	var sb strings.Builder
	matches := 0

	err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if matches >= maxResults {
			return filepath.SkipAll
		}
		if info.IsDir() {
			// Skip hidden directories and VCS metadata
			name := info.Name()
			if name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if extension != "" && !strings.HasSuffix(path, extension) {
			return nil
		}
		if info.Size() > 2<<20 {
			return nil // Skip large files
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			var matched bool
			if re != nil {
				matched = re.MatchString(line)
			} else {
				matched = strings.Contains(line, query)
			}
			if matched {
				sb.WriteString(fmt.Sprintf("%s:%d: %s\n", path, lineNum, strings.TrimSpace(line)))
				matches++
				if matches >= maxResults {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", fmt.Errorf("search failed: %w", err)
	}

	if matches == 0 {
		return "No matches found", nil
	}

	logging.Tools("search_files completed: %d match(es) for %q", matches, query)
	return sb.String(), nil
}
