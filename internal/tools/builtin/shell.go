package builtin

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"conductor/internal/logging"
	"conductor/internal/tools"
)

const maxShellOutput = 50000

// ShellTool returns a streaming tool for executing shell commands. Output
// lines are emitted incrementally as the command produces them.
func ShellTool() *tools.Tool {
	return &tools.Tool{
		Name:             "shell",
		Description:      "Execute a shell command and return its output",
		ExecuteStream:    executeShell,
		RequiresApproval: true,
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute",
				},
				"working_dir": {
					Type:        "string",
					Description: "Working directory for the command",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Timeout in seconds (default: 60)",
					Default:     60,
				},
			},
		},
	}
}

func executeShell(ctx context.Context, args map[string]any, emit func(chunk string)) (string, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return "", fmt.Errorf("command is required")
	}

	workingDir := ""
	if wd, ok := args["working_dir"].(string); ok {
		workingDir = wd
	}

	timeout := 60
	if t, hasT := intArg(args, "timeout_seconds"); hasT && t > 0 {
		timeout = t
	}

	logging.ToolsDebug("shell: cmd=%s, dir=%s, timeout=%ds", command, workingDir, timeout)

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // Interleave stderr with stdout in stream order

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command: %w", err)
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if sb.Len() < maxShellOutput {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		emit(line)
	}

	waitErr := cmd.Wait()

	output := sb.String()
	if len(output) > maxShellOutput {
		output = output[:maxShellOutput] + "\n...[truncated]"
	}

	if waitErr != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("command timed out after %d seconds", timeout)
		}
		logging.Tools("shell failed: %s (%v)", command, waitErr)
		return output, fmt.Errorf("command failed: %w", waitErr)
	}

	logging.Tools("shell completed: %s (%d bytes output)", command, len(output))
	return output, nil
}
