package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/parley-ai/parley/internal/tool"
)

// DefaultCommandAllowlist is the read-only command set permitted when
// the deployment does not configure its own.
var DefaultCommandAllowlist = []string{
	"ls", "pwd", "whoami", "date", "uptime", "df", "free",
	"ps", "cat", "head", "tail", "wc", "which", "file", "stat", "du", "uname",
}

var blockedShellChars = []string{"|", "&", ";", "$(", "`", ">", "<"}

const maxCommandOutput = 8 << 10

// CommandExecutor returns a tool that runs allowlisted system commands.
// Arguments are passed to the binary directly, never through a shell.
func CommandExecutor(allowlist []string) tool.Tool {
	if len(allowlist) == 0 {
		allowlist = DefaultCommandAllowlist
	}
	allowed := make(map[string]bool, len(allowlist))
	for _, c := range allowlist {
		allowed[c] = true
	}

	return tool.Tool{
		Name:        "command_executor",
		Description: "Execute an allowlisted read-only system command",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"command": {Type: "string", Description: "Command with arguments, e.g. 'df -h'"},
		}, "command"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			command := strings.TrimSpace(args["command"].(string))
			if command == "" {
				return "", fmt.Errorf("command is empty")
			}

			for _, ch := range blockedShellChars {
				if strings.Contains(command, ch) {
					return "", fmt.Errorf("command contains blocked character %q", ch)
				}
			}

			fields := strings.Fields(command)
			if !allowed[fields[0]] {
				return "", fmt.Errorf("command %q is not in the allowlist", fields[0])
			}

			cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out

			if err := cmd.Run(); err != nil {
				return "", fmt.Errorf("command failed: %v\n%s", err, truncate(out.String(), maxCommandOutput))
			}
			return truncate(out.String(), maxCommandOutput), nil
		}),
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "\n... (truncated)"
	}
	return s
}
