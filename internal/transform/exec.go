package transform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
)

// ExecStage pipes the source through an external command, such as a style
// preprocessor, and uses its standard output. The command runs in the
// module's directory so it can resolve relative includes.
func ExecStage(sc config.StageConfig) Stage {
	version := sc.Version
	if version == "" {
		version = "cmd:" + strings.Join(sc.Command, " ")
	}
	return Stage{
		Name:    sc.Name,
		Version: version,
		Options: Options(sc.Options),
		Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			if err := validateCommand(sc.Command); err != nil {
				return Result{}, &errors.TransformError{Module: meta.ID, Stage: sc.Name, Cause: err}
			}

			args := append([]string(nil), sc.Command[1:]...)
			keys := make([]string, 0, len(opts))
			for k := range opts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				args = append(args, fmt.Sprintf("--%s=%s", k, opts[k]))
			}

			cmd := exec.CommandContext(ctx, sc.Command[0], args...)
			cmd.Dir = filepath.Dir(meta.Key)
			cmd.Stdin = bytes.NewReader(src)
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			if err := cmd.Run(); err != nil {
				if ctx.Err() != nil {
					return Result{}, ctx.Err()
				}
				return Result{}, &errors.TransformError{
					Module: meta.ID,
					Stage:  sc.Name,
					Cause:  fmt.Errorf("%s failed: %w: %s", sc.Command[0], err, strings.TrimSpace(stderr.String())),
				}
			}
			return Result{Output: stdout.Bytes()}, nil
		},
	}
}

// validateCommand rejects empty commands and shell metacharacters; commands
// are run directly, never through a shell.
func validateCommand(command []string) error {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return fmt.Errorf("empty command")
	}
	for _, arg := range command {
		if strings.ContainsAny(arg, ";&|`$<>\n") {
			return fmt.Errorf("invalid argument %q: contains shell metacharacters", arg)
		}
	}
	return nil
}
