package firewall

import (
	"context"
	"os/exec"
	"strings"
)

// Runner executes an enforcement-point command. The seam exists so applies
// can be exercised without a live netfilter.
type Runner interface {
	Run(ctx context.Context, stdin string, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	out, err := cmd.CombinedOutput()
	return string(out), err
}
