package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dipakchaulagain/NetAuthVPN/model"

	"go.uber.org/zap"
)

var (
	ErrServiceNotAllowed = errors.New("service is not managed here")
	ErrForbidden         = errors.New("role may not restart this service")
	ErrRestart           = errors.New("service restart failed")
	ErrRestartTimeout    = errors.New("service restart timed out")
)

// Service states as reported by the init system.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusUnknown = "unknown"
)

// Runner executes an init-system command. Swapped out in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// Controller restarts and inspects a fixed whitelist of services. Anything
// outside the whitelist is rejected before touching the init system.
type Controller struct {
	runner    Runner
	allowed   map[string]bool
	adminOnly map[string]bool
	timeout   time.Duration
	log       *zap.Logger
}

func NewController(runner Runner, allowed, adminOnly []string, timeout time.Duration, log *zap.Logger) *Controller {
	if runner == nil {
		runner = execRunner{}
	}

	c := &Controller{
		runner:    runner,
		allowed:   make(map[string]bool, len(allowed)),
		adminOnly: make(map[string]bool, len(adminOnly)),
		timeout:   timeout,
		log:       log,
	}
	for _, s := range allowed {
		c.allowed[s] = true
	}
	for _, s := range adminOnly {
		c.adminOnly[s] = true
	}

	return c
}

// Services lists the managed service names.
func (c *Controller) Services() []string {
	names := make([]string, 0, len(c.allowed))
	for s := range c.allowed {
		names = append(names, s)
	}
	return names
}

// CanRestart reports whether a portal role may restart the named service.
// Viewers and auditors never restart anything; admin-only services need the
// administrator role.
func (c *Controller) CanRestart(service, role string) error {
	if !c.allowed[service] {
		return fmt.Errorf("%w: %s", ErrServiceNotAllowed, service)
	}

	switch role {
	case model.RoleAdministrator:
		return nil
	case model.RoleOperator:
		if c.adminOnly[service] {
			return fmt.Errorf("%w: %s requires administrator", ErrForbidden, service)
		}
		return nil
	}

	return fmt.Errorf("%w: role %s", ErrForbidden, role)
}

// Status queries the init system for the service state.
func (c *Controller) Status(ctx context.Context, service string) (string, error) {
	if !c.allowed[service] {
		return "", fmt.Errorf("%w: %s", ErrServiceNotAllowed, service)
	}

	out, err := c.runner.Run(ctx, "systemctl", "is-active", service)
	state := strings.TrimSpace(out)
	switch {
	case state == "active":
		return StatusRunning, nil
	case state == "inactive" || state == "failed":
		return StatusStopped, nil
	case err != nil && state == "":
		return StatusUnknown, fmt.Errorf("%w: status %s: %v", ErrRestart, service, err)
	}

	return StatusUnknown, nil
}

// Restart restarts a whitelisted service under the configured deadline. A
// timeout is reported distinctly since the service may still come up after
// the deadline fires.
func (c *Controller) Restart(ctx context.Context, service string) error {
	if !c.allowed[service] {
		return fmt.Errorf("%w: %s", ErrServiceNotAllowed, service)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.log.Info("restarting service", zap.String("service", service))

	out, err := c.runner.Run(ctx, "systemctl", "restart", service)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s after %s", ErrRestartTimeout, service, c.timeout)
		}
		return fmt.Errorf("%w: %s: %v: %s", ErrRestart, service, err, strings.TrimSpace(out))
	}

	return nil
}
