package firewall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Applier swaps compiled rule sets onto the live netfilter state. Each apply
// validates and commits through iptables-restore: a rejected payload changes
// nothing, so the previous rule set stays in effect on failure and is never
// half-replaced.
type Applier struct {
	runner    Runner
	rulesFile string
	timeout   time.Duration
	log       *zap.Logger

	// fleet serializes a whole-fleet swap against per-user applies;
	// applies for different users proceed in parallel since each touches
	// a disjoint chain.
	fleet sync.RWMutex
	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewApplier(runner Runner, rulesFile string, timeout time.Duration, log *zap.Logger) *Applier {
	if runner == nil {
		runner = execRunner{}
	}

	return &Applier{
		runner:    runner,
		rulesFile: rulesFile,
		timeout:   timeout,
		log:       log,
		users:     make(map[string]*sync.Mutex),
	}
}

func (a *Applier) userLock(username string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.users[username]
	if !ok {
		lock = &sync.Mutex{}
		a.users[username] = lock
	}

	return lock
}

// ApplyUser compiles and swaps one user's chain. On ErrApply the previous
// chain contents are intact; the caller must re-trigger after investigating,
// nothing is retried here.
func (a *Applier) ApplyUser(ctx context.Context, user model.VPNUser, userRules []model.SecurityRule) error {
	a.fleet.RLock()
	defer a.fleet.RUnlock()

	lock := a.userLock(user.UserName)
	lock.Lock()
	defer lock.Unlock()

	directives, err := Compile(user, userRules)
	if err != nil {
		return err
	}

	chain := ChainName(user.UserName)
	payload := Render(chain, directives)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if out, err := a.runner.Run(ctx, payload, "iptables-restore", "--noflush"); err != nil {
		return fmt.Errorf("%w: chain %s: %v: %s", ErrApply, chain, err, out)
	}

	if err := a.ensureJump(ctx, user.IPAddress, chain); err != nil {
		return err
	}

	a.log.Info("firewall rules applied",
		zap.String("user", user.UserName),
		zap.String("chain", chain),
		zap.Int("directives", len(directives)))

	return a.persist(ctx)
}

// ApplyAll swaps every active user's chain in a single atomic reload.
func (a *Applier) ApplyAll(ctx context.Context, sets []UserRuleSet) error {
	a.fleet.Lock()
	defer a.fleet.Unlock()

	payload, err := RenderAll(sets)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if out, err := a.runner.Run(ctx, payload, "iptables-restore", "--noflush"); err != nil {
		return fmt.Errorf("%w: fleet apply: %v: %s", ErrApply, err, out)
	}

	for _, set := range sets {
		if err := a.ensureJump(ctx, set.User.IPAddress, ChainName(set.User.UserName)); err != nil {
			return err
		}
	}

	a.log.Info("fleet firewall apply finished", zap.Int("users", len(sets)))
	return a.persist(ctx)
}

// RemoveUser tears down a user's chain and its FORWARD jump. Used on
// explicit administrative removal.
func (a *Applier) RemoveUser(ctx context.Context, username, ip string) error {
	a.fleet.RLock()
	defer a.fleet.RUnlock()

	lock := a.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	chain := ChainName(username)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// The jump and chain may already be absent; only the final delete
	// matters for reporting.
	_, _ = a.runner.Run(ctx, "", "iptables", "-D", "FORWARD", "-s", ip, "-j", chain)
	_, _ = a.runner.Run(ctx, "", "iptables", "-F", chain)
	if out, err := a.runner.Run(ctx, "", "iptables", "-X", chain); err != nil {
		return fmt.Errorf("%w: delete chain %s: %v: %s", ErrApply, chain, err, out)
	}

	return a.persist(ctx)
}

// ensureJump inserts the FORWARD hook for a user's chain if it is missing.
// The check-then-insert pair is idempotent.
func (a *Applier) ensureJump(ctx context.Context, ip, chain string) error {
	if _, err := a.runner.Run(ctx, "", "iptables", "-C", "FORWARD", "-s", ip, "-j", chain); err == nil {
		return nil
	}

	if out, err := a.runner.Run(ctx, "", "iptables", "-I", "FORWARD", "-s", ip, "-j", chain); err != nil {
		return fmt.Errorf("%w: insert FORWARD jump for %s: %v: %s", ErrApply, chain, err, out)
	}

	return nil
}

// persist saves the live rule set to the configured file with a staged
// write and rename. The live rules are already applied when this runs; a
// persist failure is reported as ErrPersist so the caller can distinguish
// "applied but not durable" from a failed apply.
func (a *Applier) persist(ctx context.Context) error {
	if a.rulesFile == "" {
		return nil
	}

	out, err := a.runner.Run(ctx, "", "iptables-save")
	if err != nil {
		return fmt.Errorf("%w: iptables-save: %v", ErrPersist, err)
	}

	staging := filepath.Join(filepath.Dir(a.rulesFile),
		fmt.Sprintf(".%s.%s", filepath.Base(a.rulesFile), uuid.New().String()))
	if err := os.WriteFile(staging, []byte(out), 0600); err != nil {
		return fmt.Errorf("%w: stage rules file: %v", ErrPersist, err)
	}
	if err := os.Rename(staging, a.rulesFile); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("%w: replace rules file: %v", ErrPersist, err)
	}

	return nil
}
