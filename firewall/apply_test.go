package firewall

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type call struct {
	name  string
	args  []string
	stdin string
}

// fakeRunner records enforcement-point commands and fails any command whose
// name is in failOn.
type fakeRunner struct {
	calls  []call
	failOn map[string]error
	saved  string
}

func (f *fakeRunner) Run(_ context.Context, stdin string, name string, args ...string) (string, error) {
	f.calls = append(f.calls, call{name: name, args: args, stdin: stdin})

	if err, ok := f.failOn[name]; ok && err != nil {
		return "iptables-restore: line 4 failed", err
	}
	if name == "iptables" && len(args) > 0 && args[0] == "-C" {
		// Jump check misses so the insert path runs.
		return "", errors.New("no such rule")
	}
	if name == "iptables-save" {
		return f.saved, nil
	}
	return "", nil
}

func (f *fakeRunner) commandNames() []string {
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.name)
	}
	return names
}

func newTestApplier(t *testing.T, runner Runner, rulesFile string) *Applier {
	t.Helper()
	return NewApplier(runner, rulesFile, 5*time.Second, zap.NewNop())
}

func TestApplyUserSwapsAndPersists(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "rules.v4")
	runner := &fakeRunner{saved: "*filter\n-A VPN_USER_alice -j ACCEPT\nCOMMIT\n"}

	applier := newTestApplier(t, runner, rulesFile)
	user := testUser("alice", "10.8.0.1")
	rules := []model.SecurityRule{testRule(1, "10.10.0.0/24", model.ProtocolTCP, "443", model.ActionAccept)}

	require.NoError(t, applier.ApplyUser(context.Background(), user, rules))

	require.NotEmpty(t, runner.calls)
	restore := runner.calls[0]
	assert.Equal(t, "iptables-restore", restore.name)
	assert.Equal(t, []string{"--noflush"}, restore.args)
	assert.Contains(t, restore.stdin, ":VPN_USER_alice - [0:0]")
	assert.Contains(t, restore.stdin, "-F VPN_USER_alice")

	// Missing FORWARD jump gets inserted after the swap.
	assert.Equal(t,
		[]string{"iptables-restore", "iptables", "iptables", "iptables-save"},
		runner.commandNames())
	insert := runner.calls[2]
	assert.Equal(t, []string{"-I", "FORWARD", "-s", "10.8.0.1", "-j", "VPN_USER_alice"}, insert.args)

	saved, err := os.ReadFile(rulesFile)
	require.NoError(t, err)
	assert.Equal(t, runner.saved, string(saved))
}

func TestApplyUserFailureLeavesOldSetAndStops(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]error{"iptables-restore": errors.New("exit status 1")}}
	applier := newTestApplier(t, runner, filepath.Join(t.TempDir(), "rules.v4"))

	user := testUser("alice", "10.8.0.1")
	rules := []model.SecurityRule{testRule(1, "10.10.0.0/24", model.ProtocolTCP, "443", model.ActionAccept)}

	err := applier.ApplyUser(context.Background(), user, rules)
	assert.ErrorIs(t, err, ErrApply)

	// A rejected payload commits nothing, so no jump management or
	// persistence may follow.
	assert.Equal(t, []string{"iptables-restore"}, runner.commandNames())
}

func TestApplyUserCompileFailureRunsNothing(t *testing.T) {
	runner := &fakeRunner{}
	applier := newTestApplier(t, runner, "")

	user := testUser("alice", "10.8.0.1")
	bad := []model.SecurityRule{testRule(1, "bogus", model.ProtocolTCP, "443", model.ActionAccept)}

	err := applier.ApplyUser(context.Background(), user, bad)
	assert.ErrorIs(t, err, ErrCompile)
	assert.Empty(t, runner.calls)
}

func TestApplyUserPersistFailureIsDistinct(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]error{"iptables-save": errors.New("exit status 1")}}
	applier := newTestApplier(t, runner, filepath.Join(t.TempDir(), "rules.v4"))

	user := testUser("alice", "10.8.0.1")
	rules := []model.SecurityRule{testRule(1, "10.10.0.0/24", model.ProtocolAny, "", model.ActionAccept)}

	err := applier.ApplyUser(context.Background(), user, rules)
	assert.ErrorIs(t, err, ErrPersist)
	assert.NotErrorIs(t, err, ErrApply)
}

func TestApplyAllSingleRestore(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{saved: "persisted"}
	applier := newTestApplier(t, runner, filepath.Join(dir, "rules.v4"))

	sets := []UserRuleSet{
		{User: testUser("alice", "10.8.0.1"), Rules: []model.SecurityRule{testRule(1, "10.10.0.0/24", model.ProtocolTCP, "443", model.ActionAccept)}},
		{User: testUser("bob", "10.8.0.2"), Rules: nil},
	}

	require.NoError(t, applier.ApplyAll(context.Background(), sets))

	restores := 0
	for _, c := range runner.calls {
		if c.name == "iptables-restore" {
			restores++
		}
	}
	assert.Equal(t, 1, restores)
	assert.Contains(t, runner.calls[0].stdin, ":VPN_USER_alice")
	assert.Contains(t, runner.calls[0].stdin, ":VPN_USER_bob")
}

func TestRemoveUserTearsDownChain(t *testing.T) {
	runner := &fakeRunner{}
	applier := newTestApplier(t, runner, "")

	require.NoError(t, applier.RemoveUser(context.Background(), "alice", "10.8.0.1"))

	var flags [][]string
	for _, c := range runner.calls {
		if c.name == "iptables" {
			flags = append(flags, c.args)
		}
	}
	require.Len(t, flags, 3)
	assert.Equal(t, []string{"-D", "FORWARD", "-s", "10.8.0.1", "-j", "VPN_USER_alice"}, flags[0])
	assert.Equal(t, []string{"-F", "VPN_USER_alice"}, flags[1])
	assert.Equal(t, []string{"-X", "VPN_USER_alice"}, flags[2])
}

func TestPersistReplacesFileAtomically(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "rules.v4")
	require.NoError(t, os.WriteFile(rulesFile, []byte("old rules"), 0600))

	runner := &fakeRunner{saved: "new rules"}
	applier := newTestApplier(t, runner, rulesFile)

	user := testUser("alice", "10.8.0.1")
	require.NoError(t, applier.ApplyUser(context.Background(), user, nil))

	saved, err := os.ReadFile(rulesFile)
	require.NoError(t, err)
	assert.Equal(t, "new rules", string(saved))

	// No staging leftovers.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), "."))
}
