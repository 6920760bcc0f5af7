package firewall

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/util"
)

var (
	ErrCompile = errors.New("rule compilation failed")
	ErrApply   = errors.New("firewall apply failed")
	ErrPersist = errors.New("firewall rules applied but not persisted")
)

// ChainPrefix namespaces compiled directives per user so an apply can
// replace one user's slice without disturbing SSH, NAT, RADIUS or other
// users' chains.
const ChainPrefix = "VPN_USER_"

// iptables rejects chain names longer than 28 characters.
const maxChainName = 28

func ChainName(username string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-', r == '.':
			return r
		}
		return '_'
	}, username)

	name := ChainPrefix + sanitized
	if len(name) > maxChainName {
		// Plain truncation would collide usernames sharing a long
		// prefix; a short hash of the full name keeps them distinct.
		sum := sha256.Sum256([]byte(username))
		name = fmt.Sprintf("%s_%x", name[:maxChainName-7], sum[:3])
	}

	return name
}

// Directive is one compiled packet-filter statement: match traffic from the
// user's address to a destination route, optionally narrowed by protocol and
// port, with a terminal action.
type Directive struct {
	Source   string
	Dest     string
	Protocol string
	Port     string
	Action   string
}

// Compile turns a user's enabled rules into directives in stored creation
// order. Ordering is deliberate: when two rules target the same (route,
// protocol, port) tuple with conflicting actions, the later rule is appended
// later in the chain and governs. Malformed stored data fails the whole
// compilation; nothing is partially emitted.
func Compile(user model.VPNUser, rules []model.SecurityRule) ([]Directive, error) {
	if user.IPAddress == "" || !util.ValidIP(user.IPAddress) {
		return nil, fmt.Errorf("%w: user %s has no valid address", ErrCompile, user.UserName)
	}

	ordered := make([]model.SecurityRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	var directives []Directive
	for _, rule := range ordered {
		if !rule.Active || !rule.Enabled {
			continue
		}

		if !util.ValidRoute(rule.Route) {
			return nil, fmt.Errorf("%w: rule %s has bad route %q", ErrCompile, rule.ID, rule.Route)
		}
		if !util.ValidProtocol(rule.Protocol) {
			return nil, fmt.Errorf("%w: rule %s has bad protocol %q", ErrCompile, rule.ID, rule.Protocol)
		}
		if !util.ValidAction(rule.Action) {
			return nil, fmt.Errorf("%w: rule %s has bad action %q", ErrCompile, rule.ID, rule.Action)
		}
		if rule.Port != "" && !util.ValidPort(rule.Port) {
			return nil, fmt.Errorf("%w: rule %s has bad port %q", ErrCompile, rule.ID, rule.Port)
		}

		directive := Directive{
			Source:   user.IPAddress,
			Dest:     rule.Route,
			Protocol: rule.Protocol,
			Action:   rule.Action,
		}
		if rule.Port != "" && (rule.Protocol == model.ProtocolTCP || rule.Protocol == model.ProtocolUDP) {
			directive.Port = rule.Port
		}

		directives = append(directives, directive)
	}

	return directives, nil
}

// Render produces an iptables-restore payload that declares and flushes only
// the given chain and appends the directives. Loaded with --noflush, the
// enforcement point validates the whole payload and applies it in one commit
// or not at all.
func Render(chain string, directives []Directive) string {
	var b strings.Builder

	b.WriteString("*filter\n")
	fmt.Fprintf(&b, ":%s - [0:0]\n", chain)
	fmt.Fprintf(&b, "-F %s\n", chain)

	for _, d := range directives {
		writeDirective(&b, chain, d)
	}

	b.WriteString("COMMIT\n")
	return b.String()
}

func writeDirective(b *strings.Builder, chain string, d Directive) {
	fmt.Fprintf(b, "-A %s -s %s -d %s", chain, d.Source, d.Dest)
	if d.Protocol != model.ProtocolAny {
		fmt.Fprintf(b, " -p %s", d.Protocol)
		if d.Port != "" {
			// iptables expresses ranges with a colon.
			fmt.Fprintf(b, " --dport %s", strings.ReplaceAll(d.Port, "-", ":"))
		}
	}
	fmt.Fprintf(b, " -j %s\n", d.Action)
}

// RenderAll builds one payload covering every given user, for a fleet-wide
// atomic swap.
func RenderAll(sets []UserRuleSet) (string, error) {
	var b strings.Builder
	b.WriteString("*filter\n")

	type compiled struct {
		chain      string
		directives []Directive
	}
	all := make([]compiled, 0, len(sets))

	for _, set := range sets {
		directives, err := Compile(set.User, set.Rules)
		if err != nil {
			return "", err
		}
		chain := ChainName(set.User.UserName)
		fmt.Fprintf(&b, ":%s - [0:0]\n", chain)
		fmt.Fprintf(&b, "-F %s\n", chain)
		all = append(all, compiled{chain: chain, directives: directives})
	}

	for _, c := range all {
		for _, d := range c.directives {
			writeDirective(&b, c.chain, d)
		}
	}

	b.WriteString("COMMIT\n")
	return b.String(), nil
}

// UserRuleSet pairs a user with their stored rules for a fleet apply.
type UserRuleSet struct {
	User  model.VPNUser
	Rules []model.SecurityRule
}
