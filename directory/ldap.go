package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

var (
	ErrUnavailable = errors.New("directory unavailable")
	ErrQuery       = errors.New("directory query failed")
)

// User is the fixed shape this adapter exposes. Extra directory attributes
// stay out of the contract.
type User struct {
	Username string
	FullName string
	Email    string
}

// Source is what the reconciler consumes.
type Source interface {
	Fetch(ctx context.Context) ([]User, error)
}

// Client queries an LDAP/AD directory with service credentials and a
// configured membership filter. Fetch is read-only and side-effect-free.
type Client struct {
	server     string
	identity   string
	password   string
	baseDN     string
	userFilter string
	timeout    time.Duration
}

func NewClient(server, identity, password, baseDN, userFilter string, timeout time.Duration) *Client {
	return &Client{
		server:     server,
		identity:   identity,
		password:   password,
		baseDN:     baseDN,
		userFilter: userFilter,
		timeout:    timeout,
	}
}

var userAttributes = []string{
	"sAMAccountName", "displayName", "cn", "givenName", "sn",
	"mail", "userPrincipalName",
}

func (c *Client) Fetch(ctx context.Context) ([]User, error) {
	filter := SearchFilter(c.userFilter)
	if _, err := ldap.CompileFilter(filter); err != nil {
		return nil, fmt.Errorf("%w: bad filter %q: %v", ErrQuery, filter, err)
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := ldap.DialURL(c.server, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()
	conn.SetTimeout(c.timeout)

	if err := conn.Bind(c.identity, c.password); err != nil {
		return nil, fmt.Errorf("%w: bind: %v", ErrUnavailable, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		userAttributes,
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	return mapEntries(res.Entries), nil
}

var memberOfRe = regexp.MustCompile(`memberOf=([^)]+)`)

// SearchFilter converts the configured per-auth filter (FreeRADIUS style,
// e.g. "(&(sAMAccountName=%{User-Name})(memberOf=CN=vpn,...))") into an
// enumeration filter for the whole membership group.
func SearchFilter(configured string) string {
	if m := memberOfRe.FindStringSubmatch(configured); m != nil {
		return fmt.Sprintf("(&(objectClass=user)(memberOf=%s))", m[1])
	}

	return "(objectClass=user)"
}

func mapEntries(entries []*ldap.Entry) []User {
	seen := make(map[string]struct{}, len(entries))
	users := make([]User, 0, len(entries))

	for _, entry := range entries {
		user, ok := MapEntry(entry)
		if !ok {
			continue
		}
		// Username comparison downstream is case-normalized; drop
		// duplicate-by-case entries here.
		if _, dup := seen[user.Username]; dup {
			continue
		}
		seen[user.Username] = struct{}{}
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})

	return users
}

// MapEntry extracts the fixed user shape from a directory entry. Full name
// falls back from displayName to cn to "givenName sn"; email from mail to
// userPrincipalName.
func MapEntry(entry *ldap.Entry) (User, bool) {
	username := strings.ToLower(strings.TrimSpace(entry.GetAttributeValue("sAMAccountName")))
	if username == "" {
		return User{}, false
	}

	fullName := entry.GetAttributeValue("displayName")
	if fullName == "" {
		fullName = entry.GetAttributeValue("cn")
	}
	if fullName == "" {
		fullName = strings.TrimSpace(entry.GetAttributeValue("givenName") + " " + entry.GetAttributeValue("sn"))
	}

	email := entry.GetAttributeValue("mail")
	if email == "" {
		email = entry.GetAttributeValue("userPrincipalName")
	}

	return User{Username: username, FullName: fullName, Email: email}, true
}
