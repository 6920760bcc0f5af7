package directory

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

func entry(attrs map[string][]string) *ldap.Entry {
	e := &ldap.Entry{DN: "cn=test,dc=example,dc=com"}
	for name, values := range attrs {
		e.Attributes = append(e.Attributes, &ldap.EntryAttribute{
			Name:   name,
			Values: values,
		})
	}
	return e
}

func TestSearchFilter(t *testing.T) {
	got := SearchFilter(`(&(sAMAccountName=%{User-Name})(memberOf=CN=vpn-users,OU=Groups,DC=corp,DC=local))`)
	assert.Equal(t, "(&(objectClass=user)(memberOf=CN=vpn-users,OU=Groups,DC=corp,DC=local))", got)

	assert.Equal(t, "(objectClass=user)", SearchFilter(`(sAMAccountName=%{User-Name})`))
	assert.Equal(t, "(objectClass=user)", SearchFilter(""))
}

func TestMapEntryFallbacks(t *testing.T) {
	user, ok := MapEntry(entry(map[string][]string{
		"sAMAccountName": {"Alice"},
		"displayName":    {"Alice Liddell"},
		"mail":           {"alice@corp.local"},
	}))
	assert.True(t, ok)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "Alice Liddell", user.FullName)
	assert.Equal(t, "alice@corp.local", user.Email)

	user, ok = MapEntry(entry(map[string][]string{
		"sAMAccountName":    {"bob"},
		"givenName":         {"Bob"},
		"sn":                {"Stone"},
		"userPrincipalName": {"bob@corp.local"},
	}))
	assert.True(t, ok)
	assert.Equal(t, "Bob Stone", user.FullName)
	assert.Equal(t, "bob@corp.local", user.Email)

	_, ok = MapEntry(entry(map[string][]string{"cn": {"no account name"}}))
	assert.False(t, ok)
}

func TestMapEntriesNormalizesCaseDuplicates(t *testing.T) {
	users := mapEntries([]*ldap.Entry{
		entry(map[string][]string{"sAMAccountName": {"Carol"}}),
		entry(map[string][]string{"sAMAccountName": {"carol"}}),
		entry(map[string][]string{"sAMAccountName": {"dave"}}),
	})

	assert.Len(t, users, 2)
	assert.Equal(t, "carol", users[0].Username)
	assert.Equal(t, "dave", users[1].Username)
}

func TestFetchRejectsMalformedFilter(t *testing.T) {
	// A memberOf value with an unbalanced paren yields an uncompilable
	// filter; Fetch must fail with ErrQuery before touching the network.
	c := NewClient("ldap://127.0.0.1:1", "", "", "dc=x", "(memberOf=CN=(bad", 0)
	_, err := c.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrQuery)
}
