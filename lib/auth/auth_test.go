package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{"empty", nil, []string{}, false},
		{"single", []string{"@read"}, []string{"@read"}, false},
		{"canonical order", []string{"@report", "@read"}, []string{"@read", "@report"}, false},
		{"whitespace", []string{" @db-admin ", ""}, []string{"@db-admin"}, false},
		{"none alone", []string{"@none"}, []string{}, false},
		{"none combined", []string{"@none", "@read"}, nil, true},
		{"unknown", []string{"@write"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms, err := ParsePermissions(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, perms.List())
		})
	}
}

func TestHas(t *testing.T) {
	perms := MustParsePermissions("@read", "@report")
	assert.True(t, perms.Has(PermRead))
	assert.True(t, perms.Has(PermReport))
	assert.False(t, perms.Has(PermDBAdmin))

	all := MustParsePermissions("@all")
	for _, p := range []Permission{PermRead, PermReport, PermDBAdmin, PermUserAdmin} {
		assert.True(t, all.Has(p), "@all should imply %s", p)
	}

	assert.False(t, Permissions{}.Has(PermRead))
}

func TestUnion(t *testing.T) {
	user := MustParsePermissions("@db-admin")
	anon := MustParsePermissions("@read", "@report")

	u := user.Union(anon)
	assert.Equal(t, "@read,@report,@db-admin", u.String())
	// inputs are untouched
	assert.Equal(t, "@db-admin", user.String())
	assert.Equal(t, "@read,@report", anon.String())

	assert.Equal(t, "@read", Permissions{}.Union(MustParsePermissions("@read")).String())
	assert.True(t, MustParsePermissions("@all").Union(Permissions{}).Has(PermUserAdmin))
}

func TestStringRoundTrip(t *testing.T) {
	perms := MustParsePermissions("@user-admin", "@read")
	assert.Equal(t, "@read,@user-admin", perms.String())

	parsed, err := FromString(perms.String())
	require.NoError(t, err)
	assert.Equal(t, perms, parsed)

	empty, err := FromString("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKnown(t *testing.T) {
	assert.Contains(t, Known(), "@all")
	assert.Len(t, Known(), 6)
}

func TestTokens(t *testing.T) {
	SetHashCost(bcrypt.MinCost)

	a, b := NewToken(), NewToken()
	assert.NotEqual(t, a, b)

	hash, err := HashToken(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, hash, "the token must not be stored in clear text")

	assert.True(t, CheckToken(hash, a))
	assert.False(t, CheckToken(hash, b))
	assert.False(t, CheckToken("", a))
}
