package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["seed-admin"])

	migrate, _, err := root.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", migrate.Name())

	flag := root.PersistentFlags().Lookup("timeout")
	require.NotNil(t, flag)
	assert.Equal(t, defaultTimeout.String(), flag.DefValue)
}

func TestSeedAdmin_RequiresCredentials(t *testing.T) {
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")

	root := NewRootCmd()
	root.SetArgs([]string{"seed-admin"})
	root.SetOut(new(discard))
	root.SetErr(new(discard))

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_EMAIL")
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
