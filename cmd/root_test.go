package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"enrich", "acquire", "import", "status", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "placesync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"state-dir", "rates"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "root command should have --%s flag", name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "category", "limit", "dry-run", "resume"} {
		flag := enrichCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "enrich should have --%s flag", name)
	}
	assert.Equal(t, "false", enrichCmd.Flags().Lookup("dry-run").DefValue)
	assert.Equal(t, "0", enrichCmd.Flags().Lookup("limit").DefValue)
}

func TestAcquireCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "workers", "limit", "resume"} {
		flag := acquireCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "acquire should have --%s flag", name)
	}
	assert.Equal(t, "0", acquireCmd.Flags().Lookup("workers").DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("input")
	require.NotNil(t, flag, "import command should have --input flag")
}

func TestStatusCommand_Flags(t *testing.T) {
	flag := statusCmd.Flags().Lookup("json")
	require.NotNil(t, flag, "status command should have --json flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
