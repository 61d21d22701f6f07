package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tandem", cmd.Use)
	assert.Contains(t, cmd.Long, "one active session per")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"device"},
		{"account", "add"},
		{"watch"},
		{"send"},
		{"conversations"},
		{"read"},
		{"sessions"},
		{"reminders", "latest"},
		{"reminders", "refresh"},
		{"reminders", "ack"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestAuthFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"send"}, {"watch"}, {"conversations"}, {"read"}, {"sessions"}, {"reminders", "ack"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		as := sub.Flags().Lookup("as")
		require.NotNil(t, as, "%v should take --as", path)
		assert.NotNil(t, sub.Flags().Lookup("secret"))
	}
}

func TestRemindersLatestFlags(t *testing.T) {
	cmd := NewRootCommand()
	latest, _, err := cmd.Find([]string{"reminders", "latest"})
	require.NoError(t, err)

	limit := latest.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "n", limit.Shorthand)
	assert.Equal(t, "5", limit.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute([]string{"device", "--format", "xml"}, &stdout, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout.String(), "invalid format")
}
