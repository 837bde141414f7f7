package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootWiresAllSubcommands(t *testing.T) {
	root := Root()
	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t,
		[]string{"plan", "apply", "configure", "deploy", "destroy", "version"}, names)
	assert.True(t, root.SilenceUsage)
	assert.True(t, root.SilenceErrors)
}

func TestDeploymentDocumentFlag(t *testing.T) {
	for _, cmd := range []*cobra.Command{Plan(), Apply(), Configure(), Deploy(), Destroy()} {
		t.Run(cmd.Name(), func(t *testing.T) {
			flag := cmd.Flags().Lookup("config")
			require.NotNil(t, flag)
			assert.Equal(t, "c", flag.Shorthand)
			assert.Equal(t, "deployment.yaml", flag.DefValue)
		})
	}
}

func TestConfigureFlags(t *testing.T) {
	cmd := Configure()

	tasks := cmd.Flags().Lookup("tasks")
	require.NotNil(t, tasks)
	assert.Equal(t, "t", tasks.Shorthand)
	assert.Equal(t, "", tasks.DefValue)

	generation := cmd.Flags().Lookup("generation")
	require.NotNil(t, generation)
	assert.Equal(t, "g", generation.Shorthand)
	assert.Equal(t, "0", generation.DefValue)
}

func TestDeployLocalFlag(t *testing.T) {
	flag := Deploy().Flags().Lookup("local")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", logLevel("debug").String())
	assert.Equal(t, "WARN", logLevel("warn").String())
	assert.Equal(t, "ERROR", logLevel("error").String())
	assert.Equal(t, "INFO", logLevel("info").String())
	assert.Equal(t, "INFO", logLevel("").String())
}
