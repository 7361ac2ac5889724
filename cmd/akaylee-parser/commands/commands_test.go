/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands_test.go
Description: End-to-end tests of the parser commands on an in-memory filesystem.
*/

package commands

import (
	"bytes"
	"testing"

	"github.com/kleascm/akaylee-parser/pkg/core"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const numberGrammar = `
start: Number
terminals:
  - name: digit
    pattern: '[0-9]'
rules:
  - name: Number
    production: digit+
`

const oracleScript = `
- response:
    rule:
      name: Number
      production: "digit+ ('a' digit+)*"
      override: true
    confidence: 0.8
`

// setupWorkspace installs an in-memory filesystem and a clean global configuration
func setupWorkspace(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	prev := appFs
	appFs = fs
	viper.Reset()
	t.Cleanup(func() {
		appFs = prev
		viper.Reset()
	})

	require.NoError(t, afero.WriteFile(fs, "grammar.yaml", []byte(numberGrammar), 0644))
	require.NoError(t, afero.WriteFile(fs, "oracle.yaml", []byte(oracleScript), 0644))
	require.NoError(t, afero.WriteFile(fs, "docs/a.txt", []byte("12a3"), 0644))
	require.NoError(t, afero.WriteFile(fs, "docs/b.txt", []byte("45a6"), 0644))
	require.NoError(t, afero.WriteFile(fs, "docs/c.txt", []byte("7"), 0644))

	viper.Set("grammar", "grammar.yaml")
	viper.Set("logging.level", "error")
	return fs
}

func newCommand(flags func(c *cobra.Command)) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	if flags != nil {
		flags(cmd)
	}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

func parseFlags(c *cobra.Command) {
	c.Flags().String("output", "tree", "")
	c.Flags().String("grammar-out", "", "")
}

func TestParseRepairsGrammar(t *testing.T) {
	fs := setupWorkspace(t)
	viper.Set("oracle.kind", "scripted")
	viper.Set("oracle.script", "oracle.yaml")
	viper.Set("cache.file", "state/rules.zst")
	viper.Set("report_dir", "reports")
	viper.Set("dashboard_dir", "dash")
	viper.Set("profile.memory", true)
	viper.Set("profile.output_dir", "prof")

	cmd, out, _ := newCommand(parseFlags)
	require.NoError(t, cmd.Flags().Set("grammar-out", "final.yaml"))
	require.NoError(t, RunParse(cmd, []string{"docs"}))

	assert.Contains(t, out.String(), "== docs/a.txt")
	assert.Contains(t, out.String(), "(Number")

	final, err := afero.ReadFile(fs, "final.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(final), "digit+ ('a' digit+)*")

	reports, err := afero.Glob(fs, "reports/parse/*.json")
	require.NoError(t, err)
	assert.Len(t, reports, 3)

	dash, err := afero.ReadFile(fs, "dash/index.html")
	require.NoError(t, err)
	assert.Contains(t, string(dash), "docs/b.txt")

	profiles, err := afero.Glob(fs, "prof/memory_*.prof")
	require.NoError(t, err)
	assert.Len(t, profiles, 1)

	exists, err := afero.Exists(fs, "state/rules.zst")
	require.NoError(t, err)
	require.True(t, exists)

	show, showOut, _ := newCommand(func(c *cobra.Command) { c.Flags().String("cache-file", "", "") })
	require.NoError(t, show.Flags().Set("cache-file", "state/rules.zst"))
	require.NoError(t, RunCacheShow(show, nil))
	assert.Contains(t, showOut.String(), "Number -> digit+ ('a' digit+)* [override]")
	assert.Contains(t, showOut.String(), "confidence 0.80")

	require.NoError(t, RunCacheClear(show, nil))
	showOut.Reset()
	require.NoError(t, RunCacheShow(show, nil))
	assert.NotContains(t, showOut.String(), "Number ->")
}

func TestParseWithoutOracle(t *testing.T) {
	setupWorkspace(t)

	cmd, out, errOut := newCommand(parseFlags)
	err := RunParse(cmd, []string{"docs/a.txt"})
	require.Error(t, err)
	assert.Equal(t, core.CodeLex, core.Classify(err))
	assert.Contains(t, Hint(err), "--oracle")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "docs/a.txt")

	cmd, out, _ = newCommand(parseFlags)
	require.NoError(t, cmd.Flags().Set("output", "json"))
	require.NoError(t, RunParse(cmd, []string{"docs/c.txt"}))
	assert.Contains(t, out.String(), `"name":"docs/c.txt"`)
	assert.Contains(t, out.String(), `"code":"ok"`)
	assert.Contains(t, out.String(), `"rule":"Number"`)

	cmd, _, _ = newCommand(parseFlags)
	require.NoError(t, cmd.Flags().Set("output", "xml"))
	assert.ErrorContains(t, RunParse(cmd, []string{"docs/c.txt"}), "unknown output format")
}

func TestGrammarCheckAndTokens(t *testing.T) {
	setupWorkspace(t)

	cmd, out, errOut := newCommand(nil)
	require.NoError(t, RunGrammarCheck(cmd, []string{"grammar.yaml"}))
	assert.Contains(t, out.String(), "start Number")
	assert.Contains(t, out.String(), "Number -> digit+")
	assert.Contains(t, errOut.String(), "1 terminal(s), 1 rule(s)")

	cmd, out, _ = newCommand(func(c *cobra.Command) { c.Flags().String("html-selector", "", "") })
	require.NoError(t, RunTokens(cmd, []string{"docs/c.txt"}))
	assert.Contains(t, out.String(), "digit")
	assert.Contains(t, out.String(), `"7"`)

	cmd, _, _ = newCommand(func(c *cobra.Command) { c.Flags().String("html-selector", "", "") })
	err := RunTokens(cmd, []string{"docs/a.txt"})
	assert.ErrorContains(t, err, "no terminal matches 'a'")

	viper.Set("grammar", "")
	cmd, _, _ = newCommand(nil)
	assert.ErrorContains(t, RunTokens(cmd, nil), "no grammar given")
}
