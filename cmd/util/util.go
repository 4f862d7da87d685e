// Package util holds the pieces shared by the datavirt commands: flag and environment
// binding, config loading, output formatting and variable selection.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// EnvPrefix prefixes every environment variable read by datavirt.
const EnvPrefix = "DATAVIRT"

// Binding ties a config key to a flag. The flag name, upper cased with '-' replaced by
// '_' and prefixed by EnvPrefix, is always bound as an environment variable; Env lists
// extra accepted names.
type Binding struct {
	Key  string
	Flag string
	Env  []string
}

// FlagBinding binds a flag to the config key of the same name.
func FlagBinding(flag string) Binding {
	return Binding{Key: flag, Flag: flag}
}

// EnvName returns the environment variable bound to flag.
func EnvName(flag string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// MustBind applies bindings to viper and panics when a flag is not declared in flags or
// viper refuses a binding, both being programming errors.
func MustBind(flags *pflag.FlagSet, bindings ...Binding) {
	for _, b := range bindings {
		flag := flags.Lookup(b.Flag)
		if flag == nil {
			panic(fmt.Sprintf("flag '%s' is not declared", b.Flag))
		}
		if err := viper.BindPFlag(b.Key, flag); err != nil {
			panic("failed to bind pflag: " + err.Error())
		}
		env := append([]string{b.Key, EnvName(b.Flag)}, b.Env...)
		if err := viper.BindEnv(env...); err != nil {
			panic("failed to bind env key: " + err.Error())
		}
	}
}

// PrepareTempConfigDir points HOME to a temporary directory and returns its .datavirt
// config directory, after checking no system wide config.yaml would be read instead.
func PrepareTempConfigDir(t testing.TB) string {
	t.Helper()
	_, err := os.Stat("/etc/datavirt/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "/etc/datavirt/config.yaml would be read by the command under test")

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".datavirt")
	require.NoError(t, os.Mkdir(dir, 0o750))
	return dir
}

// PrepareTempConfigFile writes content as the config.yaml of a temporary config
// directory and returns its path.
func PrepareTempConfigFile(t testing.TB, content string) string {
	t.Helper()
	path := filepath.Join(PrepareTempConfigDir(t), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
