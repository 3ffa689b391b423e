package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsOverridesDefault(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.SetDefault("pipeline.workers", 20)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 20, "")
	require.NoError(t, BindFlags(v, fs, FlagKeys{"workers": "pipeline.workers"}))

	require.Equal(t, 20, v.GetInt("pipeline.workers"))
	require.NoError(t, fs.Parse([]string{"--workers", "4"}))
	require.Equal(t, 4, v.GetInt("pipeline.workers"))
}

func TestBindFlagsUnsetFlagKeepsLowerLayers(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.SetDefault("render.variant", "zh-cn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("variant", "zh-tw", "")
	require.NoError(t, BindFlags(v, fs, FlagKeys{"variant": "render.variant"}))
	require.NoError(t, fs.Parse(nil))

	require.Equal(t, "zh-cn", v.GetString("render.variant"))
}

func TestBindFlagsUnknownFlag(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	err := BindFlags(viper.New(), fs, FlagKeys{"missing": "dump.path"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}
