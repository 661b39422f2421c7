package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"boxer/core/config"
)

var (
	flagConfigDir string
	log           zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "boxer",
	Short:         "Feed blocks to a chain over stdin and announce accepted blocks on stdout",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(cmd.Flags()); err != nil {
			return err
		}
		return initLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigDir, "config-dir", "C", ".",
		"directory holding boxer.toml")
	rootCmd.PersistentFlags().String("data-dir", "", "chain data directory, empty for an in-memory chain")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	rootCmd.PersistentFlags().String("log-format", "json", "log format: json or console")

	rootCmd.AddCommand(runCmd, mineCmd, balanceCmd, generateKeyCmd)
}

// initConfig layers flags over BOXER_* environment variables over
// boxer.toml.
func initConfig(flags *pflag.FlagSet) error {
	viper.SetConfigName("boxer")
	viper.SetConfigType("toml")
	viper.AddConfigPath(flagConfigDir)
	viper.SetEnvPrefix("BOXER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return viper.BindPFlags(flags)
}

func initLogger() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	var base zerolog.Logger
	switch format := viper.GetString("log-format"); format {
	case "console":
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	case "json", "":
		base = zerolog.New(os.Stderr)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	log = base.Level(level).With().Timestamp().Logger()
	return nil
}

// consensusFromConfig applies chain.* overrides to the default consensus.
func consensusFromConfig() (*config.Consensus, error) {
	c := config.DefaultConsensus()
	if s := viper.GetString("chain.genesis-target"); s != "" {
		t, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("chain.genesis-target: invalid hex %q", s)
		}
		c.GenesisTarget = t
	}
	if viper.IsSet("chain.genesis-timestamp") {
		c.GenesisTimestamp = viper.GetUint64("chain.genesis-timestamp")
	}
	if viper.IsSet("chain.retarget-interval") {
		c.RetargetInterval = viper.GetUint64("chain.retarget-interval")
	}
	if viper.IsSet("chain.block-spacing") {
		c.TargetBlockSpacing = viper.GetDuration("chain.block-spacing")
	}
	if viper.IsSet("chain.max-future-drift") {
		c.MaxFutureDrift = viper.GetDuration("chain.max-future-drift")
	}
	if viper.IsSet("chain.initial-subsidy") {
		c.InitialSubsidy = viper.GetUint64("chain.initial-subsidy")
	}
	if viper.IsSet("chain.halving-interval") {
		c.HalvingInterval = viper.GetUint64("chain.halving-interval")
	}
	return c, nil
}
