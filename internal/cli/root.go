package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"karte/internal/infrastructure/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "KARTE"

// settingFlags maps CLI flags onto the viper keys that mirror KARTE_*
// variables, so a flag, a config file entry and the environment all land
// on the same setting.
var settingFlags = []struct {
	flag  string
	key   string
	usage string
}{
	{flag: "port", key: "port", usage: "HTTP listen port"},
	{flag: "app-key", key: "app_key", usage: "32 character application key"},
	{flag: "base-url", key: "base_url", usage: "collection endpoint base URL"},
	{flag: "db-engine", key: "db_engine", usage: "datastore engine (sqlite or postgres)"},
	{flag: "db-dsn", key: "db_dsn", usage: "datastore DSN"},
	{flag: "connectivity", key: "connectivity_mode", usage: "connectivity mode (dial, interface or static)"},
}

var ignoredKeys = map[string]struct{}{
	"config":  {},
	"verbose": {},
}

type rootOptions struct {
	configFile string
	verbose    bool
	dryRun     bool
	v          *viper.Viper
}

// NewRootCommand builds the karte command tree. Each call gets its own
// viper instance, so commands can be built and executed in tests.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{v: viper.New()})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "karte",
		Short: "KARTE event tracking agent",
		Long: `karte runs the event tracking core as a local agent.

Events are persisted before delivery, batched per visitor and page view,
and retried with backoff while the network or the collector is unavailable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.initConfig(cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is ./.karte.yaml or $HOME/.karte.yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "accept events without persisting or sending them")
	for _, setting := range settingFlags {
		flags.String(setting.flag, "", setting.usage)
		_ = opts.v.BindPFlag(setting.key, flags.Lookup(setting.flag))
	}
	_ = opts.v.BindPFlag("dry_run", flags.Lookup("dry-run"))
	_ = opts.v.BindPFlag("verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newTrackCommand(opts))
	rootCmd.AddCommand(newQueueCommand(opts))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// Execute runs the karte command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *rootOptions) initConfig(stderr io.Writer) error {
	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
	} else {
		o.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			o.v.AddConfigPath(home)
		}
		o.v.SetConfigType("yaml")
		o.v.SetConfigName(".karte")
	}

	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	o.v.AutomaticEnv()

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	if o.v.GetBool("verbose") {
		fmt.Fprintf(stderr, "Using config file: %s\n", o.v.ConfigFileUsed())
	}
	return nil
}

// loadConfig layers flags and config file entries over the process
// environment and validates the result like the agent does at startup.
func (o *rootOptions) loadConfig() (config.Config, error) {
	environment := config.Environ()
	for _, key := range o.v.AllKeys() {
		if _, ignored := ignoredKeys[key]; ignored || !o.v.IsSet(key) {
			continue
		}
		name := envPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
		environment[name] = o.v.GetString(key)
	}

	cfg, cfgErr := config.LoadConfigFrom(environment)
	if cfgErr != nil {
		return config.Config{}, fmt.Errorf("config error code=%s message=%s", cfgErr.Code, cfgErr.Message)
	}
	return cfg, nil
}

func (o *rootOptions) logger(w io.Writer) *log.Logger {
	if !o.v.GetBool("verbose") {
		w = io.Discard
	}
	return log.New(w, "", log.LstdFlags|log.LUTC)
}
