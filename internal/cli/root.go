// Package cli implements the generate command line tool.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wbrown/janus-generate/generate/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	ConfigFile string

	// resolved by PersistentPreRunE from flags, environment and config file
	config *viper.Viper
}

// NewRootCommand creates the root command for the generate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate RDF and text from heterogeneous documents",
		Long: `Run SPARQL-Generate style queries.

A query iterates over documents (CSV, JSON, SQL, text), binds variables and
instantiates triple templates, text templates or SELECT rows. Sub-queries are
resolved by IRI through the location mapping and the base directory.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(cmd, opts.ConfigFile)
			if err != nil {
				return err
			}
			opts.config = v
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "print execution events to stderr")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (yaml, toml or json)")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.String("otel-endpoint", "", "OTLP gRPC endpoint for execution traces")
	flags.String("base", ".", "base directory for relative locators")
	flags.String("mapping", "", "YAML location mapping file")
	flags.String("store", "", "badger directory caching fetched documents")
	flags.Int("workers", 0, "worker goroutines per execution (0 = number of CPUs)")
	flags.Duration("timeout", time.Duration(0), "maximum execution time (0 = no limit)")
	flags.Bool("debug-template", false, "render template evaluation failures as [error: ...]")
	flags.Int("cache-size", registry.DefaultCacheSize, "function evaluation cache entries")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// settings are the resolved configuration values
type settings struct {
	Base          string
	Mapping       string
	Store         string
	Workers       int
	Timeout       time.Duration
	DebugTemplate bool
	CacheSize     int
	LogLevel      string
	OtelEndpoint  string
}

func (o *RootOptions) settings() (settings, error) {
	if o.config == nil {
		return settings{}, fmt.Errorf("configuration not loaded")
	}
	v := o.config
	s := settings{
		Base:          v.GetString("base"),
		Mapping:       v.GetString("mapping"),
		Store:         v.GetString("store"),
		Workers:       v.GetInt("workers"),
		Timeout:       v.GetDuration("timeout"),
		DebugTemplate: v.GetBool("debug-template"),
		CacheSize:     v.GetInt("cache-size"),
		LogLevel:      v.GetString("log-level"),
		OtelEndpoint:  v.GetString("otel-endpoint"),
	}
	if s.Workers < 0 {
		return settings{}, fmt.Errorf("invalid workers %d: must not be negative", s.Workers)
	}
	return s, nil
}
