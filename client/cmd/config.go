package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/geoffjay/remus/core/config"
	remuslog "github.com/geoffjay/remus/core/log"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"
)

var (
	endpointFlag string
	clientCfg    *config.ClientConfig

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Manage Remus client configuration settings.",
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize default configuration",
		Long:  "Create a default configuration file at ~/.remus/client.yaml",
		Run:   configInitHandler,
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the client configuration currently in effect.",
		Run:   configShowHandler,
	}
)

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func defaultConfigDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".remus")
}

func defaultConfigPath() string {
	dir := defaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "client.yaml")
}

// initConfig loads the client configuration file, applies environment
// overrides, then the --endpoint flag if given.
func initConfig() {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.LoadClientConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if endpointFlag != "" {
		cfg.ClientEndpoint = endpointFlag
	}
	clientCfg = cfg

	remuslog.Initialize(cfg.Log)
}

func configInitHandler(_ *cobra.Command, _ []string) {
	dir := defaultConfigDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "could not determine home directory")
		os.Exit(1)
	}
	path := filepath.Join(dir, "client.yaml")

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("configuration file already exists at %s\n", path)
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create config directory: %v\n", err)
		os.Exit(1)
	}

	data, err := yaml.Marshal(config.DefaultClientConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal default configuration: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write configuration file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("configuration initialized at %s\n", path)
}

func configShowHandler(_ *cobra.Command, _ []string) {
	fmt.Printf("client_endpoint: %s\n", clientCfg.ClientEndpoint)
	fmt.Printf("request_timeout: %s\n", clientCfg.RequestTimeout)
	fmt.Printf("output_format: %s\n", clientCfg.OutputFormat)
	fmt.Printf("log.level: %s\n", clientCfg.Log.Level)
	fmt.Printf("log.formatter: %s\n", clientCfg.Log.Formatter)
}
