// Command remusd runs the Remus broker daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/geoffjay/remus/broker"
	"github.com/geoffjay/remus/core/config"
	remuslog "github.com/geoffjay/remus/core/log"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "remusd",
	Short: "Remus broker daemon",
	Long:  "remusd brokers mesh-generation jobs between clients and workers.",
	Run:   run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to broker configuration file (default ~/.remus/broker.yaml)")
}

func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return home + "/.remus/broker.yaml"
}

func run(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.LoadBrokerConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	remuslog.Initialize(cfg.Log)

	b := broker.New(cfg, nil)
	if err := b.Bind(); err != nil {
		log.WithError(err).Fatal("failed to bind broker sockets")
	}

	stop := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("received shutdown signal")
		close(stop)
	}()

	if err := b.Run(stop); err != nil {
		log.WithError(err).Fatal("broker loop exited with error")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
