// Command remusw runs a reference Remus worker that echoes its "data"
// payload back as the job result, standing in for a real mesher subprocess
// wrapper.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/geoffjay/remus/core/config"
	remuslog "github.com/geoffjay/remus/core/log"
	"github.com/geoffjay/remus/core/remus"
	"github.com/geoffjay/remus/worker"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	inputKind  string
	outputKind string
)

var rootCmd = &cobra.Command{
	Use:   "remusw",
	Short: "Reference Remus worker",
	Long:  "remusw registers as a worker and echoes submitted payloads back as results.",
	Run:   run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to worker configuration file (default ~/.remus/worker.yaml)")
	rootCmd.PersistentFlags().StringVar(&inputKind, "input", "stl", "mesh input kind this worker advertises")
	rootCmd.PersistentFlags().StringVar(&outputKind, "output", "vtk", "mesh output kind this worker advertises")
}

func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return home + "/.remus/worker.yaml"
}

func echoHandler(_ context.Context, w *worker.Worker, jobID remus.JobID, job *remus.JobSubmission) ([]byte, error) {
	if err := w.ProgressUpdate(jobID, remus.InProgress, 0, "starting work"); err != nil {
		log.WithError(err).Warn("failed to report starting progress")
	}

	content, ok := job.Get("data")
	if !ok {
		return nil, fmt.Errorf("submission missing required %q content", "data")
	}

	if err := w.ProgressUpdate(jobID, remus.InProgress, 100, "work complete"); err != nil {
		log.WithError(err).Warn("failed to report completion progress")
	}
	return content.Payload, nil
}

func run(_ *cobra.Command, _ []string) {
	path := configFile
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.LoadWorkerConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	remuslog.Initialize(cfg.Log)

	rates := worker.NewPollingRates(cfg.PollingRateMin, cfg.PollingRateMax)
	w, err := worker.New(cfg.BrokerEndpoint, rates)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to broker")
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("received shutdown signal")
		cancel()
	}()

	reqs := remus.JobRequirements{IOType: remus.MeshIOType{InputKind: inputKind, OutputKind: outputKind}}
	if err := w.Run(ctx, reqs, echoHandler); err != nil {
		log.WithError(err).Fatal("worker loop exited with error")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
