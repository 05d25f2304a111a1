package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/geoffjay/remus/client"
	"github.com/geoffjay/remus/core/remus"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newClient() *client.Client {
	c, err := client.New(clientCfg.ClientEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", clientCfg.ClientEndpoint, err)
		os.Exit(1)
	}
	c.SetTimeout(clientCfg.RequestTimeout)
	return c
}

var canMeshCmd = &cobra.Command{
	Use:   "canmesh <input_kind> <output_kind>",
	Short: "Check whether any worker can perform a mesh I/O conversion",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		c := newClient()
		defer c.Close()

		ok, err := c.CanMeshType(remus.MeshIOType{InputKind: args[0], OutputKind: args[1]})
		if err != nil {
			fmt.Fprintf(os.Stderr, "canmesh request failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ok)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <input_kind> <output_kind> [key=path ...]",
	Short: "Submit a mesh-generation job",
	Long:  "Submit a job with one payload entry per key=path pair, each file read and sent in-memory.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		req := remus.JobRequirements{IOType: remus.MeshIOType{InputKind: args[0], OutputKind: args[1]}}
		submission := remus.NewJobSubmission(req)

		for _, pair := range args[2:] {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) != 2 {
				fmt.Fprintf(os.Stderr, "invalid payload argument %q, expected key=path\n", pair)
				os.Exit(1)
			}
			key, path := parts[0], parts[1]
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", path, err)
				os.Exit(1)
			}
			submission.Set(key, remus.JobContent{
				Payload:  data,
				Source:   remus.ContentInMemory,
				Format:   "binary",
				Encoding: remus.EncodingBinary,
			})
		}

		c := newClient()
		defer c.Close()

		jobID, err := c.SubmitJob(submission)
		if err != nil {
			fmt.Fprintf(os.Stderr, "submit failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(jobID.String())
	},
}

func parseJobID(s string) remus.JobID {
	id, err := uuid.Parse(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid job id %q: %v\n", s, err)
		os.Exit(1)
	}
	return id
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Query a job's status",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		jobID := parseJobID(args[0])

		c := newClient()
		defer c.Close()

		status, err := c.JobStatus(jobID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("status: %s\npercent: %d\nmessage: %s\n", status.Status, status.Percent, status.Message)
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <job-id>",
	Short: "Retrieve a finished job's result",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := parseJobID(args[0])
		outPath, _ := cmd.Flags().GetString("output")

		c := newClient()
		defer c.Close()

		data, err := c.RetrieveResults(jobID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "retrieve failed: %v\n", err)
			os.Exit(1)
		}
		if len(data) == 0 {
			fmt.Fprintln(os.Stderr, "no result available for this job")
			os.Exit(1)
		}
		if outPath == "" {
			os.Stdout.Write(data)
			return
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", outPath, err)
			os.Exit(1)
		}
	},
}

var terminateCmd = &cobra.Command{
	Use:   "terminate <job-id>",
	Short: "Request cancellation of a job",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		jobID := parseJobID(args[0])

		c := newClient()
		defer c.Close()

		ok, err := c.TerminateJob(jobID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "terminate request failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ok)
	},
}

func init() {
	retrieveCmd.Flags().StringP("output", "o", "", "write result bytes to this file instead of stdout")
}
