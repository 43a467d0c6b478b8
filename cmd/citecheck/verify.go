package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/factchecker/citecheck/internal/models"
	"github.com/factchecker/citecheck/internal/verify"
)

var verifyFile string

var verifyCmd = &cobra.Command{
	Use:   "verify [reference...]",
	Short: "Verify references and print events as JSON lines",
	Long: `Verify references given as arguments, or one per line from --file.
Use --file - to read from stdin. Every pipeline event is written to stdout
as one JSON object per line.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyFile, "file", "f", "", "Read references from file, one per line")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	refs := args
	if verifyFile != "" {
		var err error
		refs, err = readReferences(verifyFile)
		if err != nil {
			return err
		}
	}
	if len(refs) == 0 {
		return fmt.Errorf("no references given")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	sink := verify.SinkFunc(func(ev models.Event) error {
		return enc.Encode(ev)
	})

	record, err := a.engine.Run(ctx, refs, sink)
	if err != nil {
		return err
	}
	if record.Summary.Status != verify.RunCompleted {
		return fmt.Errorf("run %s ended with status %s", record.Summary.ID, record.Summary.Status)
	}
	return nil
}

func readReferences(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open references: %w", err)
		}
		defer f.Close()
		r = f
	}

	var refs []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			refs = append(refs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read references: %w", err)
	}
	return refs, nil
}
