package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary/ondisk"
	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
	"github.com/fyrsmithlabs/phrasegroup/internal/ruletable"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an on-disk phrase table from a text rule table",
		Long: `Convert a text rule table ("src ||| tgt ||| scores [||| alignment]",
optionally gzipped) into a database usable as an ondisk dictionary.

Example:
  phrasegroup build --input phrase-table.gz --output /data/pt --num-features 4`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
	cmd.Flags().String("input", "", "text rule table (.gz allowed)")
	cmd.Flags().String("output", "", "database directory to create")
	cmd.Flags().Int("num-features", 0, "number of scores per rule")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("num-features")
	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	numFeatures, _ := cmd.Flags().GetInt("num-features")
	if numFeatures < 1 {
		return fmt.Errorf("--num-features must be at least 1")
	}

	cfg := logging.NewDefaultConfig()
	cfg.Sampling.Enabled = false
	logger, err := logging.NewLogger(cfg, nil, logging.WithWriter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if entries, err := os.ReadDir(output); err == nil && len(entries) > 0 {
		return fmt.Errorf("output directory %s is not empty", output)
	}

	rules, err := ruletable.LoadFile(input, numFeatures)
	if err != nil {
		return err
	}

	db, err := ondisk.OpenStore(ondisk.StoreConfig{Path: output, Logger: logger.Underlying()})
	if err != nil {
		return err
	}
	written, err := ondisk.Write(db, rules, numFeatures)
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	logger.Info(ctx, "built phrase table",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("rules", len(rules)),
		zap.Int("sources", written),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rules (%d source phrases) to %s\n", len(rules), written, output)
	return nil
}
