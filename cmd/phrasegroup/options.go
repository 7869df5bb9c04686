package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/engine"
)

const maxLineSize = 1024 * 1024

func newOptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options [file|-]",
		Short: "Print the translation options of each input sentence",
		Long: `Read one sentence per line from a file or stdin and print the translation
options of every source span. Line N (counting from 0) is sentence N, which
also selects grammar.N.gz for lazily loaded tables.

Examples:
  # Table output
  phrasegroup options --config phrasegroup.yaml input.txt

  # JSON lines from stdin
  echo "das haus" | phrasegroup options --config phrasegroup.yaml --json -`,
		Args: cobra.MaximumNArgs(1),
		RunE: runOptions,
	}
	cmd.Flags().Bool("json", false, "print one JSON object per sentence")
	return cmd
}

func runOptions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	in, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer in.Close()

	sentences, err := readSentences(in)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	eng, err := rt.newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.Run(ctx, sentences)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
		if asJSON {
			err = writeJSON(cmd.OutOrStdout(), res)
		} else {
			err = writeTable(cmd.OutOrStdout(), res)
		}
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	rt.logger.Info(ctx, "options written",
		zap.Int("sentences", len(results)),
		zap.Int("failed", failed),
	)
	return nil
}

func readSentences(r io.Reader) ([]engine.Sentence, error) {
	var sentences []engine.Sentence
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		sentences = append(sentences, engine.Sentence{
			ID:   int64(len(sentences)),
			Text: scanner.Text(),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return sentences, nil
}

func writeJSON(w io.Writer, res *engine.Result) error {
	return json.NewEncoder(w).Encode(res)
}

func writeTable(w io.Writer, res *engine.Result) error {
	if _, err := fmt.Fprintf(w, "sentence %d: %s\n", res.ID, res.Source); err != nil {
		return err
	}
	if res.Err != nil {
		_, err := fmt.Fprintf(w, "  error: %v\n", res.Err)
		return err
	}
	for _, span := range res.Spans {
		for _, opt := range span.Options {
			if _, err := fmt.Fprintf(w, "  [%d,%d) %s -> %s  %.4f  %s %v\n",
				span.Start, span.End, span.Source, opt.Target, opt.FullScore,
				opt.Table, opt.Scores[opt.Table]); err != nil {
				return err
			}
		}
	}
	return nil
}
