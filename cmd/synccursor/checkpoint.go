package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"synccursor/pkg/checkpoint"
	"synccursor/pkg/config"
	"synccursor/pkg/logger"
	"synccursor/pkg/ui"
)

var (
	inspectFormat string
	advanceSteps  int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [token]",
	Short: "Decode a checkpoint token",
	Long: `Decode a checkpoint token and show the mark of every channel, the
channel the next pass starts on and the deletion mark.

The token is read from standard input when it is omitted or given as "-".
The number of channels comes from the configuration or --channels.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate [token]",
	Short: "Rewrite a token in the current format",
	Long: `Parse a token and print it re-encoded.

Legacy tokens carrying a local lastRemoveDate are converted to a UTC
lastRemoved shifted by the configured migration offset. Tokens that are
already current are printed unchanged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

// advanceCmd represents the advance command
var advanceCmd = &cobra.Command{
	Use:   "advance [token]",
	Short: "Move a token to the next channel",
	Long: `Advance the channel ring of a token and print the new token.

Use this to skip a channel that cannot make progress. Channels never
visited before get an empty mark.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdvance,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(advanceCmd)

	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "output format (table, yaml)")
	advanceCmd.Flags().IntVarP(&advanceSteps, "steps", "n", 1, "number of channels to advance")
}

// markView is the printable form of a mark
type markView struct {
	Channel      *int    `yaml:"channel,omitempty"`
	UUID         *string `yaml:"uuid"`
	LastModified *string `yaml:"lastModified"`
}

// checkpointView is the printable form of a checkpoint
type checkpointView struct {
	Channels int        `yaml:"channels"`
	Index    int        `yaml:"index"`
	Next     int        `yaml:"next"`
	Inserts  []markView `yaml:"inserts"`
	Delete   markView   `yaml:"delete"`
	Token    string     `yaml:"token"`
}

func newCheckpointView(cp *checkpoint.Checkpoint, loc *time.Location) checkpointView {
	view := checkpointView{
		Channels: cp.Channels(),
		Index:    cp.InsertIndex(),
		Next:     cp.NextIndex(),
		Delete:   newMarkView(checkpoint.Mark{ID: cp.DeleteID(), Date: cp.DeleteDate()}, loc),
		Token:    cp.String(),
	}
	for i, mark := range cp.InsertMarks() {
		mv := newMarkView(mark, loc)
		channel := i
		mv.Channel = &channel
		view.Inserts = append(view.Inserts, mv)
	}
	return view
}

func newMarkView(mark checkpoint.Mark, loc *time.Location) markView {
	mv := markView{UUID: mark.ID.Ptr()}
	if mark.Date.Valid {
		date := mark.Date.Time.In(loc).Format(checkpoint.DateLayout)
		mv.LastModified = &date
	}
	return mv
}

// readToken returns the token argument, or reads it from in
func readToken(args []string, in io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}

	data, err := io.ReadAll(bufio.NewReader(in))
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// checkpointOptions builds codec options from configuration
func checkpointOptions(cfg *config.Config) (*checkpoint.Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &checkpoint.Options{
		Location:        loc,
		MigrationOffset: cfg.Checkpoint.MigrationOffset,
		Logger:          logger.GetLogger(),
	}, nil
}

// openCheckpoint parses token for the configured ring. An empty token is an
// empty checkpoint.
func openCheckpoint(cfg *config.Config, token string) (*checkpoint.Checkpoint, *checkpoint.Options, error) {
	opts, err := checkpointOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	if token == "" {
		return checkpoint.New(cfg.ChannelCount(), opts), opts, nil
	}
	cp, err := checkpoint.Parse(cfg.ChannelCount(), token, opts)
	if err != nil {
		return nil, nil, err
	}
	return cp, opts, nil
}

func loadCheckpoint(cmd *cobra.Command, args []string) (*checkpoint.Checkpoint, *checkpoint.Options, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	token, err := readToken(args, cmd.InOrStdin())
	if err != nil {
		return nil, nil, "", err
	}
	cp, opts, err := openCheckpoint(cfg, token)
	if err != nil {
		return nil, nil, "", err
	}
	return cp, opts, token, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cp, opts, _, err := loadCheckpoint(cmd, args)
	if err != nil {
		return err
	}

	switch strings.ToLower(inspectFormat) {
	case "table":
		ui.PrintRaw(ui.RenderCheckpoint(cp, opts.Location))
	case "yaml":
		data, err := yaml.Marshal(newCheckpointView(cp, opts.Location))
		if err != nil {
			return fmt.Errorf("failed to format checkpoint: %w", err)
		}
		ui.PrintRaw(string(data))
	default:
		return fmt.Errorf("unknown format %q", inspectFormat)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cp, _, token, err := loadCheckpoint(cmd, args)
	if err != nil {
		return err
	}

	migrated := cp.String()
	if migrated != token {
		logger.GetLogger().InfoWithFields("Token rewritten", map[string]interface{}{
			"from": token,
			"to":   migrated,
		})
	}
	ui.PrintRaw(migrated)
	return nil
}

func runAdvance(cmd *cobra.Command, args []string) error {
	if advanceSteps < 1 {
		return errors.New("steps must be at least 1")
	}

	cp, _, _, err := loadCheckpoint(cmd, args)
	if err != nil {
		return err
	}

	for i := 0; i < advanceSteps; i++ {
		if cp.Advance() {
			logger.GetLogger().WithField("channel", cp.InsertIndex()).Info("Ring cycle complete")
		}
	}
	ui.PrintRaw(cp.String())
	return nil
}
