// probe.go
package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"go-panel-relay/config"
	"go-panel-relay/models"
	"go-panel-relay/panel"
)

// infoReader is implemented by controllers that expose board identity.
type infoReader interface {
	Info() panel.DeviceInfo
}

func probeCmd(configPath *string) *cobra.Command {
	var (
		word   int
		settle time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Bring the panel up once and print its readings",
		Long: `Run the controller setup sequence against the configured panel,
optionally apply a control word, print the board identity and one
snapshot, then stop the panel.

Examples:
  panel-relay probe
  panel-relay probe --word 5 --settle 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			controller, err := panel.Open(cfg.Panel.Driver, modbusConfig(cfg.Panel))
			if err != nil {
				return err
			}
			return runProbe(controller, word, settle, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&word, "word", "w", -1, "Control word to apply (0-127); negative skips the update")
	cmd.Flags().DurationVar(&settle, "settle", time.Second, "Wait before reading so the bus poller catches up")

	return cmd
}

func runProbe(controller panel.Controller, word int, settle time.Duration, out io.Writer) (err error) {
	if err := controller.Setup(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer func() {
		if exitErr := controller.Exit(); exitErr != nil && err == nil {
			err = fmt.Errorf("exit: %w", exitErr)
		}
	}()

	if err := controller.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if word >= 0 {
		if word > int(models.MaxControlWord) {
			return fmt.Errorf("word %d out of range 0..%d", word, models.MaxControlWord)
		}
		if err := controller.Update(models.ControlWord(word)); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	}
	time.Sleep(settle)

	if ir, ok := controller.(infoReader); ok {
		info := ir.Info()
		fmt.Fprintf(out, "model=%q firmware=%q com=%d\n", info.Model, info.Firmware, info.ComStatus)
	}
	snap, err := controller.Values()
	if err != nil {
		return fmt.Errorf("values: %w", err)
	}
	fmt.Fprintln(out, string(snap))
	return nil
}
