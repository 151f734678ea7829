package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vsariola/recall/monitor"
)

var (
	statsAddr  string
	statsWatch time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the counters of a playing engine",
	Long: `Connect to the monitor of a running "recall-play play" and print its
counters. The monitor is enabled by setting monitor.address in the config.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		if statsAddr == "" {
			statsAddr = cfg.Monitor.Address
		}
		if statsAddr == "" {
			return fmt.Errorf("no monitor address; use --addr or set monitor.address")
		}
		client, err := monitor.Dial(statsAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		for {
			s, err := client.Stats()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ticks\t%d\n", s.Ticks)
			fmt.Fprintf(w, "overruns\t%d\n", s.Overruns)
			fmt.Fprintf(w, "task errors\t%d\n", s.TaskErrors)
			fmt.Fprintf(w, "dropped events\t%d\n", s.DroppedEvents)
			fmt.Fprintf(w, "contexts\t%d\n", s.ActiveContexts)
			fmt.Fprintf(w, "instances\t%d\n", s.ActiveInstances)
			fmt.Fprintf(w, "workers\t%d\n", s.Workers)
			fmt.Fprintf(w, "last tick\t%v of %v\n", s.LastTick, s.TickPeriod)
			w.Flush()
			if statsWatch <= 0 {
				return nil
			}
			time.Sleep(statsWatch)
			fmt.Println()
		}
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsAddr, "addr", "", "monitor address (overrides config)")
	statsCmd.Flags().DurationVarP(&statsWatch, "watch", "w", 0, "print again after every interval")
}
