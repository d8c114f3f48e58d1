package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"building_monitor/internal/config"
	"building_monitor/internal/logger"
	"building_monitor/internal/models"

	"github.com/spf13/cobra"
)

func newStateCmd(o *rootOptions) *cobra.Command {
	var groups []string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the stored next event time of every entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			selected, err := selectGroups(cfg, groups)
			if err != nil {
				return err
			}

			log := logger.Get(cfg.LogLevel, cfg.LogFormat)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tENTITY\tKIND\tNEXT_EVENT_AT\tIN")
			now := time.Now()
			for _, gc := range selected {
				store, err := openStore(cfg, gc, log)
				if err != nil {
					return fmt.Errorf("group %q: %w", gc.Name, err)
				}
				state, lerr := store.Load(cmd.Context())
				_ = store.Close()
				if lerr != nil && !errors.Is(lerr, models.ErrCorruptState) {
					return fmt.Errorf("group %q: %w", gc.Name, lerr)
				}
				if lerr != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t%s\t-\n", gc.Name, "corrupt state (treated as empty)")
				}
				writeGroupState(tw, gc, state, now)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "group to show (repeatable; default all)")
	return cmd
}

// writeGroupState prints configured entities first, in configuration order,
// then any stored entries no longer configured.
func writeGroupState(w io.Writer, gc config.GroupConfig, state models.StateMap, now time.Time) {
	configured := map[models.EntityID]bool{}
	for _, ec := range gc.Entities {
		id := models.EntityID(ec.ID)
		configured[id] = true
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", gc.Name, id, ec.Kind, formatNext(state[id]), formatIn(state[id], now))
	}

	var orphans []models.EntityID
	for id := range state {
		if !configured[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	for _, id := range orphans {
		fmt.Fprintf(w, "%s\t%s\t(not configured)\t%s\t%s\n", gc.Name, id, formatNext(state[id]), formatIn(state[id], now))
	}
}

func formatNext(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatIn(t *time.Time, now time.Time) string {
	if t == nil {
		return "due"
	}
	d := t.Sub(now).Round(time.Second)
	if d <= 0 {
		return "due"
	}
	return d.String()
}
