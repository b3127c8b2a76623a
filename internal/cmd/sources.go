package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/offlinefirst/deskrec/pkg/permissions"
	"github.com/offlinefirst/deskrec/pkg/sources"
)

var newEnumerator = func() sources.Enumerator { return sources.DisplayEnumerator{} }

func (rc *RootCommand) newSourcesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the screens available for capture",
		Long:  "List the capturable screens in enumeration order. record always uses the first one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.runSources(cmd.Context(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the sources as JSON")
	return cmd
}

func (rc *RootCommand) runSources(ctx context.Context, asJSON bool) error {
	app, err := rc.ensureAppContext(ctx)
	if err != nil {
		return err
	}
	selector, err := sources.NewSelector(sources.Options{
		Enumerator: newEnumerator(),
		Timeout:    time.Duration(app.Config.Capture.AcquireTimeoutSeconds) * time.Second,
		Permission: func() permissions.ProbeResult { return permissions.ProbeScreenCapture(nil) },
		Logger:     app.Logger,
	})
	if err != nil {
		return err
	}
	list, err := selector.List(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	if asJSON {
		if list == nil {
			list = []sources.SourceHandle{}
		}
		enc := json.NewEncoder(rc.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		color.New(color.Faint).Fprintln(rc.stdout, "No capture sources found.")
		return nil
	}
	for i, src := range list {
		marker := " "
		if i == 0 {
			marker = color.GreenString("*")
		}
		fmt.Fprintf(rc.stdout, "%s %d. %s  %s  [%s]\n", marker, i+1, color.CyanString(src.ID), src.Name, src.Kind)
	}
	return nil
}
