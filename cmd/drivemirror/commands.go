package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jun/drivemirror/internal/model"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [parent-id]",
		Short: "List a folder, or everything shared with the account when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <id>",
		Short: "Print the name of a remote item",
		Args:  cobra.ExactArgs(1),
		RunE:  runName,
	}
}

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <id>",
		Short: "Mirror a file into the local cache and print its path",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}
}

func newZoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zone",
		Short: "Show the active cache zone and its time-to-live settings",
		Args:  cobra.NoArgs,
		RunE:  runZone,
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached listing and file in the active zone",
		Args:  cobra.NoArgs,
		RunE:  runClear,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps(cmd)
	if err != nil {
		return err
	}

	parentID := ""
	if len(args) == 1 {
		parentID = args[0]
	}

	entries, err := deps.Client.GetDirectoryList(cmd.Context(), parentID)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	return printEntries(cmd.OutOrStdout(), entries)
}

func printEntries(w io.Writer, entries []model.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tID\tNAME")
	for _, e := range entries {
		kind := "file"
		if e.IsDirectory {
			kind = "dir"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", kind, e.ID, e.Name)
	}
	return tw.Flush()
}

func runName(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps(cmd)
	if err != nil {
		return err
	}

	name, err := deps.Client.GetFileName(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), map[string]string{"id": args[0], "name": name})
	}
	fmt.Fprintln(cmd.OutOrStdout(), name)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps(cmd)
	if err != nil {
		return err
	}

	path, err := deps.Client.GetFileLocalPath(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), map[string]string{"id": args[0], "path": path})
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runZone(cmd *cobra.Command, _ []string) error {
	deps, err := buildDeps(cmd)
	if err != nil {
		return err
	}

	zone, err := deps.Client.CacheZoneName()
	if err != nil {
		return err
	}
	lists, files := deps.Client.ListsTimeToLive(), deps.Client.FilesTimeToLive()

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"zone":     zone,
			"listsTtl": lists,
			"filesTtl": files,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "zone:      %s\nlists ttl: %d\nfiles ttl: %d\n", zone, lists, files)
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	deps, err := buildDeps(cmd)
	if err != nil {
		return err
	}

	cleared, err := deps.Client.ClearCache(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), map[string]bool{"cleared": cleared})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
