package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload new and changed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}

			res, err := client.Sync(cmd.Context())
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)

			if res.Failed > 0 {
				return fmt.Errorf("%d file(s) failed to upload", res.Failed)
			}
			return nil
		},
	}
}

func newManifestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Rebuild the local file listing and bump the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}

			sum, err := client.BuildManifest(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "listing: %d files, %s, version %d\n",
				sum.Files, humanize.IBytes(uint64(sum.TotalSize)), sum.Version)
			return err
		},
	}
}

func newFoldersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List top-level folders under the remote prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}

			folders, err := client.ListFolders(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range folders {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), f); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newVersionCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version-check",
		Short: "Compare local and remote version markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}

			status, err := client.CheckVersion(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "local: %s  remote: %s  state: %s\n",
				status.Local, status.Remote, status.State)
			return err
		},
	}
}

func printResult(w io.Writer, res *objtypes.SyncResult) {
	fmt.Fprintf(w, "state:    %s\n", res.State)
	fmt.Fprintf(w, "scanned:  %d local, %d remote\n", res.ScannedLocal, res.ScannedRemote)
	fmt.Fprintf(w, "uploaded: %d (%s)\n", res.Uploaded, humanize.IBytes(uint64(res.TotalSize)))
	if res.HashedBytes > 0 {
		fmt.Fprintf(w, "hashed:   %s\n", humanize.IBytes(uint64(res.HashedBytes)))
	}
	if res.Deleted > 0 {
		fmt.Fprintf(w, "deleted:  %d\n", res.Deleted)
	}
	if res.Failed > 0 {
		fmt.Fprintf(w, "failed:   %d\n", res.Failed)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Path, e.Message)
	}
	fmt.Fprintf(w, "elapsed:  %s\n", res.ElapsedTime.Round(time.Millisecond))
}
