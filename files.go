package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/EvanUsesRust/gb-emu/internal/api"
	"github.com/EvanUsesRust/gb-emu/internal/session"
)

// apiClientTimeout is the default timeout for file API requests. Uploads of
// full-size ROMs over slow links need headroom.
const apiClientTimeout = 5 * time.Minute

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored files",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().Bool("saves", false, "list save files instead of ROMs")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <name> [local-path]",
		Short: "Download a stored file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}

	cmd.Flags().Bool("save", false, "download a save file instead of a ROM")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [name]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}

	cmd.Flags().Bool("save", false, "upload as a save file instead of a ROM")

	return cmd
}

// newAPIClient builds the session-backed API client shared by the file
// commands. The session manager attempts a silent refresh when the stored
// token has expired and a refresh endpoint is configured.
func newAPIClient(ctx context.Context) (*api.Client, error) {
	if err := loadedCfg.ValidateClient(); err != nil {
		return nil, err
	}

	logger := buildLogger()

	tokenPath, err := loadedCfg.TokenPath()
	if err != nil {
		return nil, err
	}

	interval, err := loadedCfg.RefreshInterval()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: apiClientTimeout}

	var refresh session.RefreshFunc
	if loadedCfg.Client.RefreshURL != "" {
		refresh = session.HTTPRefresh(loadedCfg.Client.RefreshURL, httpClient)
	}

	mgr, err := session.NewManager(session.Config{
		Refresh:   refresh,
		Interval:  interval,
		Logger:    logger,
		TokenPath: tokenPath,
	})
	if err != nil {
		return nil, err
	}

	if !mgr.IsAuthenticated() {
		mgr.RefreshNow(ctx)
	}

	if !mgr.IsAuthenticated() {
		return nil, fmt.Errorf("not logged in — run 'gb-emu login' first")
	}

	return api.NewClient(loadedCfg.Client.APIURL, httpClient, mgr, logger), nil
}

// categoryFlag maps the --save/--saves boolean to an api.Category.
func categoryFlag(cmd *cobra.Command, name string) api.Category {
	if save, _ := cmd.Flags().GetBool(name); save {
		return api.CategorySave
	}

	return api.CategoryROM
}

func runLs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, err := newAPIClient(ctx)
	if err != nil {
		return err
	}

	names, err := client.List(ctx, categoryFlag(cmd, "saves"))
	if err != nil {
		return err
	}

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	dest := name
	if len(args) == 2 {
		dest = args[1]
	}

	client, err := newAPIClient(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer f.Close()

	n, err := client.Download(ctx, categoryFlag(cmd, "save"), name, f)
	if err != nil {
		// Don't leave a truncated file behind.
		f.Close()
		os.Remove(dest)

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}

	statusf("Downloaded %s (%d bytes)\n", dest, n)

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	local := args[0]

	name := filepath.Base(local)
	if len(args) == 2 {
		name = args[1]
	}

	client, err := newAPIClient(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("opening %s: %w", local, err)
	}
	defer f.Close()

	if err := client.Upload(ctx, categoryFlag(cmd, "save"), name, f); err != nil {
		return err
	}

	statusf("Uploaded %s\n", name)

	return nil
}
