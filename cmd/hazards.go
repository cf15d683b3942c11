package main

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/fetcher"
	"github.com/sells-group/safe-zone/internal/geo"
)

var hazardsCmd = &cobra.Command{
	Use:   "hazards",
	Short: "Manage fire hazard datasets",
}

var hazardsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the hazard dataset into the cache directory",
	Long:  "Downloads data.hazards_url (http, https or ftp) into data.cache_dir. Unchanged remote files are skipped using the stored ETag.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, _ := cmd.Flags().GetString("url")
		if rawURL == "" {
			rawURL = cfg.Data.HazardsURL
		}
		out, _ := cmd.Flags().GetString("out")
		verify, _ := cmd.Flags().GetBool("verify")

		res, err := fetchHazards(cmd, newFetcher(cfg), rawURL, out, cfg.Data.CacheDir)
		if err != nil {
			return err
		}
		if !verify {
			return nil
		}
		return describeHazards(cmd, res.Path)
	},
}

var hazardsInfoCmd = &cobra.Command{
	Use:   "info [path]",
	Short: "Load a hazard dataset and summarize it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := cfg.Data.HazardsPath
		if len(args) == 1 {
			p = args[0]
		}
		if p == "" {
			return eris.New("no hazard dataset: pass a path or set data.hazards_path")
		}
		return describeHazards(cmd, p)
	},
}

func init() {
	hazardsFetchCmd.Flags().String("url", "", "dataset URL (default data.hazards_url)")
	hazardsFetchCmd.Flags().String("out", "", "destination file (default <cache_dir>/<url file name>)")
	hazardsFetchCmd.Flags().Bool("verify", true, "load the downloaded dataset to check it parses")
	hazardsCmd.AddCommand(hazardsFetchCmd, hazardsInfoCmd)
	rootCmd.AddCommand(hazardsCmd)
}

// hazardsDest picks the output file for rawURL when none is given.
func hazardsDest(rawURL, out, cacheDir string) (string, error) {
	if out != "" {
		return out, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "parse url %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", eris.Errorf("cannot derive a file name from %q, pass --out", rawURL)
	}
	return filepath.Join(cacheDir, name), nil
}

func fetchHazards(cmd *cobra.Command, f *fetcher.Multi, rawURL, out, cacheDir string) (fetcher.SyncResult, error) {
	if rawURL == "" {
		return fetcher.SyncResult{}, eris.New("no hazard dataset URL: pass --url or set data.hazards_url")
	}
	dest, err := hazardsDest(rawURL, out, cacheDir)
	if err != nil {
		return fetcher.SyncResult{}, err
	}

	res, err := f.Sync(cmd.Context(), rawURL, dest)
	if err != nil {
		return res, eris.Wrap(err, "fetch hazards")
	}

	w := cmd.OutOrStdout()
	if res.Changed {
		zap.L().Info("hazards downloaded", zap.String("url", rawURL), zap.String("path", dest), zap.Int64("bytes", res.Bytes))
		fmt.Fprintf(w, "Downloaded %s (%d bytes)\n", dest, res.Bytes)
	} else {
		fmt.Fprintf(w, "%s is up to date\n", dest)
	}
	return res, nil
}

func describeHazards(cmd *cobra.Command, p string) error {
	features, err := geo.LoadFile(cmd.Context(), p)
	if err != nil {
		return err
	}
	printHazardSummary(cmd.OutOrStdout(), p, features)
	if err := geo.ValidateFeatures(features); err != nil {
		return eris.Wrapf(err, "hazards %s", p)
	}
	return nil
}

func printHazardSummary(w io.Writer, p string, features []geo.Feature) {
	fmt.Fprintf(w, "%s: %d hazard features\n", p, len(features))
	var malformed int
	for _, f := range features {
		if _, err := geo.ReferencePoint(f); err != nil {
			malformed++
		}
	}
	if malformed > 0 {
		fmt.Fprintf(w, "  %d features have no usable boundary\n", malformed)
	}
}
