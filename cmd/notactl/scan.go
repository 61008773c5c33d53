package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"nota/internal/archive"
	"nota/internal/cli"
	"nota/internal/extract"
	"nota/internal/services"
)

func newScanCmd(factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "scan FILE...",
		Short: "Extract receipts from image files and record them",
		Long: `Extract each image with the vision model and append its items to the ledger, one file after another.
Files may be local paths or gs:// URIs of archived images. The exit code is 1 when any file failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := factory(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			uploads := make([]services.Upload, len(args))
			for i, arg := range args {
				uploads[i] = a.loadUpload(cmd, arg)
			}

			res := a.receipts.ScanBatch(cmd.Context(), uploads)
			out := cmd.OutOrStdout()
			for _, o := range res.Outcomes {
				fmt.Fprintf(out, "%s: %s\n", o.Name, o.Message)
			}
			fmt.Fprintln(out, res.Summary())

			if res.Failed > 0 {
				return errFailures
			}
			return nil
		},
	}
}

// loadUpload reads arg from disk or the archive. Read failures become a
// rejected upload named after arg.
func (a *app) loadUpload(cmd *cobra.Command, arg string) services.Upload {
	if archive.IsURI(arg) {
		if a.gcs == nil {
			g, err := cli.NewGCS(cmd.Context(), a.cfg)
			if err != nil {
				return services.Upload{Image: extract.Image{Name: arg}, Err: err}
			}
			a.gcs = g
			a.closers = append(a.closers, func() { _ = g.Close() })
		}
		img, err := a.gcs.Fetch(cmd.Context(), arg)
		if err != nil {
			return services.Upload{Image: extract.Image{Name: arg}, Err: err}
		}
		return services.Upload{Image: img, ArchiveURI: arg}
	}

	img, err := a.readFile(arg)
	if err != nil {
		return services.Upload{Image: extract.Image{Name: arg}, Err: err}
	}
	return services.Upload{Image: img}
}

func (a *app) readFile(path string) (extract.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return extract.Image{}, err
	}
	if limit := a.cfg.MaxUploadBytes(); info.Size() > limit {
		return extract.Image{}, fmt.Errorf("ukuran gambar melebihi %d MB", limit>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Image{}, err
	}
	return extract.Image{
		Name:     filepath.Base(path),
		Data:     data,
		MIMEType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}
