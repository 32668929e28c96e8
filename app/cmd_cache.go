package app

import (
	"context"
	"io"

	"github.com/go-logfmt/logfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/geom"
)

func NewCmdCache(out io.Writer, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cache",
		Short: "Print the cached geofences",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, err := openStore(ctx, logrus.WithField("cmd", "cache"), config)
			if err != nil {
				return err
			}
			defer store.Close()
			return doCache(ctx, out, store)
		},
	}
}

// doCache writes one logfmt record per cached fence.
func doCache(ctx context.Context, out io.Writer, store cache.Store) error {
	rows, err := store.All(ctx)
	if err != nil {
		return err
	}
	enc := logfmt.NewEncoder(out)
	for _, row := range rows {
		centroid := ""
		if row.Centroid != nil {
			centroid = geom.FormatPoint(*row.Centroid)
		}
		err := enc.EncodeKeyvals(
			"id", row.ID,
			"name", row.Name,
			"version", row.Version.UTC().Format(cache.VersionLayout),
			"centroid", centroid,
			"polygon", row.Polygon,
		)
		if err != nil {
			return err
		}
		if err := enc.EndRecord(); err != nil {
			return err
		}
	}
	return nil
}
