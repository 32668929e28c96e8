package app

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/NPRA/geofence-converter/adapter"
	"github.com/NPRA/geofence-converter/datex"
	"github.com/NPRA/geofence-converter/geom"
	"github.com/NPRA/geofence-converter/registry"
)

// appFs is the filesystem used to read user files.
var appFs = afero.NewOsFs()

var file string

func NewCmdValidate(out io.Writer, config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a registry listing saved as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doValidate(out, file, config.UTMProjection())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File")

	return cmd
}

// doValidate normalizes and assembles every object of the listing and
// reports the outcome per object. Only unreadable listings are errors.
func doValidate(out io.Writer, path string, projection geom.Projection) error {
	if path == "" {
		return errors.New("parameter empty")
	}
	data, err := afero.ReadFile(appFs, path)
	if err != nil {
		return errors.Wrap(err, "cannot read file")
	}
	snap, err := registry.Decode(data)
	if err != nil {
		return err
	}

	assembler := adapter.Assembler{Projection: projection}
	var invalid int
	for i := range snap.Objects {
		obj := &snap.Objects[i]
		fence, err := registry.Normalize(obj)
		if err == nil {
			var p *datex.Payload
			if p, _, err = assembler.Assemble(fence, datex.KindCreate); err == nil {
				fmt.Fprintf(out, "%d: ok name=%q version=%q corners=%d centroid=%v,%v\n",
					fence.ID, fence.Name, registry.FormatTimestamp(fence.Version),
					len(p.Polygon), p.Centroid.Lat, p.Centroid.Lon)
				continue
			}
		}
		invalid++
		fmt.Fprintf(out, "%d: %s\n", obj.ID, err)
	}
	fmt.Fprintf(out, "%d objects, %d invalid\n", len(snap.Objects), invalid)

	return nil
}
