/*
Copyright © 2026 the Reanest authors.
This file is part of Reanest.

Reanest is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Reanest is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Reanest.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package reanestutil holds the command-line interface for Reanest.
package reanestutil

import (
	"fmt"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/reanest"
	"github.com/spatialmodel/reanest/cdsapi"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to Reanest.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose sets the logging level: 0 for warnings only, 1 for
              progress information, 2 for debugging output.`,
			shorthand:  "v",
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "id",
			usage: `
              id names the request. Output files are written to a
              directory named '<id>_output'.`,
			defaultVal: "reanest_job",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "variables",
			usage: `
              variables lists the reanalysis variables to retrieve, for
              example '2m_temperature' or 'total_precipitation'.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "start",
			usage: `
              start is the first date of the request range, in
              YYYY-MM-DD or YYYY-M-D form.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "end",
			usage: `
              end is the last date of the request range, inclusive.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "frequency",
			usage: `
              frequency is the output time step: hourly, daily, weekly,
              monthly, or yearly. Monthly and yearly requests pull from
              the monthly-means dataset.`,
			defaultVal: "hourly",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "resolution",
			usage: `
              resolution is the grid spacing in degrees.`,
			defaultVal: reanest.DefaultResolution,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags()},
		},
		{
			name: "pressure.levels",
			usage: `
              pressure.levels lists pressure levels in hPa, for example
              '500,850'. When set, data come from the pressure-levels
              dataset instead of the surface dataset.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "geojson",
			usage: `
              geojson is the path to a GeoJSON file holding the region
              geometry: a FeatureCollection, a Feature, or a bare
              Polygon or MultiPolygon.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "shapefile",
			usage: `
              shapefile is the path to a polygon shapefile holding the
              region geometry, as an alternative to geojson.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "dist.features",
			usage: `
              dist.features lists property names whose values partition
              the region; results are reported separately for each
              distinct combination of their values.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "north",
			usage: `
              north is the northern edge of the bounding box, in
              degrees latitude.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{bboxCmd.Flags()},
		},
		{
			name: "south",
			usage: `
              south is the southern edge of the bounding box.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{bboxCmd.Flags()},
		},
		{
			name: "east",
			usage: `
              east is the eastern edge of the bounding box.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{bboxCmd.Flags()},
		},
		{
			name: "west",
			usage: `
              west is the western edge of the bounding box.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{bboxCmd.Flags()},
		},
		{
			name: "lat",
			usage: `
              lat is the latitude of the point of interest.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{pointCmd.Flags()},
		},
		{
			name: "lon",
			usage: `
              lon is the longitude of the point of interest.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{pointCmd.Flags()},
		},
		{
			name: "output.dir",
			usage: `
              output.dir is the parent directory for the per-request
              output directory. The default is the current directory.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "save.raw",
			usage: `
              save.raw also writes the filtered observations before
              aggregation.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "save.xlsx",
			usage: `
              save.xlsx also writes the aggregated table as a
              spreadsheet.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "keep.downloads",
			usage: `
              keep.downloads prevents deletion of downloaded and
              extracted files after processing.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
		{
			name: "download.dir",
			usage: `
              download.dir is where retrieved files are stored while
              they are processed. The default is the system temporary
              directory.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), bboxCmd.Flags(), pointCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("REANEST")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(bboxCmd)
	Root.AddCommand(pointCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("reanest: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "reanest",
	Short: "Regional time series from gridded climate reanalysis.",
	Long: `Reanest turns gridded climate reanalysis data into regional time
series: it retrieves the data in chunks, keeps the grid points inside a
region of interest, and aggregates the survivors at the requested
frequency.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'REANEST_var' where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of Reanest.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("Reanest v%s\n", reanest.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd processes a request for a region given as a geometry file.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a request for a GeoJSON or shapefile region.",
	Long: `run retrieves, filters, and aggregates data for the region geometry
in the given GeoJSON file or shapefile. Points on the region boundary count
as inside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := baseRequest(Cfg)
		if err != nil {
			return err
		}
		geojson := Cfg.GetString("geojson")
		shapefile := Cfg.GetString("shapefile")
		var path string
		switch {
		case geojson != "" && shapefile != "":
			return fmt.Errorf("reanest: only one of --geojson and --shapefile may be given")
		case geojson != "":
			path = geojson
		case shapefile != "":
			path = shapefile
		default:
			return fmt.Errorf("reanest: one of --geojson and --shapefile is required")
		}
		req.Region, err = reanest.LoadRegion(path, Cfg.GetStringSlice("dist.features"))
		if err != nil {
			return err
		}
		return execute(cmd, req)
	},
	DisableAutoGenTag: true,
}

// bboxCmd processes a request for a rectangular region.
var bboxCmd = &cobra.Command{
	Use:   "bbox",
	Short: "Process a request for a bounding box.",
	Long: `bbox retrieves, filters, and aggregates data for the rectangle
bounded by --north, --south, --east, and --west. The rectangle goes through
the same containment filter as any other region, so its boundary points
count as inside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := baseRequest(Cfg)
		if err != nil {
			return err
		}
		req.Region = reanest.BBoxRegion(
			Cfg.GetFloat64("north"), Cfg.GetFloat64("west"),
			Cfg.GetFloat64("south"), Cfg.GetFloat64("east"))
		return execute(cmd, req)
	},
	DisableAutoGenTag: true,
}

// pointCmd processes a request for a single point of interest.
var pointCmd = &cobra.Command{
	Use:   "point",
	Short: "Process a request for a single point.",
	Long: `point retrieves, filters, and aggregates data for a small buffer
around the given point: a 16-vertex circle of 0.06 degree radius, or a
square near the poles. The grid resolution is fixed at 0.1 degrees so the
buffer always catches at least one grid point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := baseRequest(Cfg)
		if err != nil {
			return err
		}
		req.Region = reanest.PointRegion(Cfg.GetFloat64("lat"), Cfg.GetFloat64("lon"))
		req.Resolution = 0.1
		return execute(cmd, req)
	},
	DisableAutoGenTag: true,
}

// baseRequest builds the request fields shared by every command.
func baseRequest(cfg *viper.Viper) (*reanest.Request, error) {
	start, err := reanest.ParseDate(cfg.GetString("start"))
	if err != nil {
		return nil, err
	}
	end, err := reanest.ParseDate(cfg.GetString("end"))
	if err != nil {
		return nil, err
	}
	freq, err := reanest.ParseFrequency(cfg.GetString("frequency"))
	if err != nil {
		return nil, err
	}
	req := &reanest.Request{
		ID:         cfg.GetString("id"),
		Variables:  cfg.GetStringSlice("variables"),
		Start:      start,
		End:        end,
		Frequency:  freq,
		Resolution: cfg.GetFloat64("resolution"),
	}
	if levels := cfg.GetStringSlice("pressure.levels"); len(levels) > 0 {
		req.Kind = reanest.PressureLevels
		req.Levels = levels
	}
	return req, nil
}

// execute runs the request end to end and saves the results.
func execute(cmd *cobra.Command, req *reanest.Request) error {
	log := logrus.New()
	switch Cfg.GetInt("verbose") {
	case 0:
		log.SetLevel(logrus.WarnLevel)
	case 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.DebugLevel)
	}

	client, err := cdsapi.New()
	if err != nil {
		return err
	}
	client.Log = log
	client.Dir = Cfg.GetString("download.dir")

	p := &reanest.Pipeline{
		Retriever:     client,
		Filter:        &reanest.SpatialFilter{Log: log},
		Log:           log,
		KeepDownloads: Cfg.GetBool("keep.downloads"),
	}
	res, err := p.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	s := &reanest.Saver{
		Dir:      Cfg.GetString("output.dir"),
		SaveRaw:  Cfg.GetBool("save.raw"),
		SaveXLSX: Cfg.GetBool("save.xlsx"),
		Log:      log,
	}
	dir, err := s.Save(req, res)
	if err != nil {
		return err
	}
	cmd.Printf("results saved to %s\n", dir)
	return nil
}
