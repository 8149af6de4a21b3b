// Command disk-analyse is the flux-capture-to-container pipeline
// spec.md §6.3 names: it reads a KryoFlux stream directory or a
// SuperCard Pro .scp capture, runs each track through the registered
// format handlers (trying the one named by -f first, if given), and
// writes the recovered disk out as either this module's native .dsk or
// a legacy container format selected by the output file's extension.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/sergev/floppy/config"
	"github.com/sergev/floppy/containers"
	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/flux"
	_ "github.com/sergev/floppy/handlers" // register track-type handlers

	"github.com/spf13/cobra"
)

const exitUsage = 1
const exitFileNotOpenable = 2
const exitReadError = 3

var (
	formatFlag   string
	revsFlag     int
	listFlag     bool
	tracksFlag   int
	configFlag   string
	handlerAllow []string
)

var analyseCmd = &cobra.Command{
	Use:   "disk-analyse <in> <out>",
	Short: "Recover a disk image from a flux capture",
	Args:  cobra.ArbitraryArgs,
	RunE:  runAnalyse,
}

func init() {
	analyseCmd.Flags().StringVarP(&formatFlag, "format", "f", "", "track format to try first (see --list-formats)")
	analyseCmd.Flags().IntVarP(&revsFlag, "revs", "r", 3, "number of revolutions per track (recorded only; every revolution in the capture is read)")
	analyseCmd.Flags().BoolVar(&listFlag, "list-formats", false, "list every registered track format and exit")
	analyseCmd.Flags().IntVar(&tracksFlag, "tracks", 160, "number of physical tracks (cylinders*heads) in the capture")
	analyseCmd.Flags().StringVar(&configFlag, "config", "", "path to an [analyse] policy TOML file (see config package)")
}

// applyAnalyserConfig loads the [analyse] policy file named by --config,
// if any, and fills in any flag the user didn't set explicitly on the
// command line. Explicit flags always win over the config file.
func applyAnalyserConfig(cmd *cobra.Command) error {
	if configFlag == "" {
		return nil
	}
	ac, err := config.LoadAnalyserConfig(configFlag)
	if err != nil {
		return err
	}
	if ac.DefaultFormat != "" && !cmd.Flags().Changed("format") {
		formatFlag = ac.DefaultFormat
	}
	if ac.Revolutions > 0 && !cmd.Flags().Changed("revs") {
		revsFlag = ac.Revolutions
	}
	if ac.WeakBitSeed != 0 {
		disk.WeakBitPRNGSeed = ac.WeakBitSeed
	}
	handlerAllow = ac.HandlerAllow
	return nil
}

func main() {
	if err := analyseCmd.Execute(); err != nil {
		os.Exit(exitUsage)
	}
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	if err := applyAnalyserConfig(cmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	if listFlag {
		types := disk.RegisteredTypes()
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: disk-analyse [-f FORMAT] [-r REVS] <in> <out>")
		os.Exit(exitUsage)
	}
	in, out := args[0], args[1]

	stream, err := openCapture(in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFileNotOpenable)
	}

	candidates := candidateOrder()

	d := disk.NewDisk(tracksFlag, disk.DefaultRPM)
	var failures int
	for t := 0; t < tracksFlag; t++ {
		if err := stream.SelectTrack(t); err != nil {
			continue // track absent from this capture
		}
		ti, err := analyseTrack(d, stream, t, candidates)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "track %d: %v\n", t, err)
			continue
		}
		d.Info.Tracks[t] = *ti
	}

	if err := writeOutput(out, d); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitReadError)
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d tracks had no recognized format\n", failures, tracksFlag)
	}
	return nil
}

func openCapture(in string) (*flux.Stream, error) {
	fi, err := os.Stat(in)
	if err != nil {
		return nil, fmt.Errorf("disk-analyse: %w", err)
	}
	if fi.IsDir() {
		return flux.OpenKryoFluxDir(in, tracksFlag)
	}
	return flux.OpenSCP(in)
}

func candidateOrder() []disk.TrackType {
	if formatFlag != "" {
		return []disk.TrackType{disk.TrackType(formatFlag), disk.TypeUnformatted}
	}
	if len(handlerAllow) > 0 {
		ordered := make([]disk.TrackType, 0, len(handlerAllow)+1)
		for _, name := range handlerAllow {
			ordered = append(ordered, disk.TrackType(name))
		}
		ordered = append(ordered, disk.TypeUnformatted)
		return ordered
	}
	var ordered []disk.TrackType
	for _, t := range disk.RegisteredTypes() {
		if t != disk.TypeUnformatted {
			ordered = append(ordered, t)
		}
	}
	ordered = append(ordered, disk.TypeUnformatted)
	return ordered
}

// analyseTrack tries each candidate handler's WriteRaw in order, the
// same "next candidate on NotMyFormat" recovery spec.md §7 describes,
// re-selecting the track's flux before every attempt since a handler
// that rejects a track may have partially consumed the stream.
func analyseTrack(d *disk.Disk, s *flux.Stream, tracknr int, candidates []disk.TrackType) (*disk.TrackInfo, error) {
	for _, t := range candidates {
		h, ok := disk.Lookup(t)
		if !ok {
			continue
		}
		s.Reset()
		ti, err := h.WriteRaw(d, tracknr, s)
		if err == nil {
			return ti, nil
		}
		if err != disk.ErrNotMyFormat {
			continue
		}
	}
	return nil, fmt.Errorf("no registered handler recognized this track")
}

func writeOutput(out string, d *disk.Disk) error {
	if len(out) > 4 && out[len(out)-4:] == ".dsk" {
		return containers.WriteDSK(out, d)
	}
	return containers.WriteLegacy(out, d)
}
