// Command despeckle removes black and white speckles from images.
//
// Usage:
//
//	despeckle filter [options] <input>     Despeckle an image (use "-" for stdin)
//	despeckle compare [options] <a> <b>    Compare two images of the same size
//	despeckle info <input>                 Display image metadata and luminance summary
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/deepteams/despeckle"
	"github.com/deepteams/despeckle/internal/config"
	"github.com/deepteams/despeckle/internal/monitoring"
	"github.com/deepteams/despeckle/rawpix"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "filter":
		err = runFilter(os.Args[2:])
	case "compare":
		err = runCompare(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "despeckle: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "despeckle: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  despeckle filter [options] <input>     Despeckle an image
  despeckle compare [options] <a> <b>    Compare two images of the same size
  despeckle info <input>                 Display image metadata

Inputs may be PNG, JPEG, GIF, BMP, TIFF, WebP or RPX.
Use "-" as input to read from stdin, "-o -" to write to stdout.

Run "despeckle <command> -h" for command-specific options.
`)
}

// openInput returns an io.ReadCloser for the given path.
// If path is "-", stdin is returned (caller should not close).
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func decodeFile(path string) (image.Image, string, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, "", err
	}
	defer in.Close()
	return image.Decode(in)
}

// --- filter ---

func runFilter(args []string) error {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	radius := fs.Int("r", despeckle.DefaultRadius, fmt.Sprintf("window radius 1-%d", despeckle.MaxRadius))
	filterType := fs.String("type", "adaptive", "filter type: adaptive/recursive")
	black := fs.Int("black", despeckle.DefaultBlackLevel, "black level 0-255")
	white := fs.Int("white", despeckle.DefaultWhiteLevel, "white level 0-255")
	seed := fs.Uint64("seed", 0, "tie-break seed for reproducible output (random if unset)")
	configPath := fs.String("config", "", "JSON config file (flags override it)")
	output := fs.String("o", "", `output path (default: <input>.despeckled.png, "-" for stdout)`)
	fmtFlag := fs.String("fmt", "", "output format: png, jpeg, tiff, bmp, rpx (auto-detect from extension if omitted)")
	quality := fs.Int("q", 90, "JPEG quality 1-100")
	stats := fs.Bool("stats", false, "print before/after statistics")
	verbose := fs.Bool("v", false, "log filter progress")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("filter: missing input file\nUsage: despeckle filter [options] <input>")
	}
	inputPath := fs.Arg(0)

	if *verbose {
		log.SetPrefix("despeckle: ")
		monitoring.SetLogger(log.Printf)
	}

	// Defaults, then the config file, then explicitly set flags.
	opts := despeckle.DefaultOptions()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		if err := cfg.Apply(opts); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		monitoring.Logf("loaded config %s", *configPath)
	}
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "r":
			opts.Radius = *radius
		case "type":
			ft, err := despeckle.ParseFilterType(*filterType)
			if err != nil {
				flagErr = err
				return
			}
			opts.Type = ft
		case "black":
			opts.BlackLevel = *black
		case "white":
			opts.WhiteLevel = *white
		case "seed":
			opts.Rand = despeckle.NewSource(*seed)
		}
	})
	if flagErr != nil {
		return fmt.Errorf("filter: %w", flagErr)
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	img, format, err := decodeFile(inputPath)
	if err != nil {
		return fmt.Errorf("filter: decoding input: %w", err)
	}
	monitoring.Logf("decoded %s (%s, %v)", inputPath, format, img.Bounds())

	start := time.Now()
	out, err := despeckle.Filter(img, opts)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	outFmt := detectOutputFormat(*fmtFlag, *output)
	if *output == "-" {
		if err := encodeImage(os.Stdout, out, outFmt, *quality); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	} else {
		outputPath := *output
		if outputPath == "" {
			outputPath = defaultOutputPath(inputPath, outFmt)
		}
		if err := writeImage(outputPath, out, outFmt, *quality); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Despeckled %s → %s (%s, r=%d, %v)\n",
			inputPath, outputPath, opts.Type, opts.Radius, elapsed.Round(time.Millisecond))
	}

	if *stats {
		st, err := despeckle.Compare(img, out, opts.BlackLevel, opts.WhiteLevel)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		printStats(os.Stderr, st)
	}
	return nil
}

// detectOutputFormat returns the output format name from the flag or the
// output path extension, defaulting to png.
func detectOutputFormat(fmtFlag, outputPath string) string {
	if fmtFlag != "" {
		return strings.ToLower(fmtFlag)
	}
	if outputPath != "" && outputPath != "-" {
		switch strings.ToLower(filepath.Ext(outputPath)) {
		case ".jpg", ".jpeg":
			return "jpeg"
		case ".tif", ".tiff":
			return "tiff"
		case ".bmp":
			return "bmp"
		case ".rpx":
			return "rpx"
		}
	}
	return "png"
}

func defaultOutputPath(inputPath, format string) string {
	ext := "." + format
	if format == "jpeg" {
		ext = ".jpg"
	}
	if inputPath == "-" {
		return "output" + ext
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return base + ".despeckled" + ext
}

// encodeImage writes img in the specified format to w.
func encodeImage(w io.Writer, img image.Image, format string, quality int) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg", "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case "tiff", "tif":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "bmp":
		return bmp.Encode(w, img)
	case "rpx":
		return rawpix.Encode(w, img, nil)
	default:
		return fmt.Errorf("unknown output format %q (use png/jpeg/tiff/bmp/rpx)", format)
	}
}

func writeImage(path string, img image.Image, format string, quality int) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeImage(out, img, format, quality); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func printStats(w io.Writer, st despeckle.Stats) {
	fmt.Fprintf(w, "Pixels:     %d\n", st.Before.Pixels)
	fmt.Fprintf(w, "Changed:    %d (%.2f%%)\n", st.Changed, percent(st.Changed, st.Before.Pixels))
	fmt.Fprintf(w, "Below:      %d → %d\n", st.Before.Below, st.After.Below)
	fmt.Fprintf(w, "Above:      %d → %d\n", st.Before.Above, st.After.Above)
	fmt.Fprintf(w, "Mean:       %.2f → %.2f\n", st.Before.Mean, st.After.Mean)
	fmt.Fprintf(w, "StdDev:     %.2f → %.2f\n", st.Before.StdDev, st.After.StdDev)
	fmt.Fprintf(w, "PSNR:       %.2f dB\n", st.PSNR)
	fmt.Fprintf(w, "SSIM:       %.4f\n", st.SSIM)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// --- compare ---

func runCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	black := fs.Int("black", despeckle.DefaultBlackLevel, "black level 0-255")
	white := fs.Int("white", despeckle.DefaultWhiteLevel, "white level 0-255")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("compare: need two input files\nUsage: despeckle compare [options] <a> <b>")
	}
	if fs.Arg(0) == "-" && fs.Arg(1) == "-" {
		return fmt.Errorf("compare: only one input may be stdin")
	}

	a, _, err := decodeFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("compare: decoding %s: %w", fs.Arg(0), err)
	}
	b, _, err := decodeFile(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("compare: decoding %s: %w", fs.Arg(1), err)
	}
	st, err := despeckle.Compare(a, b, *black, *white)
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	printStats(os.Stdout, st)
	return nil
}

// --- info ---

func runInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("info: missing input file\nUsage: despeckle info <input>")
	}
	inputPath := args[0]

	img, format, err := decodeFile(inputPath)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	name := inputPath
	if inputPath == "-" {
		name = "<stdin>"
	}
	b := img.Bounds()
	s := despeckle.Summarize(img, despeckle.DefaultBlackLevel, despeckle.DefaultWhiteLevel)

	fmt.Printf("File:       %s\n", name)
	fmt.Printf("Format:     %s\n", format)
	fmt.Printf("Dimensions: %d x %d\n", b.Dx(), b.Dy())
	fmt.Printf("Luminance:  mean %.2f, stddev %.2f\n", s.Mean, s.StdDev)
	fmt.Printf("Clipped:    %d below, %d above (%.2f%%)\n", s.Below, s.Above, 100*s.Clipped())

	if inputPath != "-" {
		fi, err := os.Stat(inputPath)
		if err == nil {
			fmt.Printf("File size:  %d bytes\n", fi.Size())
		}
	}
	return nil
}
