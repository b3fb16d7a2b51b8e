package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deepteams/despeckle"
	"github.com/deepteams/despeckle/rawpix"
)

// binaryPath holds the path to the compiled despeckle binary. Set in TestMain.
var binaryPath string

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "despeckle-test-bin-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	binaryPath = filepath.Join(tmp, "despeckle")
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = rootDir()
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		// Mark binary as empty so tests skip gracefully.
		binaryPath = ""
	}

	os.Exit(m.Run())
}

// rootDir returns the absolute path of the cmd/despeckle source directory.
func rootDir() string {
	dir, err := filepath.Abs(".")
	if err != nil {
		panic(err)
	}
	return dir
}

// skipIfNoBinary skips the test when the binary was not built.
func skipIfNoBinary(t *testing.T) {
	t.Helper()
	if binaryPath == "" {
		t.Skip("despeckle binary not built; skipping")
	}
}

// runDespeckle executes the binary with the given arguments and optional
// stdin data. Returns stdout, stderr, and any error.
func runDespeckle(t *testing.T, stdin []byte, args ...string) (stdout, stderr []byte, err error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// speckledImage returns a flat gray 16x16 image with one black and one
// white speckle.
func speckledImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	img.SetNRGBA(5, 5, color.NRGBA{A: 255})
	img.SetNRGBA(11, 9, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

// createTestPNG writes speckledImage to dir and returns the file path.
func createTestPNG(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "input.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test PNG: %v", err)
	}
	if err := png.Encode(f, speckledImage()); err != nil {
		f.Close()
		t.Fatalf("encoding test PNG: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing test PNG: %v", err)
	}
	return path
}

func decodePath(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return img
}

// assertDespeckled checks that both speckles were replaced by the background.
func assertDespeckled(t *testing.T, img image.Image) {
	t.Helper()
	bg := despeckle.Luminance(color.RGBA64Model.Convert(img.At(0, 0)).(color.RGBA64))
	for _, p := range []image.Point{{5, 5}, {11, 9}} {
		got := despeckle.Luminance(color.RGBA64Model.Convert(img.At(p.X, p.Y)).(color.RGBA64))
		if got != bg {
			t.Errorf("pixel %v luminance = %d, want background %d", p, got, bg)
		}
	}
}

// --- in-process tests ---

func TestDetectOutputFormat(t *testing.T) {
	tests := []struct {
		flag, path, want string
	}{
		{"", "", "png"},
		{"", "-", "png"},
		{"", "out.JPG", "jpeg"},
		{"", "out.tif", "tiff"},
		{"", "out.bmp", "bmp"},
		{"", "out.rpx", "rpx"},
		{"TIFF", "out.png", "tiff"},
	}
	for _, tt := range tests {
		if got := detectOutputFormat(tt.flag, tt.path); got != tt.want {
			t.Errorf("detectOutputFormat(%q, %q) = %q, want %q", tt.flag, tt.path, got, tt.want)
		}
	}
}

func TestDefaultOutputPath(t *testing.T) {
	if got := defaultOutputPath("/a/b/scan.png", "png"); got != "scan.despeckled.png" {
		t.Errorf("got %q", got)
	}
	if got := defaultOutputPath("scan.tif", "jpeg"); got != "scan.despeckled.jpg" {
		t.Errorf("got %q", got)
	}
	if got := defaultOutputPath("-", "rpx"); got != "output.rpx" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeImage_AllFormatsDecode(t *testing.T) {
	img := speckledImage()
	for _, format := range []string{"png", "jpeg", "tiff", "bmp", "rpx"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := encodeImage(&buf, img, format, 95); err != nil {
				t.Fatalf("encodeImage: %v", err)
			}
			got, name, err := image.Decode(&buf)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if name != format {
				t.Errorf("decoded as %q, want %q", name, format)
			}
			if got.Bounds().Size() != img.Bounds().Size() {
				t.Errorf("size = %v, want %v", got.Bounds().Size(), img.Bounds().Size())
			}
		})
	}
	if err := encodeImage(&bytes.Buffer{}, img, "gif", 90); err == nil {
		t.Error("expected an error for an unsupported output format")
	}
}

// --- filter tests ---

func TestFilter_PNG(t *testing.T) {
	skipIfNoBinary(t)
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	out := filepath.Join(dir, "out.png")

	_, stderr, err := runDespeckle(t, nil, "filter", "-seed", "1", "-o", out, in)
	if err != nil {
		t.Fatalf("filter failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(string(stderr), "Despeckled") {
		t.Errorf("expected status line on stderr, got %q", stderr)
	}
	assertDespeckled(t, decodePath(t, out))
}

func TestFilter_StdinToStdoutRPX(t *testing.T) {
	skipIfNoBinary(t)
	var in bytes.Buffer
	if err := png.Encode(&in, speckledImage()); err != nil {
		t.Fatal(err)
	}
	stdout, stderr, err := runDespeckle(t, in.Bytes(), "filter", "-fmt", "rpx", "-type", "recursive", "-o", "-", "-")
	if err != nil {
		t.Fatalf("filter failed: %v\nstderr: %s", err, stderr)
	}
	img, err := rawpix.DecodeRGBA64(bytes.NewReader(stdout))
	if err != nil {
		t.Fatalf("decoding stdout: %v", err)
	}
	assertDespeckled(t, img)
}

func TestFilter_ConfigAndFlagOverride(t *testing.T) {
	skipIfNoBinary(t)
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	cfg := filepath.Join(dir, "despeckle.json")
	// The config alone is invalid (black >= white); the flag fixes it.
	if err := os.WriteFile(cfg, []byte(`{"radius": 2, "black_level": 250, "seed": 3}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := runDespeckle(t, nil, "filter", "-config", cfg, "-o", filepath.Join(dir, "bad.png"), in)
	if err == nil {
		t.Fatal("expected invalid options from config alone")
	}
	if !strings.Contains(string(stderr), "invalid options") {
		t.Errorf("stderr = %q", stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.png")); !os.IsNotExist(err) {
		t.Error("no output should be written on error")
	}

	out := filepath.Join(dir, "good.png")
	_, stderr, err = runDespeckle(t, nil, "filter", "-config", cfg, "-black", "7", "-o", out, in)
	if err != nil {
		t.Fatalf("filter failed: %v\nstderr: %s", err, stderr)
	}
	assertDespeckled(t, decodePath(t, out))
}

func TestFilter_StatsAndVerbose(t *testing.T) {
	skipIfNoBinary(t)
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	_, stderr, err := runDespeckle(t, nil, "filter", "-stats", "-v", "-o", filepath.Join(dir, "o.tiff"), in)
	if err != nil {
		t.Fatalf("filter failed: %v\nstderr: %s", err, stderr)
	}
	s := string(stderr)
	for _, want := range []string{"Changed:    2", "PSNR:", "SSIM:", "despeckle: "} {
		if !strings.Contains(s, want) {
			t.Errorf("stderr missing %q:\n%s", want, s)
		}
	}
}

func TestFilter_Errors(t *testing.T) {
	skipIfNoBinary(t)
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing input", []string{"filter"}, "missing input"},
		{"bad radius", []string{"filter", "-r", "0", in}, "invalid options"},
		{"bad type", []string{"filter", "-type", "mean", in}, "unknown filter type"},
		{"bad format", []string{"filter", "-fmt", "gif", "-o", filepath.Join(dir, "x.gif"), in}, "unknown output format"},
		{"not an image", []string{"filter", filepath.Join(rootDir(), "main.go")}, "decoding input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := runDespeckle(t, nil, tt.args...)
			if err == nil {
				t.Fatal("expected failure")
			}
			if !strings.Contains(string(stderr), tt.want) {
				t.Errorf("stderr = %q, want %q", stderr, tt.want)
			}
		})
	}
}

// --- compare / info tests ---

func TestCompare(t *testing.T) {
	skipIfNoBinary(t)
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	out := filepath.Join(dir, "out.png")
	if _, stderr, err := runDespeckle(t, nil, "filter", "-o", out, in); err != nil {
		t.Fatalf("filter failed: %v\nstderr: %s", err, stderr)
	}

	stdout, stderr, err := runDespeckle(t, nil, "compare", in, out)
	if err != nil {
		t.Fatalf("compare failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(string(stdout), "Changed:    2") {
		t.Errorf("unexpected compare output:\n%s", stdout)
	}
}

func TestInfo(t *testing.T) {
	skipIfNoBinary(t)
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	stdout, stderr, err := runDespeckle(t, nil, "info", in)
	if err != nil {
		t.Fatalf("info failed: %v\nstderr: %s", err, stderr)
	}
	s := string(stdout)
	for _, want := range []string{"Format:     png", "Dimensions: 16 x 16", "Clipped:    1 below, 1 above"} {
		if !strings.Contains(s, want) {
			t.Errorf("info output missing %q:\n%s", want, s)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	skipIfNoBinary(t)
	_, stderr, err := runDespeckle(t, nil, "sharpen")
	if err == nil {
		t.Fatal("expected failure for unknown command")
	}
	if !strings.Contains(string(stderr), "unknown command") {
		t.Errorf("stderr = %q", stderr)
	}
}
