package despeckle

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/deepteams/despeckle/internal/histogram"
)

// MaxRadius is the largest supported window radius.
const MaxRadius = histogram.MaxRadius

// Default option values.
const (
	DefaultRadius     = 3
	DefaultBlackLevel = 7
	DefaultWhiteLevel = 248
)

// Errors returned by the filter.
var (
	ErrInvalidOptions = errors.New("despeckle: invalid options")
	ErrNilImage       = errors.New("despeckle: nil image")
)

// FilterType selects how medians feed back into the scan.
type FilterType int

const (
	// Adaptive leaves the source untouched and grows or shrinks the window
	// radius with the local density of clipped pixels.
	Adaptive FilterType = iota
	// Recursive writes each median back into the source, so later pixels in
	// the pass see already-filtered values. The radius stays fixed.
	Recursive
)

// String returns the lower-case name of the filter type.
func (t FilterType) String() string {
	switch t {
	case Adaptive:
		return "adaptive"
	case Recursive:
		return "recursive"
	default:
		return fmt.Sprintf("FilterType(%d)", int(t))
	}
}

// ParseFilterType parses "adaptive" or "recursive", ignoring case.
func ParseFilterType(s string) (FilterType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adaptive":
		return Adaptive, nil
	case "recursive":
		return Recursive, nil
	default:
		return 0, fmt.Errorf("despeckle: unknown filter type %q (use adaptive/recursive)", s)
	}
}

// Source picks uniformly distributed integers in [0, n). It breaks ties
// between equally bright pixels in the median bucket.
// *math/rand/v2.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// NewSource returns a deterministic Source for the given seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Options controls a despeckle pass.
type Options struct {
	// Radius is the half-width of the median window, 1-MaxRadius (default 3).
	// In Adaptive mode it is the upper bound of the adaptive radius.
	Radius int

	// Type selects Adaptive (default) or Recursive filtering.
	Type FilterType

	// BlackLevel and WhiteLevel bound the luminance range taking part in the
	// median (defaults 7 and 248). Pixels with luminance <= BlackLevel or
	// >= WhiteLevel are treated as speckle candidates: they are counted but
	// never chosen as a median. Both must be in 0-255 with BlackLevel < WhiteLevel.
	BlackLevel int
	WhiteLevel int

	// Rand breaks ties inside the median bucket. Nil means a freshly seeded
	// generator per pass, so output may differ between runs among pixels of
	// equal luminance. Set it (see NewSource) for reproducible output.
	// A Source is used by one pass at a time.
	Rand Source
}

// DefaultOptions returns the default adaptive filter settings.
func DefaultOptions() *Options {
	return &Options{
		Radius:     DefaultRadius,
		Type:       Adaptive,
		BlackLevel: DefaultBlackLevel,
		WhiteLevel: DefaultWhiteLevel,
	}
}

// Validate reports the first invalid option. The returned error wraps
// ErrInvalidOptions.
func (o *Options) Validate() error {
	if o.Radius < 1 || o.Radius > MaxRadius {
		return fmt.Errorf("%w: Radius %d (must be 1-%d)", ErrInvalidOptions, o.Radius, MaxRadius)
	}
	if o.Type != Adaptive && o.Type != Recursive {
		return fmt.Errorf("%w: Type %d", ErrInvalidOptions, int(o.Type))
	}
	if o.BlackLevel < 0 || o.BlackLevel > 255 {
		return fmt.Errorf("%w: BlackLevel %d (must be 0-255)", ErrInvalidOptions, o.BlackLevel)
	}
	if o.WhiteLevel < 0 || o.WhiteLevel > 255 {
		return fmt.Errorf("%w: WhiteLevel %d (must be 0-255)", ErrInvalidOptions, o.WhiteLevel)
	}
	if o.WhiteLevel <= o.BlackLevel {
		return fmt.Errorf("%w: WhiteLevel %d must exceed BlackLevel %d", ErrInvalidOptions, o.WhiteLevel, o.BlackLevel)
	}
	return nil
}

// source returns o.Rand, or a randomly seeded generator when it is nil.
func (o *Options) source() Source {
	if o.Rand != nil {
		return o.Rand
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
