package decoder

import "fmt"

// Activation selects the nonlinearity used by the feed-forward sub-layers
// and the domain adapters.
type Activation int

const (
	ActReLU Activation = iota
	ActGELU
)

func (a Activation) String() string {
	switch a {
	case ActReLU:
		return "relu"
	case ActGELU:
		return "gelu"
	default:
		return fmt.Sprintf("activation(%d)", int(a))
	}
}

// ParseActivation converts a config string to an Activation.
func ParseActivation(s string) (Activation, error) {
	switch s {
	case "", "relu":
		return ActReLU, nil
	case "gelu":
		return ActGELU, nil
	default:
		return 0, fmt.Errorf("decoder: unknown activation %q", s)
	}
}

// Config holds the immutable structural parameters of a decoder.  All fields
// are fixed at construction; a Decoder never mutates its Config.
type Config struct {
	NumLayers      int
	NumUnits       int // hidden width (d_model)
	NumHeads       int
	FFNInnerDim    int
	NumDomains     int
	NumDomainUnits int // adapter units owned by each domain
	NumSources     int // number of memory/encoder inputs cross-attended to

	Dropout          float32
	AttentionDropout float32
	FFNDropout       float32

	Activation Activation
}

// HeadDim returns the per-head width.
func (c Config) HeadDim() int { return c.NumUnits / c.NumHeads }

// BankUnits returns the total width of the adapter parameter bank, covering
// every domain's slice.
func (c Config) BankUnits() int { return c.NumDomains * c.NumDomainUnits }

// Validate checks the structural invariants fixed at construction.
func (c Config) Validate() error {
	if c.NumLayers <= 0 {
		return fmt.Errorf("decoder: layer count must be positive, got %d", c.NumLayers)
	}
	if c.NumUnits <= 0 || c.NumHeads <= 0 {
		return fmt.Errorf("decoder: width and head count must be positive, got %d and %d", c.NumUnits, c.NumHeads)
	}
	if c.NumUnits%c.NumHeads != 0 {
		return fmt.Errorf("decoder: width %d not divisible by head count %d", c.NumUnits, c.NumHeads)
	}
	if c.FFNInnerDim <= 0 {
		return fmt.Errorf("decoder: ffn inner dim must be positive, got %d", c.FFNInnerDim)
	}
	if c.NumDomains <= 0 || c.NumDomainUnits <= 0 {
		return fmt.Errorf("decoder: domain count and domain units must be positive, got %d and %d", c.NumDomains, c.NumDomainUnits)
	}
	if c.NumSources < 0 {
		return fmt.Errorf("decoder: source count must not be negative, got %d", c.NumSources)
	}
	for _, rate := range []float32{c.Dropout, c.AttentionDropout, c.FFNDropout} {
		if rate < 0 || rate >= 1 {
			return fmt.Errorf("decoder: dropout rate %v outside [0,1)", rate)
		}
	}
	return nil
}
