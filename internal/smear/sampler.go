package smear

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Default seeds. Every processing context re-seeds from these unless the
// run configuration overrides them.
const (
	DefaultDrawSeed uint64 = 42
	DefaultSignSeed uint64 = 4242
)

// Seeds groups the two independent generator seeds of one context.
type Seeds struct {
	Draw uint64
	Sign uint64
}

// DefaultSeeds returns the default seed pair.
func DefaultSeeds() Seeds {
	return Seeds{Draw: DefaultDrawSeed, Sign: DefaultSignSeed}
}

func newSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Drawer picks pool elements by a uniformly distributed index. It is not
// safe for concurrent use: its state advances once per Draw.
type Drawer struct {
	pool  *Pool
	index distuv.Uniform
}

// NewDrawer returns a Drawer over pool seeded with seed.
func NewDrawer(pool *Pool, seed uint64) (*Drawer, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, ErrEmptyPool
	}
	return &Drawer{
		pool:  pool,
		index: distuv.Uniform{Min: 0, Max: float64(pool.Len()), Src: newSource(seed)},
	}, nil
}

// Draw returns the next pool element.
func (d *Drawer) Draw() float64 {
	i := int(math.Floor(d.index.Rand()))
	if i >= d.pool.Len() {
		i = d.pool.Len() - 1
	}
	return d.pool.At(i)
}

// Synthesizer turns a reference ("true") angle delta into a reconstructed
// one through sign * (lin*|x| + quad*|x|^2), with a fair random sign. It is
// not safe for concurrent use.
type Synthesizer struct {
	sign distuv.Bernoulli
}

// NewSynthesizer returns a Synthesizer seeded with seed.
func NewSynthesizer(seed uint64) *Synthesizer {
	return &Synthesizer{sign: distuv.Bernoulli{P: 0.5, Src: newSource(seed)}}
}

// Synthesize applies the linear plus quadratic model to |trueDelta|.
func (s *Synthesizer) Synthesize(trueDelta, lin, quad float64) float64 {
	x := math.Abs(trueDelta)
	sign := -1.0
	if s.sign.Rand() == 1 {
		sign = 1.0
	}
	return sign * (lin*x + quad*x*x)
}

// Context bundles the generators owned by one processing context.
type Context struct {
	Drawer      *Drawer
	Synthesizer *Synthesizer
}

// NewContext seeds a fresh Drawer and Synthesizer. pool may be nil when the
// caller only synthesizes.
func NewContext(pool *Pool, seeds Seeds) (*Context, error) {
	ctx := &Context{Synthesizer: NewSynthesizer(seeds.Sign)}
	if pool != nil {
		d, err := NewDrawer(pool, seeds.Draw)
		if err != nil {
			return nil, err
		}
		ctx.Drawer = d
	}
	return ctx, nil
}

// Draw returns the next empirical delta, or ErrNoPool.
func (c *Context) Draw() (float64, error) {
	if c.Drawer == nil {
		return 0, ErrNoPool
	}
	return c.Drawer.Draw(), nil
}
