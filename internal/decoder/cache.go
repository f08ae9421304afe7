package decoder

// DType identifies the numeric type of cache storage.  Only float32 is
// supported; the parameter exists so callers state the type explicitly.
type DType int

const (
	F32 DType = iota
)

// Cache holds the per-layer key/value history of one decode session.  It is
// owned by the caller, not the decoder, so several sessions can run against
// one decoder as long as each uses its own cache.  Concurrent Step calls on
// the same cache are not supported.
type Cache struct {
	Batch  int
	Layers []LayerCache
}

// LayerCache is the accumulated state of a single decoder layer.
//
// SelfK and SelfV grow by one timestep per Step call.  They are stored
// time-major: timestep t occupies the block [t*batch*stride, (t+1)*batch*stride),
// with example b at offset b*stride inside the block and head h at offset
// h*headDim inside that.  Memory holds one fixed key/value pair per memory
// source, computed on first use and reused for every later step.
type LayerCache struct {
	SelfK, SelfV []float32
	Steps        int
	Memory       []MemoryKV
}

// MemoryKV is the projected key/value pair of one memory source, laid out
// like SelfK/SelfV.  Time stays zero until the first call that sees the
// source.
type MemoryKV struct {
	K, V []float32
	Time int
}

// appendSelf appends one or more projected timesteps.  k and v hold
// steps*batch*stride values in the cache's time-major layout.
func (lc *LayerCache) appendSelf(k, v []float32, steps int) {
	lc.SelfK = append(lc.SelfK, k...)
	lc.SelfV = append(lc.SelfV, v...)
	lc.Steps += steps
}

// InitialCache creates the empty state for an incremental decode: every
// layer's self key/value history is zero-length along the time axis and
// every memory slot is an unfilled placeholder.
func (d *Decoder) InitialCache(batch int, dtype DType) (*Cache, error) {
	if dtype != F32 {
		return nil, ErrDTypeUnsupported
	}
	c := &Cache{
		Batch:  batch,
		Layers: make([]LayerCache, d.cfg.NumLayers),
	}
	for i := range c.Layers {
		c.Layers[i].Memory = make([]MemoryKV, d.cfg.NumSources)
	}
	return c, nil
}
