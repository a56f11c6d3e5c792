package kv

type put struct {
	key   []byte
	value []byte
}

// Batch is an ordered list of puts applied atomically by Engine.Write.
// The store is append-only, so a batch carries no deletes.
type Batch struct {
	puts []put
	size int
}

func NewBatch() *Batch {
	return &Batch{}
}

// Put stages key -> value. Both slices are copied.
func (b *Batch) Put(key, value []byte) {
	b.puts = append(b.puts, put{
		key:   append([]byte(nil), key...),
		value: append([]byte{}, value...),
	})
	b.size += len(key) + len(value)
}

// Len returns the number of staged puts.
func (b *Batch) Len() int {
	return len(b.puts)
}

// Size returns the staged key and value bytes.
func (b *Batch) Size() int {
	return b.size
}

// Each calls fn for every put in staging order and stops at the first error.
func (b *Batch) Each(fn func(key, value []byte) error) error {
	for _, p := range b.puts {
		if err := fn(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}
