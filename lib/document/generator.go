package document

import (
	"iter"
	"math/rand"
	"runtime"
	"sync/atomic"
)

const (
	// yieldEvery is the number of generated documents after which the generator
	// hands control back to the scheduler.
	yieldEvery = 5000

	charset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GeneratorOptions configures the shape of generated documents.
type GeneratorOptions struct {
	Seed        int64 // Seed of the random source (0 = fixed default seed)
	IDLength    int   // Length of the random id
	TextLength  int   // Length of the random longtext
	ListLength  int   // Number of items in the list
	MaxAge      int   // Age is uniform in [0, MaxAge]
	MaxNestedTo int   // Nes.Ted is uniform in [0, MaxNestedTo]
}

// DefaultGeneratorOptions returns the options used by the benchmark driver.
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Seed:        1,
		IDLength:    12,
		TextLength:  1000,
		ListLength:  3,
		MaxAge:      100,
		MaxNestedTo: 100,
	}
}

// Generator produces random documents. It is not safe for concurrent use.
type Generator struct {
	opts GeneratorOptions
	rnd  *rand.Rand
}

// NewGenerator creates a generator. A nil opts uses DefaultGeneratorOptions.
func NewGenerator(opts *GeneratorOptions) *Generator {
	o := DefaultGeneratorOptions()
	if opts != nil {
		o = *opts
	}
	return &Generator{
		opts: o,
		rnd:  rand.New(rand.NewSource(o.Seed)),
	}
}

// NewDoc returns a single random document.
func (g *Generator) NewDoc() Document {
	doc := Document{
		ID:       g.randomString(g.opts.IDLength),
		Age:      g.rnd.Intn(g.opts.MaxAge + 1),
		LongText: g.randomString(g.opts.TextLength),
		Nes:      Nested{Ted: g.rnd.Intn(g.opts.MaxNestedTo + 1)},
		List:     make([]ListItem, g.opts.ListLength),
	}
	for i := range doc.List {
		doc.List[i] = ListItem{Value: g.randomString(8)}
	}
	return doc
}

// Stream returns a finite sequence of n random documents.
// The sequence can only be consumed once, ranging over it a second time yields nothing.
// Every 5000 documents the generator yields the processor so long generations don't
// starve other goroutines.
func (g *Generator) Stream(n int) iter.Seq[Document] {
	var consumed atomic.Bool
	return func(yield func(Document) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}
		for i := 0; i < n; i++ {
			if !yield(g.NewDoc()) {
				return
			}
			if (i+1)%yieldEvery == 0 {
				runtime.Gosched()
			}
		}
	}
}

// Take collects n random documents into a slice.
func (g *Generator) Take(n int) []Document {
	docs := make([]Document, 0, n)
	for doc := range g.Stream(n) {
		docs = append(docs, doc)
	}
	return docs
}

func (g *Generator) randomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[g.rnd.Intn(len(charset))]
	}
	return string(b)
}
