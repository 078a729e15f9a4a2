package dataset

import (
	"context"
	"math/rand"
	"sync"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	BatchSize  int
	Shuffle    bool
	DropLast   bool
	NumWorkers int
	Transform  Transform
	Seed       int64
}

// Batch is one decoded, transformed mini-batch.
type Batch struct {
	Index  int
	Inputs [][]float64
	Labels []int
}

// Loader splits a Dataset into batches. Batches are prepared by a pool of
// workers and delivered in order.
type Loader struct {
	ds    *Dataset
	opts  LoaderOptions
	rng   *rand.Rand
	epoch int64
}

// NewLoader returns a loader over ds. A zero batch size means 32 and fewer
// than one worker means one.
func NewLoader(ds *Dataset, opts LoaderOptions) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	return &Loader{ds: ds, opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() *Dataset { return l.ds }

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.opts.BatchSize }

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	n := l.ds.Len() / l.opts.BatchSize
	if !l.opts.DropLast && l.ds.Len()%l.opts.BatchSize != 0 {
		n++
	}
	return n
}

type batchJob struct {
	index   int
	samples []int
}

// Batches starts one pass over the data. The returned channel is closed after
// the last batch or when ctx is cancelled. Each call reshuffles when Shuffle
// is set; Batches must not be called again before the previous pass drains.
func (l *Loader) Batches(ctx context.Context) <-chan Batch {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.opts.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	epoch := l.epoch
	l.epoch++

	jobs := make(chan batchJob, l.opts.NumWorkers)
	results := make(chan Batch, l.opts.NumWorkers)
	out := make(chan Batch, l.opts.NumWorkers)

	go func() {
		defer close(jobs)
		for b := 0; b < l.Len(); b++ {
			end := min((b+1)*l.opts.BatchSize, len(order))
			select {
			case <-ctx.Done():
				return
			case jobs <- batchJob{index: b, samples: order[b*l.opts.BatchSize : end]}:
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < l.opts.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				batch := l.build(job, epoch)
				select {
				case <-ctx.Done():
					return
				case results <- batch:
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(out)
		reorder(ctx, results, out)
	}()
	return out
}

// reorder forwards batches in index order, holding early arrivals.
func reorder(ctx context.Context, in <-chan Batch, out chan<- Batch) {
	pending := make(map[int]Batch)
	next := 0
	for {
		if b, ok := pending[next]; ok {
			delete(pending, next)
			select {
			case <-ctx.Done():
				return
			case out <- b:
			}
			next++
			continue
		}
		select {
		case <-ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				return
			}
			pending[b.Index] = b
		}
	}
}

func (l *Loader) build(job batchJob, epoch int64) Batch {
	rng := rand.New(rand.NewSource(l.opts.Seed ^ epoch<<32 ^ int64(job.index)))
	b := Batch{
		Index:  job.index,
		Inputs: make([][]float64, len(job.samples)),
		Labels: make([]int, len(job.samples)),
	}
	for i, idx := range job.samples {
		img, shape := l.ds.Sample(idx), l.ds.Shape
		if l.opts.Transform != nil {
			img, _ = l.opts.Transform.Apply(img, shape, rng)
		}
		b.Inputs[i] = img
		b.Labels[i] = l.ds.Labels[idx]
	}
	return b
}
