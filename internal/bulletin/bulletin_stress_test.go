//go:build !race

package bulletin

import (
	"runtime"
	"sync"
	"testing"
)

func TestBulletin_ConcurrentReadersSeeOrderedUntornValues(t *testing.T) {
	const (
		writes  = 200000
		readers = 4
	)
	b, w := New[sample]()

	var wg sync.WaitGroup
	start := make(chan struct{})
	done := make(chan struct{})
	errs := make(chan string, readers)

	for k := 0; k < readers; k++ {
		r := b.Reader()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			var last int64
			for {
				select {
				case <-done:
					// Drain the final value.
					if v, ok := r.Get(); ok && v.A <= last {
						errs <- "duplicate or reordered value after writer finished"
					}
					return
				default:
				}
				v, ok := r.Get()
				if !ok {
					runtime.Gosched()
					continue
				}
				if v.B != -v.A || v.C != v.A*v.A {
					errs <- "torn read"
					return
				}
				if v.A <= last {
					errs <- "duplicate or reordered value"
					return
				}
				if v.A < 1 || v.A > writes {
					errs <- "value never written"
					return
				}
				last = v.A
			}
		}()
	}

	close(start)
	for i := int64(1); i <= writes; i++ {
		w.Write(sample{A: i, B: -i, C: i * i})
	}
	close(done)
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
}

func TestBulletin_ConcurrentGetLastNeverTorn(t *testing.T) {
	b, w := New[sample]()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			w.Write(sample{A: i, B: -i, C: i * i})
		}
	}()

	r := b.Reader()
	for n := 0; n < 100000; n++ {
		v, ok := r.GetLast()
		if !ok {
			continue
		}
		if v.B != -v.A || v.C != v.A*v.A {
			close(stop)
			wg.Wait()
			t.Fatalf("torn read: %+v", v)
		}
	}
	close(stop)
	wg.Wait()
}
