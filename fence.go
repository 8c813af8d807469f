package dataflowgraph

/*
   Copyright 2018 Bruno Moura <brunotm@gmail.com>

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import "context"

// Fence is a job-handle completion token for one render (spec.md §4.7).
// Graph value resolution and input batch submission wait on a Fence rather
// than polling, so a consumer never observes a render mid-flight.
type Fence struct {
	done chan struct{}
	err  error
}

func newFence() *Fence {
	return &Fence{done: make(chan struct{})}
}

// Complete marks the fence satisfied, optionally carrying the render's
// terminal error.
func (f *Fence) Complete(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the fence completes or ctx is cancelled, whichever
// comes first.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports whether the fence has already completed, without blocking.
func (f *Fence) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// combineFences returns a Fence that completes once every input fence has
// completed, carrying the first non-nil error encountered.
func combineFences(fences ...*Fence) *Fence {
	combined := newFence()
	go func() {
		var firstErr error
		for _, f := range fences {
			if f == nil {
				continue
			}
			<-f.done
			if firstErr == nil {
				firstErr = f.err
			}
		}
		combined.Complete(firstErr)
	}()
	return combined
}
