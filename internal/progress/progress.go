// Package progress bridges a blocking byte-level upload to the status message that
// shows its percentage.
//
// The uploader goroutine is the only writer of an UploadProgress; the reporter loop is
// the only reader. The percentage is an atomic cell that only moves forward, and a
// single-slot channel wakes the reporter when it changes.
package progress

import (
	"io"
	"sync/atomic"
)

// UploadProgress is the per-job progress cell shared by the uploader and the reporter.
type UploadProgress struct {
	percent atomic.Int32
	wake    chan struct{}
}

func NewUploadProgress() *UploadProgress {
	return &UploadProgress{wake: make(chan struct{}, 1)}
}

// Set stores percent if it is larger than the current value and wakes the reporter.
// Smaller values, as produced by a retried upload, are ignored.
func (p *UploadProgress) Set(percent int) {
	if percent > 100 {
		percent = 100
	}
	for {
		cur := p.percent.Load()
		if int32(percent) <= cur {
			return
		}
		if p.percent.CompareAndSwap(cur, int32(percent)) {
			break
		}
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *UploadProgress) Percent() int {
	return int(p.percent.Load())
}

// Wake fires at most once per batch of Set calls since the last receive.
func (p *UploadProgress) Wake() <-chan struct{} {
	return p.wake
}

// Reader counts bytes read through it and calls onProgress once for every new integer
// percentage of total. Emitted values are strictly increasing and the last one is 100
// once total bytes have been read.
type Reader struct {
	r          io.Reader
	total      int64
	read       int64
	last       int
	onProgress func(percent int)
}

func NewReader(r io.Reader, total int64, onProgress func(percent int)) *Reader {
	return &Reader{r: r, total: total, onProgress: onProgress}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.report(percentOf(r.read, r.total))
	}
	if err == io.EOF && r.total <= 0 {
		r.report(100)
	}
	return n, err
}

// BytesRead is the number of bytes consumed so far.
func (r *Reader) BytesRead() int64 {
	return r.read
}

func (r *Reader) report(percent int) {
	if percent <= r.last {
		return
	}
	r.last = percent
	if r.onProgress != nil {
		r.onProgress(percent)
	}
}

func percentOf(read, total int64) int {
	if total <= 0 {
		return 100
	}
	p := read * 100 / total
	if p > 100 {
		p = 100
	}
	return int(p)
}
