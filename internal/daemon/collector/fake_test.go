package collector

import (
	"context"
	"fmt"
	"sync"
)

type fakeResult struct {
	rows []map[string]string
	err  error
}

// fakeQuerier answers known SQL strings with canned results.
type fakeQuerier struct {
	mu      sync.Mutex
	results map[string]fakeResult
	calls   map[string]int
	closed  bool
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{results: make(map[string]fakeResult), calls: make(map[string]int)}
}

func (f *fakeQuerier) set(sql string, rows ...map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[sql] = fakeResult{rows: rows}
}

func (f *fakeQuerier) fail(sql string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[sql] = fakeResult{err: err}
}

func (f *fakeQuerier) count(sql string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[sql]
}

func (f *fakeQuerier) QueryRows(ctx context.Context, sql string) ([]map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[sql]++
	res, ok := f.results[sql]
	if !ok {
		return nil, fmt.Errorf("unexpected query")
	}
	return res.rows, res.err
}

func (f *fakeQuerier) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeDialer hands out q and counts dials. A non-nil err fails every dial.
type fakeDialer struct {
	mu    sync.Mutex
	q     *fakeQuerier
	err   error
	dials int
	opts  []DialOptions
}

func (d *fakeDialer) dial(ctx context.Context, dsn string, opts DialOptions) (Querier, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.opts = append(d.opts, opts)
	if d.err != nil {
		return nil, d.err
	}
	return d.q, nil
}
