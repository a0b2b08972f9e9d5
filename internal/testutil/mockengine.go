package testutil

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/voltmetric/billscan/internal/recognize"
)

var errScriptExhausted = errors.New("mock engine: script exhausted")

// MockEngine is a scripted recognize.Engine for pipeline tests. When
// RecognizeFunc is set it handles every call; otherwise calls pop Results
// in order, failing with Err once the script runs out.
type MockEngine struct {
	RecognizeFunc func(ctx context.Context, img image.Image) (recognize.Result, error)
	Err           error

	mu      sync.Mutex
	results []recognize.Result
	calls   atomic.Int32
	closes  atomic.Int32
}

// NewScriptedEngine returns an engine that answers consecutive Recognize
// calls with the given texts at full confidence.
func NewScriptedEngine(texts ...string) *MockEngine {
	m := &MockEngine{}
	for _, t := range texts {
		m.results = append(m.results, recognize.Result{Text: t, Confidence: 100})
	}
	return m
}

// NewConstantEngine returns an engine that answers every Recognize call
// with the same result. Safe for concurrent use.
func NewConstantEngine(res recognize.Result) *MockEngine {
	return &MockEngine{RecognizeFunc: func(context.Context, image.Image) (recognize.Result, error) {
		return res, nil
	}}
}

// NewFailingEngine returns an engine whose every Recognize call fails
// with err.
func NewFailingEngine(err error) *MockEngine {
	return &MockEngine{Err: err}
}

func (m *MockEngine) Recognize(ctx context.Context, img image.Image) (recognize.Result, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return recognize.Result{}, err
	}
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, img)
	}
	if m.Err != nil {
		return recognize.Result{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return recognize.Result{}, errScriptExhausted
	}
	res := m.results[0]
	m.results = m.results[1:]
	return res, nil
}

func (m *MockEngine) Close() error {
	m.closes.Add(1)
	return nil
}

// Calls reports how many Recognize calls the engine has served.
func (m *MockEngine) Calls() int { return int(m.calls.Load()) }

// Closes reports how many times Close has been called.
func (m *MockEngine) Closes() int { return int(m.closes.Load()) }
