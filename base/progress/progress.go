// Copyright 2023 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKeyType string

var spanKeyName = spanKeyType(uuid.New().String())

type Status string

const (
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Tracer records the progress of training jobs. A listener, if set, receives a
// snapshot every time a span changes.
type Tracer struct {
	name     string
	mu       sync.Mutex
	spans    map[string]*Span
	listener func(Progress)
}

func NewTracer(name string) *Tracer {
	return &Tracer{name: name, spans: make(map[string]*Span)}
}

// OnUpdate registers a listener called after every span update.
func (t *Tracer) OnUpdate(listener func(Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

// Start creates a root span.
func (t *Tracer) Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	span := newSpan(t, name, total)
	t.mu.Lock()
	t.spans[name] = span
	t.mu.Unlock()
	t.notify(span)
	return context.WithValue(ctx, spanKeyName, span), span
}

// List returns snapshots of root spans ordered by start time.
func (t *Tracer) List() []Progress {
	t.mu.Lock()
	spans := make([]*Span, 0, len(t.spans))
	for _, span := range t.spans {
		spans = append(spans, span)
	}
	t.mu.Unlock()
	progress := make([]Progress, 0, len(spans))
	for _, span := range spans {
		progress = append(progress, span.Progress())
	}
	sort.Slice(progress, func(i, j int) bool {
		return progress[i].StartTime.Before(progress[j].StartTime)
	})
	return progress
}

func (t *Tracer) notify(span *Span) {
	if t == nil {
		return
	}
	t.mu.Lock()
	listener := t.listener
	t.mu.Unlock()
	if listener != nil {
		listener(span.Progress())
	}
}

// Span is the progress of one job. Spans are safe for concurrent use.
type Span struct {
	id       string
	tracer   *Tracer
	name     string
	mu       sync.Mutex
	status   Status
	total    int
	count    int
	err      error
	start    time.Time
	finish   time.Time
	children []*Span
}

func newSpan(tracer *Tracer, name string, total int) *Span {
	return &Span{
		id:     uuid.New().String(),
		tracer: tracer,
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
	}
}

func (s *Span) Add(n int) {
	s.mu.Lock()
	s.count = min(s.count+n, s.total)
	s.mu.Unlock()
	s.tracer.notify(s)
}

func (s *Span) End() {
	s.mu.Lock()
	if s.status == StatusRunning {
		s.count = s.total
		s.status = StatusComplete
		s.finish = time.Now()
	}
	s.mu.Unlock()
	s.tracer.notify(s)
}

func (s *Span) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.status = StatusFailed
	s.finish = time.Now()
	s.mu.Unlock()
	s.tracer.notify(s)
}

func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Progress returns a snapshot of the span and its children.
func (s *Span) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{
		Id:         s.id,
		Name:       s.name,
		Status:     s.status,
		Count:      s.count,
		Total:      s.total,
		StartTime:  s.start,
		FinishTime: s.finish,
	}
	if s.tracer != nil {
		p.Tracer = s.tracer.name
	}
	if s.err != nil {
		p.Error = s.err.Error()
	}
	for _, child := range s.children {
		p.Children = append(p.Children, child.Progress())
	}
	return p
}

// Start creates a child of the span carried by ctx. Without a parent span the
// returned span is detached and nobody observes it.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, ok := ctx.Value(spanKeyName).(*Span)
	if !ok {
		span := newSpan(nil, name, total)
		return context.WithValue(ctx, spanKeyName, span), span
	}
	span := newSpan(parent.tracer, name, total)
	parent.mu.Lock()
	parent.children = append(parent.children, span)
	parent.mu.Unlock()
	span.tracer.notify(span)
	return context.WithValue(ctx, spanKeyName, span), span
}

type Progress struct {
	Id         string
	Tracer     string
	Name       string
	Status     Status
	Error      string
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
	Children   []Progress
}
