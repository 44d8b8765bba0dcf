package videojob

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Generator is satisfied by *Orchestrator.
type Generator interface {
	Generate(ctx context.Context, req Request, onProgress ProgressFunc) (*Asset, error)
}

// Registry collapses concurrent identical requests within a scope (usually a
// user) onto one Generate call. Late joiners get the events emitted so far,
// then live events, then their own copy of the asset bytes. The shared call
// keeps running while any caller still waits for it.
type Registry struct {
	gen Generator

	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	done   chan struct{}
	cancel context.CancelFunc
	asset  *Asset
	err    error

	mu          sync.Mutex
	events      []Progress
	subscribers []*subscriber
	waiting     int
}

// subscriber.mu serializes deliveries so replayed events precede live ones.
type subscriber struct {
	mu   sync.Mutex
	fn   ProgressFunc
	gone bool
}

// NewRegistry wraps gen.
func NewRegistry(gen Generator) *Registry {
	return &Registry{gen: gen, calls: make(map[string]*call)}
}

// Key returns the dedupe key for req in scope. Prompts are case-folded and
// whitespace-collapsed.
func Key(scope string, req Request) string {
	return strings.Join([]string{
		scope,
		string(req.AspectRatio),
		string(req.Length),
		NormalizePrompt(req.Prompt),
	}, "\x00")
}

// NormalizePrompt folds case and collapses runs of whitespace.
func NormalizePrompt(prompt string) string {
	folded := cases.Fold().String(prompt)
	return strings.Join(strings.Fields(folded), " ")
}

// InFlight reports the number of distinct calls currently running.
func (r *Registry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Generate runs req or joins an identical running call. shared is true when
// the result came from another caller's run.
func (r *Registry) Generate(ctx context.Context, scope string, req Request, onProgress ProgressFunc) (asset *Asset, shared bool, err error) {
	key := Key(scope, req)
	sub := &subscriber{fn: onProgress}

	r.mu.Lock()
	c, shared := r.calls[key]
	if !shared {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{done: make(chan struct{}), cancel: cancel}
		r.calls[key] = c
		go r.run(runCtx, key, c, req)
	}
	sub.mu.Lock()
	missed := c.attach(sub)
	r.mu.Unlock()
	if sub.fn != nil {
		for _, p := range missed {
			sub.fn(p)
		}
	}
	sub.mu.Unlock()

	asset, err = r.wait(ctx, key, c, sub)
	return asset, shared, err
}

func (r *Registry) run(ctx context.Context, key string, c *call, req Request) {
	defer func() {
		if p := recover(); p != nil {
			c.asset = nil
			c.err = &Error{Kind: KindUnclassified, Stage: "shared generation", Err: fmt.Errorf("panic: %v", p)}
		}
		r.mu.Lock()
		if r.calls[key] == c {
			delete(r.calls, key)
		}
		r.mu.Unlock()
		c.cancel()
		close(c.done)
	}()
	c.asset, c.err = r.gen.Generate(ctx, req, c.publish)
}

func (r *Registry) wait(ctx context.Context, key string, c *call, s *subscriber) (*Asset, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		r.leave(key, c, s)
		return nil, classify("waiting for shared generation", ctx.Err())
	}
	if c.err != nil {
		return nil, c.err
	}
	return cloneAsset(c.asset), nil
}

// leave detaches s. The last caller to leave cancels the shared run and
// unlists it so new callers start fresh.
func (r *Registry) leave(key string, c *call, s *subscriber) {
	s.mu.Lock()
	s.gone = true
	s.mu.Unlock()

	r.mu.Lock()
	c.mu.Lock()
	c.waiting--
	abandoned := c.waiting == 0
	c.mu.Unlock()
	if abandoned && r.calls[key] == c {
		delete(r.calls, key)
	}
	r.mu.Unlock()

	if abandoned {
		c.cancel()
	}
}

// attach registers s and returns the events it missed.
func (c *call) attach(s *subscriber) []Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, s)
	c.waiting++
	return append([]Progress(nil), c.events...)
}

func (c *call) publish(p Progress) {
	c.mu.Lock()
	c.events = append(c.events, p)
	subs := append([]*subscriber(nil), c.subscribers...)
	c.mu.Unlock()

	for _, s := range subs {
		s.deliver(p)
	}
}

func (s *subscriber) deliver(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gone && s.fn != nil {
		s.fn(p)
	}
}

func cloneAsset(a *Asset) *Asset {
	if a == nil {
		return nil
	}
	out := *a
	out.Data = append([]byte(nil), a.Data...)
	return &out
}
