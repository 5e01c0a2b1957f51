// Package fixtures provides test doubles shared by the daemon tests and
// the integration suite.
package fixtures

import (
	"context"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// ScriptedProbe is a domain.ForegroundProbe whose answer is set by the test.
type ScriptedProbe struct {
	mu     sync.Mutex
	sample domain.Sample
	err    error
	hang   bool
	polls  int
}

// NewScriptedProbe returns a probe reporting no focus.
func NewScriptedProbe() *ScriptedProbe {
	return &ScriptedProbe{}
}

// Focus reports app/title as focused with fresh input.
func (p *ScriptedProbe) Focus(app, title string) {
	p.set(domain.Sample{AppName: app, WindowTitle: title, PID: 4242}, nil)
}

// Idle keeps the current focus but reports no input for d.
func (p *ScriptedProbe) Idle(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sample.IdleFor = d
	p.err = nil
	p.hang = false
}

// Blank reports a locked screen: no focused application.
func (p *ScriptedProbe) Blank() {
	p.set(domain.Sample{}, nil)
}

// Fail makes Poll return err.
func (p *ScriptedProbe) Fail(err error) {
	p.set(domain.Sample{}, err)
}

// Hang makes Poll block until its context is done.
func (p *ScriptedProbe) Hang() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hang = true
}

func (p *ScriptedProbe) set(s domain.Sample, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sample = s
	p.err = err
	p.hang = false
}

// Polls returns how many times Poll was called.
func (p *ScriptedProbe) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// Poll implements domain.ForegroundProbe.
func (p *ScriptedProbe) Poll(ctx context.Context) (domain.Sample, error) {
	p.mu.Lock()
	p.polls++
	sample, err, hang := p.sample, p.err, p.hang
	p.mu.Unlock()

	if hang {
		<-ctx.Done()
		return domain.Sample{}, ctx.Err()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Sample{}, ctxErr
	}
	return sample, err
}

var _ domain.ForegroundProbe = (*ScriptedProbe)(nil)
