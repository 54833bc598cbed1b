package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/ts4z/trz/extract"
)

// Reply is one scripted answer from ScriptedGenerator.
type Reply struct {
	Text string
	Err  error
}

// ScriptedGenerator answers requests from a fixed script, in order, and
// records what it was asked.
type ScriptedGenerator struct {
	mu       sync.Mutex
	script   []Reply
	Requests []*extract.Request
}

var _ extract.Generator = (*ScriptedGenerator)(nil)

func NewScriptedGenerator(replies ...Reply) *ScriptedGenerator {
	return &ScriptedGenerator{script: replies}
}

func (g *ScriptedGenerator) Generate(ctx context.Context, req *extract.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if len(g.script) == 0 {
		return "", fmt.Errorf("scripted generator: no reply left for call %d", len(g.Requests))
	}
	r := g.script[0]
	g.script = g.script[1:]
	return r.Text, r.Err
}

// Calls returns how many requests have been made.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}
