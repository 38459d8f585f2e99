package picker

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dshills/kemote/internal/imagecache"
	"github.com/dshills/kemote/internal/search"
)

// Relay forwards search and image cache callbacks to a running program.
// Callbacks arriving before Attach are dropped.
type Relay struct {
	p atomic.Pointer[tea.Program]
}

// Attach sets the program that receives forwarded messages.
func (r *Relay) Attach(p *tea.Program) {
	r.p.Store(p)
}

func (r *Relay) send(msg tea.Msg) {
	if p := r.p.Load(); p != nil {
		p.Send(msg)
	}
}

// Results is a search.Options.OnResult callback.
func (r *Relay) Results(res search.Result) {
	r.send(ResultsMsg{Generation: res.Generation, Query: res.Query, Emotes: res.Emotes, Source: res.Source})
}

// SearchFailed is a search.Options.OnError callback.
func (r *Relay) SearchFailed(gen uint64, query string, err error) {
	r.send(SearchErrMsg{Generation: gen, Query: query, Err: err})
}

// ImageReady is an imagecache.Options.OnReady callback.
func (r *Relay) ImageReady(key imagecache.Key, _ imagecache.State) {
	r.send(ImageReadyMsg{Key: key})
}
