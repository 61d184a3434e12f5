package configurator

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/kwv/reskin/catalog"
	"github.com/kwv/reskin/material"
	"github.com/kwv/reskin/scene"
)

// Engine holds what every session shares.
type Engine struct {
	Library            *material.Library
	Slots              *material.SlotCatalog
	Loader             scene.Loader
	Textures           scene.TextureSource
	Metrics            *scene.Metrics
	EnableAR           bool
	PollInterval       time.Duration
	TextureConcurrency int
}

// Session is one viewer: an active item, its assignment and the scene
// adapter showing it. The AR monitor runs for the lifetime of the session.
type Session struct {
	ID      string
	Created time.Time

	adapter    *scene.Adapter
	assignment *Assignment
	panel      *Panel
	monitor    *scene.Monitor
	gate       scene.Gate

	stopMonitor func()
	unsubscribe func()

	mu        sync.Mutex
	listeners map[int]func(scene.Event)
	nextID    int
	closed    bool
}

// NewSession creates a session and starts its AR monitor. Close releases it.
func (e *Engine) NewSession(ctx context.Context, id string) *Session {
	adapter := scene.NewAdapter(e.Loader, e.Textures,
		scene.WithMetrics(e.Metrics),
		scene.WithTextureConcurrency(e.TextureConcurrency),
	)
	assignment := NewAssignment(e.Slots, e.Library)
	monitor := scene.NewMonitor(adapter, e.PollInterval)
	s := &Session{
		ID:         id,
		Created:    time.Now(),
		adapter:    adapter,
		assignment: assignment,
		panel:      NewPanel(assignment, e.Library),
		monitor:    monitor,
		gate:       scene.Gate{EnableAR: e.EnableAR, Monitor: monitor},
		listeners:  make(map[int]func(scene.Event)),
	}
	s.unsubscribe = adapter.Subscribe(s.dispatch)
	monitor.OnChange(func(bool) {
		s.dispatch(scene.GateEvent(s.gate.Enabled()))
	})
	s.stopMonitor = monitor.Start(ctx)
	return s
}

// Subscribe registers fn for scene and AR gate events.
func (s *Session) Subscribe(fn func(scene.Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) dispatch(ev scene.Event) {
	s.mu.Lock()
	fns := make([]func(scene.Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SetItem makes item the active item. A new identity resets the
// selections and loads the item's model; the current edits are then
// applied. A nil item unloads the scene. Being superseded by a newer
// SetItem is not an error.
func (s *Session) SetItem(ctx context.Context, item *catalog.Item) error {
	changed := s.assignment.OnActiveItemChanged(item)
	if item == nil || !item.HasModel() {
		if changed {
			s.adapter.Unload()
		}
		return nil
	}
	if changed || s.adapter.URL() != item.GlbURL || !s.adapter.Ready() {
		if err := s.adapter.Load(ctx, item.GlbURL); err != nil {
			if errors.Is(err, scene.ErrStaleGeneration) {
				return nil
			}
			return err
		}
	}
	return s.adapter.ApplyEdits(ctx, s.assignment.CurrentEdits())
}

// Assign selects a preset for a slot and repaints the scene. It reports
// false, without touching the scene, for a preset outside the slot's
// allowed set.
func (s *Session) Assign(ctx context.Context, slotID, presetID string) (bool, error) {
	if !s.panel.Choose(slotID, presetID) {
		log.Printf("[SESSION] %s: rejected %q for slot %q", s.ID, presetID, slotID)
		return false, nil
	}
	return true, s.adapter.ApplyEdits(ctx, s.assignment.CurrentEdits())
}

// Reapply pushes the current edits again.
func (s *Session) Reapply(ctx context.Context) error {
	return s.adapter.ApplyEdits(ctx, s.assignment.CurrentEdits())
}

// SelectVariant switches the scene variant; failures are swallowed.
func (s *Session) SelectVariant(name string) {
	s.adapter.SelectVariant(name)
}

// SetPlatformAR records the viewer's AR capability. The gate follows on the
// next monitor sample.
func (s *Session) SetPlatformAR(ok bool) {
	s.adapter.SetPlatformAR(ok)
}

// ARGate reports whether the AR control is enabled.
func (s *Session) ARGate() bool {
	return s.gate.Enabled()
}

// ActivateAR requests AR when the gate is open.
func (s *Session) ActivateAR() bool {
	if !s.gate.Enabled() {
		return false
	}
	return s.adapter.ActivateAR()
}

// Introspect returns the live scene structure.
func (s *Session) Introspect() scene.Info {
	return s.adapter.Introspect()
}

// WriteGLB writes the live scene.
func (s *Session) WriteGLB(w io.Writer) error {
	return s.adapter.WriteGLB(w)
}

// Edits returns the current edit batch.
func (s *Session) Edits() []scene.EditDescriptor {
	return s.assignment.CurrentEdits()
}

// Panel returns the slot options of the active item.
func (s *Session) Panel() []SlotView {
	return s.panel.View()
}

// State is a snapshot of a session for the API.
type State struct {
	ID         string            `json:"id"`
	Created    time.Time         `json:"created"`
	Item       *catalog.Item     `json:"item,omitempty"`
	Selection  map[string]string `json:"selection"`
	Generation uint64            `json:"generation"`
	URL        string            `json:"url,omitempty"`
	Ready      bool              `json:"ready"`
	ARGate     bool              `json:"arGate"`
}

// State returns a snapshot.
func (s *Session) State() State {
	return State{
		ID:         s.ID,
		Created:    s.Created,
		Item:       s.assignment.Item(),
		Selection:  s.assignment.Selection(),
		Generation: s.adapter.Generation(),
		URL:        s.adapter.URL(),
		Ready:      s.adapter.Ready(),
		ARGate:     s.gate.Enabled(),
	}
}

// Close stops AR sampling and drops the scene. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stopMonitor()
	s.unsubscribe()
	s.adapter.Unload()
}
