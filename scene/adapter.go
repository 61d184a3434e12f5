package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTextureConcurrency bounds parallel texture fetches per ApplyEdits call.
const DefaultTextureConcurrency = 4

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

// WithTextureConcurrency sets the number of concurrent texture fetches.
func WithTextureConcurrency(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithPlatformAR sets the initial platform AR capability.
func WithPlatformAR(ok bool) AdapterOption {
	return func(a *Adapter) { a.platformAR.Store(ok) }
}

type claimKey struct {
	material int
	channel  Channel
}

type textureJob struct {
	material int
	channel  Channel
	scale    *float64
	token    uint64
}

// Adapter is the single owner of the live scene. Every load bumps the
// generation; async work captured under an older generation is discarded.
// Texture binds are additionally fenced per (material, channel) so the most
// recently issued write wins.
type Adapter struct {
	loader      Loader
	textures    TextureSource
	metrics     *Metrics
	concurrency int
	platformAR  atomic.Bool

	mu     sync.Mutex
	gen    uint64
	token  uint64
	port   Port
	url    string
	claims map[claimKey]uint64

	subMu     sync.Mutex
	subs      map[int]func(Event)
	nextSubID int
}

// NewAdapter creates an adapter without a scene.
func NewAdapter(loader Loader, textures TextureSource, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		loader:      loader,
		textures:    textures,
		concurrency: DefaultTextureConcurrency,
		claims:      make(map[claimKey]uint64),
		subs:        make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe registers fn for lifecycle events and returns its cancel func.
// fn is called synchronously and must not block.
func (a *Adapter) Subscribe(fn func(Event)) func() {
	a.subMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = fn
	a.subMu.Unlock()
	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

func (a *Adapter) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Err != nil && ev.Reason == "" {
		ev.Reason = ev.Err.Error()
	}
	a.subMu.Lock()
	fns := make([]func(Event), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Generation returns the current scene generation.
func (a *Adapter) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

// URL returns the source of the current or loading scene.
func (a *Adapter) URL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.url
}

// Ready reports whether a scene is loaded.
func (a *Adapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port != nil
}

// Load replaces the live scene with the one at url and blocks until it is
// ready or failed. The previous scene is dropped immediately. A load
// superseded by a newer Load or Unload reports failed with
// ErrStaleGeneration and never installs its scene.
func (a *Adapter) Load(ctx context.Context, url string) error {
	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.port = nil
	a.url = url
	a.claims = make(map[claimKey]uint64)
	a.mu.Unlock()

	start := time.Now()
	port, err := a.loader.Load(ctx, url)
	if err == nil && port == nil {
		err = &AssetError{URL: url, Err: errors.New("loader returned no scene")}
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		a.metrics.load("stale", time.Since(start))
		log.Printf("[SCENE] load %s (gen %d) superseded", url, gen)
		a.emit(Event{Type: EventFailed, Generation: gen, URL: url, Err: ErrStaleGeneration})
		return fmt.Errorf("load %s: %w", url, ErrStaleGeneration)
	}
	if err != nil {
		a.mu.Unlock()
		var assetErr *AssetError
		if !errors.As(err, &assetErr) {
			err = &AssetError{URL: url, Err: err}
		}
		a.metrics.load("failed", time.Since(start))
		log.Printf("[SCENE] load %s (gen %d) failed: %v", url, gen, err)
		a.emit(Event{Type: EventFailed, Generation: gen, URL: url, Err: err})
		return err
	}
	a.port = port
	a.mu.Unlock()

	a.metrics.load("ready", time.Since(start))
	log.Printf("[SCENE] load %s (gen %d) ready: %d materials", url, gen, len(port.Materials()))
	a.emit(Event{Type: EventReady, Generation: gen, URL: url})
	return nil
}

// Unload drops the live scene and fences any in-flight work.
func (a *Adapter) Unload() {
	a.mu.Lock()
	a.gen++
	a.port = nil
	a.url = ""
	a.claims = make(map[claimKey]uint64)
	a.mu.Unlock()
}

// Introspect enumerates the live scene. Before a scene is ready it returns
// an empty Info and no error.
func (a *Adapter) Introspect() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		info := emptyInfo()
		info.Generation = a.gen
		return info
	}
	info := Info{
		Generation: a.gen,
		URL:        a.url,
		Materials:  nonNil(a.port.Materials()),
		Meshes:     a.port.Meshes(),
		Variants:   nonNil(a.port.Variants()),
	}
	if info.Meshes == nil {
		info.Meshes = []MeshInfo{}
	}
	if fp, ok := a.port.(Footprinter); ok {
		if b, ok := fp.Footprint(); ok {
			info.Footprint = &Footprint{
				MinX:  b.Min.X(),
				MinZ:  b.Min.Y(),
				MaxX:  b.Max.X(),
				MaxZ:  b.Max.Y(),
				Width: b.Right() - b.Left(),
				Depth: b.Top() - b.Bottom(),
			}
			info.Footprint.Area = info.Footprint.Width * info.Footprint.Depth
		}
	}
	return info
}

// ApplyEdits pushes batch onto the live scene. Descriptors without targets,
// or whose targets match no material, are skipped. Scalar parameters are set
// before ApplyEdits starts fetching textures; texture binds land later and
// only if neither a newer load nor a newer write to the same channel
// happened in the meantime. The returned error joins texture failures; a
// missing scene or a superseded batch is not an error.
//
// A base color and a base color map are mutually exclusive: a color clears
// the bound texture, a map resets the color factor to white when it binds.
func (a *Adapter) ApplyEdits(ctx context.Context, batch []EditDescriptor) error {
	a.mu.Lock()
	if a.port == nil {
		a.mu.Unlock()
		log.Printf("[SCENE] apply edits: %v, %d descriptors ignored", ErrSceneUnavailable, len(batch))
		return nil
	}
	gen := a.gen
	port := a.port
	index := materialIndex(port.Materials())

	jobs := make(map[string][]textureJob)
	var urls []string
	applied, skipped := 0, 0
	for _, d := range batch {
		targets := resolveTargets(index, d)
		if len(targets) == 0 {
			skipped++
			continue
		}
		applied++
		maps := d.textureMaps()
		for _, m := range targets {
			a.applyScalars(port, m, d)
			for _, ch := range []Channel{ChannelBaseColor, ChannelNormal, ChannelOcclusion} {
				url, ok := maps[ch]
				if !ok {
					continue
				}
				a.token++
				a.claims[claimKey{m, ch}] = a.token
				job := textureJob{material: m, channel: ch, token: a.token}
				if ch == ChannelNormal {
					job.scale = d.NormalScale
				}
				if _, seen := jobs[url]; !seen {
					urls = append(urls, url)
				}
				jobs[url] = append(jobs[url], job)
			}
		}
	}
	a.mu.Unlock()

	a.metrics.descriptor("applied", applied)
	a.metrics.descriptor("skipped", skipped)

	var (
		errMu sync.Mutex
		errs  []error
	)
	if len(urls) > 0 && a.textures != nil {
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for _, url := range urls {
			g.Go(func() error {
				tex, err := a.textures.Texture(ctx, url)
				if err != nil {
					var assetErr *AssetError
					if !errors.As(err, &assetErr) {
						err = &AssetError{URL: url, Err: err}
					}
				}
				if err := a.bindTextures(gen, url, tex, err, jobs[url]); err != nil {
					errMu.Lock()
					errs = append(errs, err)
					errMu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if a.Generation() != gen {
		log.Printf("[SCENE] edit batch for gen %d superseded", gen)
		return nil
	}
	a.emit(Event{Type: EventEditsApplied, Generation: gen, Applied: applied, Skipped: skipped})
	return errors.Join(errs...)
}

// applyScalars sets the synchronous parameters of one material. Caller
// holds a.mu.
func (a *Adapter) applyScalars(port Port, m int, d EditDescriptor) {
	if d.BaseColor != nil && d.BaseColorMap == "" {
		a.token++
		a.claims[claimKey{m, ChannelBaseColor}] = a.token
		logPortErr(port.ClearTexture(m, ChannelBaseColor))
		logPortErr(port.SetBaseColor(m, *d.BaseColor))
	}
	if d.Metallic != nil {
		logPortErr(port.SetMetallic(m, clamp01(*d.Metallic)))
	}
	if d.Roughness != nil {
		logPortErr(port.SetRoughness(m, clamp01(*d.Roughness)))
	}
}

// bindTextures lands a fetched texture on every job that still owns its
// channel. It returns the fetch error when the failure is still relevant.
func (a *Adapter) bindTextures(gen uint64, url string, tex *Texture, fetchErr error, jobs []textureJob) error {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		for range jobs {
			a.metrics.textureBind("stale")
		}
		return nil
	}
	port := a.port
	relevant := false
	for _, job := range jobs {
		if a.claims[claimKey{job.material, job.channel}] != job.token {
			a.metrics.textureBind("superseded")
			continue
		}
		relevant = true
		if fetchErr != nil {
			a.metrics.textureBind("failed")
			continue
		}
		if err := port.BindTexture(job.material, job.channel, tex, job.scale); err != nil {
			a.metrics.textureBind("failed")
			log.Printf("[SCENE] bind %s to material %d: %v", url, job.material, err)
			continue
		}
		if job.channel == ChannelBaseColor {
			logPortErr(port.SetBaseColor(job.material, White))
		}
		a.metrics.textureBind("bound")
	}
	a.mu.Unlock()

	if fetchErr == nil || !relevant {
		return nil
	}
	log.Printf("[SCENE] texture %s: %v", url, fetchErr)
	a.emit(Event{Type: EventTextureFailed, Generation: gen, URL: url, Err: fetchErr})
	return fetchErr
}

// SelectVariant switches the live scene to a named variant, or back to the
// default assignment for an empty or unknown name. Failures are logged and
// swallowed.
func (a *Adapter) SelectVariant(name string) {
	a.mu.Lock()
	if a.port == nil {
		a.mu.Unlock()
		return
	}
	gen := a.gen
	port := a.port
	err := port.SelectVariant(name)
	if err != nil && name != "" {
		log.Printf("[SCENE] variant %q: %v, restoring default", name, err)
		name = ""
		err = port.SelectVariant("")
	}
	a.mu.Unlock()
	if err != nil {
		log.Printf("[SCENE] restore default variant: %v", err)
		return
	}
	a.emit(Event{Type: EventVariantSelected, Generation: gen, Variant: name})
}

// SetPlatformAR records whether the viewing platform supports AR.
func (a *Adapter) SetPlatformAR(ok bool) {
	a.platformAR.Store(ok)
}

// CanActivateAR reports whether both the platform and the loaded scene
// support AR. It is cheap and safe to poll.
func (a *Adapter) CanActivateAR() bool {
	if !a.platformAR.Load() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port != nil && a.port.ARCapable()
}

// ActivateAR requests AR mode. It is ignored when CanActivateAR is false.
func (a *Adapter) ActivateAR() bool {
	if !a.CanActivateAR() {
		a.metrics.arRequest("ignored")
		log.Printf("[AR] activation ignored: not available")
		return false
	}
	a.metrics.arRequest("activated")
	a.mu.Lock()
	gen, url := a.gen, a.url
	a.mu.Unlock()
	a.emit(Event{Type: EventARRequested, Generation: gen, URL: url})
	return true
}

// WriteGLB serializes the live scene.
func (a *Adapter) WriteGLB(w io.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return ErrSceneUnavailable
	}
	gw, ok := a.port.(GLBWriter)
	if !ok {
		return ErrNotSupported
	}
	return gw.WriteGLB(w)
}

func materialIndex(names []string) map[string][]int {
	idx := make(map[string][]int, len(names))
	for i, n := range names {
		if n == "" {
			continue
		}
		idx[n] = append(idx[n], i)
	}
	return idx
}

// resolveTargets returns the material indices named by d, in scene order.
func resolveTargets(index map[string][]int, d EditDescriptor) []int {
	if d.Empty() {
		return nil
	}
	seen := make(map[int]bool)
	var out []int
	for _, name := range d.Targets {
		for _, i := range index[name] {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	return out
}

func logPortErr(err error) {
	if err != nil {
		log.Printf("[SCENE] %v", err)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
