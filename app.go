package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kwv/reskin/catalog"
	"github.com/kwv/reskin/configurator"
	"github.com/kwv/reskin/material"
	"github.com/kwv/reskin/relay"
	"github.com/kwv/reskin/scene"
)

// commandTimeout bounds a remote command, which may load a model.
const commandTimeout = 2 * time.Minute

// commandBacklog is the number of remote commands queued per session.
const commandBacklog = 16

var errUnknownItem = errors.New("unknown item")

// App wires the material library, catalog, scene runtime and transports.
type App struct {
	Config   *ServiceConfig
	Library  *material.Library
	Slots    *material.SlotCatalog
	Catalog  *catalog.Store
	Fetcher  *scene.Fetcher
	Textures *scene.TextureLoader
	Engine   *configurator.Engine
	Sessions *configurator.Registry
	Metrics  *scene.Metrics
	Prom     *prometheus.Registry
	Hub      *Hub

	MQTT      *relay.Client
	Publisher *relay.Publisher

	cmdMu    sync.Mutex
	commands map[string]*commandQueue
}

// commandQueue runs the remote commands of one session in arrival order.
type commandQueue struct {
	ch     chan relay.Command
	cancel context.CancelFunc
	done   chan struct{}
}

// NewApp builds every component from cfg. Material and catalog errors are
// fatal configuration errors.
func NewApp(ctx context.Context, cfg *ServiceConfig) (*App, error) {
	a := &App{Config: cfg}

	matCfg := material.DefaultConfig()
	if cfg.Materials.Path != "" {
		loaded, err := material.LoadConfig(cfg.Materials.Path)
		if err != nil {
			return nil, err
		}
		matCfg = loaded
	}
	lib, slots, err := matCfg.Build()
	if err != nil {
		return nil, err
	}
	a.Library, a.Slots = lib, slots

	var items []catalog.Item
	if cfg.Catalog.Path != "" {
		if items, err = catalog.LoadItems(cfg.Catalog.Path); err != nil {
			return nil, err
		}
	}
	a.Catalog = catalog.NewStore(items)

	opts := []scene.FetchOption{
		scene.WithTimeout(cfg.Assets.FetchTimeout),
		scene.WithMaxRetries(cfg.Assets.MaxRetries),
	}
	if cfg.Assets.Dir != "" {
		opts = append(opts, scene.WithAssetDir(cfg.Assets.Dir))
	}
	if cfg.Assets.BaseURL != "" {
		opts = append(opts, scene.WithBaseURL(cfg.Assets.BaseURL))
	}
	if cfg.Assets.S3.Enabled {
		client, err := scene.NewS3Client(ctx, cfg.Assets.S3.S3Config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scene.WithS3(client))
	}
	a.Fetcher = scene.NewFetcher(opts...)

	a.Textures, err = scene.NewTextureLoader(a.Fetcher, cfg.Assets.MaxTextureSize, cfg.Assets.TextureCacheSize)
	if err != nil {
		return nil, err
	}

	a.Prom = prometheus.NewRegistry()
	a.Prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = scene.NewMetrics(a.Prom)

	a.Engine = &configurator.Engine{
		Library:            lib,
		Slots:              slots,
		Loader:             scene.NewGLTFLoader(a.Fetcher),
		Textures:           a.Textures,
		Metrics:            a.Metrics,
		EnableAR:           cfg.Viewer.EnableAR,
		PollInterval:       cfg.Viewer.ARPollInterval,
		TextureConcurrency: cfg.Assets.Concurrency,
	}
	a.Sessions = configurator.NewRegistry(a.Engine)
	a.Hub = NewHub(cfg.HTTP.AllowedOrigins)
	return a, nil
}

// openSession creates a session whose events reach its websocket viewers
// and the broker.
func (a *App) openSession() *configurator.Session {
	s := a.Sessions.Create()
	id := s.ID
	s.Subscribe(func(ev scene.Event) { a.forward(id, ev) })
	log.Printf("[SESSION] %s opened", id)
	return s
}

func (a *App) closeSession(id string) bool {
	a.stopCommands(id)
	if !a.Sessions.Remove(id) {
		return false
	}
	a.Hub.CloseSession(id)
	if a.Publisher != nil && a.MQTT != nil && a.MQTT.IsConnected() {
		if err := a.Publisher.ClearSession(id); err != nil {
			log.Printf("[MQTT] clear session %s: %v", id, err)
		}
	}
	log.Printf("[SESSION] %s closed", id)
	return true
}

func (a *App) forward(sessionID string, ev scene.Event) {
	a.Hub.Send(sessionID, outbound{Type: "event", Data: ev})
	if a.Publisher == nil || a.MQTT == nil || !a.MQTT.IsConnected() {
		return
	}
	if err := a.Publisher.PublishEvent(sessionID, ev); err != nil {
		log.Printf("[MQTT] publish %s for session %s: %v", ev.Type, sessionID, err)
	}
}

// setItem activates the catalog item itemID; an empty id clears the item.
func (a *App) setItem(ctx context.Context, s *configurator.Session, itemID string) error {
	if itemID == "" {
		return s.SetItem(ctx, nil)
	}
	item, ok := a.Catalog.Get(itemID)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownItem, itemID)
	}
	return s.SetItem(ctx, &item)
}

// startMQTT connects the relay when a broker is configured.
func (a *App) startMQTT() error {
	client, err := relay.InitMQTT(a.Config.MQTT, a.handleCommand)
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	a.MQTT = client
	a.Publisher = relay.NewPublisher(client.GetClient(), client.Prefix())
	return nil
}

// handleCommand queues cmd for its session and returns at once. It runs on
// the broker client's delivery goroutine and must not wait for a load.
func (a *App) handleCommand(sessionID string, cmd relay.Command, err error) {
	if err != nil {
		log.Printf("[MQTT] session %s: %v", sessionID, err)
		return
	}
	s, ok := a.Sessions.Get(sessionID)
	if !ok {
		log.Printf("[MQTT] command for unknown session %s", sessionID)
		return
	}

	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()
	if a.commands == nil {
		a.commands = make(map[string]*commandQueue)
	}
	q, ok := a.commands[sessionID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		q = &commandQueue{
			ch:     make(chan relay.Command, commandBacklog),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		a.commands[sessionID] = q
		go a.runCommands(ctx, s, q)
	}
	select {
	case q.ch <- cmd:
	default:
		log.Printf("[MQTT] session %s: command backlog full, dropping command", sessionID)
	}
}

func (a *App) runCommands(ctx context.Context, s *configurator.Session, q *commandQueue) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-q.ch:
			cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
			if err := a.applyCommand(cmdCtx, s, cmd); err != nil {
				log.Printf("[MQTT] session %s: %v", s.ID, err)
			}
			cancel()
		}
	}
}

// stopCommands cancels the command worker of a session and waits for it.
func (a *App) stopCommands(id string) {
	a.cmdMu.Lock()
	q, ok := a.commands[id]
	delete(a.commands, id)
	a.cmdMu.Unlock()
	if ok {
		q.cancel()
		<-q.done
	}
}

func (a *App) applyCommand(ctx context.Context, s *configurator.Session, cmd relay.Command) error {
	var errs []error
	if cmd.Item != "" {
		errs = append(errs, a.setItem(ctx, s, cmd.Item))
	}
	if cmd.Slot != "" {
		ok, err := s.Assign(ctx, cmd.Slot, cmd.Preset)
		if !ok {
			err = fmt.Errorf("preset %q not allowed for slot %q", cmd.Preset, cmd.Slot)
		}
		errs = append(errs, err)
	}
	if cmd.Variant != "" {
		s.SelectVariant(cmd.Variant)
	}
	return errors.Join(errs...)
}

// RunService serves HTTP and/or MQTT until ctx is done.
func (a *App) RunService(ctx context.Context, httpMode, mqttMode bool) error {
	defer a.Close()

	if mqttMode {
		if err := a.startMQTT(); err != nil {
			return err
		}
	}

	var srv *http.Server
	errCh := make(chan error, 1)
	if httpMode {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.Config.HTTP.Port),
			Handler:           newHTTPServer(a),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] shutdown: %v", err)
		}
	}
	return nil
}

// Close releases sessions, viewers and the broker connection.
func (a *App) Close() {
	a.cmdMu.Lock()
	ids := make([]string, 0, len(a.commands))
	for id := range a.commands {
		ids = append(ids, id)
	}
	a.cmdMu.Unlock()
	for _, id := range ids {
		a.stopCommands(id)
	}
	a.Sessions.CloseAll()
	a.Hub.Close()
	if a.MQTT != nil {
		a.MQTT.Disconnect()
	}
}

// RunIntrospect loads url, optionally paints it with the defaults of
// category, and writes the scene structure as JSON.
func (a *App) RunIntrospect(ctx context.Context, url, category string, w io.Writer) error {
	adapter := scene.NewAdapter(a.Engine.Loader, a.Engine.Textures, scene.WithMetrics(a.Metrics))
	if err := adapter.Load(ctx, url); err != nil {
		return err
	}
	if category != "" {
		assignment := configurator.NewAssignment(a.Slots, a.Library)
		assignment.OnActiveItemChanged(&catalog.Item{ID: url, Category: category, GlbURL: url})
		if err := adapter.ApplyEdits(ctx, assignment.CurrentEdits()); err != nil {
			log.Printf("[SCENE] %v", err)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(adapter.Introspect())
}

// RunSwatches renders the swatch sheet of category to output. The format
// follows the file extension: .png or .svg.
func (a *App) RunSwatches(category, output string) error {
	slots := a.Slots.SlotsFor(category)
	if len(slots) == 0 {
		return fmt.Errorf("no slots for category %q", category)
	}
	sheet := material.NewSwatchSheet(slots, a.Library)

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(output)) {
	case ".png":
		err = sheet.RenderPNG(f)
	case ".svg":
		err = sheet.RenderSVG(f)
	default:
		err = fmt.Errorf("unsupported swatch format %q", filepath.Ext(output))
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// RunCheckConfig prints a summary of the loaded library, slots and catalog
// and reports catalog items no slot category covers.
func (a *App) RunCheckConfig(w io.Writer) error {
	fmt.Fprintf(w, "Presets: %d\n", a.Library.Len())
	for _, p := range a.Library.All() {
		kind := "color"
		if p.HasTexture() {
			kind = "map"
		}
		fmt.Fprintf(w, "  %-16s %-6s %s\n", p.ID, kind, p.DisplayName())
	}

	categories := a.Slots.Categories()
	fmt.Fprintf(w, "Categories: %d\n", len(categories))
	for _, c := range categories {
		fmt.Fprintf(w, "  %s\n", c)
		for _, s := range a.Slots.SlotsFor(c) {
			fmt.Fprintf(w, "    %-14s targets=%s allowed=%s\n", s.ID,
				strings.Join(s.Targets, ","), strings.Join(s.Allowed, ","))
		}
	}

	items := a.Catalog.Filter(catalog.Filter{})
	fmt.Fprintf(w, "Catalog items: %d\n", len(items))
	uncovered := map[string]int{}
	noModel := 0
	for _, it := range items {
		if len(a.Slots.SlotsFor(it.Category)) == 0 {
			uncovered[it.Category]++
		}
		if !it.HasModel() {
			noModel++
		}
	}
	if noModel > 0 {
		fmt.Fprintf(w, "  %d item(s) without a model\n", noModel)
	}
	names := make([]string, 0, len(uncovered))
	for c := range uncovered {
		names = append(names, c)
	}
	sort.Strings(names)
	for _, c := range names {
		fmt.Fprintf(w, "  Warning: %d item(s) in category %q have no material slots\n", uncovered[c], c)
	}
	return nil
}
