package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/raskfs/rask/internal/config"
	"github.com/raskfs/rask/internal/rlog"
	"github.com/raskfs/rask/internal/store"
	"github.com/raskfs/rask/internal/watcher"
	"github.com/raskfs/rask/pkg/conn"
	"github.com/raskfs/rask/pkg/events"
	"github.com/raskfs/rask/pkg/inode"
	"github.com/raskfs/rask/pkg/metrics"
	"github.com/raskfs/rask/pkg/reconcile"
	"github.com/raskfs/rask/pkg/registry"
	"github.com/raskfs/rask/pkg/tenant"
	"github.com/raskfs/rask/pkg/tick"
	"github.com/raskfs/rask/pkg/workers"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host configured tenants and reconcile against configured peers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clock := tick.New(cfg.ServerID)
	tenants := tenant.NewStore()
	for _, tc := range cfg.Tenants {
		tenants.Add(tenant.New(tc.Name, tc.LocalRoot))
	}

	st, err := store.NewFileStore(cfg.StoreRoot)
	if err != nil {
		return err
	}
	loadPersistedState(tenants, st)

	bus := events.New()
	bus.Subscribe(logEvent)
	m := &metrics.Counters{}
	reg := registry.New()
	pools := workers.NewPools(cfg.LowLatencyWorkers, cfg.HighLatencyWorkers)
	walker := reconcile.New(tenants, bus, m, pools, st)

	watchers, err := startWatchers(tenants, clock, bus, pools, st)
	if err != nil {
		return err
	}
	defer func() {
		for _, w := range watchers {
			_ = w.Stop()
		}
	}()

	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return err
	}
	rlog.L.Infow("listening", "addr", cfg.BindAddr, "server_id", cfg.ServerID)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go acceptLoop(ctx, ln, reg, bus, m, walker, pools)

	for _, peerEntry := range cfg.Peers {
		addr, err := config.NormalizePeerAddr(peerEntry)
		if err != nil {
			rlog.L.Warnw("skipping unparsable peer", "entry", peerEntry, "error", err)
			continue
		}
		go dialLoop(ctx, addr, cfg, reg, bus, m, walker)
	}

	<-ctx.Done()
	rlog.L.Infow("shutting down", "stats", m.Snapshot().String())
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, reg *registry.Registry, bus *events.Bus, m *metrics.Counters, walker *reconcile.Walker, pools *workers.Pools) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				rlog.L.Warnw("accept failed", "error", err)
				continue
			}
		}
		addr := nc.RemoteAddr().String()
		c := conn.New(nc, bus, m)
		reg.Put(addr, c)
		if err := pools.LowLatency.Submit(ctx, func() {
			runErr := c.Run(ctx, walker.Dispatch)
			reg.Remove(addr, c)
			rlog.L.Debugw("inbound connection closed", "peer", addr, "error", runErr)
		}); err != nil {
			_ = c.Close()
		}
	}
}

func dialLoop(ctx context.Context, addr string, cfg *config.Config, reg *registry.Registry, bus *events.Bus, m *metrics.Counters, walker *reconcile.Walker) {
	bo := conn.NewBackoff(cfg.ReconnectInitial, cfg.ReconnectMax)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nc, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			rlog.L.Debugw("dial failed", "peer", addr, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.Next()):
			}
			continue
		}
		bo.Reset()
		m.IncReconnect()
		bus.Publish(events.Event{Type: events.TypeReconnectFired, PeerAddr: addr})

		c := conn.New(nc, bus, m)
		reg.Put(addr, c)
		runErr := c.Run(ctx, walker.Dispatch)
		reg.Remove(addr, c)
		rlog.L.Debugw("outbound connection closed", "peer", addr, "error", runErr)
	}
}

// startWatchers begins one filesystem watcher per tenant with a local
// root, feeding every change back into that tenant's hash tree with a
// freshly minted priority tick.
func startWatchers(tenants *tenant.Store, clock *tick.Clock, bus *events.Bus, pools *workers.Pools, st store.Store) ([]*watcher.Watcher, error) {
	var out []*watcher.Watcher
	for _, name := range tenants.Names() {
		t, _ := tenants.Get(name)
		if t.LocalRoot == "" {
			continue
		}
		w, err := watcher.New(t.LocalRoot)
		if err != nil {
			return nil, err
		}
		w.OnChange(func(path string) { applyLocalChange(t, clock, bus, pools, st, path) })
		if err := w.Start(); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func applyLocalChange(t *tenant.Tenant, clock *tick.Clock, bus *events.Bus, pools *workers.Pools, st store.Store, path string) {
	rel, err := filepath.Rel(t.LocalRoot, path)
	if err != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		// Removed since the debounce timer fired; treat as a move-out.
		t.Tree().Upsert(inode.Record{Name: rel, Type: inode.TypeMoved, Priority: clock.Now()})
		persistLeafAsync(pools, st, t, rel)
		return
	}
	rec := inode.Record{Name: rel, Priority: clock.Now()}
	if info.IsDir() {
		rec.Type = inode.TypeDirectory
	} else {
		rec.Type = inode.TypeFile
		rec.SizeBytes = uint64(info.Size())
		rec.Modified = clock.Now()
	}
	if changed := t.Tree().Upsert(rec); changed {
		bus.Publish(events.Event{Type: events.TypeLeafApplied, Tenant: t.Name, Path: rel})
		persistLeafAsync(pools, st, t, rel)
	}
}

// persistLeafAsync writes the changed leaf's node document on the
// high-latency pool, the same pool every other filesystem-or-database
// effect runs on (spec §5).
func persistLeafAsync(pools *workers.Pools, st store.Store, t *tenant.Tenant, name string) {
	if st == nil || pools == nil {
		return
	}
	_ = pools.HighLatency.Submit(context.Background(), func() {
		if err := reconcile.PersistLeaf(st, t.Tree(), t.Name, name); err != nil {
			rlog.L.Warnw("persisting node document failed", "tenant", t.Name, "path", name, "error", err)
		}
	})
}

// loadPersistedState warm-seeds each hosted tenant's tree from its
// previously-persisted node documents (spec §6), before the watcher's
// startup sweep runs. This is a best-effort accelerant, not a
// correctness requirement: the sweep still walks the live filesystem and
// will fill in or correct anything a stale or missing document left out.
func loadPersistedState(tenants *tenant.Store, st *store.FileStore) {
	for _, name := range tenants.Names() {
		t, _ := tenants.Get(name)
		prefix := "node/" + name + "/"
		for _, key := range st.List() {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			raw, err := st.Get(key)
			if err != nil {
				continue
			}
			var entries []inode.Record
			if err := json.Unmarshal(raw, &entries); err != nil {
				rlog.L.Warnw("skipping malformed node document", "tenant", name, "key", key, "error", err)
				continue
			}
			for _, rec := range entries {
				t.Tree().Upsert(rec)
			}
		}
	}
}

func logEvent(ev events.Event) {
	rlog.L.Debugw(string(ev.Type), "tenant", ev.Tenant, "path", ev.Path, "peer", ev.PeerAddr)
}
