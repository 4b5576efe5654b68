// Package orchestrator owns the polling schedule and the composite
// runtime health view. Each source runs on its own named repeating
// task; a slow or failing source never blocks the others, and shutdown
// is an explicit stop of all tasks.
package orchestrator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/velden/hubwatch/internal/alert"
	"github.com/velden/hubwatch/internal/config"
	"github.com/velden/hubwatch/internal/health"
	"github.com/velden/hubwatch/internal/ingest"
	"github.com/velden/hubwatch/internal/store"
	"github.com/velden/hubwatch/internal/usage"
)

// Orchestrator wires the ingestion subsystems onto a cron scheduler and
// exposes the health/read surface consumed by the HTTP layer.
type Orchestrator struct {
	cfg    *config.Config
	store  *store.Store
	state  *health.State
	cron   *cron.Cron

	snapshot *ingest.SnapshotIngestor
	deploy   *ingest.DeployPoller
	seeder   *ingest.Seeder
	parser   *ingest.Parser
	host     *ingest.HostStats
	engine   *alert.Engine

	// seedOnce guards the seeded-on-startup action: it fires at most
	// once per process lifetime no matter how often the startup check runs.
	seedOnce sync.Once
}

// New builds the orchestrator and all ingestion subsystems.
func New(cfg *config.Config, st *store.Store) *Orchestrator {
	state := health.New()
	agg := usage.New(st)

	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		state:    state,
		cron:     cron.New(),
		snapshot: ingest.NewSnapshotIngestor(st, state, cfg.SnapshotPath, cfg.SnapshotMaxAge()),
		deploy:   ingest.NewDeployPoller(st, state, cfg.DeployURL, cfg.DeployTimeout()),
		seeder:   ingest.NewSeeder(st, cfg.BacklogPath, cfg.BacklogSeed, cfg.MinSeedItems, cfg.SeedWorkflowsJSON),
		parser:   ingest.NewParser(st),
		host:     ingest.NewHostStats(state),
		engine:   alert.NewEngine(st, agg, cfg.ProviderDailyLimits(), cfg.ErrorRateThreshold, cfg.AlertsEnabled),
	}
}

// Start runs snapshot and deploy ingestion once concurrently, performs
// the startup seed check, then starts the repeating tasks.
func (o *Orchestrator) Start() error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); o.snapshot.Ingest() }()
	go func() { defer wg.Done(); o.deploy.Ingest() }()
	wg.Wait()

	o.startupCheck()

	tasks := []struct {
		name    string
		seconds int
		run     func()
	}{
		{"snapshot", o.cfg.SnapshotPollSeconds, o.snapshot.Ingest},
		{"deploy", o.cfg.DeployPollSeconds, o.deploy.Ingest},
		{"reseed", o.cfg.ReseedSeconds, o.reseedCheck},
		{"sessions", o.cfg.SessionScanSeconds, o.ScanSessions},
		{"host", o.cfg.HostStatsSeconds, o.host.Sample},
	}
	for _, t := range tasks {
		if t.seconds <= 0 {
			continue
		}
		if t.name == "deploy" && !o.deploy.Enabled() {
			continue
		}
		spec := fmt.Sprintf("@every %ds", t.seconds)
		if _, err := o.cron.AddFunc(spec, t.run); err != nil {
			return fmt.Errorf("scheduling %s: %w", t.name, err)
		}
		log.Printf("[sched] %s every %ds", t.name, t.seconds)
	}

	o.cron.Start()
	return nil
}

// Stop cancels all repeating tasks. Jobs already in flight finish on
// their own goroutines.
func (o *Orchestrator) Stop() {
	o.cron.Stop()
	log.Printf("[sched] stopped")
}

// startupCheck seeds immediately when the store is empty or the
// snapshot is missing, at most once per process.
func (o *Orchestrator) startupCheck() {
	missing := o.state.Check(health.SourceSnapshot) == health.CheckMissing
	if o.store.HasUsableData() && !missing {
		return
	}
	o.seedOnce.Do(func() {
		seeded, err := o.seeder.Seed()
		if err != nil {
			log.Printf("[sched] startup seed: %v", err)
			return
		}
		log.Printf("[sched] startup seed (workflows seeded=%v)", seeded)
	})
}

// reseedCheck re-invokes seed fallback whenever usable data is absent.
func (o *Orchestrator) reseedCheck() {
	if o.store.HasUsableData() {
		return
	}
	if _, err := o.seeder.Seed(); err != nil {
		log.Printf("[sched] reseed: %v", err)
	}
}

// ScanSessions parses the session logs and, when the pass ingested at
// least one new record, evaluates the alert rules. It also backs the
// on-demand ingestion endpoint.
func (o *Orchestrator) ScanSessions() {
	n, err := o.parser.ParseAll(o.cfg.SessionsDir)
	if err != nil {
		log.Printf("[sched] session scan: %v", err)
		return
	}
	if n == 0 {
		return
	}
	o.state.MarkActive("sessions")
	if created := o.engine.Evaluate(time.Now()); created > 0 {
		log.Printf("[sched] %d alerts created", created)
	}
}

// Seed exposes the fallback for the boundary API and CLI.
func (o *Orchestrator) Seed() (bool, error) { return o.seeder.Seed() }

// ParseSessions runs one on-demand parse pass and evaluates alerts,
// returning the number of ingested records.
func (o *Orchestrator) ParseSessions() (int, error) {
	n, err := o.parser.ParseAll(o.cfg.SessionsDir)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.engine.Evaluate(time.Now())
	}
	return n, nil
}

// Health returns the composite runtime health view.
func (o *Orchestrator) Health() health.View {
	return o.state.Snapshot(o.store.HasUsableData())
}
