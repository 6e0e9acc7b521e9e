// Package app wires configuration, logging, the meter registry, the exporter
// and the push scheduler into the pushd daemon.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pushd/internal/admin"
	"pushd/internal/config"
	"pushd/internal/export"
	"pushd/internal/meter"
	"pushd/internal/push"
	"pushd/internal/runtime/supervisor"
	logx "pushd/pkg/logx"
)

const (
	defaultBusyTimeout = time.Second
	// retireWait bounds how long a replaced exporter stays open for a
	// publish that was already in flight when the config changed.
	retireWait = 10 * time.Second
)

var errStopped = errors.New("app stopped")

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	meter *meter.Registry
	guard *push.Guard
	admin *admin.Service

	mu      sync.Mutex
	pub     *publisher
	stopped bool
}

// publisher is one exporter and the Registry that drives it. A config
// reload replaces both; the Guard outlives them.
type publisher struct {
	reg  *push.Registry
	exp  export.Exporter
	step push.StaticConfig
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	adminCfg, err := mapAdminConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))

	reg := meter.New(meter.DefaultNamespace, meter.WithRuntimeCollectors(true))
	pm := meter.NewPublishMetrics(reg.Registerer(), reg.Namespace())

	a := &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		meter: reg,
		guard: push.NewGuard(log.With(logx.String("comp", "push")), pm),
	}
	a.admin = admin.New(adminCfg, a, reg.Handler(), log.With(logx.String("comp", "admin")))

	pub, err := a.buildPublisher(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.pub = pub
	return a, nil
}

// Meter exposes the registry exporters publish from. Callers register their
// own collectors on it.
func (a *App) Meter() *meter.Registry { return a.meter }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) buildPublisher(cfg *config.Config) (*publisher, error) {
	step, err := mapStepConfig(cfg)
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDurationField("push.publish_timeout", cfg.Push.PublishTimeout)
	if err != nil {
		return nil, err
	}
	ec, err := mapExporterConfig(cfg)
	if err != nil {
		return nil, err
	}

	exp, err := export.Open(ec, a.meter.Gatherer(), a.log.With(logx.String("comp", "export")))
	if err != nil {
		return nil, err
	}
	reg, err := push.New(step, exp,
		push.WithLogger(a.log.With(logx.String("comp", "push"))),
		push.WithGuard(a.guard),
		push.WithPublishTimeout(timeout),
	)
	if err != nil {
		_ = exp.Close()
		return nil, err
	}
	return &publisher{reg: reg, exp: exp, step: step}, nil
}

func (a *App) current() *publisher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pub
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapExporterConfig(cfg); err != nil {
			return err
		}
		_, err := mapAdminConfig(cfg)
		return err
	})

	a.current().reg.StartWith(a.sup)

	if a.admin.Enabled() {
		a.admin.Start(a.sup.Context())
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.watchdog)

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("exporter", a.current().reg.Name()))
	return nil
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.notify(daemon.SdNotifyReloading)
	defer a.notify(daemon.SdNotifyReady)

	if config.Changed(sections, config.SectionLogging) {
		if err := a.logs.Apply(mapLoggingConfig(next)); err != nil {
			a.log.Warn("log file unavailable; using console", logx.Err(err))
		}
	}
	if config.Changed(sections, config.SectionPush) || config.Changed(sections, config.SectionExporter) {
		if err := a.swapPublisher(next); err != nil {
			a.log.Warn("publisher rebuild failed; keeping previous", logx.Err(err))
		}
	}
	if config.Changed(sections, config.SectionAdmin) {
		ac, err := mapAdminConfig(next)
		if err != nil {
			a.log.Warn("invalid admin config; keeping previous", logx.Err(err))
		} else {
			a.admin.Reconfigure(ctx, ac)
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// swapPublisher builds a publisher for cfg and replaces the running one.
// The old schedule is stopped without a final publish and its exporter is
// closed once its scheduled publishes are done and no publish holds the Guard.
func (a *App) swapPublisher(cfg *config.Config) error {
	np, err := a.buildPublisher(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = np.exp.Close()
		return errStopped
	}
	old := a.pub
	a.pub = np
	a.mu.Unlock()

	old.reg.Stop()
	np.reg.StartWith(a.sup)
	a.sup.Go0("push.retire", func(c context.Context) { a.retire(c, old) })
	return nil
}

func (a *App) retire(ctx context.Context, old *publisher) {
	ctx, cancel := context.WithTimeout(ctx, retireWait)
	defer cancel()
	if err := old.reg.Drain(ctx); err != nil {
		a.log.Warn("retired exporter still publishing; closing anyway", logx.String("exporter", old.reg.Name()), logx.Err(err))
	}

	// a manual flush may still hold the old exporter
	t := time.NewTicker(25 * time.Millisecond)
	defer t.Stop()
	for a.guard.Running() && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	if err := old.exp.Close(); err != nil {
		a.log.Warn("retired exporter close failed", logx.String("exporter", old.reg.Name()), logx.Err(err))
	}
}

// Status implements admin.Target.
func (a *App) Status() admin.Status {
	p := a.current()
	st := admin.Status{
		Exporter:   p.reg.Name(),
		Enabled:    p.step.Enabled(),
		Step:       p.step.Step().String(),
		Scheduled:  p.reg.Scheduled(),
		Publishing: p.reg.IsPublishing(),
		Closed:     p.reg.Closed(),
	}
	if a.sup != nil {
		st.Workers = a.sup.Snapshot()
	}
	return st
}

// Flush implements admin.Target.
func (a *App) Flush() bool { return a.current().reg.PublishSafely() }

// Stop closes the publisher (one final publish when enabled) and waits for
// background workers. It is safe to call more than once.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	p := a.pub
	a.mu.Unlock()

	a.notify(daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	a.shutdown(ctx,
		shutdownStep{name: "admin", limit: time.Second, fn: func(c context.Context) error {
			a.admin.Stop(c)
			return nil
		}},
		shutdownStep{name: "publisher", limit: 5 * time.Second, fn: func(context.Context) error {
			p.reg.Close()
			return nil
		}},
		shutdownStep{name: "supervisor", limit: 2 * time.Second, fn: a.sup.Wait},
	)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
