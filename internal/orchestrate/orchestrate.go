// Package orchestrate implements the Orchestrator (spec.md §2, §4's final
// step): it glues zone discovery, update submission, and propagation
// monitoring into the single top-level "update-and-confirm" operation. It is
// the adapted descendant of the teacher's reconciliation loop — where that
// loop ran fetch-diff-apply forever on a ticker, an invocation of tdns runs
// discover-submit-monitor exactly once and exits.
package orchestrate

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/tdns-go/tdns/internal/cliconfig"
	"github.com/tdns-go/tdns/internal/discovery"
	"github.com/tdns-go/tdns/internal/metrics"
	"github.com/tdns-go/tdns/internal/monitor"
	"github.com/tdns-go/tdns/internal/resolver"
	"github.com/tdns-go/tdns/internal/rrdata"
	"github.com/tdns-go/tdns/internal/submit"
	"github.com/tdns-go/tdns/internal/tdnserr"
	"github.com/tdns-go/tdns/internal/trace"
	"github.com/tdns-go/tdns/internal/transport"
	"github.com/tdns-go/tdns/internal/tsigkey"
	"github.com/tdns-go/tdns/internal/update"
)

// Config holds everything one invocation needs, already parsed and
// validated by the CLI layer.
type Config struct {
	Name string
	Data cliconfig.DataSpec
	Op   update.OperationKind
	TTL  uint32

	ZoneOverride   string
	ExplicitServer *transport.Endpoint
	Exclude        []net.IP
	IPv6           bool
	Port           int

	Key *tsigkey.Key

	ForceTCP bool
	NoWait   bool
	NoOp     bool

	PerNSSingleAddress bool
	PollInterval       time.Duration
	Deadline           time.Duration

	Timeouts Timeouts
}

// Timeouts bundles the per-attempt timeouts the submitter and monitor
// apply; a zero value lets each component fall back to its own default.
type Timeouts struct {
	Submit  time.Duration
	Monitor time.Duration
}

// Orchestrator runs one discover-submit-monitor cycle.
type Orchestrator struct {
	Transport transport.Transport
	Resolver  *resolver.Facade
	Metrics   *metrics.Registry
	Trace     *trace.Trace
	Log       *slog.Logger
}

// Report summarizes one completed invocation for the CLI layer to render.
type Report struct {
	Zone        string
	Submitted   bool
	SubmitRcode int
	Waited      bool
	Monitor     monitor.Report
}

// Run executes the orchestrated operation described by cfg.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (Report, error) {
	log := o.logger()

	disc, err := discovery.Discover(ctx, o.Resolver, cfg.Name, discovery.Options{
		ZoneOverride:   cfg.ZoneOverride,
		ExplicitServer: cfg.ExplicitServer,
		Exclude:        cfg.Exclude,
		IPv6:           cfg.IPv6,
		Port:           cfg.Port,
	})
	if err != nil {
		return Report{}, err
	}
	log.Info("discovery complete", "zone", disc.Zone, "primary", disc.Primary.String(), "authorities", len(disc.Authorities))
	if o.Metrics != nil {
		o.Metrics.AuthoritiesTotal.Set(float64(len(disc.Authorities)))
	}

	report := Report{Zone: disc.Zone}

	if !cfg.NoOp {
		rcode, err := o.submit(ctx, cfg, disc)
		if err != nil {
			if o.Metrics != nil {
				o.Metrics.UpdateAttempts.WithLabelValues("failure").Inc()
			}
			return report, err
		}
		if o.Metrics != nil {
			o.Metrics.UpdateAttempts.WithLabelValues("success").Inc()
		}
		report.Submitted = true
		report.SubmitRcode = rcode
		log.Info("update accepted", "zone", disc.Zone)
	}

	if cfg.NoWait {
		return report, nil
	}

	expectation := expectationFor(cfg)
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	monCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	monOpts := monitor.DefaultOptions()
	if cfg.PollInterval > 0 {
		monOpts.PollInterval = cfg.PollInterval
	}
	if cfg.Timeouts.Monitor > 0 {
		monOpts.Timeout = cfg.Timeouts.Monitor
	}
	monOpts.PerNSSingleAddress = cfg.PerNSSingleAddress
	monOpts.Trace = o.Trace

	monResult := monitor.Run(monCtx, o.Transport, disc.Authorities, expectation, monOpts)
	report.Waited = true
	report.Monitor = monResult

	if o.Metrics != nil {
		o.Metrics.ConvergenceSeconds.Observe(time.Since(start).Seconds())
		satisfied := 0
		for _, s := range monResult.Statuses {
			if s.State == monitor.Satisfied {
				satisfied++
			}
		}
		o.Metrics.AuthoritiesReached.Set(float64(satisfied))
	}

	if !monResult.Converged {
		return report, tdnserr.Newf(tdnserr.ConvergenceTimeout, "propagation did not converge across %d authorities before the deadline", len(monResult.Statuses)).WithZone(disc.Zone)
	}
	log.Info("propagation converged", "zone", disc.Zone, "authorities", len(monResult.Statuses))
	return report, nil
}

// submit builds and sends the UPDATE message, returning the accepted rcode.
func (o *Orchestrator) submit(ctx context.Context, cfg Config, disc discovery.Result) (int, error) {
	spec := update.Spec{
		Zone:  disc.Zone,
		Name:  cfg.Name,
		Type:  cfg.Data.Type,
		TTL:   cfg.TTL,
		Items: cfg.Data.Items,
		Kind:  cfg.Op,
	}
	msg, err := update.Build(spec)
	if err != nil {
		return 0, err
	}
	if cfg.Key != nil {
		update.Sign(msg, *cfg.Key)
	}

	opts := submit.Options{Endpoint: disc.Primary, ForceTCP: cfg.ForceTCP, Timeout: cfg.Timeouts.Submit}
	result, err := submit.Submit(ctx, o.Transport, msg, opts)
	if err != nil {
		return 0, err
	}
	return result.Rcode, nil
}

// expectationFor derives the propagation monitor's target from the
// operation that was (or would have been) submitted, per the Is/Absent/Not
// mapping in spec.md §3.
func expectationFor(cfg Config) rrdata.Expectation {
	switch cfg.Op {
	case update.Create, update.Append:
		return rrdata.IsExpectation(cfg.Name, cfg.Data.Type, cfg.Data.Items...)
	case update.DeleteRRset, update.DeleteName:
		return rrdata.AbsentExpectation(cfg.Name, cfg.Data.Type)
	case update.DeleteRecords:
		return rrdata.NotExpectation(cfg.Name, cfg.Data.Type, cfg.Data.Items...)
	default:
		return rrdata.AbsentExpectation(cfg.Name, cfg.Data.Type)
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}
