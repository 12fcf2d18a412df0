// Command tdns submits an RFC 2136 dynamic DNS UPDATE and, unless told not
// to, waits for the change to propagate to every authoritative nameserver of
// the affected zone before exiting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/tdns-go/tdns/internal/cliconfig"
	"github.com/tdns-go/tdns/internal/metrics"
	"github.com/tdns-go/tdns/internal/orchestrate"
	"github.com/tdns-go/tdns/internal/resolvconf"
	"github.com/tdns-go/tdns/internal/resolver"
	"github.com/tdns-go/tdns/internal/tdnserr"
	"github.com/tdns-go/tdns/internal/trace"
	"github.com/tdns-go/tdns/internal/transport"
	"github.com/tdns-go/tdns/internal/tsigkey"
	"github.com/tdns-go/tdns/internal/update"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "update" {
		fmt.Fprintln(os.Stderr, "usage: tdns update [flags] <name> <type[:item1,item2,...]>")
		os.Exit(tdnserr.Config.ExitCode())
	}

	fs := flag.NewFlagSet("update", flag.ExitOnError)

	zone := fs.String("zone", envOr("TDNS_ZONE", ""), "explicit zone override (default: derived from <name>)")
	server := fs.String("server", envOr("TDNS_SERVER", ""), "explicit primary master address (default: the zone SOA's MNAME)")
	resolverAddr := fs.String("resolver", envOr("TDNS_RESOLVER", ""), "recursive resolver address (default: first nameserver in /etc/resolv.conf)")
	ttl := fs.Uint("ttl", envOrUint("TDNS_TTL", 3600), "TTL applied to created/appended records")
	key := fs.String("key", envOr("TDNS_KEY", ""), "TSIG key name (selects a line from --key-file), or name:algorithm:secret")
	keyFile := fs.String("key-file", envOr("TDNS_KEY_FILE", ""), "path to a TSIG key file")
	exclude := excludeFlag{}
	fs.Var(&exclude, "exclude", "an address to exclude from discovered authorities (repeatable)")
	tcp := fs.Bool("tcp", envOrBool("TDNS_TCP", false), "force the UPDATE to be sent over TCP")
	noWait := fs.Bool("no-wait", envOrBool("TDNS_NO_WAIT", false), "submit the update but don't wait for propagation")
	noOp := fs.Bool("no-op", envOrBool("TDNS_NO_OP", false), "skip submission; only check whether the zone already matches")
	create := fs.Bool("create", false, "operation: create (fails if the RRset already exists)")
	append_ := fs.Bool("append", false, "operation: append to an existing RRset")
	del := fs.Bool("delete", false, "operation: delete (the whole RRset, or specific records, depending on the data specifier)")
	verbose := fs.Bool("verbose", envOrBool("TDNS_VERBOSE", false), "dump every DNS round trip to stderr")
	deadline := fs.Duration("deadline", envOrDuration("TDNS_DEADLINE", 30*time.Second), "overall deadline for propagation monitoring")
	pollInterval := fs.Duration("poll-interval", envOrDuration("TDNS_POLL_INTERVAL", 2*time.Second), "base interval between polls of one authority")
	metricsFile := fs.String("metrics-file", envOr("TDNS_METRICS_FILE", ""), "write Prometheus textfile-collector metrics to this path")
	reportFormat := fs.String("report-format", envOr("TDNS_REPORT_FORMAT", "text"), "convergence report format: text or yaml")
	noIPv6 := fs.Bool("no-ipv6", envOrBool("TDNS_NO_IPV6", false), "disable AAAA glue resolution during zone discovery")
	perNSSingleAddress := fs.Bool("per-ns-single-address", envOrBool("TDNS_PER_NS_SINGLE_ADDRESS", false), "monitor only the first resolved address per NS name instead of all of them")

	fs.Parse(os.Args[2:])

	log := newLogger(*verbose)

	args := fs.Args()
	if len(args) != 2 {
		log.Error("expected exactly two positional arguments: <name> <data-specifier>")
		os.Exit(tdnserr.Config.ExitCode())
	}
	name, dataArg := args[0], args[1]

	op, err := resolveOperation(*create, *append_, *del)
	if err != nil {
		exitWith(log, tdnserr.New(tdnserr.Config, err))
	}

	data, err := cliconfig.ParseDataSpec(dataArg)
	if err != nil {
		exitWith(log, tdnserr.New(tdnserr.Config, err))
	}
	if op == update.DeleteRRset && len(data.Items) > 0 {
		op = update.DeleteRecords
	}

	var tsigKey *tsigkey.Key
	if *key != "" || *keyFile != "" {
		k, err := resolveKey(*key, *keyFile)
		if err != nil {
			exitWith(log, tdnserr.New(tdnserr.Config, err))
		}
		tsigKey = &k
		defer tsigKey.Wipe()
	}

	var explicitServer *transport.Endpoint
	if *server != "" {
		ep, err := parseEndpoint(*server)
		if err != nil {
			exitWith(log, tdnserr.Newf(tdnserr.Config, "invalid --server %q: %v", *server, err))
		}
		explicitServer = &ep
	}

	recursiveServer, err := resolveRecursiveServer(*resolverAddr)
	if err != nil {
		exitWith(log, tdnserr.New(tdnserr.Config, err))
	}

	var secrets map[string]string
	if tsigKey != nil {
		secrets = update.SecretMap(*tsigKey)
	}
	tr := transport.New(secrets)
	facade := resolver.New(recursiveServer, tr)

	var tr3 *trace.Trace
	if *verbose {
		tr3 = trace.New()
		facade.Trace = tr3
	}

	var reg *metrics.Registry
	if *metricsFile != "" {
		reg = metrics.New()
	}

	o := &orchestrate.Orchestrator{
		Transport: tr,
		Resolver:  facade,
		Metrics:   reg,
		Trace:     tr3,
		Log:       log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	report, runErr := o.Run(ctx, orchestrate.Config{
		Name:               name,
		Data:               data,
		Op:                 op,
		TTL:                uint32(*ttl),
		ZoneOverride:       *zone,
		ExplicitServer:     explicitServer,
		Exclude:            exclude.ips,
		IPv6:               !*noIPv6,
		Key:                tsigKey,
		ForceTCP:           *tcp,
		NoWait:             *noWait,
		NoOp:               *noOp,
		PerNSSingleAddress: *perNSSingleAddress,
		PollInterval:       *pollInterval,
		Deadline:           *deadline,
	})

	if *verbose && tr3 != nil {
		fmt.Fprint(os.Stderr, tr3.Dump())
	}
	if reg != nil {
		if werr := reg.WriteFile(*metricsFile); werr != nil {
			log.Warn("failed to write metrics file", "path", *metricsFile, "err", werr)
		}
	}

	renderReport(report, *reportFormat)

	if runErr != nil {
		exitWith(log, runErr)
	}
}

// resolveOperation maps the mutually exclusive --create/--append/--delete
// flags (and their absence, meaning "append") to an update.OperationKind.
// Delete's exact shape is decided by the data specifier, not a separate flag:
// --delete maps to Delete-RRset here, and main narrows it to Delete-Records
// when the specifier carries items. A bare TYPE thus means "the whole RRset"
// and TYPE:items means "these specific records." Delete-Name is not
// reachable from the CLI.
func resolveOperation(create, append_, del bool) (update.OperationKind, error) {
	set := 0
	for _, b := range []bool{create, append_, del} {
		if b {
			set++
		}
	}
	if set > 1 {
		return 0, errors.New("--create, --append, and --delete are mutually exclusive")
	}
	switch {
	case create:
		return update.Create, nil
	case del:
		return update.DeleteRRset, nil
	default:
		return update.Append, nil
	}
}

func resolveKey(keyArg, keyFilePath string) (tsigkey.Key, error) {
	if strings.Count(keyArg, ":") == 2 {
		parts := strings.SplitN(keyArg, ":", 3)
		return tsigkey.New(parts[0], parts[1], parts[2])
	}
	if keyFilePath == "" {
		return tsigkey.Key{}, errors.New("--key names a key but no --key-file was given")
	}
	f, err := os.Open(keyFilePath)
	if err != nil {
		return tsigkey.Key{}, fmt.Errorf("opening key file: %w", err)
	}
	defer f.Close()
	keys, err := tsigkey.LoadFile(f)
	if err != nil {
		return tsigkey.Key{}, err
	}
	if keyArg == "" {
		if len(keys) != 1 {
			return tsigkey.Key{}, fmt.Errorf("--key-file has %d keys; specify --key to disambiguate", len(keys))
		}
		return keys[0], nil
	}
	return tsigkey.Select(keys, keyArg)
}

func resolveRecursiveServer(addr string) (transport.Endpoint, error) {
	if addr != "" {
		return parseEndpoint(addr)
	}
	return resolvconf.First(resolvconf.DefaultPath)
}

func parseEndpoint(addr string) (transport.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return transport.Endpoint{}, fmt.Errorf("invalid address %q", addr)
	}
	port := transport.DefaultPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return transport.Endpoint{}, fmt.Errorf("invalid port in %q", addr)
		}
		port = p
	}
	return transport.Endpoint{IP: ip, Port: port}, nil
}

// excludeFlag accumulates repeated --exclude addresses.
type excludeFlag struct {
	ips []net.IP
}

func (e *excludeFlag) String() string {
	if e == nil {
		return ""
	}
	s := make([]string, len(e.ips))
	for i, ip := range e.ips {
		s[i] = ip.String()
	}
	return strings.Join(s, ",")
}

func (e *excludeFlag) Set(v string) error {
	ip := net.ParseIP(v)
	if ip == nil {
		return fmt.Errorf("invalid --exclude address %q", v)
	}
	e.ips = append(e.ips, ip)
	return nil
}

// renderReport writes the convergence report in the requested format.
func renderReport(report orchestrate.Report, format string) {
	if strings.EqualFold(format, "yaml") {
		out, err := yaml.Marshal(toReportView(report))
		if err == nil {
			fmt.Fprint(os.Stdout, string(out))
		}
		return
	}

	fmt.Printf("zone: %s\n", report.Zone)
	if report.Submitted {
		fmt.Printf("update submitted: rcode %d\n", report.SubmitRcode)
	}
	if !report.Waited {
		return
	}
	fmt.Printf("convergence: %v (%d/%d authorities satisfied)\n",
		report.Monitor.Converged, countSatisfied(report), len(report.Monitor.Statuses))
	for _, s := range report.Monitor.Statuses {
		if s.State.String() != "satisfied" {
			fmt.Printf("  %s (%s): %s\n", s.Authority.NSName, s.Authority.Endpoint.String(), s.State)
		}
	}
}

func countSatisfied(report orchestrate.Report) int {
	n := 0
	for _, s := range report.Monitor.Statuses {
		if s.State.String() == "satisfied" {
			n++
		}
	}
	return n
}

// reportView is the YAML-serializable shape of a Report.
type reportView struct {
	Zone        string          `yaml:"zone"`
	Submitted   bool            `yaml:"submitted"`
	Rcode       int             `yaml:"rcode,omitempty"`
	Converged   bool            `yaml:"converged"`
	Authorities []authorityView `yaml:"authorities,omitempty"`
}

type authorityView struct {
	NSName string `yaml:"ns_name"`
	Addr   string `yaml:"addr"`
	State  string `yaml:"state"`
}

func toReportView(report orchestrate.Report) reportView {
	v := reportView{
		Zone:      report.Zone,
		Submitted: report.Submitted,
		Rcode:     report.SubmitRcode,
		Converged: report.Monitor.Converged,
	}
	for _, s := range report.Monitor.Statuses {
		v.Authorities = append(v.Authorities, authorityView{
			NSName: s.Authority.NSName,
			Addr:   s.Authority.Endpoint.String(),
			State:  s.State.String(),
		})
	}
	return v
}

func exitWith(log *slog.Logger, err error) {
	var terr *tdnserr.Error
	if errors.As(err, &terr) {
		log.Error(terr.Error(), "kind", terr.Kind.String())
		os.Exit(terr.Kind.ExitCode())
	}
	log.Error(err.Error())
	os.Exit(1)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrUint(key string, fallback uint) uint {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}
	return uint(n)
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
