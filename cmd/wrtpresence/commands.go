package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wrtpresence/internal/api"
	"github.com/muurk/wrtpresence/internal/config"
	"github.com/muurk/wrtpresence/internal/logging"
	"github.com/muurk/wrtpresence/internal/tracker"
	"github.com/muurk/wrtpresence/internal/ui"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// Command flags
var (
	outputFormat  string
	resolveNames  bool
	watchInterval time.Duration
	watchPlain    bool
	listenAddr    string
	serveInterval time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(leasesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

// probeCmd checks that every configured device can be reached
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check connectivity and credentials of every device",
	Long: `Connect to every configured device and fetch its wireless client list
(and lease table for routers) once. Devices that fail are reported with
troubleshooting tips.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List client devices currently associated",
	Long: `Poll every device once and print the merged list of associated client
MAC addresses. Hostnames come from the DHCP lease tables of router-mode
devices.`,
	Example: `  # Table with hostnames and vendors
  wrtpresence scan

  # One MAC per line, for scripts
  wrtpresence scan --format compact --names=false

  # JSON output
  wrtpresence scan --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rescan on an interval and show a live dashboard",
	Long: `Rescan every --interval. On a terminal a live dashboard is shown
(press r to rescan, q to quit); otherwise, or with --plain, each scan and
every router online/offline transition is printed as a line.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <mac>",
	Short: "Resolve a MAC address to its lease record",
	Example: `  wrtpresence resolve b8:27:eb:12:34:56
  wrtpresence resolve B8:27:EB:12:34:56 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var leasesCmd = &cobra.Command{
	Use:   "leases",
	Short: "Print the DHCP lease tables of all routers",
	Args:  cobra.NoArgs,
	RunE:  runLeases,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show online/offline status of every router and access point",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve presence data over an HTTP API",
	Long: `Start an HTTP API for presence data:

  GET /api/scan          run a scan and list associated clients
  GET /api/devices/:mac  resolve one MAC to its lease record
  GET /api/status        per-host connectivity and setup failures
  GET /api/leases        rebuild and dump the hostname cache
  GET /api/events        websocket stream of transition and scan events

With --interval the server also scans in the background so event
subscribers see transitions without anyone polling /api/scan.`,
	Example: `  # Listen on localhost
  wrtpresence serve

  # Listen on all interfaces, background scan every 30s
  wrtpresence serve --listen :8086 --interval 30s --log-level info`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	scanCmd.Flags().BoolVar(&resolveNames, "names", true, "Resolve hostnames from DHCP leases")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "Time between scans")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print lines instead of the live dashboard")
	serveCmd.Flags().StringVar(&listenAddr, "listen", api.DefaultListen, "Address to listen on")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "Background scan interval (0 disables)")
}

// setupTracker loads the config and probes every device. It fails only
// when no device at all is usable.
func setupTracker(ctx context.Context, p *ui.Printer) (*tracker.Tracker, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tr, err := tracker.Setup(ctx, cfg, logging.GetLogger())
	if err != nil {
		return nil, err
	}

	failures := tr.Failures()
	if len(tr.Sessions()) == 0 {
		_ = tr.Close()
		if len(failures) == 1 {
			for _, ferr := range failures {
				return nil, ferr
			}
		}
		return nil, fmt.Errorf("none of the %d configured devices could be reached", len(failures))
	}
	if p != nil {
		for _, name := range sortedNames(failures) {
			p.PrintError("Device "+name+" unavailable", failures[name])
		}
	}
	return tr, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func parseFormat() (ui.Format, error) {
	return ui.ParseFormat(outputFormat)
}

// diagnostics returns where warnings go: boxes on stderr for detailed
// output, nothing for machine-readable formats
func diagnostics(format ui.Format) *ui.Printer {
	if format != ui.FormatDetailed {
		return nil
	}
	return ui.NewPrinter(os.Stderr)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("Device Probe", "wrtpresence probe",
		ui.Param{Key: "Devices", Value: strings.Join(cfg.Names(), ", ")},
	)

	tr, err := tracker.Setup(cmd.Context(), cfg, logging.GetLogger())
	if err != nil {
		p.PrintError("Invalid configuration", err)
		return err
	}
	defer func() { _ = tr.Close() }()

	for _, s := range tr.Sessions() {
		c := s.Config()
		details := []ui.Param{
			{Key: "Host", Value: c.Host},
			{Key: "Protocol", Value: string(c.Protocol)},
			{Key: "Mode", Value: string(c.Mode)},
		}
		if len(c.APs) > 0 {
			details = append(details, ui.Param{Key: "APs", Value: strings.Join(c.APs, ", ")})
		}
		p.PrintSuccess("Device "+s.Name()+" ready", details...)
	}

	failures := tr.Failures()
	for _, name := range sortedNames(failures) {
		p.PrintError("Device "+name+" unavailable", failures[name])
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d devices failed", len(failures), len(cfg.Devices))
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	format, err := parseFormat()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tr, err := setupTracker(ctx, diagnostics(format))
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	macs := tr.Scan(ctx)
	if resolveNames {
		if _, err := tr.Leases(ctx); err != nil {
			logging.Warn("Some lease tables could not be read", zap.Error(err))
		}
	}
	return ui.RenderClients(cmd.OutOrStdout(), format, clientRows(tr, macs))
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	interactive := !watchPlain && ui.IsTerminal()
	var p *ui.Printer
	if !interactive {
		p = ui.NewPrinter(os.Stderr)
	}

	tr, err := setupTracker(ctx, p)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	if interactive {
		model := ui.NewWatchModel(func() ui.Snapshot { return snapshot(ctx, tr) }, watchInterval)
		program := tea.NewProgram(model, tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("watch error: %w", err)
		}
		return nil
	}

	return watchLines(ctx, cmd, tr)
}

// watchLines prints one line per scan and one per transition until ctx ends
func watchLines(ctx context.Context, cmd *cobra.Command, tr *tracker.Tracker) error {
	out := cmd.OutOrStdout()
	events, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	scan := func() {
		snap := snapshot(ctx, tr)
		parts := make([]string, 0, len(snap.Clients))
		for _, c := range snap.Clients {
			if c.Hostname != "" {
				parts = append(parts, fmt.Sprintf("%s(%s)", c.MAC, c.Hostname))
			} else {
				parts = append(parts, c.MAC)
			}
		}
		_, _ = fmt.Fprintf(out, "%s %d clients: %s\n", snap.Time.Format("15:04:05"), len(snap.Clients), strings.Join(parts, " "))
	}

	scan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type == tracker.EventTransition {
				_, _ = fmt.Fprintf(out, "%s %s %s: %s -> %s\n", e.Time.Format("15:04:05"), e.Device, e.Host, e.From, e.To)
			}
		}
	}
}

// snapshot scans and resolves hostnames, rebuilding the lease cache once
// when any client is not in it yet
func snapshot(ctx context.Context, tr *tracker.Tracker) ui.Snapshot {
	macs := tr.Scan(ctx)
	for _, mac := range macs {
		if _, ok := tr.Known(mac); !ok {
			if err := tr.Cache().Rebuild(ctx); err != nil {
				logging.Warn("Some lease tables could not be read", zap.Error(err))
			}
			break
		}
	}
	return ui.Snapshot{
		Time:    time.Now(),
		Clients: clientRows(tr, macs),
		Hosts:   hostRows(tr.Status()),
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	format, err := parseFormat()
	if err != nil {
		return err
	}
	mac, ok := wrt.NormalizeMAC(args[0])
	if !ok {
		return fmt.Errorf("invalid MAC address: %q", args[0])
	}

	ctx := cmd.Context()
	tr, err := setupTracker(ctx, diagnostics(format))
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	record, ok := tr.Resolve(ctx, mac)
	if !ok {
		return fmt.Errorf("unknown device %s: not in any lease table", mac)
	}
	return ui.RenderRecord(cmd.OutOrStdout(), format, record)
}

func runLeases(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	format, err := parseFormat()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p := diagnostics(format)
	tr, err := setupTracker(ctx, p)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	records, err := tr.Leases(ctx)
	if err != nil && p != nil {
		p.PrintWarning("Some lease tables could not be read", ui.Param{Key: "Error", Value: err.Error()})
	}
	return ui.RenderLeases(cmd.OutOrStdout(), format, records)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	format, err := parseFormat()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tr, err := setupTracker(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	// Companion APs have no status until they are polled once
	tr.Scan(ctx)
	return ui.RenderHosts(cmd.OutOrStdout(), format, hostRows(tr.Status()), failureMessages(tr.Failures()))
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	tr, err := setupTracker(ctx, ui.NewPrinter(os.Stderr))
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	if serveInterval > 0 {
		go func() {
			ticker := time.NewTicker(serveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tr.Scan(ctx)
				}
			}
		}()
	}

	server := api.New(tr, logging.Named("api"))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving presence API on http://%s (Ctrl+C to stop)\n", listenAddr)
	return server.Run(ctx, listenAddr)
}

func clientRows(tr *tracker.Tracker, macs []string) []ui.ClientRow {
	rows := make([]ui.ClientRow, 0, len(macs))
	for _, mac := range macs {
		record, known := tr.Known(mac)
		rows = append(rows, ui.NewClientRow(mac, record, known))
	}
	return rows
}

func hostRows(statuses []tracker.HostStatus) []ui.HostRow {
	rows := make([]ui.HostRow, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, ui.HostRow{
			Device:    s.Device,
			Host:      s.Host,
			Primary:   s.Primary,
			Status:    s.State,
			Since:     s.Since,
			Clients:   s.Clients,
			LastError: s.LastError,
		})
	}
	return rows
}

func failureMessages(failures map[string]error) map[string]string {
	out := make(map[string]string, len(failures))
	for name, err := range failures {
		out[name] = wrt.ShortMessage(err)
	}
	return out
}

func sortedNames(failures map[string]error) []string {
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
