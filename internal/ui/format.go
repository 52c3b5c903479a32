package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/wrtpresence/internal/wrt"
)

// Format selects how listings are printed
type Format string

const (
	FormatDetailed Format = "detailed" // Bordered table
	FormatCompact  Format = "compact"  // Tab separated, one row per line
	FormatJSON     Format = "json"     // Indented JSON
)

// ParseFormat validates a --format flag value
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDetailed, FormatCompact, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (valid formats: detailed, compact, json)", s)
}

// ClientRow is one associated client in a scan listing
type ClientRow struct {
	MAC      string `json:"mac"`
	Hostname string `json:"hostname,omitempty"`
	IP       string `json:"ip,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
}

// HostRow is the connectivity of one polled host
type HostRow struct {
	Device    string     `json:"device"`
	Host      string     `json:"host"`
	Primary   bool       `json:"primary"`
	Status    string     `json:"status"`
	Since     *time.Time `json:"since,omitempty"`
	Clients   int        `json:"clients"`
	LastError string     `json:"last_error,omitempty"`
}

// NewClientRow builds a row for mac from its lease record, if any
func NewClientRow(mac string, record wrt.DeviceRecord, known bool) ClientRow {
	row := ClientRow{MAC: mac, Vendor: wrt.Vendor(mac)}
	if known {
		row.Hostname = record.Hostname
		row.IP = record.Attr(wrt.AttrIP)
	}
	return row
}

// RenderClients writes a scan listing
func RenderClients(w io.Writer, format Format, clients []ClientRow) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, clients)

	case FormatCompact:
		for _, c := range clients {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", c.MAC, c.Hostname); err != nil {
				return err
			}
		}
		return nil

	default:
		rows := make([][]string, 0, len(clients))
		for _, c := range clients {
			rows = append(rows, []string{c.MAC, dash(c.Hostname), dash(c.IP), dash(c.Vendor)})
		}
		out := renderTable([]string{"MAC", "HOSTNAME", "IP", "VENDOR"}, rows)
		_, err := fmt.Fprintf(w, "%s\n%s\n", out, MutedStyle.Render(plural(len(clients), "client")+" associated"))
		return err
	}
}

// RenderHosts writes the per-host status listing followed by devices that
// failed setup
func RenderHosts(w io.Writer, format Format, hosts []HostRow, failures map[string]string) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, struct {
			Hosts    []HostRow         `json:"hosts"`
			Failures map[string]string `json:"failures"`
		}{hosts, failures})

	case FormatCompact:
		for _, h := range hosts {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", h.Device, h.Host, h.Status, h.Clients); err != nil {
				return err
			}
		}
		for _, name := range sortedKeys(failures) {
			if _, err := fmt.Fprintf(w, "%s\t-\tfailed\t0\n", name); err != nil {
				return err
			}
		}
		return nil

	default:
		rows := make([][]string, 0, len(hosts)+len(failures))
		for _, h := range hosts {
			role := "ap"
			if h.Primary {
				role = "primary"
			}
			rows = append(rows, []string{
				h.Device, h.Host, role, RenderStatus(h.Status),
				strconv.Itoa(h.Clients), since(h.Since), dash(h.LastError),
			})
		}
		for _, name := range sortedKeys(failures) {
			rows = append(rows, []string{
				name, "-", "-", ErrorMessageStyle.Render(FailureMarker + " failed"), "-", "-", failures[name],
			})
		}
		out := renderTable([]string{"DEVICE", "HOST", "ROLE", "STATUS", "CLIENTS", "SINCE", "LAST ERROR"}, rows)
		_, err := fmt.Fprintln(w, out)
		return err
	}
}

// RenderLeases writes a lease table dump, sorted by MAC
func RenderLeases(w io.Writer, format Format, records map[string]wrt.DeviceRecord) error {
	macs := wrt.SortedMACs(records)

	switch format {
	case FormatJSON:
		list := make([]wrt.DeviceRecord, 0, len(macs))
		for _, mac := range macs {
			list = append(list, records[mac])
		}
		return writeJSON(w, list)

	case FormatCompact:
		for _, mac := range macs {
			r := records[mac]
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.MAC, r.Hostname, r.Attr(wrt.AttrIP)); err != nil {
				return err
			}
		}
		return nil

	default:
		rows := make([][]string, 0, len(macs))
		for _, mac := range macs {
			r := records[mac]
			rows = append(rows, []string{
				r.MAC, dash(r.Hostname), dash(r.Attr(wrt.AttrIP)),
				dash(r.Attr(wrt.AttrLeaseExpires)), dash(r.Attr(wrt.AttrVendor)), dash(r.Attr(wrt.AttrSource)),
			})
		}
		out := renderTable([]string{"MAC", "HOSTNAME", "IP", "EXPIRES", "VENDOR", "SOURCE"}, rows)
		_, err := fmt.Fprintf(w, "%s\n%s\n", out, MutedStyle.Render(plural(len(macs), "lease")))
		return err
	}
}

// RenderRecord writes the details of one resolved device
func RenderRecord(w io.Writer, format Format, record wrt.DeviceRecord) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, record)
	case FormatCompact:
		_, err := fmt.Fprintf(w, "%s\t%s\n", record.MAC, record.Hostname)
		return err
	default:
		details := []Param{{Key: "MAC", Value: record.MAC}, {Key: "Hostname", Value: dash(record.Hostname)}}
		keys := make([]string, 0, len(record.Attributes))
		for k := range record.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			details = append(details, Param{Key: k, Value: record.Attributes[k]})
		}
		_, err := fmt.Fprintln(w, NewSuccessResult("Device resolved", details...).Render())
		return err
	}
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func since(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
