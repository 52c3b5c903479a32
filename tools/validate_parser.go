//go:build ignore

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/muurk/wrtpresence/internal/parser"
)

// Page kinds recognised from the capture file name
const (
	kindWireless = "wireless" // Status_Wireless.live.asp
	kindLeases   = "leases"   // Status_Lan.live.asp
	kindShell    = "shell"    // `wl assoclist` output
	kindDnsmasq  = "dnsmasq"  // dnsmasq.leases style shell output
)

// Statistics tracks parsing results
type Statistics struct {
	TotalFiles   int
	ParseSuccess int
	ParseFailure int
	Kinds        map[string]int
	Failures     []Failure
	MACs         map[string]bool
}

// Failure stores information about a capture that yielded nothing
type Failure struct {
	File  string
	Kind  string
	Error string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_parser <directory-or-file>")
		fmt.Println("Example: validate_parser captures/")
		fmt.Println("         validate_parser Status_Wireless.live.asp")
		os.Exit(1)
	}

	path := os.Args[1]
	stats := Statistics{
		Kinds: make(map[string]int),
		MACs:  make(map[string]bool),
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			fmt.Printf("Error reading directory: %v\n", err)
			os.Exit(1)
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		if len(files) == 0 {
			fmt.Printf("No capture files found in %s\n", path)
			os.Exit(1)
		}
	}

	fmt.Printf("=== wrtpresence Parser Validator ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}

	printStatistics(&stats)
	if stats.ParseFailure > 0 {
		os.Exit(2)
	}
}

func kindOf(filename string) string {
	name := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.Contains(name, "wireless"):
		return kindWireless
	case strings.Contains(name, "lan"):
		return kindLeases
	case strings.Contains(name, "dnsmasq") || strings.HasSuffix(name, ".leases"):
		return kindDnsmasq
	default:
		return kindShell
	}
}

func processFile(filename string, stats *Statistics) {
	stats.TotalFiles++

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Printf("Error reading file %s: %v\n", filename, err)
		return
	}

	kind := kindOf(filename)
	stats.Kinds[kind]++

	var macs []string
	switch kind {
	case kindWireless:
		clients, ok := parser.ParseWirelessClients(parser.ParseDataTokens(string(data))[parser.KeyActiveWireless])
		if !ok {
			stats.fail(filename, kind, "no active_wireless token")
			return
		}
		macs = clients

	case kindLeases:
		leases, ok := parser.ParseDataTokens(string(data))[parser.KeyDHCPLeases]
		if !ok {
			stats.fail(filename, kind, "no dhcp_leases token")
			return
		}
		for mac := range parser.ParseHTTPLeases(leases) {
			macs = append(macs, mac)
		}

	case kindDnsmasq:
		for mac := range parser.ParseSSHLeases(string(data)) {
			macs = append(macs, mac)
		}

	default:
		macs = parser.ParseMACLines(string(data))
	}

	if len(macs) == 0 {
		stats.fail(filename, kind, "no MAC addresses found")
		return
	}

	stats.ParseSuccess++
	for _, mac := range macs {
		stats.MACs[mac] = true
	}
	fmt.Printf("%-40s %-9s %d MACs\n", filepath.Base(filename), kind, len(macs))
}

func (s *Statistics) fail(file, kind, msg string) {
	s.ParseFailure++
	s.Failures = append(s.Failures, Failure{File: file, Kind: kind, Error: msg})
}

func printStatistics(stats *Statistics) {
	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Files:        %d\n", stats.TotalFiles)
	fmt.Printf("Parsed:       %d\n", stats.ParseSuccess)
	fmt.Printf("Failed:       %d\n", stats.ParseFailure)
	fmt.Printf("Unique MACs:  %d\n", len(stats.MACs))

	kinds := make([]string, 0, len(stats.Kinds))
	for k := range stats.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Printf("\nBy kind:\n")
	for _, k := range kinds {
		fmt.Printf("  %-9s %d\n", k, stats.Kinds[k])
	}

	if len(stats.Failures) > 0 {
		fmt.Printf("\nFailures:\n")
		for _, f := range stats.Failures {
			fmt.Printf("  %s (%s): %s\n", f.File, f.Kind, f.Error)
		}
	}
}
