// Command triggertail tails a trigger-card JSONL file and pretty-prints
// each record as it is written, tolerating a truncated final line (the
// trigger logger may be mid-write when this is run against a live file).
//
// Usage:
//
//	triggertail -file ./triggerlogs/triggercard_20260730_run-1.jsonl
//	triggertail -file trigger.jsonl -follow=false   # print existing lines and exit
//	triggertail -file trigger.jsonl -reason STALE_DATA
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// card mirrors triggerlog.Card's JSON shape without importing the internal
// package — triggertail is a standalone reader, deliberately decoupled from
// the writer's Go types so it keeps working against any schema_version it
// recognizes.
type card struct {
	SchemaVersion string   `json:"schema_version"`
	AppVersion    string   `json:"app_version"`
	RunID         string   `json:"run_id"`
	Seq           uint64   `json:"seq"`
	SnapshotID    uint64   `json:"snapshot_id"`
	LogTSUnixMS   uint64   `json:"log_ts_unix_ms"`
	Intent        string   `json:"intent"`
	Arm           bool     `json:"arm"`
	Allowed       bool     `json:"allowed"`
	ReasonCodes   []string `json:"reason_codes"`
}

func main() {
	path := flag.String("file", "", "Trigger-card JSONL file to tail")
	follow := flag.Bool("follow", true, "Keep reading as the file grows (like tail -f)")
	reasonFilter := flag.String("reason", "", "Only print cards whose reason_codes include this code")
	pollInterval := flag.Duration("poll", 250*time.Millisecond, "Poll interval while following")
	flag.Parse()

	log.SetFlags(0)

	if *path == "" {
		log.Fatal("triggertail: -file is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("triggertail: open %s: %v", *path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var malformed int
	var pending string

	readAvailable := func() bool {
		sawLine := false
		for {
			line, err := r.ReadString('\n')
			if len(line) > 0 && err == nil {
				printLine(pending+line, *reasonFilter, &malformed)
				pending = ""
				sawLine = true
				continue
			}
			if err == io.EOF {
				// A non-empty trailing fragment with no newline yet is an
				// in-progress write, not a malformed record — keep it for
				// the next read rather than counting it as an error.
				pending += line
				return sawLine
			}
			if err != nil {
				log.Printf("triggertail: read error: %v", err)
				return sawLine
			}
		}
	}

	readAvailable()

	if !*follow {
		if malformed > 0 {
			fmt.Fprintf(os.Stderr, "triggertail: %d malformed line(s) skipped\n", malformed)
		}
		return
	}

	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		readAvailable()
	}
}

func printLine(line string, reasonFilter string, malformed *int) {
	trimmed := strings.TrimRight(line, "\n")
	if trimmed == "" {
		return
	}
	var c card
	if err := json.Unmarshal([]byte(trimmed), &c); err != nil {
		*malformed++
		fmt.Printf("??? unparsed line: %s\n", trimmed)
		return
	}
	if reasonFilter != "" && !hasReason(c.ReasonCodes, reasonFilter) {
		return
	}

	status := "ALLOWED"
	if !c.Allowed {
		status = "BLOCKED"
	}
	ts := time.UnixMilli(int64(c.LogTSUnixMS)).UTC().Format("15:04:05.000")
	fmt.Printf("%s  run=%s seq=%-6d snap=%-8d intent=%-6s arm=%-5v %-7s  %s\n",
		ts, c.RunID, c.Seq, c.SnapshotID, c.Intent, c.Arm, status, strings.Join(c.ReasonCodes, ","))
}

func hasReason(codes []string, want string) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}
