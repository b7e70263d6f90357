// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/syncer"
)

var (
	statusJSON   bool
	historyKind  string
	historyLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st syncer.Status
		raw, err := apiGet(resolveAPIAddr()+"/api/v1/status", &st)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statusJSON {
			_, err := out.Write(raw)
			return err
		}
		fmt.Fprintf(out, "peer:       %s (%s, %s)\n", st.Peer.Name, st.Peer.Address, st.Peer.MAC)
		fmt.Fprintf(out, "strategies: %v\n", st.Strategies)
		printSnapshot(out, "wake", st.Wake)
		printSnapshot(out, "shutdown", st.Shutdown)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled sessions of the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := url.Values{}
		if historyKind != "" {
			q.Set("kind", historyKind)
		}
		q.Set("limit", strconv.Itoa(historyLimit))

		var list []session.Snapshot
		raw, err := apiGet(resolveAPIAddr()+"/api/v1/sessions/history?"+q.Encode(), &list)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statusJSON {
			_, err := out.Write(raw)
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tKIND\tRESULT\tREASON\tATTEMPTS\tDURATION")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				s.StartedAt.Local().Format(time.DateTime), s.Kind, s.Result, s.Reason, len(s.Attempts), s.Duration().Round(time.Millisecond))
		}
		return tw.Flush()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON response")
	historyCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON response")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "filter by session kind (wake|shutdown)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of sessions to list")
}

func printSnapshot(out io.Writer, label string, s *session.Snapshot) {
	if s == nil {
		fmt.Fprintf(out, "%-10s  none\n", label+":")
		return
	}
	state := string(s.State)
	if s.Terminal() {
		state = fmt.Sprintf("%s (%s)", s.Result, s.Reason)
	}
	fmt.Fprintf(out, "%-10s  %s  %s  %.0f%%  attempts=%d  %s\n",
		label+":", s.ID, state, s.Progress*100, len(s.Attempts), s.Message)
	for _, a := range s.Attempts {
		fmt.Fprintf(out, "            #%d %-8s %-10s %s\n", a.Seq, a.Method, a.Outcome, a.Detail)
	}
}

// apiGet fetches endpoint, decodes the JSON body into v and also returns it raw.
func apiGet(endpoint string, v any) ([]byte, error) {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: %s", e.Error, e.Detail)
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}
