package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/probe"
)

var submitCmd = &cobra.Command{
	Use:   "submit [url]",
	Short: "Queue a URL check through the API",
	Long: `Queue a URL check for this machine's address. Without an argument the
URL is read from stdin. With --watch the command stays connected and prints
every status change of the new check until it finishes.

The API is taken from --api, then API_BASE, then http://localhost:8080.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String("api", "", "API base URL")
	submitCmd.Flags().Bool("watch", false, "stream status changes until the check finishes")
	submitCmd.Flags().Duration("timeout", time.Minute, "give up watching after this long")
}

func apiBase(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("api"); v != "" {
		return strings.TrimRight(v, "/")
	}
	if v := os.Getenv("API_BASE"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:8080"
}

func runSubmit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var raw string
	if len(args) == 1 {
		raw = args[0]
	} else {
		fmt.Fprint(out, "Enter a site URL to check (e.g., https://example.com): ")
		line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		raw = line
	}
	raw = strings.TrimSpace(raw)
	if _, err := probe.SanitizeURL(raw); err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}

	base := apiBase(cmd)
	watch, _ := cmd.Flags().GetBool("watch")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	// subscribe first so no transition is missed
	var events io.ReadCloser
	if watch {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/events", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("contacting API: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("events: API returned status %s", resp.Status)
		}
		events = resp.Body
		defer events.Close()
	}

	created, err := postCheck(ctx, base, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Queued %s as %s (%s)\n", created.RequestURL, created.ID, created.Status)

	if events == nil {
		return nil
	}
	return watchCheck(events, created.ID, out)
}

func postCheck(ctx context.Context, base, raw string) (*domain.CheckRequest, error) {
	body, _ := json.Marshal(map[string]string{"url": raw})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/checks", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var c domain.CheckRequest
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &c, nil
}

// watchCheck prints data_update entries for id until one is terminal.
func watchCheck(events io.Reader, id string, out io.Writer) error {
	sc := bufio.NewScanner(events)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var event string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "data_update":
			var recs []domain.CheckRequest
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &recs); err != nil {
				continue
			}
			for _, r := range recs {
				if r.ID != id {
					continue
				}
				fmt.Fprintf(out, "%s %s", r.ID, r.Status)
				if r.Status == domain.StatusSuccess {
					fmt.Fprintf(out, " status_code=%d content_length=%d", r.StatusCode, r.ContentLength)
				}
				fmt.Fprintln(out)
				if r.Status.Terminal() {
					return nil
				}
			}
		case line == "":
			event = ""
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return fmt.Errorf("watch: stream closed before %s finished", id)
}
