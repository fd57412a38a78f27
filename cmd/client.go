package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cache-warmer/internal/api"
	"github.com/JakeFAU/cache-warmer/internal/auth"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

const clientTimeout = 30 * time.Second

type clientOptions struct {
	addr   string
	apiKey string
}

func (o *clientOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", "", "base URL of a running server (default http://localhost:<server.port>)")
	cmd.Flags().StringVar(&o.apiKey, "api-key", "", "API key (default auth.api_key)")
}

// warmClient calls the control API of a running server. Every command first
// fetches an action token and then calls the protected endpoint with it.
type warmClient struct {
	base   string
	apiKey string
	http   *http.Client
}

func newWarmClient(load configLoader, opts clientOptions) (*warmClient, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	base := opts.addr
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	key := opts.apiKey
	if key == "" {
		key = cfg.Auth.APIKey
	}
	return &warmClient{
		base:   strings.TrimRight(base, "/"),
		apiKey: key,
		http:   &http.Client{Timeout: clientTimeout},
	}, nil
}

func (c *warmClient) token(ctx context.Context, action string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/warm/token?action="+url.QueryEscape(action), "", nil)
	if err != nil {
		return "", fmt.Errorf("request %s token: %w", action, err)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	return resp.Token, nil
}

func (c *warmClient) call(ctx context.Context, method, action string, payload any) ([]byte, error) {
	tok, err := c.token(ctx, action)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, "/v1/warm/"+action, tok, body)
}

func (c *warmClient) do(ctx context.Context, method, path, token string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(auth.HeaderAPIKey, c.apiKey)
	}
	if token != "" {
		req.Header.Set(auth.HeaderToken, token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func newStartCmd(load configLoader) *cobra.Command {
	var (
		copts clientOptions
		ropts runOptions
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Starts a warm run on a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newWarmClient(load, copts)
			if err != nil {
				return err
			}
			out, err := client.call(cmd.Context(), http.MethodPost, api.ActionStart, startRequest(cmd, ropts))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	copts.bind(cmd)
	cmd.Flags().IntVar(&ropts.maxItems, "max-items", 0, "item limit for this run; 0 warms everything")
	cmd.Flags().IntVar(&ropts.delayMs, "delay-ms", 0, "pause between items in milliseconds")
	cmd.Flags().IntVar(&ropts.batchSize, "batch-size", 0, "items fetched per tick")
	return cmd
}

func newStopCmd(load configLoader) *cobra.Command {
	var copts clientOptions
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stops the current warm run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newWarmClient(load, copts)
			if err != nil {
				return err
			}
			out, err := client.call(cmd.Context(), http.MethodPost, api.ActionStop, nil)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	copts.bind(cmd)
	return cmd
}

func newStatusCmd(load configLoader) *cobra.Command {
	var copts clientOptions
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Prints progress of the current warm run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newWarmClient(load, copts)
			if err != nil {
				return err
			}
			out, err := client.call(cmd.Context(), http.MethodGet, api.ActionStatus, nil)
			if err != nil {
				return err
			}
			var report warmer.Report
			if err := json.Unmarshal(out, &report); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "status=%s processed=%d/%d (%d%%) failed=%d\n",
				report.Status, report.ProcessedCount, report.MaxItems, report.ProgressPercentage, report.FailedCount)
			return err
		},
	}
	copts.bind(cmd)
	return cmd
}
