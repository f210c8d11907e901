//go:build ignore

// Run: go run ./build-tools/loadgen.go -addr http://localhost:8080 -rps 50 -duration 60s -tokens USDC,WETH,WBTC -swap-ratio 0.2

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	mrand "math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

type swapRequest struct {
	FromToken string `json:"from_token"`
	ToToken   string `json:"to_token"`
	Amount    string `json:"amount"`
}

type stats struct {
	sent   atomic.Int64
	failed atomic.Int64

	mu       sync.Mutex
	byStatus map[int]int64
	latency  []time.Duration
}

func (s *stats) observe(status int, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStatus[status]++
	s.latency = append(s.latency, took)
}

func main() {
	var (
		addr      = flag.String("addr", "http://localhost:8080", "service base URL")
		token     = flag.String("jwt", os.Getenv("ETHTRADER_JWT"), "bearer token for /api/v1")
		rps       = flag.Int("rps", 50, "requests per second target")
		duration  = flag.Duration("duration", 30*time.Second, "how long to run")
		tokens    = flag.String("tokens", "USDC,WETH,WBTC,UNI", "comma-separated token symbols")
		swapRatio = flag.Float64("swap-ratio", 0.2, "share of swap simulations among requests")
		inflight  = flag.Int("inflight", 64, "max concurrent requests")
	)
	flag.Parse()

	tokenSymbols := splitTrim(*tokens)
	if len(tokenSymbols) < 2 {
		fmt.Println("at least two tokens are required")
		os.Exit(1)
	}

	cli := cleanhttp.DefaultPooledClient()
	cli.Timeout = 30 * time.Second

	fmt.Printf("loadgen → addr=%s rps=%d duration=%s swap_ratio=%.2f\n", *addr, *rps, duration.String(), *swapRatio)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := &stats{byStatus: make(map[int]int64)}
	sem := make(chan struct{}, *inflight)
	var wg sync.WaitGroup

	start := time.Now()
	end := start.Add(*duration)

	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0 // 10 ticks in sec
	accum := 0.0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				select {
				case sem <- struct{}{}:
				default:
					// client saturated, count as dropped
					st.failed.Add(1)
					continue
				}

				req, err := randomRequest(ctx, *addr, tokenSymbols, *swapRatio)
				if err != nil {
					<-sem
					st.failed.Add(1)
					continue
				}
				if *token != "" {
					req.Header.Set("Authorization", "Bearer "+*token)
				}

				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					send(cli, req, st)
				}()
			}
		}
	}

	fmt.Println("waiting for in-flight requests…")
	wg.Wait()
	report(st, time.Since(start))
}

func send(cli *http.Client, req *http.Request, st *stats) {
	st.sent.Add(1)
	began := time.Now()

	resp, err := cli.Do(req)
	if err != nil {
		st.failed.Add(1)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	st.observe(resp.StatusCode, time.Since(began))
}

func randomRequest(ctx context.Context, base string, tokens []string, swapRatio float64) (*http.Request, error) {
	if mrand.Float64() >= swapRatio {
		q := url.Values{}
		q.Set("token", tokens[mrand.Intn(len(tokens))])
		if mrand.Intn(2) == 0 {
			q.Set("quote", "ETH")
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/price?"+q.Encode(), nil)
	}

	from := mrand.Intn(len(tokens))
	to := (from + 1 + mrand.Intn(len(tokens)-1)) % len(tokens)
	body, err := json.Marshal(swapRequest{
		FromToken: tokens[from],
		ToToken:   tokens[to],
		Amount:    fmt.Sprintf("%.4f", 0.01+mrand.Float64()*10),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/swap/simulate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func report(st *stats, took time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	fmt.Printf("sent=%d failed=%d elapsed=%s\n", st.sent.Load(), st.failed.Load(), took.Round(time.Millisecond))

	codes := make([]int, 0, len(st.byStatus))
	for c := range st.byStatus {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		fmt.Printf("  status=%d count=%d\n", c, st.byStatus[c])
	}

	if len(st.latency) == 0 {
		return
	}
	sort.Slice(st.latency, func(i, j int) bool { return st.latency[i] < st.latency[j] })
	fmt.Printf("  p50=%s p95=%s p99=%s\n", pct(st.latency, 0.50), pct(st.latency, 0.95), pct(st.latency, 0.99))
}

func pct(sorted []time.Duration, p float64) time.Duration {
	i := int(math.Ceil(p*float64(len(sorted)))) - 1
	if i < 0 {
		i = 0
	}
	return sorted[i].Round(time.Millisecond)
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
