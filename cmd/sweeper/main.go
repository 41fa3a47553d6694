// Package main implements the expiry sweeper. It periodically pulls the
// expiring-soon report from the compliance API and publishes one alert per
// document to NATS, where downstream notifiers pick them up.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/clearhaul/fleetcomply/engine/reconcile"
	"github.com/clearhaul/fleetcomply/pkg/fn"
	"github.com/clearhaul/fleetcomply/pkg/metrics"
	"github.com/clearhaul/fleetcomply/pkg/natsutil"
)

// AlertSubject receives one message per expiring document.
const AlertSubject = "compliance.alerts.expiry"

type Config struct {
	APIURL      string
	NATSURL     string
	Interval    time.Duration
	WindowDays  int
	AlertRate   float64
	MetricsPort int
}

func loadConfig() Config {
	return Config{
		APIURL:      envOr("API_URL", "http://localhost:8080"),
		NATSURL:     envOr("NATS_URL", nats.DefaultURL),
		Interval:    envDurationOr("SWEEP_INTERVAL", time.Hour),
		WindowDays:  envIntOr("SWEEP_WINDOW_DAYS", 30),
		AlertRate:   envFloatOr("ALERT_RATE", 5),
		MetricsPort: envIntOr("METRICS_PORT", 9091),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// ExpiryAlert is the wire format published on AlertSubject.
type ExpiryAlert struct {
	VIN            string `json:"vin"`
	DocumentID     string `json:"document_id"`
	Category       string `json:"category"`
	ExpirationDate string `json:"expiration_date"`
	DaysUntil      int    `json:"days_until"`
	Urgency        string `json:"urgency"`
	SweptAt        string `json:"swept_at"`
}

type sweeper struct {
	cfg      Config
	nc       *nats.Conn
	http     *http.Client
	limiter  *rate.Limiter
	registry *metrics.Registry
	log      *slog.Logger

	// alerted remembers documentID -> urgency so an unchanged document is
	// not re-alerted every sweep; an escalation publishes again.
	alerted map[string]string
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	if err := run(cfg, logger); err != nil {
		logger.Error("sweeper exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	registry := metrics.New()
	registry.ServeAsync(cfg.MetricsPort)

	s := &sweeper{
		cfg:      cfg,
		nc:       nc,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(cfg.AlertRate), 1),
		registry: registry,
		log:      logger,
		alerted:  make(map[string]string),
	}

	logger.Info("sweeper started",
		"api", cfg.APIURL,
		"interval", cfg.Interval,
		"window_days", cfg.WindowDays,
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper shutting down")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	docs, err := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[[]reconcile.ExpiringDocument] {
		return fn.FromPair(s.fetchExpiring(ctx))
	}).Unwrap()
	if err != nil {
		s.registry.Counter("sweep_failures_total", "Failed sweep runs.").Inc()
		s.log.Error("sweep failed", "error", err)
		return
	}

	published := 0
	for _, d := range docs {
		urgency := string(d.Urgency)
		if s.alerted[d.DocumentID] == urgency {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		alert := ExpiryAlert{
			VIN:            d.VIN,
			DocumentID:     d.DocumentID,
			Category:       string(d.Category),
			ExpirationDate: d.ExpirationDate,
			DaysUntil:      d.DaysUntil,
			Urgency:        urgency,
			SweptAt:        time.Now().UTC().Format(time.RFC3339),
		}
		if err := natsutil.Publish(ctx, s.nc, AlertSubject, alert); err != nil {
			s.registry.Counter("alert_publish_failures_total", "Alerts that could not be published.").Inc()
			s.log.Error("alert publish failed", "document_id", d.DocumentID, "error", err)
			continue
		}
		s.alerted[d.DocumentID] = urgency
		published++
		s.registry.Counter(metrics.WithLabels("alerts_published_total", "urgency", urgency), "Expiry alerts published.").Inc()
	}

	s.log.Info("sweep complete", "expiring", len(docs), "alerts_published", published)
}

func (s *sweeper) fetchExpiring(ctx context.Context) ([]reconcile.ExpiringDocument, error) {
	url := fmt.Sprintf("%s/api/expiring?days=%d", s.cfg.APIURL, s.cfg.WindowDays)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch expiring: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch expiring: unexpected status %d", resp.StatusCode)
	}

	var docs []reconcile.ExpiringDocument
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode expiring report: %w", err)
	}
	return docs, nil
}
