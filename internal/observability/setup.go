package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Audit is the structured audit stream for moderation decisions: bans,
	// unbans, mutes and reconciliation reports.
	Audit *zap.Logger

	kicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardbot_kicks_total",
			Help: "Total number of kicks performed",
		},
		[]string{"reason"},
	)

	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardbot_keyword_violations_total",
			Help: "Total number of keyword violations by escalation outcome",
		},
		[]string{"action"},
	)

	rewardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardbot_rewards_total",
			Help: "Total number of reward credit attempts by outcome",
		},
		[]string{"outcome"},
	)

	scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardbot_scan_duration_seconds",
			Help:    "Time spent on reconciliation sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	Audit = zap.NewNop()
}

func Init(ctx context.Context, metricsAddr string) error {
	var err error
	Audit, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(kicksTotal, violationsTotal, rewardsTotal, scanDuration)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	go func() {
		<-ctx.Done()
		_ = tp.Shutdown(context.Background())
		_ = Audit.Sync()
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

func RecordKick(reason string) {
	kicksTotal.WithLabelValues(reason).Inc()
}

func RecordViolation(action string) {
	violationsTotal.WithLabelValues(action).Inc()
}

func RecordReward(outcome string) {
	rewardsTotal.WithLabelValues(outcome).Inc()
}

func ObserveScanDuration(seconds float64) {
	scanDuration.Observe(seconds)
}
