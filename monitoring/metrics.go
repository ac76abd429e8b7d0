package monitoring

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment lifecycle transitions by outcome",
		},
		[]string{"outcome", "provider"},
	)

	bookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Booking lifecycle transitions by outcome",
		},
		[]string{"outcome"},
	)

	checkinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkins_total",
			Help: "Check-in attempts by result",
		},
		[]string{"result"},
	)

	eventCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_capacity_remaining",
			Help: "Remaining seat capacity per event",
		},
		[]string{"event_id"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of outbound gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"provider", "operation"},
	)
)

type Monitor struct {
	redis *redis.Client

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{
		redis:    redisClient,
		stopChan: make(chan struct{}),
	}

	monitor.wg.Add(1)
	go monitor.collectMetrics()

	return monitor
}

// Stop ends the capacity collector and waits for it to exit.
func (m *Monitor) Stop() {
	if m.stopChan == nil {
		return
	}
	close(m.stopChan)
	m.wg.Wait()
}

func (m *Monitor) collectMetrics() {
	defer m.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.collectCapacityMetrics(context.Background())
		}
	}
}

func (m *Monitor) collectCapacityMetrics(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, "capacity:event:*", 100).Result()
		if err != nil {
			log.Printf("scan capacity keys: %v\n", err)
			return
		}

		for _, key := range keys {
			eventID := key[len("capacity:event:"):]
			remaining, err := m.redis.Get(ctx, key).Int()
			if err != nil {
				continue
			}
			eventCapacity.WithLabelValues(eventID).Set(float64(remaining))
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (m *Monitor) TrackPayment(outcome, provider string) {
	paymentsTotal.WithLabelValues(outcome, provider).Inc()
}

func (m *Monitor) TrackBooking(outcome string) {
	bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *Monitor) TrackCheckin(result string) {
	checkinsTotal.WithLabelValues(result).Inc()
}

func (m *Monitor) TrackGatewayCall(provider, operation string, duration time.Duration) {
	gatewayDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// StartMetricsServer exposes /metrics and /healthz on a dedicated port,
// separate from the API surface.
func StartMetricsServer(port string) *http.Server {
	e := echo.New()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: e,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v\n", err)
		}
	}()

	return srv
}
