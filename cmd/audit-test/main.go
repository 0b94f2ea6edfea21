// Manual test harness for the security audit publisher. Exercises the
// buffered pipeline against an in-memory store: normal emission, buffer
// overflow under flood, and drain-on-close. Run it and watch the metrics at
// http://localhost:9090/metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audit "bulwark/pkg/platform/audit"
	"bulwark/pkg/platform/audit/publishers/security"
	auditmemory "bulwark/pkg/platform/audit/store/memory"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := auditmemory.New()
	publisher := security.New(
		store,
		security.WithBufferSize(10), // small buffer to make overflow observable
		security.WithMetrics(security.NewMetrics()),
		security.WithLogger(logger),
	)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		fmt.Println("Metrics available at http://localhost:9090/metrics")
		if err := http.ListenAndServe(":9090", nil); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	ctx := context.Background()

	fmt.Println("\n=== Audit Publisher Test ===")

	fmt.Println("1. Emitting 5 abuse events (should all persist)...")
	for i := 0; i < 5; i++ {
		publisher.Emit(ctx, audit.Event{
			Event:      audit.EventRateLimitExceeded,
			Identifier: fmt.Sprintf("user%d@example.com", i+1),
			IPAddress:  "203.0.113.7",
			RequestID:  uuid.NewString(),
			Details:    map[string]any{"action": "login", "layer": "ip"},
		})
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	fmt.Println("\n2. Flooding buffer with 200 events (buffer size is 10)...")
	for i := 0; i < 200; i++ {
		publisher.Emit(ctx, audit.Event{
			Event:      audit.EventBackoffApplied,
			Identifier: "flood@example.com",
			IPAddress:  "203.0.113.8",
			RequestID:  uuid.NewString(),
			Details:    map[string]any{"action": "api", "violations": i + 1},
		})
	}
	stats := publisher.Stats()
	fmt.Printf("   Emitted 200 events, %d dropped due to full buffer\n", stats.Dropped)

	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n3. Checking store contents...")
	events, err := store.ListRecent(ctx, 1000)
	if err != nil {
		logger.Error("list recent failed", "error", err)
	}
	fmt.Printf("   Total events in store: %d\n", len(events))

	stats = publisher.Stats()
	fmt.Println("\n=== Buffer Stats ===")
	fmt.Printf("   queued=%d flushed=%d dropped=%d retries=%d\n",
		stats.Queued, stats.Flushed, stats.Dropped, stats.Retries)
	fmt.Println("\nView full metrics at: http://localhost:9090/metrics")
	fmt.Println("Filter with: curl -s http://localhost:9090/metrics | grep bulwark_audit")
	fmt.Println("\nPress Ctrl+C to exit...")

	select {}
}
