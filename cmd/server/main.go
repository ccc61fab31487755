/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the studio booking engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Seed the achievement catalog on first boot
  4. Connect the calendar-sync publisher (optional)
  5. Wire services and the API handler
  6. Start the attendance sweeper and the HTTP server

CONFIGURATION:
  Flags take their defaults from the environment, so either works:
  -port / PORT            HTTP server port (default: 8080)
  -db / DB_PATH           SQLite database path (default: studio.db,
                          ":memory:" for in-memory)
  -jwt-secret / JWT_SECRET  HMAC secret for access tokens (required)
  -amqp / AMQP_URL        RabbitMQ URL for calendar-sync events
                          (empty disables publishing)
  -origins / CORS_ORIGINS comma-separated allowed CORS origins

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the attendance sweeper
  4. Close the publisher and database
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Attendance sweeper
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reelrep/studio-engine/achievements"
	"github.com/reelrep/studio-engine/api"
	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/notify"
	"github.com/reelrep/studio-engine/shop"
	"github.com/reelrep/studio-engine/store/sqlite"
)

func main() {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	// Flags, with environment fallbacks
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "studio.db"), "SQLite database path")
	jwtSecret := flag.String("jwt-secret", envStr("JWT_SECRET", ""), "HMAC secret for access tokens")
	amqpURL := flag.String("amqp", envStr("AMQP_URL", ""), "RabbitMQ URL for calendar-sync events (empty disables)")
	origins := flag.String("origins", envStr("CORS_ORIGINS", "*"), "comma-separated allowed CORS origins")
	flag.Parse()

	if *jwtSecret == "" {
		log.Fatal("JWT secret is required (set JWT_SECRET or -jwt-secret)")
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if err := seedAchievements(context.Background(), store); err != nil {
		log.Printf("Warning: failed to seed achievement catalog: %v", err)
	}

	// Calendar-sync publisher (best-effort; events are dropped without a broker)
	var publisher notify.Publisher = notify.NopPublisher{}
	if *amqpURL != "" {
		p, err := notify.DialAMQP(*amqpURL)
		if err != nil {
			log.Printf("Warning: calendar-sync broker unreachable, events disabled: %v", err)
		} else {
			publisher = p
			log.Println("Calendar-sync events enabled")
		}
	}
	defer publisher.Close()

	// Wire services
	ledger := booking.NewLedger(store)
	bookings := &booking.Service{
		Ledger:    ledger,
		Standings: store,
		Publisher: publisher,
	}
	tracker := &achievements.Tracker{
		Store:      store,
		Attendance: ledgerAttendance{ledger: ledger},
	}
	shopSvc := &shop.Service{
		Catalog:   shop.DefaultCatalog(),
		Purchases: store,
		Standings: store,
	}

	handler := &api.Handler{
		Templates: store,
		Bookings:  bookings,
		Tracker:   tracker,
		Shop:      shopSvc,
	}

	// Attendance sweeper: confirmed -> completed after class end
	sweeper := api.NewAttendanceScheduler(bookings)
	sweeper.Start()
	defer sweeper.Stop()

	router := api.NewRouter(handler, *jwtSecret, strings.Split(*origins, ","))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📅 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seedAchievements fills an empty catalog with the default definitions.
// Existing catalogs are left alone so staff edits survive restarts.
func seedAchievements(ctx context.Context, store achievements.Store) error {
	existing, err := store.ListDefinitions(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, def := range achievements.DefaultDefinitions(time.Now()) {
		if err := store.SaveDefinition(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// ledgerAttendance adapts the booking ledger to the achievement tracker's
// attendance source: completed bookings are attended classes.
type ledgerAttendance struct {
	ledger *booking.Ledger
}

func (a ledgerAttendance) CompletedClassCount(ctx context.Context, userID string) (int, error) {
	return a.ledger.HistoricalCountByStatus(ctx, userID, booking.StatusCompleted)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
