package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/coinledger/internal/auth"
	"github.com/punchamoorthee/coinledger/internal/config"
	"github.com/punchamoorthee/coinledger/internal/logging"
	"github.com/punchamoorthee/coinledger/internal/models"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	customers   int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Applied or reverted
	fail409       uint64 // Already redeemed or concurrent update
	fail422       uint64 // Business rejections
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&customers, "customers", 1000, "Benchmark customers seeded with -bulk")
}

func main() {
	flag.Parse()
	logger := logging.NewLogger("coinledger-benchmark")
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required to sign benchmark tokens")
	}

	tokens := make([]string, customers)
	for i := range tokens {
		tok, err := auth.GenerateToken(fmt.Sprintf("cus_bench_%04d", i+1), "", 2*duration+time.Minute, []byte(cfg.JWTSecret))
		if err != nil {
			logger.WithError(err).Fatal("sign token")
		}
		tokens[i] = tok
	}

	logger.WithFields(logging.Fields{
		"workload": workload,
		"workers":  concurrency,
		"duration": duration.String(),
	}).Info("starting benchmark")

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, tokens)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// worker alternates redeem and revert on randomly chosen carts, so contention
// lands on the cart and balance row locks.
func worker(wg *sync.WaitGroup, start time.Time, tokens []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		n := pickCustomer()
		cartID := fmt.Sprintf("cart_bench_%04d", n+1)

		method := http.MethodPost
		var payload interface{} = models.RedeemRequest{CartID: cartID, VariantIDs: &[]string{}}
		if rand.Float32() < 0.5 {
			method = http.MethodDelete
			payload = models.RemoveRedemptionRequest{CartID: cartID}
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest(method, targetURL+"/store/customers/me/points/redeem", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tokens[n])
		if method == http.MethodPost {
			req.Header.Set("Idempotency-Key", uuid.NewString())
		}

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickCustomer() int {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		// Hotspot: 90% of traffic goes to the first two customers
		return rand.Intn(2)
	}
	return rand.Intn(customers)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	conflictRate := 0.0
	if total > 0 {
		conflictRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"success":           s200,
		"conflicts":         f409,
		"conflict_rate_pct": conflictRate,
		"rejected":          f422,
		"errors":            fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
