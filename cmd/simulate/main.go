package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Windows       int
	Contenders    int
	ReadWorkers   int
	WindowLength  time.Duration
	ProviderLimit int
	PatientLimit  int
	PostgresDSN   string
	PostgresPool  db.PoolOptions
	SigningKey    string
	Issuer        string
}

// DataPool holds the ids the simulator books against.
type DataPool struct {
	Providers  []uuid.UUID
	Patients   []uuid.UUID
	Facilities []uuid.UUID
	Actor      uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Simulator struct {
	config SimConfig
	pool   *DataPool
	client *http.Client
	token  string
	log    zerolog.Logger

	booking OperationMetrics
	reads   OperationMetrics

	// winners counts successful bookings per contested window; anything above
	// one means the conflict check let a double booking through.
	mu      sync.Mutex
	winners map[int]int
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel).With().Str("service", "simulate").Logger()

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Windows:       getInt("SIM_WINDOWS", 50),
		Contenders:    getInt("SIM_CONTENDERS", 8),
		ReadWorkers:   getInt("SIM_READ_WORKERS", 4),
		WindowLength:  getDuration("SIM_WINDOW_LENGTH", 30*time.Minute),
		ProviderLimit: getInt("SIM_PROVIDER_LIMIT", 20),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:   baseCfg.PostgresDSN,
		PostgresPool:  baseCfg.PostgresPool,
		SigningKey:    baseCfg.JWTSigningKey,
		Issuer:        baseCfg.JWTIssuer,
	}
	if cfg.Windows <= 0 || cfg.Contenders <= 0 {
		logger.Fatal().Msg("SIM_WINDOWS and SIM_CONTENDERS must be > 0")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("providers", len(dataPool.Providers)).
		Int("patients", len(dataPool.Patients)).
		Int("facilities", len(dataPool.Facilities)).
		Msg("data pool loaded")

	token, err := issueToken(cfg, dataPool.Actor)
	if err != nil {
		logger.Fatal().Err(err).Msg("issue token")
	}

	sim := &Simulator{
		config:  cfg,
		pool:    dataPool,
		client:  &http.Client{Timeout: 10 * time.Second},
		token:   token,
		log:     logger,
		winners: make(map[int]int),
	}
	sim.Run(context.Background())
	sim.PrintReport()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	load := func(query string, limit int, dst *[]uuid.UUID) error {
		rows, err := pool.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			*dst = append(*dst, id)
		}
		return rows.Err()
	}

	if err := load(`
		SELECT id FROM users
		WHERE is_active AND role = 'provider'
		  AND user_type IN ('doctor', 'nurse', 'midwife', 'community_worker')
		LIMIT $1
	`, cfg.ProviderLimit, &dp.Providers); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if err := load(`SELECT id FROM patients WHERE is_active LIMIT $1`, cfg.PatientLimit, &dp.Patients); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if err := load(`SELECT id FROM health_facilities LIMIT $1`, cfg.Windows, &dp.Facilities); err != nil {
		return nil, fmt.Errorf("load facilities: %w", err)
	}

	if len(dp.Providers) == 0 || len(dp.Patients) < 2 || len(dp.Facilities) == 0 {
		return nil, fmt.Errorf("not enough seed data; run cmd/seed first")
	}
	dp.Actor = dp.Providers[0]
	return dp, nil
}

func issueToken(cfg SimConfig, subject uuid.UUID) (string, error) {
	now := time.Now()
	authn := access.NewJWTAuthenticator(cfg.SigningKey, cfg.Issuer)
	return authn.IssueToken(access.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: access.RoleProvider,
	})
}

// Run fires Contenders concurrent bookings at each window. Every contender
// uses the same provider with a different patient and a slightly shifted start,
// so exactly one booking per window should win.
func (s *Simulator) Run(ctx context.Context) {
	readCtx, stopReads := context.WithCancel(ctx)
	var readers sync.WaitGroup
	for i := 0; i < s.config.ReadWorkers; i++ {
		readers.Add(1)
		go func(id int) {
			defer readers.Done()
			s.reader(readCtx, id)
		}(i)
	}

	base := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for w := 0; w < s.config.Windows; w++ {
		provider := s.pool.Providers[w%len(s.pool.Providers)]
		start := base.Add(time.Duration(w) * 2 * s.config.WindowLength)

		var wg sync.WaitGroup
		for c := 0; c < s.config.Contenders; c++ {
			patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
			facility := s.pool.Facilities[rng.Intn(len(s.pool.Facilities))]
			shift := time.Duration(c) * time.Minute

			wg.Add(1)
			go func(window int) {
				defer wg.Done()
				s.book(ctx, window, provider, patient, facility, start.Add(shift))
			}(w)
		}
		wg.Wait()
	}

	stopReads()
	readers.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) book(ctx context.Context, window int, provider, patient, facility uuid.UUID, start time.Time) {
	body, _ := json.Marshal(map[string]any{
		"provider":         provider,
		"patient":          patient,
		"facility":         facility,
		"appointment_type": "consultation",
		"start_time":       start,
		"end_time":         start.Add(s.config.WindowLength),
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/api/v1/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	began := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(began)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			s.mu.Lock()
			s.winners[window]++
			s.mu.Unlock()
		case http.StatusBadRequest:
			var e struct {
				Code string `json:"code"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&e)
			conflict = e.Code == "appointment_conflict"
		}
	}

	s.booking.Record(latency, success, conflict)
}

func (s *Simulator) reader(ctx context.Context, id int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		provider := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
		url := fmt.Sprintf("%s/api/v1/appointments/by-provider/%s?limit=20", s.config.APIBaseURL, provider)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		req.Header.Set("Authorization", "Bearer "+s.token)

		began := time.Now()
		resp, err := s.client.Do(req)
		latency := time.Since(began)

		success := false
		if err == nil {
			success = resp.StatusCode == http.StatusOK
			resp.Body.Close()
		} else if ctx.Err() != nil {
			return
		}
		s.reads.Record(latency, success, false)
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Windows: %d  Contenders per window: %d\n\n", s.config.Windows, s.config.Contenders)

	printOperationReport("Booking", &s.booking)
	printOperationReport("List by provider", &s.reads)

	doubleBooked := 0
	for _, n := range s.winners {
		if n > 1 {
			doubleBooked++
		}
	}
	fmt.Printf("Windows won: %d/%d\n", len(s.winners), s.config.Windows)
	if doubleBooked > 0 {
		fmt.Printf("DOUBLE BOOKED WINDOWS: %d\n", doubleBooked)
		os.Exit(1)
	}
	fmt.Println("No double bookings detected")
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
