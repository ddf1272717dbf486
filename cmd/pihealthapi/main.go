package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pihealth/pihealth/database"
	"github.com/pihealth/pihealth/database/sqlite"
	"github.com/pihealth/pihealth/series"
	"github.com/pihealth/pihealth/sharedconfig"
	"golang.org/x/sync/errgroup"
)

// Metrics holds application metrics
type Metrics struct {
	RequestsTotal   atomic.Uint64
	RequestsSuccess atomic.Uint64
	RequestsError   atomic.Uint64
	RequestDuration atomic.Int64 // nanoseconds, for calculating average
	StartTime       time.Time
}

type APIServer struct {
	db      database.Database
	server  *http.Server
	metrics *Metrics
	logger  *slog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	DBVersion int    `json:"db_version"`
}

// Snapshot is the wire form of one stored snapshot. Optional readings are
// pointers so absence serializes as null instead of zero.
type Snapshot struct {
	ID            uint64       `json:"id"`
	Timestamp     string       `json:"timestamp"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryPercent float64      `json:"memory_percent"`
	DiskPercent   float64      `json:"disk_percent"`
	Temperature   *float64     `json:"temperature"`
	CPUFrequency  *float64     `json:"cpu_frequency"`
	Uptime        float64      `json:"uptime"`
	Voltage       *float64     `json:"voltage"`
	Network       []NetworkRow `json:"network"`
}

type NetworkRow struct {
	Interface   string `json:"interface"`
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	ErrIn       uint64 `json:"errin"`
	ErrOut      uint64 `json:"errout"`
	DropIn      uint64 `json:"dropin"`
	DropOut     uint64 `json:"dropout"`
}

type SnapshotsResponse struct {
	Snapshots []Snapshot `json:"snapshots"`
}

type SeriesResponse struct {
	Metrics    *series.Metrics              `json:"metrics"`
	Interfaces map[string]*series.Interface `json:"interfaces"`
}

func nullToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func toSnapshot(row database.SnapshotRow) Snapshot {
	s := Snapshot{
		ID:            row.ID,
		Timestamp:     row.Timestamp,
		CPUPercent:    row.CPUPercent,
		MemoryPercent: row.MemoryPercent,
		DiskPercent:   row.DiskPercent,
		Temperature:   nullToPtr(row.Temperature),
		CPUFrequency:  nullToPtr(row.CPUFrequency),
		Uptime:        row.Uptime,
		Voltage:       nullToPtr(row.Voltage),
		Network:       []NetworkRow{},
	}
	for _, ns := range row.Network {
		s.Network = append(s.Network, NetworkRow{
			Interface:   ns.Interface,
			BytesSent:   ns.BytesSent,
			BytesRecv:   ns.BytesRecv,
			PacketsSent: ns.PacketsSent,
			PacketsRecv: ns.PacketsRecv,
			ErrIn:       ns.ErrIn,
			ErrOut:      ns.ErrOut,
			DropIn:      ns.DropIn,
			DropOut:     ns.DropOut,
		})
	}
	return s
}

// loggingMiddleware logs requests and tracks metrics
func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		// Update metrics
		api.metrics.RequestsTotal.Add(1)
		api.metrics.RequestDuration.Add(duration.Nanoseconds())
		if wrapped.statusCode >= 400 {
			api.metrics.RequestsError.Add(1)
		} else {
			api.metrics.RequestsSuccess.Add(1)
		}

		api.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", duration),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func (api *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		DBVersion: database.Version,
	})
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %v: %q", name, s)
	}
	return v, nil
}

func (api *APIServer) recentHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	rows, err := api.db.Recent(limit)
	if err != nil {
		api.logger.Error("failed to get recent snapshots", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get snapshots: %v", err))
		return
	}

	resp := SnapshotsResponse{Snapshots: []Snapshot{}}
	for _, row := range rows {
		resp.Snapshots = append(resp.Snapshots, toSnapshot(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (api *APIServer) timespanHandler(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 24)
	if err != nil || hours < 0 {
		writeError(w, http.StatusBadRequest, "invalid hours")
		return
	}

	rows, err := api.db.ByTimespan(hours)
	if err != nil {
		api.logger.Error("failed to get snapshots", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get snapshots: %v", err))
		return
	}

	resp := SnapshotsResponse{Snapshots: []Snapshot{}}
	for _, row := range rows {
		resp.Snapshots = append(resp.Snapshots, toSnapshot(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

// seriesHandler returns the reshaped column-oriented series an external
// renderer consumes directly.
func (api *APIServer) seriesHandler(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 24)
	if err != nil || hours < 0 {
		writeError(w, http.StatusBadRequest, "invalid hours")
		return
	}

	rows, err := api.db.ByTimespan(hours)
	if err != nil {
		api.logger.Error("failed to get snapshots", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get snapshots: %v", err))
		return
	}
	metrics, network, err := series.Reshape(rows)
	if err != nil {
		api.logger.Error("failed to reshape snapshots", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to reshape snapshots: %v", err))
		return
	}
	if iface := r.URL.Query().Get("interface"); iface != "" {
		network = series.FilterInterface(network, iface)
	}

	writeJSON(w, http.StatusOK, SeriesResponse{
		Metrics:    metrics,
		Interfaces: network,
	})
}

func (api *APIServer) exportCSV(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 24)
	if err != nil || hours < 0 {
		writeError(w, http.StatusBadRequest, "invalid hours")
		return
	}

	rows, err := api.db.ByTimespan(hours)
	if err != nil {
		api.logger.Error("failed to export snapshots", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get snapshots: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=health_%dh.csv", hours))

	formatNull := func(n sql.NullFloat64) string {
		if !n.Valid {
			return ""
		}
		return strconv.FormatFloat(n.Float64, 'f', 2, 64)
	}

	csvWriter := csv.NewWriter(w)
	csvWriter.Write([]string{"id", "timestamp", "cpu_percent", "memory_percent", "disk_percent", "temperature", "cpu_frequency", "uptime", "voltage"})
	for _, row := range rows {
		csvWriter.Write([]string{
			strconv.FormatUint(row.ID, 10),
			row.Timestamp,
			strconv.FormatFloat(row.CPUPercent, 'f', 2, 64),
			strconv.FormatFloat(row.MemoryPercent, 'f', 2, 64),
			strconv.FormatFloat(row.DiskPercent, 'f', 2, 64),
			formatNull(row.Temperature),
			formatNull(row.CPUFrequency),
			strconv.FormatFloat(row.Uptime, 'f', 0, 64),
			formatNull(row.Voltage),
		})
	}
	csvWriter.Flush()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func main() {
	listenAddr := getEnv("PIHEALTHAPI_LISTEN", ":8080")
	dbPath := getEnv("PIHEALTHAPI_DB", sharedconfig.DefaultDBPath)
	logFormat := getEnv("PIHEALTHAPI_LOG_FORMAT", "json") // json or text

	// Setup structured logger
	var logHandler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if logFormat == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(logHandler)

	db, err := sqlite.New(database.Config{Path: dbPath})
	if err != nil {
		logger.Error("failed to create database connection", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := db.Open(); err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	api := &APIServer{
		db:     db,
		logger: logger,
		metrics: &Metrics{
			StartTime: time.Now(),
		},
	}

	mux := http.NewServeMux()

	// Health endpoint (no logging middleware)
	mux.HandleFunc("GET /health", api.healthHandler)

	// Data endpoints
	logged := http.NewServeMux()
	logged.HandleFunc("GET /api/v1/metrics/recent", api.recentHandler)
	logged.HandleFunc("GET /api/v1/metrics/timespan", api.timespanHandler)
	logged.HandleFunc("GET /api/v1/series", api.seriesHandler)
	logged.HandleFunc("GET /api/v1/metrics/export", api.exportCSV)
	mux.Handle("/api/v1/", api.loggingMiddleware(logged))

	api.server = &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", listenAddr),
			slog.String("db", dbPath))
		if err := api.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		return api.server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shut down")
}
