package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Serves ipinfo-style lookups for local development. Coordinates are
// deterministic per identifier so repeated runs map the same sources to the
// same points.

type lookupResponse struct {
	IP   string `json:"ip"`
	City string `json:"city"`
	Loc  string `json:"loc"`
}

var knownHosts = map[string]lookupResponse{
	"8.8.8.8":         {IP: "8.8.8.8", City: "Mountain View", Loc: "37.4056,-122.0775"},
	"1.1.1.1":         {IP: "1.1.1.1", City: "Sydney", Loc: "-33.8688,151.2093"},
	"203.0.113.9":     {IP: "203.0.113.9", City: "Amsterdam", Loc: "52.3676,4.9041"},
	"198.51.100.77":   {IP: "198.51.100.77", City: "Sao Paulo", Loc: "-23.5505,-46.6333"},
	"77.88.55.77":     {IP: "77.88.55.77", City: "Moscow", Loc: "55.7558,37.6173"},
	"185.199.110.153": {IP: "185.199.110.153", City: "Frankfurt", Loc: "50.1109,8.6821"},
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ip := strings.Trim(r.URL.Path, "/")
		if ip == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if resp, ok := knownHosts[ip]; ok {
			writeJSON(w, resp)
			return
		}
		// Anything else hashes to a stable point in the North Atlantic.
		lat := 30.0 + float64(fold(ip)%3000)/100.0
		lon := -60.0 + float64(fold(ip+"/lon")%3000)/100.0
		writeJSON(w, lookupResponse{
			IP:  ip,
			Loc: strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64),
		})
	})

	logger := log.New(log.Writer(), "geo-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8081",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8081")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func fold(s string) int {
	h := 0
	for _, r := range s {
		h = h*31 + int(r)
		if h < 0 {
			h = -h
		}
	}
	return h
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
