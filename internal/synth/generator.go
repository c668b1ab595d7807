// Package synth produces synthetic network-event batches for demos and
// tests: baseline traffic with a configurable number of injected
// high-volume rows standing in for attacks.
package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/kratosops/warroom/internal/models"
)

var (
	sourcePool = []string{"10.0.0.1", "192.168.1.5", "203.0.113.9", "198.51.100.77", "8.8.8.8", "1.1.1.1"}
	destPool   = []string{"10.0.0.100", "10.0.0.200", "172.16.0.5", "10.1.1.1"}
)

// Options controls batch generation.
type Options struct {
	Rows     int
	Injected int
	Seed     int64
	Start    time.Time
}

func (o *Options) normalise() {
	if o.Rows <= 0 {
		o.Rows = 500
	}
	if o.Injected < 0 {
		o.Injected = 0
	}
	if o.Injected > o.Rows {
		o.Injected = o.Rows
	}
	if o.Start.IsZero() {
		o.Start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

// Batch generates minute-spaced raw records: bytes_sent in [50,2000),
// failed_logins ~ Poisson(1), with Injected rows boosted to bytes_sent in
// [5000,10000) and failed_logins in [10,50). Deterministic for a fixed seed.
func Batch(opts Options) []models.RawRecord {
	opts.normalise()
	rng := rand.New(rand.NewSource(opts.Seed))

	records := make([]models.RawRecord, 0, opts.Rows)
	for i := 0; i < opts.Rows; i++ {
		records = append(records, models.RawRecord{
			"timestamp":     opts.Start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"source_id":     sourcePool[rng.Intn(len(sourcePool))],
			"dest_id":       destPool[rng.Intn(len(destPool))],
			"bytes_sent":    50 + rng.Intn(1950),
			"failed_logins": poisson(rng, 1),
		})
	}

	for _, idx := range rng.Perm(opts.Rows)[:opts.Injected] {
		records[idx]["bytes_sent"] = 5000 + rng.Intn(5000)
		records[idx]["failed_logins"] = 10 + rng.Intn(40)
	}
	return records
}

// InjectedRow reports whether a record looks like one of the boosted rows.
// Useful for asserting that injected attacks surface as alerts.
func InjectedRow(rec models.RawRecord) bool {
	bytes, _ := rec["bytes_sent"].(int)
	logins, _ := rec["failed_logins"].(int)
	return bytes >= 5000 && logins >= 10
}

func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p < limit {
			return k
		}
		k++
	}
}
