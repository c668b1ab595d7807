package detect

import (
	"log/slog"
	"math/rand"
	"sort"

	"github.com/kratosops/warroom/internal/models"
)

const (
	// DefaultContamination is the expected outlier fraction when none is configured.
	DefaultContamination = 0.05
	// DefaultSeed reproduces the reference labelling.
	DefaultSeed = 42

	defaultTrees      = 100
	defaultSampleSize = 256
)

// Scorer fits an isolation forest per batch and labels each event inlier or
// outlier. Scoring is pure with respect to (batch, contamination, seed):
// re-running with identical inputs yields identical labels, while adding or
// removing rows may move any row's label because the model is fit per batch.
type Scorer struct {
	logger     *slog.Logger
	trees      int
	sampleSize int
}

// NewScorer constructs a Scorer with the reference ensemble parameters.
func NewScorer(logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		logger:     logger,
		trees:      defaultTrees,
		sampleSize: defaultSampleSize,
	}
}

// Score labels the batch. Batches with fewer than two rows cannot define an
// outlier boundary and come back all inlier; that is a state, not an error.
func (s *Scorer) Score(events []models.Event, contamination float64, seed int64) []models.ScoredEvent {
	scored := make([]models.ScoredEvent, len(events))
	for i, ev := range events {
		scored[i] = models.ScoredEvent{Event: ev}
	}
	if len(events) < 2 {
		s.logger.Debug("batch too small for scoring, labelling all inlier", slog.Int("rows", len(events)))
		return scored
	}

	if contamination <= 0 || contamination >= 1 {
		contamination = DefaultContamination
	}

	data := make([]point, len(events))
	for i, ev := range events {
		data[i] = point{float64(ev.BytesSent), float64(ev.FailedLogins)}
	}

	rng := rand.New(rand.NewSource(seed))
	forest := fitForest(rng, data, s.trees, s.sampleSize)

	scores := make([]float64, len(data))
	for i, p := range data {
		scores[i] = forest.score(p)
	}

	// The decision boundary is the empirical (1-contamination) quantile of
	// the batch's own scores. Rows strictly above it are outliers, so the
	// flagged count is approximately contamination*N rather than a fixed
	// top-k; ties at the boundary stay inliers.
	threshold := quantile(scores, 1-contamination)
	outliers := 0
	for i, sc := range scores {
		if sc > threshold {
			scored[i].IsOutlier = true
			outliers++
		}
	}

	s.logger.Debug("batch scored",
		slog.Int("rows", len(events)),
		slog.Int("outliers", outliers),
		slog.Float64("contamination", contamination),
		slog.Int64("seed", seed),
	)
	return scored
}

func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
