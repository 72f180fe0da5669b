// Package recommender provides the reference recommenders used to pick the
// next instances to label.
//
// RandomRecommender ignores predictions. The uncertainty family scores every
// pool instance from its predicted class distribution, averaged over tasks,
// and returns the n highest scoring ids. Equal scores prefer the earlier
// pool position, so the result is deterministic for a given input.
package recommender

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/internal/queue"
	"github.com/hupe1980/acton/learn"
)

// RandomRecommender draws ids uniformly without replacement.
type RandomRecommender struct {
	rng    *rand.Rand
	logger *acton.Logger
}

// NewRandom builds a RandomRecommender seeded from opts.Seed.
func NewRandom(_ database.Database, opts learn.Options) (*RandomRecommender, error) {
	return &RandomRecommender{
		rng:    learn.NewRand(opts.Seed),
		logger: opts.Log("random-recommender"),
	}, nil
}

// Recommend returns min(n, len(pool)) distinct ids of pool.
func (r *RandomRecommender) Recommend(ctx context.Context, pool []uint64, _ learn.Predictions, n int) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n = clamp(n, len(pool))
	perm := append([]uint64(nil), pool...)
	// Partial Fisher-Yates: only the first n slots are needed.
	for i := 0; i < n; i++ {
		j := i + r.rng.IntN(len(perm)-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	r.logger.DebugContext(ctx, "recommended", "pool", len(pool), "selected", n)
	return perm[:n:n], nil
}

// Scorer turns one class distribution into an informativeness score;
// higher is more informative.
type Scorer func(probs []float64) float64

// ScoreRecommender selects the ids with the highest mean Scorer value.
type ScoreRecommender struct {
	name   string
	score  Scorer
	logger *acton.Logger
}

// NewScoreRecommender builds a ScoreRecommender from an arbitrary scorer.
func NewScoreRecommender(name string, score Scorer, opts learn.Options) *ScoreRecommender {
	return &ScoreRecommender{name: name, score: score, logger: opts.Log(name)}
}

// NewUncertainty scores by least confidence: 1 - max p.
func NewUncertainty(_ database.Database, opts learn.Options) (*ScoreRecommender, error) {
	return NewScoreRecommender("uncertainty-recommender", LeastConfidence, opts), nil
}

// NewEntropy scores by the Shannon entropy of the distribution.
func NewEntropy(_ database.Database, opts learn.Options) (*ScoreRecommender, error) {
	return NewScoreRecommender("entropy-recommender", Entropy, opts), nil
}

// NewMargin scores by one minus the gap between the two most likely classes.
func NewMargin(_ database.Database, opts learn.Options) (*ScoreRecommender, error) {
	return NewScoreRecommender("margin-recommender", Margin, opts), nil
}

// Recommend returns the min(n, len(pool)) best scoring ids, best first.
func (r *ScoreRecommender) Recommend(ctx context.Context, pool []uint64, predictions learn.Predictions, n int) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n = clamp(n, len(pool))
	if n == 0 {
		return []uint64{}, nil
	}
	if err := predictions.Validate(len(pool)); err != nil {
		return nil, err
	}

	pq := queue.NewMin(n)
	for i := range pool {
		var s float64
		for _, task := range predictions {
			s += r.score(task[i])
		}
		pq.Offer(queue.Item{Index: i, Score: s / float64(len(predictions))}, n)
	}

	items := pq.Drain()
	out := make([]uint64, len(items))
	for i, it := range items {
		out[i] = pool[it.Index]
	}
	r.logger.DebugContext(ctx, "recommended", "pool", len(pool), "selected", len(out))
	return out, nil
}

// LeastConfidence is 1 - max p.
func LeastConfidence(probs []float64) float64 {
	top := 0.0
	for _, p := range probs {
		top = math.Max(top, p)
	}
	return 1 - top
}

// Entropy is -sum p log p, skipping zero probabilities.
func Entropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// Margin is 1 - (p1 - p2) for the two largest probabilities.
func Margin(probs []float64) float64 {
	var first, second float64
	for _, p := range probs {
		switch {
		case p > first:
			first, second = p, first
		case p > second:
			second = p
		}
	}
	return 1 - (first - second)
}

func clamp(n, size int) int {
	return max(0, min(n, size))
}
