package learn

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
)

// Registry maps component names to factories. It is an explicit value
// passed to whoever needs it; there is no package-level registry.
type Registry struct {
	mu           sync.RWMutex
	predictors   map[string]PredictorFactory
	recommenders map[string]RecommenderFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		predictors:   make(map[string]PredictorFactory),
		recommenders: make(map[string]RecommenderFactory),
	}
}

// RegisterPredictor adds a predictor factory. Names are unique.
func (r *Registry) RegisterPredictor(name string, f PredictorFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || f == nil {
		return fmt.Errorf("register predictor: empty name or nil factory")
	}
	if _, ok := r.predictors[name]; ok {
		return fmt.Errorf("register predictor: %q already registered", name)
	}
	r.predictors[name] = f
	return nil
}

// RegisterRecommender adds a recommender factory. Names are unique.
func (r *Registry) RegisterRecommender(name string, f RecommenderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || f == nil {
		return fmt.Errorf("register recommender: empty name or nil factory")
	}
	if _, ok := r.recommenders[name]; ok {
		return fmt.Errorf("register recommender: %q already registered", name)
	}
	r.recommenders[name] = f
	return nil
}

// PredictorNames returns the registered predictor names, sorted.
func (r *Registry) PredictorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.predictors)
}

// RecommenderNames returns the registered recommender names, sorted.
func (r *Registry) RecommenderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.recommenders)
}

// ValidatePredictor fails with acton.ErrConfiguration for unknown names.
func (r *Registry) ValidatePredictor(name string) error {
	r.mu.RLock()
	_, ok := r.predictors[name]
	r.mu.RUnlock()
	if !ok {
		return acton.Configurationf("unknown predictor %q (known: %s)", name, strings.Join(r.PredictorNames(), ", "))
	}
	return nil
}

// ValidateRecommender fails with acton.ErrConfiguration for unknown names.
func (r *Registry) ValidateRecommender(name string) error {
	r.mu.RLock()
	_, ok := r.recommenders[name]
	r.mu.RUnlock()
	if !ok {
		return acton.Configurationf("unknown recommender %q (known: %s)", name, strings.Join(r.RecommenderNames(), ", "))
	}
	return nil
}

// NewPredictor builds the named predictor bound to db.
func (r *Registry) NewPredictor(name string, db database.Database, opts Options) (Predictor, error) {
	if err := r.ValidatePredictor(name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f := r.predictors[name]
	r.mu.RUnlock()
	return f(db, opts)
}

// NewRecommender builds the named recommender bound to db.
func (r *Registry) NewRecommender(name string, db database.Database, opts Options) (Recommender, error) {
	if err := r.ValidateRecommender(name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f := r.recommenders[name]
	r.mu.RUnlock()
	return f(db, opts)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
