package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/active"
	"github.com/hupe1980/acton/blobstore"
	miniostore "github.com/hupe1980/acton/blobstore/minio"
	s3store "github.com/hupe1980/acton/blobstore/s3"
	"github.com/hupe1980/acton/config"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/learn/builtin"
	"github.com/hupe1980/acton/lock"
	"github.com/hupe1980/acton/store"
)

// loadConfig resolves the configuration for cmd and builds its logger.
// Log output follows cmd's error stream.
func loadConfig(cmd *cobra.Command) (*config.Config, *acton.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	switch v, _ := cmd.Flags().GetCount("verbose"); {
	case v == 1:
		cfg.Logging.Level = "debug"
	case v > 1:
		cfg.Logging.Level = "trace"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Logger(cmd.ErrOrStderr()), nil
}

// dataFlags address the dataset a command works on.
type dataFlags struct {
	path        string
	format      string
	labelCol    string
	featureCols []string
	table       string
	delimiter   string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "data", "d", "", "Dataset path or s3://, minio:// location (required)")
	cmd.Flags().StringVar(&f.format, "format", "", "Dataset kind: managed, delimited, columnar, frame (default: by extension)")
	cmd.Flags().StringVarP(&f.labelCol, "label-col", "l", "", "Label column of a tabular dataset")
	cmd.Flags().StringSliceVarP(&f.featureCols, "feature-cols", "f", nil, "Feature columns of a tabular dataset (default: all but the label)")
	cmd.Flags().StringVar(&f.table, "table", "", "Table of a frame dataset")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", `Field delimiter of a delimited dataset ("," "tab" ...)`)
	_ = cmd.MarkFlagRequired("data")
}

func (f *dataFlags) descriptor() (database.Descriptor, error) {
	kind := database.Detect(f.path)
	if f.format != "" {
		k, err := database.ParseKind(f.format)
		if err != nil {
			return database.Descriptor{}, err
		}
		kind = k
	}

	opts := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			opts[key] = value
		}
	}
	set(database.OptLabelCol, f.labelCol)
	set(database.OptFeatureCols, strings.Join(f.featureCols, ","))
	set(database.OptTable, f.table)
	set(database.OptDelimiter, f.delimiter)
	if len(opts) == 0 {
		opts = nil
	}
	return database.Descriptor{Kind: kind, Path: f.path, Options: opts}, nil
}

// simFlags override the simulation section of the configuration.
type simFlags struct {
	epochs              int
	initialCount        int
	recommendationCount int
	testSize            float64
	seed                int64
	predictor           string
	recommender         string
	params              map[string]string
}

func (f *simFlags) registerPredictor(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.predictor, "predictor", builtin.DefaultPredictor, "Predictor name")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Random seed")
	cmd.Flags().StringToStringVar(&f.params, "param", nil, "Component parameter key=value (repeatable)")
}

func (f *simFlags) registerRecommender(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.recommender, "recommender", builtin.DefaultRecommender, "Recommender name")
}

func (f *simFlags) registerRun(cmd *cobra.Command) {
	f.registerPredictor(cmd)
	f.registerRecommender(cmd)
	cmd.Flags().IntVar(&f.epochs, "epochs", 10, "Maximum number of epochs")
	cmd.Flags().IntVar(&f.initialCount, "initial-count", 10, "Size of the randomly drawn first batch")
	cmd.Flags().IntVar(&f.recommendationCount, "recommendation-count", 1, "Instances labelled per later epoch")
	cmd.Flags().Float64Var(&f.testSize, "test-size", 0.2, "Share of instances held out for evaluation")
}

// apply copies the flags the user set onto cfg. Unset flags keep the
// configured values.
func (f *simFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	sim := &cfg.Simulation
	if changed("epochs") {
		sim.Epochs = f.epochs
	}
	if changed("initial-count") {
		sim.InitialCount = f.initialCount
	}
	if changed("recommendation-count") {
		sim.RecommendationCount = f.recommendationCount
	}
	if changed("test-size") {
		sim.TestSize = f.testSize
	}
	if changed("seed") {
		sim.Seed = f.seed
	}
	if changed("predictor") {
		sim.Predictor = f.predictor
	}
	if changed("recommender") {
		sim.Recommender = f.recommender
	}
	if changed("param") {
		if sim.Params == nil {
			sim.Params = make(map[string]string, len(f.params))
		}
		for k, v := range f.params {
			sim.Params[k] = v
		}
	}
}

// newSimulation builds a simulation writing to outputPath.
func newSimulation(cfg *config.Config, logger *acton.Logger, outputPath string, opts ...active.Option) (*active.Simulation, error) {
	acfg, err := cfg.Active(outputPath)
	if err != nil {
		return nil, err
	}
	dbOpts, err := databaseOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]active.Option{
		active.WithLogger(logger),
		active.WithController(cfg.Controller()),
		active.WithDatabaseOptions(dbOpts...),
	}, opts...)
	return active.New(builtin.NewRegistry(), acfg, opts...), nil
}

func databaseOptions(cfg *config.Config) ([]database.Option, error) {
	ct, err := compress.Parse(cfg.Storage.Compression)
	if err != nil {
		return nil, acton.Configurationf("storage: %v", err)
	}
	return []database.Option{
		database.WithStoreOptions(store.WithCompression(ct)),
		database.WithBlobResolver(blobResolver(cfg)),
	}, nil
}

func lockOptions(cfg *config.Config) []s3store.DynamoLockOption {
	opts := []s3store.DynamoLockOption{s3store.WithLeaseDuration(cfg.Storage.LockLease)}
	if cfg.Storage.LockOwner != "" {
		opts = append(opts, s3store.WithOwner(cfg.Storage.LockOwner))
	}
	return opts
}

// blobResolver serves managed stores at s3:// and minio:// locations. S3
// stores are guarded by a DynamoDB lease when a lock table is configured.
func blobResolver(cfg *config.Config) database.BlobResolver {
	return func(ctx context.Context, loc blobstore.Location) (blobstore.Store, lock.Locker, error) {
		switch loc.Scheme {
		case "s3":
			cc := s3store.ClientConfig{Region: cfg.Storage.S3.Region, Endpoint: cfg.Storage.S3.Endpoint}
			client, err := s3store.LoadClient(ctx, cc)
			if err != nil {
				return nil, nil, err
			}
			bs := s3store.NewStore(client, loc.Bucket, loc.Dir(), s3store.WithUploadConfig(s3store.UploadConfig{
				PartSize:    cfg.Storage.S3.PartSizeBytes,
				Concurrency: cfg.Storage.S3.UploadConcurrency,
			}))
			if cfg.Storage.LockTable == "" {
				return bs, nil, nil
			}
			ddb, err := s3store.LoadDynamoClient(ctx, cc)
			if err != nil {
				return nil, nil, err
			}
			return bs, s3store.NewDynamoLock(ddb, cfg.Storage.LockTable, loc.String(), lockOptions(cfg)...), nil
		case "minio":
			mc := cfg.Storage.MinIO
			if mc.Endpoint == "" {
				return nil, nil, acton.Configurationf("minio endpoint is not configured")
			}
			bs, err := miniostore.Dial(miniostore.Config{
				Endpoint:  mc.Endpoint,
				AccessKey: mc.AccessKey,
				SecretKey: mc.SecretKey,
				UseSSL:    mc.UseSSL,
				Region:    mc.Region,
			}, loc.Bucket, loc.Dir())
			if err != nil {
				return nil, nil, err
			}
			return bs, nil, nil
		default:
			return nil, nil, acton.Configurationf("unsupported location scheme %q", loc.Scheme)
		}
	}
}
