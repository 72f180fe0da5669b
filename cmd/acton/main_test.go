package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/blobstore"
	s3store "github.com/hupe1980/acton/blobstore/s3"
	"github.com/hupe1980/acton/config"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/snapshot"
	"github.com/hupe1980/acton/testutil"
)

// isolateConfig keeps tests away from a real ~/.acton/config.yaml and
// ACTON_* variables of the calling shell.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ACTON_CONFIG", "")
	t.Setenv("ACTON_LOG_LEVEL", "error")
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeDataset writes n points whose label is the parity of the id.
func writeDataset(t *testing.T, n int) string {
	t.Helper()
	return testutil.Parity(n).WriteCSV(t, t.TempDir())
}

func parity(id uint64) string {
	if id%2 == 0 {
		return "even"
	}
	return "odd"
}

func TestNewCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"version", "run", "predict", "recommend", "label", "import", "inspect"}, names)
}

func TestVersionCmd(t *testing.T) {
	isolateConfig(t)
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "acton version "+version+"\n", out)

	out, err = execute(t, "", "version", "--components")
	require.NoError(t, err)
	assert.Contains(t, out, "NearestCentroid")
	assert.Contains(t, out, "RandomRecommender")
}

func TestRunCmd(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 10)
	output := filepath.Join(t.TempDir(), "run.acts")

	out, err := execute(t, "", "run",
		"-d", data, "-l", "label", "-o", output,
		"--epochs", "3", "--initial-count", "2", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "epochs: 3\n")
	assert.Contains(t, out, "labelled: 4\n")
	assert.Contains(t, out, "exhausted: false\n")

	r, err := snapshot.Open(output)
	require.NoError(t, err)
	recs, err := r.ReadAll()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, i, rec.Epoch)
		assert.Len(t, rec.TestIDs, 2)
		assert.Equal(t, database.KindDelimited, rec.Database.Kind)
	}
}

func TestRunCmdRejectsBadSettings(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 10)
	output := filepath.Join(t.TempDir(), "run.acts")

	_, err := execute(t, "", "run", "-d", data, "-l", "label", "-o", output, "--epochs", "0")
	require.ErrorIs(t, err, acton.ErrConfiguration)

	_, err = execute(t, "", "run", "-d", data, "-l", "label", "-o", output, "--predictor", "Nope")
	require.ErrorIs(t, err, acton.ErrConfiguration)

	_, err = execute(t, "", "run", "-d", data, "-l", "label", "-o", output, "--format", "parquet")
	require.ErrorIs(t, err, acton.ErrConfiguration)

	_, err = os.Stat(output)
	assert.True(t, os.IsNotExist(err), "nothing is written for invalid settings")

	_, err = execute(t, "", "run", "-l", "label", "-o", output)
	require.Error(t, err, "--data is required")
}

func TestInspectCmd(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 10)
	output := filepath.Join(t.TempDir(), "run.acts")
	_, err := execute(t, "", "run", "-d", data, "-l", "label", "-o", output,
		"--epochs", "2", "--initial-count", "2")
	require.NoError(t, err)

	out, err := execute(t, "", "inspect", output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"predictor":"NearestCentroid"`)
	assert.Contains(t, lines[1], `"epoch":0`)
	assert.Contains(t, lines[2], `"epoch":1`)

	out, err = execute(t, "", "inspect", "--summary", output)
	require.NoError(t, err)
	assert.Contains(t, out, "recommender: RandomRecommender")
	assert.Contains(t, out, "EPOCH")

	_, err = execute(t, "", "inspect", filepath.Join(t.TempDir(), "missing.acts"))
	require.Error(t, err)
}

func TestPredictRecommendLabelPipeline(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 12)
	preds := filepath.Join(t.TempDir(), "points.pred")

	out, err := execute(t, "", "predict", "-d", data, "-l", "label", "-o", preds, "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote predictions for 12 instances")

	out, err = execute(t, "", "recommend", "-p", preds, "-n", "3", "--recommender", "Uncertainty")
	require.NoError(t, err)
	recommended := strings.Fields(out)
	require.Len(t, recommended, 3)

	out, err = execute(t, out, "label", "-d", data, "-l", "label")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		id, label, ok := strings.Cut(line, "\t")
		require.True(t, ok, line)
		assert.Equal(t, recommended[i], id)
		n, err := strconv.ParseUint(id, 10, 64)
		require.NoError(t, err)
		assert.Equal(t, parity(n), label)
	}
}

func TestRecommendWritesFile(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 8)
	dir := t.TempDir()
	preds := filepath.Join(dir, "points.pred")
	picks := filepath.Join(dir, "picks.txt")

	_, err := execute(t, "", "predict", "-d", data, "-l", "label", "-o", preds)
	require.NoError(t, err)
	out, err := execute(t, "", "recommend", "-p", preds, "-n", "100", "-o", picks)
	require.NoError(t, err)
	assert.Empty(t, out)

	f, err := os.Open(picks)
	require.NoError(t, err)
	defer f.Close()
	ids, err := readIDs(f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, ids)
}

func TestLabelCmdErrors(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 4)

	_, err := execute(t, "1\nbanana\n", "label", "-d", data, "-l", "label")
	require.ErrorIs(t, err, acton.ErrConfiguration)

	_, err = execute(t, "99\n", "label", "-d", data, "-l", "label")
	require.Error(t, err)
}

func TestImportCmd(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 10)
	managed := filepath.Join(t.TempDir(), "points.acton")

	out, err := execute(t, "", "import", "-d", data, "-l", "label", "-o", managed, "--batch-size", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 10 instances")

	out, err = execute(t, "0\n7\n", "label", "-d", managed)
	require.NoError(t, err)
	assert.Equal(t, "0\teven\n7\todd\n", out)

	output := filepath.Join(t.TempDir(), "run.acts")
	out, err = execute(t, "", "run", "-d", managed, "-o", output, "--epochs", "2", "--initial-count", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "epochs: 2\n")

	_, err = execute(t, "", "import", "-d", data, "-l", "label", "-o", managed, "--batch-size", "0")
	require.ErrorIs(t, err, acton.ErrConfiguration)

	_, err = execute(t, "", "import", "-d", data, "-l", "label", "-o", filepath.Join(t.TempDir(), "copy.csv"))
	require.ErrorIs(t, err, acton.ErrConfiguration)
}

func TestImportAndLabelLabelOnlySource(t *testing.T) {
	isolateConfig(t)
	labels := filepath.Join(t.TempDir(), "labels.csv")
	require.NoError(t, os.WriteFile(labels, []byte("label\na\nb\nc\n"), 0o600))

	out, err := execute(t, "2\n0\n", "label", "-d", labels, "-l", "label")
	require.NoError(t, err)
	assert.Equal(t, "2\tc\n0\ta\n", out)

	managed := filepath.Join(t.TempDir(), "labels.acton")
	out, err = execute(t, "", "import", "-d", labels, "-l", "label", "-o", managed)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 instances")

	out, err = execute(t, "1\n", "label", "-d", managed)
	require.NoError(t, err)
	assert.Equal(t, "1\tb\n", out)
}

func TestConfigFileAndVerbosity(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 10)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("simulation:\n  epochs: 1\n  initial_count: 3\n"), 0o600))
	output := filepath.Join(t.TempDir(), "run.acts")

	out, err := execute(t, "", "run", "--config", cfgPath, "-v", "-d", data, "-l", "label", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "epochs: 1\n")
	assert.Contains(t, out, "labelled: 3\n")

	_, err = execute(t, "", "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "-d", data, "-o", output)
	require.Error(t, err)
}

func TestReadIDs(t *testing.T) {
	ids, err := readIDs(strings.NewReader("# picks\n3\n\n  10 \n0\n"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 10, 0}, ids)

	_, err = readIDs(strings.NewReader("3\n-1\n"))
	require.ErrorIs(t, err, acton.ErrConfiguration)
}

func TestDataFlagsDescriptor(t *testing.T) {
	f := dataFlags{path: "points.arrow", labelCol: "y", featureCols: []string{"a", "b"}}
	desc, err := f.descriptor()
	require.NoError(t, err)
	assert.Equal(t, database.KindColumnar, desc.Kind)
	assert.Equal(t, "a,b", desc.Options[database.OptFeatureCols])
	assert.Equal(t, "y", desc.Options[database.OptLabelCol])

	f = dataFlags{path: "s3://bucket/points.acton"}
	desc, err = f.descriptor()
	require.NoError(t, err)
	assert.Equal(t, database.KindManaged, desc.Kind)
	assert.Nil(t, desc.Options)

	f = dataFlags{path: "points.txt", format: "sqlite", table: "pts"}
	desc, err = f.descriptor()
	require.NoError(t, err)
	assert.Equal(t, database.KindFrame, desc.Kind)
	assert.Equal(t, "pts", desc.Options[database.OptTable])
}

func TestBlobResolver(t *testing.T) {
	isolateConfig(t)
	ctx := context.Background()
	cfg := config.Default()

	_, _, err := blobResolver(cfg)(ctx, blobstore.Location{Scheme: "minio", Bucket: "b", Key: "x/s.acton"})
	require.ErrorIs(t, err, acton.ErrConfiguration)

	cfg.Storage.MinIO.Endpoint = "localhost:9000"
	bs, locker, err := blobResolver(cfg)(ctx, blobstore.Location{Scheme: "minio", Bucket: "b", Key: "x/s.acton"})
	require.NoError(t, err)
	assert.NotNil(t, bs)
	assert.Nil(t, locker)

	_, _, err = blobResolver(cfg)(ctx, blobstore.Location{Scheme: "gs", Bucket: "b", Key: "s.acton"})
	require.ErrorIs(t, err, acton.ErrConfiguration)

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg.Storage.S3.Region = "us-east-1"
	bs, locker, err = blobResolver(cfg)(ctx, blobstore.Location{Scheme: "s3", Bucket: "b", Key: "x/s.acton"})
	require.NoError(t, err)
	assert.NotNil(t, bs)
	assert.Nil(t, locker, "no lock table configured")

	cfg.Storage.LockTable = "acton-locks"
	_, locker, err = blobResolver(cfg)(ctx, blobstore.Location{Scheme: "s3", Bucket: "b", Key: "x/s.acton"})
	require.NoError(t, err)
	assert.IsType(t, &s3store.DynamoLock{}, locker)

	assert.Len(t, lockOptions(cfg), 1)
	cfg.Storage.LockOwner = "worker-1"
	assert.Len(t, lockOptions(cfg), 2)
}

func TestRunStats(t *testing.T) {
	isolateConfig(t)
	data := writeDataset(t, 10)
	output := filepath.Join(t.TempDir(), "run.acts")

	out, err := execute(t, "", "run", "-d", data, "-l", "label", "-o", output, "--epochs", "2", "--initial-count", "2", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "labels queried: 3 (2 batches")
	assert.Contains(t, out, "fits: 2")
}

func TestRunCmdAcrossFormats(t *testing.T) {
	isolateConfig(t)
	ds := testutil.NewRNG(7).Clusters(30, 2, 3, 0.5)
	dir := t.TempDir()

	for name, args := range map[string][]string{
		"columnar": {"-d", ds.WriteArrow(t, dir)},
		"frame":    {"-d", ds.WriteSQLite(t, dir, "points"), "--table", "points"},
		"csv":      {"-d", ds.WriteCSV(t, dir), "--format", "csv", "-f", "f0,f1"},
	} {
		t.Run(name, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "run.acts")
			args = append([]string{"run", "-l", testutil.LabelColumn, "-o", output,
				"--epochs", "4", "--initial-count", "3", "--recommendation-count", "2",
				"--predictor", "KNearestNeighbours", "--param", "k=3", "--recommender", "Entropy"}, args...)
			out, err := execute(t, "", args...)
			require.NoError(t, err)
			assert.Contains(t, out, "epochs: 4\n")
			assert.Contains(t, out, "labelled: 9\n")

			r, err := snapshot.Open(output)
			require.NoError(t, err)
			recs, err := r.ReadAll()
			require.NoError(t, err)
			require.NoError(t, r.Close())
			require.Len(t, recs, 4)
			assert.Len(t, recs[3].TestIDs, 6)
		})
	}
}
