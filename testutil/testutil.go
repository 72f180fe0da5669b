package testutil

import (
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// LabelColumn is the name of the label column in written files.
const LabelColumn = "label"

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewPCG(seed, seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// IntN returns a non-negative pseudo-random number in [0,n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Dataset is a labelled feature matrix. Row i has id i.
type Dataset struct {
	Columns  []string
	Features [][]float64
	Labels   []string
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Features) }

// Clusters generates num rows around classes centroids spaced 10 apart on
// the diagonal, with Gaussian noise of the given spread. Row i belongs to
// class i % classes and is labelled "c<class>".
func (r *RNG) Clusters(num, dim, classes int, spread float64) Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dim)
	ds := Dataset{
		Columns:  featureColumns(dim),
		Features: make([][]float64, num),
		Labels:   make([]string, num),
	}
	for i := range num {
		class := i % classes
		row := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range row {
			row[j] = float64(class)*10 + r.rand.NormFloat64()*spread
		}
		ds.Features[i] = row
		ds.Labels[i] = "c" + strconv.Itoa(class)
	}
	return ds
}

// Parity returns n two-feature rows. Even rows sit near the origin and are
// labelled "even"; odd rows sit near (20, 20) and are labelled "odd".
func Parity(n int) Dataset {
	ds := Dataset{
		Columns:  []string{"x", "y"},
		Features: make([][]float64, n),
		Labels:   make([]string, n),
	}
	for i := range n {
		if i%2 == 0 {
			ds.Features[i] = []float64{float64(i % 3), float64(i % 5)}
			ds.Labels[i] = "even"
		} else {
			ds.Features[i] = []float64{float64(20 + i%3), float64(20 + i%5)}
			ds.Labels[i] = "odd"
		}
	}
	return ds
}

// WriteCSV writes d to dir/points.csv with a header row and returns the path.
func (d Dataset) WriteCSV(t testing.TB, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(append(append([]string(nil), d.Columns...), LabelColumn), ","))
	b.WriteByte('\n')
	for i, row := range d.Features {
		for _, v := range row {
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			b.WriteByte(',')
		}
		b.WriteString(d.Labels[i])
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

// WriteArrow writes d to dir/points.arrow as a single record batch and
// returns the path.
func (d Dataset) WriteArrow(t testing.TB, dir string) string {
	t.Helper()
	fields := make([]arrow.Field, 0, len(d.Columns)+1)
	for _, c := range d.Columns {
		fields = append(fields, arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Float64})
	}
	fields = append(fields, arrow.Field{Name: LabelColumn, Type: arrow.BinaryTypes.String})
	schema := arrow.NewSchema(fields, nil)

	path := filepath.Join(dir, "points.arrow")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema))
	require.NoError(t, err)

	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for i, row := range d.Features {
		for j, v := range row {
			b.Field(j).(*array.Float64Builder).Append(v)
		}
		b.Field(len(row)).(*array.StringBuilder).Append(d.Labels[i])
	}
	rec := b.NewRecord()
	defer rec.Release()
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return path
}

// WriteSQLite writes d to table in dir/points.sqlite and returns the path.
func (d Dataset) WriteSQLite(t testing.TB, dir, table string) string {
	t.Helper()
	path := filepath.Join(dir, "points.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	cols := make([]string, 0, len(d.Columns)+1)
	marks := make([]string, 0, len(d.Columns)+1)
	for _, c := range d.Columns {
		cols = append(cols, fmt.Sprintf("%q REAL", c))
		marks = append(marks, "?")
	}
	cols = append(cols, fmt.Sprintf("%q TEXT", LabelColumn))
	marks = append(marks, "?")

	_, err = db.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(cols, ", ")))
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, strings.Join(marks, ", ")))
	require.NoError(t, err)
	for i, row := range d.Features {
		args := make([]any, 0, len(row)+1)
		for _, v := range row {
			args = append(args, v)
		}
		args = append(args, d.Labels[i])
		_, err := stmt.Exec(args...)
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
	return path
}

func featureColumns(dim int) []string {
	cols := make([]string, dim)
	for i := range cols {
		cols[i] = "f" + strconv.Itoa(i)
	}
	return cols
}
