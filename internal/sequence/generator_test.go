package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// memorySequencer mimics the upsert-returning-seq behaviour of the
// document_sequences table, including serialization of concurrent callers.
type memorySequencer struct {
	mu   sync.Mutex
	seqs map[string]int64
	fail bool
}

type seqRow struct {
	seq int64
	err error
}

func (r seqRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.seq
	return nil
}

func (m *memorySequencer) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return seqRow{err: errors.New("connection refused")}
	}
	key := args[0].(string) + ":" + args[1].(string)
	if m.seqs == nil {
		m.seqs = make(map[string]int64)
	}
	m.seqs[key]++
	return seqRow{seq: m.seqs[key]}
}

func TestNextFormat(t *testing.T) {
	store := &memorySequencer{}
	gen := NewGenerator(store)
	date := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	num, err := gen.Next(context.Background(), PrefixSale, date)
	require.NoError(t, err)
	require.Equal(t, "SALE-20260828-0001", num)

	num, err = gen.Next(context.Background(), PrefixSale, date)
	require.NoError(t, err)
	require.Equal(t, "SALE-20260828-0002", num)

	// distinct prefix and distinct date each start a fresh counter
	num, err = gen.Next(context.Background(), PrefixQuote, date)
	require.NoError(t, err)
	require.Equal(t, "QUOTE-20260828-0001", num)

	num, err = gen.Next(context.Background(), PrefixSale, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, "SALE-20260829-0001", num)
}

func TestNextConcurrentDense(t *testing.T) {
	store := &memorySequencer{}
	gen := NewGenerator(store)
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	const workers = 50
	results := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := gen.Next(context.Background(), PrefixLab, date)
			require.NoError(t, err)
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for num := range results {
		require.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
	require.Len(t, seen, workers)
	require.True(t, seen["LAB-20260828-0001"])
	require.True(t, seen["LAB-20260828-0050"])
}

func TestNextStorageUnavailable(t *testing.T) {
	gen := NewGenerator(&memorySequencer{fail: true})
	_, err := gen.Next(context.Background(), PrefixOrder, time.Now())
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestNextRequiresPrefix(t *testing.T) {
	gen := NewGenerator(&memorySequencer{})
	_, err := gen.Next(context.Background(), "", time.Now())
	require.Error(t, err)
}
