package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const progressEvery = 1_000_000

type config struct {
	files     []string
	batchSize int
	expected  uint
	fpr       float64
}

// stats summarizes one assignment run.
type stats struct {
	read      uint64
	unique    uint64
	rechecked uint64
	assigned  int64
}

// assignFunc assigns the coupon to ids and returns the number of new
// assignments.
type assignFunc func(ctx context.Context, ids []int64) (int64, error)

// seen de-duplicates user ids with a bloom filter. Ids the filter reports as
// present may be false positives, so they are held and submitted once more at
// the end; the database ignores existing assignments.
type seen struct {
	filter  *bloom.BloomFilter
	recheck map[int64]struct{}
}

func newSeen(expected uint, fpr float64) *seen {
	return &seen{
		filter:  bloom.NewWithEstimates(expected, fpr),
		recheck: make(map[int64]struct{}),
	}
}

// add reports whether id is certainly new.
func (s *seen) add(id int64) bool {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(id))
	if s.filter.TestAndAdd(key[:]) {
		s.recheck[id] = struct{}{}
		return false
	}
	return true
}

// held returns the probable duplicates in ascending order.
func (s *seen) held() []int64 {
	out := make([]int64, 0, len(s.recheck))
	for id := range s.recheck {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// assign streams every file concurrently and submits de-duplicated ids in
// batches.
func assign(ctx context.Context, cfg config, fn assignFunc) (stats, error) {
	var st stats
	if cfg.batchSize <= 0 {
		cfg.batchSize = 1000
	}
	ids := make(chan int64, cfg.batchSize)

	g, ctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(ctx)
	for _, path := range cfg.files {
		readers.Go(func() error {
			return streamIDs(rctx, path, func(id int64) error {
				select {
				case ids <- id:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(ids)
		return readers.Wait()
	})

	g.Go(func() error {
		s := newSeen(cfg.expected, cfg.fpr)
		batch := make([]int64, 0, cfg.batchSize)
		flush := func(list []int64) error {
			if len(list) == 0 {
				return nil
			}
			n, err := fn(ctx, list)
			if err != nil {
				return errors.Wrap(err, "assign batch")
			}
			st.assigned += n
			return nil
		}

		for id := range ids {
			st.read++
			if st.read%progressEvery == 0 {
				slog.Info("progress", slog.Uint64("read", st.read), slog.Int64("assigned", st.assigned))
			}
			if !s.add(id) {
				continue
			}
			st.unique++
			batch = append(batch, id)
			if len(batch) == cfg.batchSize {
				if err := flush(batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := flush(batch); err != nil {
			return err
		}

		held := s.held()
		st.rechecked = uint64(len(held))
		for chunk := range slices.Chunk(held, cfg.batchSize) {
			if err := flush(chunk); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return st, err
	}
	return st, nil
}

// streamIDs opens a gzip-compressed file and calls fn for each user id.
// Blank lines and lines starting with '#' are skipped.
func streamIDs(ctx context.Context, path string, fn func(id int64) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id <= 0 {
			return errors.Errorf("%s:%d: invalid user id %q", path, line, text)
		}
		if err := fn(id); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
