package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
)

// validCode reports whether a normalized code is made of upper-case letters,
// digits, dashes and underscores and has an acceptable length.
func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// collectCodes returns the sorted, de-duplicated codes that appear in at
// least minFiles of the given files.
func collectCodes(ctx context.Context, files []string, minFiles int) ([]string, error) {
	if minFiles <= 1 {
		return uniqueCodes(ctx, files)
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Exact per-file bitmasks for codes the filters say are shared.
	slog.Info("pass 2: finding shared codes", slog.Int("min_files", minFiles))

	return findSharedCodes(ctx, files, filters, minFiles)
}

// uniqueCodes merges all files into one exact set.
func uniqueCodes(ctx context.Context, files []string) ([]string, error) {
	sets := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			set := make(map[string]struct{})
			err := streamGzFile(ctx, path, func(code string) {
				set[code] = struct{}{}
			})
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			slog.Info("file scanned", slog.String("file", path), slog.Int("codes", len(set)))
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, set := range sets {
		for code := range set {
			merged[code] = struct{}{}
		}
	}
	out := make([]string, 0, len(merged))
	for code := range merged {
		out = append(out, code)
	}
	slices.Sort(out)
	return out, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64
			if err := streamGzFile(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findSharedCodes re-streams each file and keeps codes that the other files'
// bloom filters claim to contain. The per-file bitmasks are exact, so bloom
// false positives are dropped when counting files.
func findSharedCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter, minFiles int) ([]string, error) {
	results := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint64)
			fileBit := uint64(1) << uint(i)
			if err := streamGzFile(ctx, path, func(code string) {
				hits := 1
				for j, f := range filters {
					if j != i && f.TestString(code) {
						hits++
					}
				}
				if hits >= minFiles {
					candidates[code] |= fileBit
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s for candidates", path)
			}
			slog.Info("pass 2 complete", slog.String("file", path), slog.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}

	var shared []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= minFiles {
			shared = append(shared, code)
		}
	}
	slices.Sort(shared)
	return shared, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each valid,
// normalized code in it.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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

	return scanCodes(ctx, gz, fn)
}

func scanCodes(ctx context.Context, r io.Reader, fn func(code string)) error {
	scanner := bufio.NewScanner(r)
	var line int
	for scanner.Scan() {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		code := coupon.NormalizeCode(scanner.Text())
		if validCode(code) {
			fn(code)
		}
	}
	return scanner.Err()
}
