// Command coupon-ingest bulk-creates coupon codes from gzip-compressed code
// lists. Every accepted code becomes a manual coupon cloned from a template
// coupon, sharing its rules but with its own usage counters.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/storage/postgres"
)

type options struct {
	databaseURL string
	pattern     string
	template    string
	minFiles    int
	batchSize   int
	dryRun      bool
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pattern, "files", "data/*.gz", "glob of gzip-compressed code lists, one code per line")
	flag.StringVar(&opts.template, "template", "", "code of the coupon whose rules every new code copies")
	flag.IntVar(&opts.minFiles, "min-files", 1, "accept only codes listed in at least this many files")
	flag.IntVar(&opts.batchSize, "batch-size", 5000, "codes inserted per statement")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "scan and report without writing")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.template == "" && !opts.dryRun {
		slog.Error("--template is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", opts.pattern)
	}
	if len(files) > 64 {
		return errors.Errorf("at most 64 files can be scanned, got %d", len(files))
	}
	if opts.minFiles < 1 || opts.minFiles > len(files) {
		return errors.Errorf("min-files must be between 1 and %d", len(files))
	}
	if opts.batchSize < 1 {
		return errors.New("batch-size must be positive")
	}

	codes, err := collectCodes(ctx, files, opts.minFiles)
	if err != nil {
		return err
	}

	slog.Info("codes accepted", slog.Int("count", len(codes)))

	if opts.dryRun || len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCouponRepository(pool)
	tmpl, err := repo.FindByCode(ctx, coupon.NormalizeCode(opts.template))
	if err != nil {
		return errors.Wrapf(err, "find template %q", opts.template)
	}
	if tmpl.IsAutomatic {
		return errors.Errorf("template %q is an automatic discount", opts.template)
	}

	return writeCodes(ctx, repo, tmpl.ID, codes, opts.batchSize)
}

type cloner interface {
	CloneCodes(ctx context.Context, templateID int64, codes []string) (int64, error)
}

// writeCodes clones the template once per code, batchSize codes at a time.
// Codes that already exist are skipped by the repository.
func writeCodes(ctx context.Context, repo cloner, templateID int64, codes []string, batchSize int) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)), slog.Int64("template_id", templateID))

	var created, done int64
	for batch := range slices.Chunk(codes, batchSize) {
		n, err := repo.CloneCodes(ctx, templateID, batch)
		if err != nil {
			return errors.Wrap(err, "clone codes")
		}
		created += n
		done += int64(len(batch))
		slog.Info("write progress",
			slog.Int64("written", done),
			slog.Int("total", len(codes)),
			slog.Int64("created", created),
		)
	}

	slog.Info("write complete", slog.Int64("created", created), slog.Int64("skipped", done-created))
	return nil
}
