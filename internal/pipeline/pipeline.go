package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/snac-tools/eacsupp/internal/cache"
	"github.com/snac-tools/eacsupp/internal/eac"
	"github.com/snac-tools/eacsupp/internal/fetch"
	"github.com/snac-tools/eacsupp/internal/lookup"
	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/snac-tools/eacsupp/internal/polite"
	"github.com/snac-tools/eacsupp/internal/thumbnail"
	"go.uber.org/zap"
)

// ErrMissingHeading aborts a record that has no display name
var ErrMissingHeading = errors.New("record has no name heading")

// ThumbnailLookup finds the image for a linked identity
type ThumbnailLookup interface {
	LookupThumbnail(ctx context.Context, identityURL string) (*model.Thumbnail, error)
}

// Pipeline turns one EAC-CPF record into its supplemental element
type Pipeline struct {
	thumbs    ThumbnailLookup
	dpla      lookup.Checker
	europeana lookup.Checker
	memo      *cache.PresenceMemo // nil when disabled
	renderer  *Renderer
	logger    *zap.Logger
}

// NewPipeline wires the remote lookups described by cfg
func NewPipeline(cfg *model.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []polite.Option{polite.WithLogger(logger)}
	if lim := polite.NewLimiter(cfg.Polite.RequestsPerSecond, cfg.Polite.Burst); lim != nil {
		opts = append(opts, polite.WithLimiter(lim))
	}
	if cfg.Polite.RespectRobots {
		opts = append(opts, polite.WithRobots(polite.NewRobotsChecker(nil, cfg.HTTP.UserAgent)))
	}
	throttle := polite.NewThrottle(cfg.Polite.Factor, opts...)
	client := fetch.NewClient(cfg.HTTP, throttle, logger)

	resolver := thumbnail.NewResolver(client, logger)

	var memo *cache.PresenceMemo
	if cfg.Cache.Enabled {
		memo = cache.NewPresenceMemo()
	}

	return New(
		lookup.NewDBpedia(client, resolver, cfg.DBpedia, logger),
		lookup.NewDPLA(client, cfg.DPLA, logger),
		lookup.NewEuropeana(client, cfg.Europeana, logger),
		memo,
		logger,
	)
}

// New assembles a pipeline from explicit collaborators. memo may be nil.
func New(thumbs ThumbnailLookup, dpla, europeana lookup.Checker, memo *cache.PresenceMemo, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		thumbs:    thumbs,
		dpla:      dpla,
		europeana: europeana,
		memo:      memo,
		renderer:  NewRenderer(),
		logger:    logger,
	}
}

// Process parses the record at path and builds its supplement
func (p *Pipeline) Process(ctx context.Context, path string) (*model.Supplement, error) {
	rec, err := eac.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return p.ProcessRecord(ctx, rec)
}

// ProcessRecord builds the supplement for an already parsed record
func (p *Pipeline) ProcessRecord(ctx context.Context, rec model.Record) (*model.Supplement, error) {
	if strings.TrimSpace(rec.Heading) == "" {
		return nil, fmt.Errorf("%s: %w", rec.Path, ErrMissingHeading)
	}

	var thumb *model.Thumbnail
	if rec.HasIdentityLink() {
		t, err := p.thumbs.LookupThumbnail(ctx, rec.IdentityLink)
		if err != nil {
			return nil, fmt.Errorf("thumbnail for %q: %w", rec.Heading, err)
		}
		thumb = t
	}

	var presence model.Presence
	var err error
	if presence.DPLA, err = p.present(ctx, p.dpla, rec.Heading); err != nil {
		return nil, err
	}
	if presence.Europeana, err = p.present(ctx, p.europeana, rec.Heading); err != nil {
		return nil, err
	}

	supp := model.NewSupplement(rec, thumb, presence)

	p.logger.Info("record processed",
		zap.String("path", rec.Path),
		zap.String("heading", rec.Heading),
		zap.Bool("thumbnail", supp.Thumbnail != ""),
		zap.Bool("dpla", presence.DPLA),
		zap.Bool("europeana", presence.Europeana))

	return supp, nil
}

// ProcessFile processes in and writes the supplement to out
func (p *Pipeline) ProcessFile(ctx context.Context, in, out string) error {
	supp, err := p.Process(ctx, in)
	if err != nil {
		return err
	}
	if err := p.renderer.WriteFile(supp, out); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

// present asks checker about heading, consulting the in-run memo first.
// Degraded answers are not remembered, so a later record with the same
// heading asks the service again.
func (p *Pipeline) present(ctx context.Context, checker lookup.Checker, heading string) (bool, error) {
	if p.memo == nil {
		return checker.Present(ctx, heading)
	}

	if present, found := p.memo.Get(checker.Name(), heading); found {
		p.logger.Debug("memo hit", zap.String("service", checker.Name()), zap.String("heading", heading))
		return present, nil
	}

	ans, err := checker.Check(ctx, heading)
	if err != nil {
		return false, err
	}
	if ans.Degraded {
		return false, nil
	}

	p.memo.Set(checker.Name(), heading, ans.Present)
	p.logger.Debug("memo stored",
		zap.String("service", checker.Name()),
		zap.String("heading", heading),
		zap.Int("entries", p.memo.Len()))
	return ans.Present, nil
}
