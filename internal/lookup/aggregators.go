package lookup

import (
	"context"
	"fmt"
	"net/url"

	"github.com/snac-tools/eacsupp/internal/model"
	"go.uber.org/zap"
)

// DPLA checks the Digital Public Library of America item index
type DPLA struct {
	client JSONGetter
	cfg    model.ServiceConfig
	logger *zap.Logger
}

// NewDPLA creates a DPLA checker
func NewDPLA(client JSONGetter, cfg model.ServiceConfig, logger *zap.Logger) *DPLA {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DPLA{client: client, cfg: cfg, logger: logger}
}

// Name returns the output attribute this checker feeds
func (d *DPLA) Name() string { return "dpla" }

type dplaResponse struct {
	Count int `json:"count"`
}

// Present reports whether DPLA has at least one item matching heading.
// An HTTP error status from the service reads as false.
func (d *DPLA) Present(ctx context.Context, heading string) (bool, error) {
	ans, err := d.Check(ctx, heading)
	return ans.Present, err
}

// Check is Present with the degraded marker kept
func (d *DPLA) Check(ctx context.Context, heading string) (Answer, error) {
	params := url.Values{
		"q":         {heading},
		"api_key":   {d.cfg.APIKey},
		"page_size": {"0"},
	}

	var res dplaResponse
	if err := d.client.GetJSON(ctx, d.cfg.Base, params, &res); err != nil {
		d.logger.Warn("dpla lookup failed", zap.String("heading", heading), zap.Error(err))
		ans, err := degradeStatus(err)
		if err != nil {
			return Answer{}, fmt.Errorf("dpla: %w", err)
		}
		return ans, nil
	}
	return Answer{Present: res.Count > 0}, nil
}

// Europeana checks the Europeana search API
type Europeana struct {
	client JSONGetter
	cfg    model.ServiceConfig
	logger *zap.Logger
}

// NewEuropeana creates a Europeana checker
func NewEuropeana(client JSONGetter, cfg model.ServiceConfig, logger *zap.Logger) *Europeana {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Europeana{client: client, cfg: cfg, logger: logger}
}

// Name returns the output attribute this checker feeds
func (e *Europeana) Name() string { return "europeana" }

type europeanaResponse struct {
	TotalResults int `json:"totalResults"`
}

// Present reports whether Europeana has at least one item matching heading.
// An HTTP error status from the service reads as false.
func (e *Europeana) Present(ctx context.Context, heading string) (bool, error) {
	ans, err := e.Check(ctx, heading)
	return ans.Present, err
}

// Check is Present with the degraded marker kept
func (e *Europeana) Check(ctx context.Context, heading string) (Answer, error) {
	params := url.Values{
		"wskey": {e.cfg.APIKey},
		"query": {heading},
		"start": {"1"},
		"rows":  {"0"},
	}

	var res europeanaResponse
	if err := e.client.GetJSON(ctx, e.cfg.Base, params, &res); err != nil {
		e.logger.Warn("europeana lookup failed", zap.String("heading", heading), zap.Error(err))
		ans, err := degradeStatus(err)
		if err != nil {
			return Answer{}, fmt.Errorf("europeana: %w", err)
		}
		return ans, nil
	}
	return Answer{Present: res.TotalResults > 0}, nil
}
