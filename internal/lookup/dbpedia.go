package lookup

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/snac-tools/eacsupp/internal/thumbnail"
	"go.uber.org/zap"
)

const (
	dbpediaResource = "http://dbpedia.org/resource/"
	dbpediaGraph    = "http://dbpedia.org"
	sparqlFormat    = "application/sparql-results+json"
	sparqlTimeoutMS = "5000" // server-side hint, not enforced by the client
)

var wikipediaPrefixes = []string{
	"http://en.wikipedia.org/wiki/",
	"https://en.wikipedia.org/wiki/",
}

// Resolver finds a working variant of a thumbnail URL
type Resolver interface {
	Resolve(ctx context.Context, candidateURL, rightsURL string) (thumbnail.Resolution, error)
}

// DBpedia looks up the thumbnail of a Wikipedia-linked identity
type DBpedia struct {
	client   JSONGetter
	resolver Resolver
	cfg      model.ServiceConfig
	logger   *zap.Logger
}

// NewDBpedia creates a DBpedia thumbnail lookup
func NewDBpedia(client JSONGetter, resolver Resolver, cfg model.ServiceConfig, logger *zap.Logger) *DBpedia {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBpedia{client: client, resolver: resolver, cfg: cfg, logger: logger}
}

type sparqlValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

// LookupThumbnail returns the image and rights page DBpedia records for
// the article at identityURL, with the image URL passed through the
// resolver. It returns nil when DBpedia has no image triple.
func (d *DBpedia) LookupThumbnail(ctx context.Context, identityURL string) (*model.Thumbnail, error) {
	resource := ResourceURI(identityURL)
	query := ThumbnailQuery(resource)

	d.logger.Debug("sparql", zap.String("resource", resource), zap.String("endpoint", d.cfg.Base))

	params := url.Values{
		"query":             {query},
		"default-graph-uri": {dbpediaGraph},
		"format":            {sparqlFormat},
		"timeout":           {sparqlTimeoutMS},
	}

	var res sparqlResponse
	if err := d.client.GetJSON(ctx, d.cfg.Base, params, &res); err != nil {
		return nil, fmt.Errorf("dbpedia: %w", err)
	}
	if len(res.Results.Bindings) == 0 {
		return nil, nil
	}

	binding := res.Results.Bindings[0]
	attribution, ok := binding["attribution"]
	if !ok {
		return nil, fmt.Errorf("dbpedia: binding for %s has no attribution", resource)
	}
	thumb, ok := binding["thumbnail"]
	if !ok {
		return nil, fmt.Errorf("dbpedia: binding for %s has no thumbnail", resource)
	}

	resolution, err := d.resolver.Resolve(ctx, thumbnail.Normalize(thumb.Value), attribution.Value)
	if err != nil {
		return nil, fmt.Errorf("resolve thumbnail for %s: %w", resource, err)
	}

	d.logger.Debug("thumbnail resolved",
		zap.String("resource", resource),
		zap.Stringer("state", resolution.State),
		zap.Int("probes", resolution.Probes),
		zap.String("url", resolution.URL))

	found := &model.Thumbnail{Attribution: attribution.Value}
	if resolution.Found() {
		found.URL = resolution.URL
	}
	return found, nil
}

// ResourceURI maps an English Wikipedia article URL to its DBpedia resource
func ResourceURI(wikipediaURL string) string {
	for _, prefix := range wikipediaPrefixes {
		if strings.HasPrefix(wikipediaURL, prefix) {
			return dbpediaResource + strings.TrimPrefix(wikipediaURL, prefix)
		}
	}
	return wikipediaURL
}

// ThumbnailQuery builds the SPARQL query for a resource's thumbnail and
// the rights statement attached to it
func ThumbnailQuery(resource string) string {
	return `select * where {
?thumbnail dc:rights ?attribution . { SELECT ?thumbnail WHERE {
<` + resource + `> <http://dbpedia.org/ontology/thumbnail> ?thumbnail
} } } LIMIT 1`
}
