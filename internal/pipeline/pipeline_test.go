package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/snac-tools/eacsupp/internal/cache"
	"github.com/snac-tools/eacsupp/internal/lookup"
	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/snac-tools/eacsupp/internal/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eacTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<eac-cpf xmlns="urn:isbn:1-931666-33-4" xmlns:xlink="http://www.w3.org/1999/xlink">
  <cpfDescription>
    <identity><nameEntry><part>%s</part></nameEntry></identity>
    <relations>%s</relations>
  </cpfDescription>
</eac-cpf>`

func writeRecord(t *testing.T, dir, name, heading, wikipedia string) string {
	t.Helper()
	rel := ""
	if wikipedia != "" {
		rel = fmt.Sprintf(`<cpfRelation xlink:href=%q xlink:arcrole="http://socialarchive.iath.virginia.edu/control/term#sameAs"/>`, wikipedia)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(eacTemplate, heading, rel)), 0644))
	return path
}

type fakeChecker struct {
	name    string
	present bool
	err     error
	calls   int
}

func (f *fakeChecker) Name() string { return f.name }

func (f *fakeChecker) Present(ctx context.Context, heading string) (bool, error) {
	ans, err := f.Check(ctx, heading)
	return ans.Present, err
}

func (f *fakeChecker) Check(_ context.Context, _ string) (lookup.Answer, error) {
	f.calls++
	return lookup.Answer{Present: f.present}, f.err
}

type fakeThumbs struct {
	thumb *model.Thumbnail
	err   error
	calls int
}

func (f *fakeThumbs) LookupThumbnail(_ context.Context, _ string) (*model.Thumbnail, error) {
	f.calls++
	return f.thumb, f.err
}

func TestProcessRecord_MissingHeading(t *testing.T) {
	dpla := &fakeChecker{name: "dpla"}
	p := New(&fakeThumbs{}, dpla, &fakeChecker{name: "europeana"}, nil, nil)

	for _, heading := range []string{"", "   "} {
		_, err := p.ProcessRecord(context.Background(), model.Record{Path: "x.xml", Heading: heading})
		assert.ErrorIs(t, err, ErrMissingHeading)
	}
	assert.Zero(t, dpla.calls)
}

func TestProcessRecord_SkipsThumbnailWithoutLink(t *testing.T) {
	thumbs := &fakeThumbs{thumb: &model.Thumbnail{URL: "u", Attribution: "a"}}
	p := New(thumbs, &fakeChecker{name: "dpla", present: true}, &fakeChecker{name: "europeana"}, nil, nil)

	supp, err := p.ProcessRecord(context.Background(), model.Record{Heading: "Jane Doe"})
	require.NoError(t, err)

	assert.Zero(t, thumbs.calls)
	want := &model.Supplement{Name: "Jane Doe", DPLA: true}
	if diff := cmp.Diff(want, supp); diff != "" {
		t.Errorf("supplement mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessRecord_UnresolvedThumbnailDropsAttribution(t *testing.T) {
	thumbs := &fakeThumbs{thumb: &model.Thumbnail{Attribution: "https://en.wikipedia.org/wiki/File:X.jpg"}}
	p := New(thumbs, &fakeChecker{name: "dpla"}, &fakeChecker{name: "europeana"}, nil, nil)

	supp, err := p.ProcessRecord(context.Background(), model.Record{Heading: "X", IdentityLink: "http://en.wikipedia.org/wiki/X"})
	require.NoError(t, err)
	assert.Empty(t, supp.Thumbnail)
	assert.Empty(t, supp.ThumbnailRights)
}

func TestProcessRecord_ThumbnailErrorAborts(t *testing.T) {
	fatal := &thumbnail.UnexpectedStatusError{StatusCode: 403, URL: "u"}
	dpla := &fakeChecker{name: "dpla"}
	p := New(&fakeThumbs{err: fatal}, dpla, &fakeChecker{name: "europeana"}, nil, nil)

	_, err := p.ProcessRecord(context.Background(), model.Record{Heading: "X", IdentityLink: "http://en.wikipedia.org/wiki/X"})

	var unexpected *thumbnail.UnexpectedStatusError
	assert.True(t, errors.As(err, &unexpected))
	assert.Zero(t, dpla.calls)
}

func TestProcessRecord_CheckerErrorAborts(t *testing.T) {
	boom := errors.New("connection reset")
	p := New(&fakeThumbs{}, &fakeChecker{name: "dpla", err: boom}, &fakeChecker{name: "europeana"}, nil, nil)

	_, err := p.ProcessRecord(context.Background(), model.Record{Heading: "X"})
	assert.ErrorIs(t, err, boom)
}

func TestProcessRecord_MemoAvoidsRepeatLookups(t *testing.T) {
	dpla := &fakeChecker{name: "dpla", present: true}
	europeana := &fakeChecker{name: "europeana"}
	p := New(&fakeThumbs{}, dpla, europeana, cache.NewPresenceMemo(), nil)

	for i := 0; i < 3; i++ {
		supp, err := p.ProcessRecord(context.Background(), model.Record{Heading: "Doe, Jane"})
		require.NoError(t, err)
		assert.True(t, bool(supp.DPLA))
	}
	assert.Equal(t, 1, dpla.calls)
	assert.Equal(t, 1, europeana.calls)
}

func TestProcessRecord_MemoSkipsDegradedAnswers(t *testing.T) {
	svc := newServices(t)
	svc.dplaStatus = []int{http.StatusServiceUnavailable}
	svc.dplaCount = 5

	p := NewPipeline(svc.config(), nil)
	rec := model.Record{Heading: "Jane Doe"}

	first, err := p.ProcessRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, bool(first.DPLA))

	second, err := p.ProcessRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, bool(second.DPLA))

	// dpla twice, europeana once: its real answer was remembered
	assert.Equal(t, int32(2), svc.dplaCalls.Load())
	assert.Equal(t, int32(3), svc.remoteCalls.Load())

	third, err := p.ProcessRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, bool(third.DPLA))
	assert.Equal(t, int32(3), svc.remoteCalls.Load())
}

func TestProcessRecord_NoMemoAsksEveryTime(t *testing.T) {
	dpla := &fakeChecker{name: "dpla", present: true}
	p := New(&fakeThumbs{}, dpla, &fakeChecker{name: "europeana"}, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := p.ProcessRecord(context.Background(), model.Record{Heading: "Doe, Jane"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, dpla.calls)
}

func TestRenderer_Marshal(t *testing.T) {
	out, err := NewRenderer().Marshal(&model.Supplement{
		Name:            "Doe, Jane & Co",
		Thumbnail:       "https://upload.wikimedia.org/x/75px-Foo.jpg",
		ThumbnailRights: "https://en.wikipedia.org/wiki/File:Foo.jpg",
		Europeana:       true,
	})
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<supplemental name="Doe, Jane &amp; Co" thumbnail="https://upload.wikimedia.org/x/75px-Foo.jpg" ` +
		`thumbnailRights="https://en.wikipedia.org/wiki/File:Foo.jpg" europeana="true"></supplemental>` + "\n"
	assert.Equal(t, want, string(out))
}

func TestRenderer_WriteFileLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doe.xml")

	require.NoError(t, NewRenderer().WriteFile(&model.Supplement{Name: "Jane Doe"}, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doe.xml", entries[0].Name())
}

// services fakes DPLA, Europeana, DBpedia and the image host on one server
type services struct {
	server      *httptest.Server
	dplaCount   int
	euroTotal   int
	sparql      func(base string) string
	heads       map[string]int
	dplaStatus  []int // statuses answered by successive DPLA calls before the JSON body
	dplaCalls   atomic.Int32
	remoteCalls atomic.Int32
}

func newServices(t *testing.T) *services {
	t.Helper()
	s := &services{heads: map[string]int{}}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.remoteCalls.Add(1)
		if r.Method == http.MethodHead {
			status, ok := s.heads[r.URL.Path]
			if !ok {
				status = http.StatusNotFound
			}
			w.WriteHeader(status)
			return
		}
		switch r.URL.Path {
		case "/dpla":
			n := int(s.dplaCalls.Add(1))
			if n <= len(s.dplaStatus) {
				w.WriteHeader(s.dplaStatus[n-1])
				return
			}
			fmt.Fprintf(w, `{"count": %d}`, s.dplaCount)
		case "/europeana":
			fmt.Fprintf(w, `{"totalResults": %d}`, s.euroTotal)
		case "/sparql":
			body := `{"results":{"bindings":[]}}`
			if s.sparql != nil {
				body = s.sparql(s.server.URL)
			}
			_, _ = w.Write([]byte(body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *services) config() *model.Config {
	cfg := model.DefaultConfig()
	cfg.DPLA = model.ServiceConfig{Base: s.server.URL + "/dpla", APIKey: "k1"}
	cfg.Europeana = model.ServiceConfig{Base: s.server.URL + "/europeana", APIKey: "k2"}
	cfg.DBpedia = model.ServiceConfig{Base: s.server.URL + "/sparql"}
	cfg.Polite.Factor = 0
	return cfg
}

func TestPipeline_EndToEndNoIdentityLink(t *testing.T) {
	svc := newServices(t)
	svc.dplaCount = 3
	svc.euroTotal = 0

	in := writeRecord(t, t.TempDir(), "doe.xml", "Jane Doe", "")
	out := filepath.Join(t.TempDir(), "doe.xml")

	require.NoError(t, NewPipeline(svc.config(), nil).ProcessFile(context.Background(), in, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, `name="Jane Doe"`)
	assert.Contains(t, doc, `dpla="true"`)
	assert.NotContains(t, doc, "europeana=")
	assert.NotContains(t, doc, "thumbnail")
	assert.Equal(t, int32(2), svc.remoteCalls.Load())
}

func TestPipeline_EndToEndThumbnailLadder(t *testing.T) {
	svc := newServices(t)
	svc.sparql = func(base string) string {
		return fmt.Sprintf(`{"results":{"bindings":[{"thumbnail":{"type":"uri","value":%q},"attribution":{"type":"uri","value":%q}}]}}`,
			base+"/wikipedia/commons/thumb/1/1a/Foo.jpg/200px-Foo.jpg", base+"/wiki/File:Foo.jpg")
	}
	svc.heads["/wiki/File:Foo.jpg"] = http.StatusOK
	svc.heads["/wikipedia/en/thumb/1/1a/Foo.jpg/150px-Foo.jpg"] = http.StatusInternalServerError
	svc.heads["/wikipedia/en/thumb/1/1a/Foo.jpg/75px-Foo.jpg"] = http.StatusOK

	in := writeRecord(t, t.TempDir(), "foo.xml", "Foo, Bar", "http://en.wikipedia.org/wiki/Foo")

	supp, err := NewPipeline(svc.config(), nil).Process(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(supp.Thumbnail, "/75px-Foo.jpg"), supp.Thumbnail)
	assert.Contains(t, supp.Thumbnail, "/wikipedia/en/")
	assert.Equal(t, svc.server.URL+"/wiki/File:Foo.jpg", supp.ThumbnailRights)
	assert.False(t, bool(supp.DPLA))
	assert.False(t, bool(supp.Europeana))
}
