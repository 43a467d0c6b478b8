package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factchecker/citecheck/internal/config"
)

func TestPubMedClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			assert.Equal(t, "mastering go", r.URL.Query().Get("term"))
			w.Write([]byte(`{"esearchresult":{"idlist":["26819042","999"]}}`))
		case strings.HasSuffix(r.URL.Path, "/esummary.fcgi"):
			assert.Equal(t, "26819042,999", r.URL.Query().Get("id"))
			w.Write([]byte(`{"result":{
				"uids":["26819042","999"],
				"26819042":{"title":"Mastering the game of Go with deep neural networks and tree search.",
					"pubdate":"2016 Jan 28","source":"Nature",
					"authors":[{"name":"Silver D"},{"name":"Huang A"}],
					"elocationid":"doi: 10.1038/nature16961"},
				"999":{"title":""}
			}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewPubMedClient(config.PubMedConfig{}, WithBaseURL(srv.URL))
	items, err := c.Search(context.Background(), "mastering go", 5)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/26819042/", items[0].URL)
	assert.Equal(t, "Silver D, Huang A. Published in Nature. 2016 Jan 28. doi: 10.1038/nature16961", items[0].Snippet)
}

func TestPubMedClientNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"esearchresult":{"idlist":[]}}`))
	}))
	defer srv.Close()

	items, err := NewPubMedClient(config.PubMedConfig{}, WithBaseURL(srv.URL)).Search(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPubMedClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewPubMedClient(config.PubMedConfig{}, WithBaseURL(srv.URL)).Search(context.Background(), "x", 5)
	assert.ErrorIs(t, err, ErrRateLimited)
}
