// Package splitproxy sends read-only requests to a query server and
// everything else to the api server.
package splitproxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/andrebq/postbox/internal/httpjson"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/julienschmidt/httprouter"
)

var (
	readMethods = []string{"GET", "HEAD"}

	readRoutes = []string{
		"/",
		"/post/:id",
		"/static/*filepath",
		"/api/posts",
		"/api/posts/:id",
	}
)

func AsHandler(ctx context.Context, apiCalls *url.URL, queryCalls *url.URL) (http.Handler, error) {
	if apiCalls == nil || queryCalls == nil {
		return nil, errors.New("split proxy requires both api and query endpoints")
	}
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = false

	apiProxy := newProxy(ctx, "api", apiCalls)
	queryProxy := newProxy(ctx, "query", queryCalls)

	for _, m := range readMethods {
		for _, r := range readRoutes {
			router.Handler(m, r, queryProxy)
		}
	}

	// writes, sessions and anything unknown
	router.NotFound = apiProxy

	return router, nil
}

func newProxy(ctx context.Context, name string, target *url.URL) *httputil.ReverseProxy {
	log := logutil.GetOrDefault(ctx).With().Str("upstream", name).Str("upstream.url", target.String()).Logger()
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Upstream unavailable")
		httpjson.Error(w, http.StatusBadGateway, "Upstream unavailable")
	}
	return proxy
}
