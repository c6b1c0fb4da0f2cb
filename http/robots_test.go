package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/usefocal/focal"
	focalhttp "github.com/usefocal/focal/http"
)

func TestRobotsPolicy_Allowed_DisallowRules(t *testing.T) {
	t.Parallel()

	robotsTxt := `User-agent: *
Disallow: /private/
Disallow: /admin
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(robotsTxt))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	policy := focalhttp.NewRobotsPolicy(srv.Client(), "focalbot")
	ctx := context.Background()

	assert.True(t, policy.Allowed(ctx, srv.URL+"/docs/intro"))
	assert.True(t, policy.Allowed(ctx, srv.URL+"/"))
	assert.False(t, policy.Allowed(ctx, srv.URL+"/private/secrets"))
	assert.False(t, policy.Allowed(ctx, srv.URL+"/admin"))
}

func TestRobotsPolicy_Allowed_AgentSpecificGroup(t *testing.T) {
	t.Parallel()

	robotsTxt := `User-agent: *
Disallow:

User-agent: focalbot
Disallow: /blocked/
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte(robotsTxt))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx := context.Background()

	bot := focalhttp.NewRobotsPolicy(srv.Client(), "focalbot")
	assert.False(t, bot.Allowed(ctx, srv.URL+"/blocked/page"))
	assert.True(t, bot.Allowed(ctx, srv.URL+"/open/page"))

	other := focalhttp.NewRobotsPolicy(srv.Client(), "otherbot")
	assert.True(t, other.Allowed(ctx, srv.URL+"/blocked/page"))
}

func TestRobotsPolicy_Allowed_FailOpenOnMissingRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	policy := focalhttp.NewRobotsPolicy(srv.Client(), "focalbot")
	assert.True(t, policy.Allowed(context.Background(), srv.URL+"/anything"))
}

func TestRobotsPolicy_Allowed_FailOpenOnServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	policy := focalhttp.NewRobotsPolicy(srv.Client(), "focalbot")
	assert.True(t, policy.Allowed(context.Background(), srv.URL+"/anything"))
}

func TestRobotsPolicy_Allowed_FailOpenOnUnreachableHost(t *testing.T) {
	t.Parallel()

	policy := focalhttp.NewRobotsPolicy(nil, "focalbot")
	assert.True(t, policy.Allowed(context.Background(), "http://non-existent-host.invalid/page"))
}

func TestRobotsPolicy_Allowed_UnparseableURL(t *testing.T) {
	t.Parallel()

	policy := focalhttp.NewRobotsPolicy(nil, "focalbot")

	// Fetching these will fail with a better error than we can give here.
	assert.True(t, policy.Allowed(context.Background(), "::not a url"))
	assert.True(t, policy.Allowed(context.Background(), "/relative/path"))
}

func TestRobotsPolicy_Allowed_CachesPerHost(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	robotsTxt := `User-agent: *
Disallow: /private/
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fetches.Add(1)
			_, _ = w.Write([]byte(robotsTxt))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	policy := focalhttp.NewRobotsPolicy(srv.Client(), "focalbot")
	ctx := context.Background()

	for range 5 {
		assert.True(t, policy.Allowed(ctx, srv.URL+"/docs/intro"))
		assert.False(t, policy.Allowed(ctx, srv.URL+"/private/page"))
	}

	assert.Equal(t, int32(1), fetches.Load(), "robots.txt should be fetched once per host")
}

// Compile-time verification that RobotsPolicy implements focal.RobotsPolicy
var _ focal.RobotsPolicy = (*focalhttp.RobotsPolicy)(nil)
