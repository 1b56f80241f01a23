package libreconcile

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

func testHandler(t *testing.T, store *fakeStore) *HTTP {
	t.Helper()
	ctx := zlog.Test(context.Background(), t)
	l, err := New(ctx, &Options{Store: store})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close(ctx) })
	return NewHandler(l)
}

// testServer starts an httptest.Server whose request contexts are tied to the
// test via zlog, so handler log writes reach the test's log sink.
func testServer(t *testing.T, h *HTTP) *httptest.Server {
	t.Helper()
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewUnstartedServer(h)
	srv.Config.BaseContext = func(net.Listener) context.Context { return ctx }
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

func TestHandlerReconcile(t *testing.T) {
	known := uuid.New()
	store := &fakeStore{
		reconcile: func(_ context.Context, obs *purldb.Observation, _ int) (*purldb.ReconcileResult, error) {
			if obs.DownloadURL == "" {
				return &purldb.ReconcileResult{Err: "no download_url: cannot create or update a package"}, nil
			}
			return &purldb.ReconcileResult{
				Created: true,
				Package: &purldb.Package{UUID: known, Name: obs.Name},
			}, nil
		},
	}
	h := testHandler(t, store)
	srv := testServer(t, h)

	t.Run("Created", func(t *testing.T) {
		body := `{"Type":"pypi","Name":"foo","Version":"1.0.0","DownloadURL":"https://example.com/foo.tar.gz"}`
		res, err := http.Post(srv.URL+"/reconcile", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusCreated {
			t.Errorf("got status %d", res.StatusCode)
		}
		if loc := res.Header.Get("location"); !strings.Contains(loc, known.String()) {
			t.Errorf("bad location header %q", loc)
		}
	})
	t.Run("Rejected", func(t *testing.T) {
		body := `{"Type":"pypi","Name":"foo"}`
		res, err := http.Post(srv.URL+"/reconcile", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("got status %d", res.StatusCode)
		}
		var rr purldb.ReconcileResult
		if err := json.NewDecoder(res.Body).Decode(&rr); err != nil {
			t.Fatal(err)
		}
		if rr.Err == "" {
			t.Error("rejection reason missing from body")
		}
	})
	t.Run("BadJSON", func(t *testing.T) {
		res, err := http.Post(srv.URL+"/reconcile", "application/json", strings.NewReader(`{`))
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
	t.Run("MethodNotAllowed", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/reconcile")
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
}

func TestHandlerPackage(t *testing.T) {
	known := uuid.New()
	store := &fakeStore{
		byUUID: func(_ context.Context, id uuid.UUID) (*purldb.Package, error) {
			if id == known {
				return &purldb.Package{UUID: known, Type: "pypi", Name: "foo", Version: "1.0.0"}, nil
			}
			return nil, nil
		},
	}
	h := testHandler(t, store)
	srv := testServer(t, h)

	t.Run("OK", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package/" + known.String())
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("got status %d", res.StatusCode)
		}
		var pkg purldb.Package
		if err := json.NewDecoder(res.Body).Decode(&pkg); err != nil {
			t.Fatal(err)
		}
		if pkg.UUID != known {
			t.Errorf("got package %v", pkg.UUID)
		}
	})
	t.Run("Enhanced", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package/" + known.String() + "/enhanced")
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
	t.Run("NotFound", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package/" + uuid.NewString())
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusNotFound {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
	t.Run("BadUUID", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package/not-a-uuid")
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
	t.Run("UnknownSubresource", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package/" + known.String() + "/bogus")
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusNotFound {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
}

func TestHandlerPackageByPURL(t *testing.T) {
	store := &fakeStore{
		byPURL: func(_ context.Context, purl string) (*purldb.Package, error) {
			if purl == "pkg:pypi/foo@1.0.0" {
				return &purldb.Package{Type: "pypi", Name: "foo", Version: "1.0.0"}, nil
			}
			return nil, nil
		},
	}
	h := testHandler(t, store)
	srv := testServer(t, h)

	t.Run("OK", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package?purl=" + "pkg:pypi/foo@1.0.0")
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
	t.Run("Missing", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package?purl=" + "pkg:pypi/bar@2.0.0")
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusNotFound {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
	t.Run("NoParam", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/package")
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("got status %d", res.StatusCode)
		}
	})
}
