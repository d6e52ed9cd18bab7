package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// PackageServer serves artifacts under the download service layout and
// counts requests per path.
type PackageServer struct {
	*httptest.Server

	mu        sync.Mutex
	artifacts map[string][]byte
	hits      map[string]int
}

// NewPackageServer starts a server that is closed with the test.
func NewPackageServer(t *testing.T) *PackageServer {
	t.Helper()
	ps := &PackageServer{
		artifacts: map[string][]byte{},
		hits:      map[string]int{},
	}
	ps.Server = httptest.NewServer(http.HandlerFunc(ps.serve))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *PackageServer) serve(w http.ResponseWriter, r *http.Request) {
	ps.mu.Lock()
	ps.hits[r.URL.Path]++
	data, ok := ps.artifacts[r.URL.Path]
	ps.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// PackagePath is the request path of a non-core package.
func PackagePath(id, version string) string {
	return "/package/" + id + "/" + version
}

// UpdatePath is the request path of a core update.
func UpdatePath(version string) string {
	return "/update/" + version
}

// Serve registers raw bytes at path.
func (ps *PackageServer) Serve(path string, data []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.artifacts[path] = data
}

// AddPackage builds pkg and serves it as a regular package.
func (ps *PackageServer) AddPackage(t *testing.T, pkg Package) {
	t.Helper()
	ps.Serve(PackagePath(pkg.ID, pkg.Version), BuildNupkg(t, pkg))
}

// AddCore builds pkg and serves it as a core update.
func (ps *PackageServer) AddCore(t *testing.T, pkg Package) {
	t.Helper()
	ps.Serve(UpdatePath(pkg.Version), BuildNupkg(t, pkg))
}

// Hits returns how many requests reached path.
func (ps *PackageServer) Hits(path string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.hits[path]
}

// TotalHits returns the number of requests served.
func (ps *PackageServer) TotalHits() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	total := 0
	for _, n := range ps.hits {
		total += n
	}
	return total
}
