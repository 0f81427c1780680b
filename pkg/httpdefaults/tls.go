// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package httpdefaults provides the HTTP transport of the storage clients.
package httpdefaults

import (
	"crypto/tls"
	"crypto/x509"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
)

type cachedPool struct {
	pool *x509.CertPool
	st   fs.FileInfo
}

var (
	cache   = map[string]cachedPool{}
	cacheMu sync.Mutex
)

// RootCAs provides a cached, but refreshed, pool of the CAs in the PEM file.
//
// If loading certificates fails for any reason, function returns nil.
func RootCAs(path string) *x509.CertPool {
	st, err := os.Stat(path)
	if err != nil {
		return nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	// check if the file hasn't changed
	if cached, ok := cache[path]; ok && cached.st.ModTime().Equal(st.ModTime()) && cached.st.Size() == st.Size() {
		return cached.pool.Clone()
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(contents) {
		return nil
	}

	cache[path] = cachedPool{pool: pool, st: st}

	return pool.Clone()
}

// Transport returns a pooled transport.
//
// With a caFile the transport trusts only the CAs of the file, the system CAs are used
// otherwise or when the file can't be loaded.
func Transport(caFile string) *http.Transport {
	transport := cleanhttp.DefaultPooledTransport()

	if caFile == "" {
		return transport
	}

	transport.TLSClientConfig = &tls.Config{
		RootCAs:    RootCAs(caFile),
		MinVersion: tls.VersionTLS12,
	}

	return transport
}
