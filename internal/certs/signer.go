package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"
)

// maxSerialNumber bounds the random serials of minted leaf certificates.
var maxSerialNumber = new(big.Int).Lsh(big.NewInt(1), 128)

// Signer mints short-lived leaf certificates signed by the root CA. One RSA
// key is generated per process and shared by every leaf; minted certificates
// are memoized per hostname so repeat connections skip the signing cost.
type Signer struct {
	root    *x509.Certificate
	rootKey *rsa.PrivateKey

	leafKey *rsa.PrivateKey
	keyID   []byte

	validity time.Duration

	mu    sync.RWMutex
	cache map[string]*tls.Certificate
}

// NewSigner prepares a signer backed by the given root pair.
func NewSigner(root *x509.Certificate, rootKey *rsa.PrivateKey) (*Signer, error) {
	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate leaf key: %w", err)
	}

	// Subject Key Identifier, RFC 3280 section 4.2.1.2.
	pkixpub, err := x509.MarshalPKIXPublicKey(leafKey.Public())
	if err != nil {
		return nil, err
	}
	h := sha1.New()
	h.Write(pkixpub)

	return &Signer{
		root:     root,
		rootKey:  rootKey,
		leafKey:  leafKey,
		keyID:    h.Sum(nil),
		validity: 7 * 24 * time.Hour,
		cache:    make(map[string]*tls.Certificate),
	}, nil
}

// CertFor returns a server certificate for the given host (a bare hostname,
// an IP literal, or host:port). Cached entries are reused for the lifetime
// of the process; an expired cache entry is re-minted.
func (s *Signer) CertFor(host string) (*tls.Certificate, error) {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	s.mu.RLock()
	cert, ok := s.cache[host]
	s.mu.RUnlock()
	if ok && time.Now().Before(cert.Leaf.NotAfter) {
		return cert, nil
	}

	cert, err := s.mint(host)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[host] = cert
	s.mu.Unlock()
	return cert, nil
}

// CacheSize reports the number of distinct hosts minted this session.
func (s *Signer) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Signer) mint(host string) (*tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, maxSerialNumber)
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   host,
			Organization: []string{"Loggy Proxy"},
		},
		SubjectKeyId:          s.keyID,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(s.validity),
	}

	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{host}
		if wc := wildcardHost(host); wc != host {
			tmpl.DNSNames = append(tmpl.DNSNames, wc)
		}
	}

	raw, err := x509.CreateCertificate(rand.Reader, tmpl, s.root, s.leafKey.Public(), s.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign leaf for %s: %w", host, err)
	}

	leaf, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, err
	}

	return &tls.Certificate{
		Certificate: [][]byte{raw, s.root.Raw},
		PrivateKey:  s.leafKey,
		Leaf:        leaf,
	}, nil
}

// wildcardHost returns "*.domain" for hosts with at least three labels so a
// single leaf covers sibling subdomains. Two-label hosts get no wildcard.
func wildcardHost(host string) string {
	first := strings.Index(host, ".")
	if first <= 0 {
		return host
	}
	if strings.LastIndex(host, ".") == first {
		return host
	}
	return "*" + host[first:]
}
