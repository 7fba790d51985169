package certs

import (
	"crypto/x509"
	"testing"
)

func testSigner(t *testing.T) (*Signer, *x509.Certificate) {
	t.Helper()
	store := testStore(t)
	root, key, err := store.Ensure()
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	signer, err := NewSigner(root, key)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return signer, root
}

func TestSigner_MintsVerifiableLeaf(t *testing.T) {
	signer, root := testSigner(t)

	cert, err := signer.CertFor("api.segment.io")
	if err != nil {
		t.Fatalf("CertFor failed: %v", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)
	if _, err := cert.Leaf.Verify(x509.VerifyOptions{DNSName: "api.segment.io", Roots: roots}); err != nil {
		t.Errorf("Leaf does not verify against root: %v", err)
	}

	// Multi-label hosts also get a wildcard SAN for their siblings.
	if _, err := cert.Leaf.Verify(x509.VerifyOptions{DNSName: "cdn.segment.io", Roots: roots}); err != nil {
		t.Errorf("Wildcard SAN missing: %v", err)
	}
}

func TestSigner_StripsPort(t *testing.T) {
	signer, _ := testSigner(t)

	cert, err := signer.CertFor("example.com:443")
	if err != nil {
		t.Fatalf("CertFor failed: %v", err)
	}
	if cert.Leaf.Subject.CommonName != "example.com" {
		t.Errorf("Expected CN 'example.com', got %q", cert.Leaf.Subject.CommonName)
	}
}

func TestSigner_CachesPerHost(t *testing.T) {
	signer, _ := testSigner(t)

	a, err := signer.CertFor("example.com")
	if err != nil {
		t.Fatal(err)
	}
	b, err := signer.CertFor("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Expected the cached certificate on the second call")
	}
	if signer.CacheSize() != 1 {
		t.Errorf("Expected cache size 1, got %d", signer.CacheSize())
	}

	if _, err := signer.CertFor("other.com"); err != nil {
		t.Fatal(err)
	}
	if signer.CacheSize() != 2 {
		t.Errorf("Expected cache size 2, got %d", signer.CacheSize())
	}
}

func TestSigner_IPLiteral(t *testing.T) {
	signer, root := testSigner(t)

	cert, err := signer.CertFor("127.0.0.1")
	if err != nil {
		t.Fatalf("CertFor failed: %v", err)
	}
	if len(cert.Leaf.IPAddresses) != 1 {
		t.Fatalf("Expected one IP SAN, got %d", len(cert.Leaf.IPAddresses))
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)
	if _, err := cert.Leaf.Verify(x509.VerifyOptions{Roots: roots}); err != nil {
		t.Errorf("IP leaf does not verify: %v", err)
	}
}
