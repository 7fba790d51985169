// MIT License
//
// Copyright (c) 2026 jnakagawa
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
)

const caCommonName = "Loggy Proxy CA"

// Store manages the self-signed root CA pair on disk. The certificate is
// world-readable so it can be imported into trust stores; the key is 0600.
type Store struct {
	certPath string
	keyPath  string
	logger   *pterm.Logger
}

// NewStore creates a store over the given PEM file locations.
func NewStore(certPath, keyPath string, logger *pterm.Logger) *Store {
	return &Store{certPath: certPath, keyPath: keyPath, logger: logger}
}

// CertPath returns the on-disk location of the root certificate.
func (s *Store) CertPath() string { return s.certPath }

// Ensure loads the persisted root CA pair, generating a fresh one first if
// either file is missing. Idempotent: repeated calls return the same pair.
func (s *Store) Ensure() (*x509.Certificate, *rsa.PrivateKey, error) {
	if !fileExists(s.certPath) || !fileExists(s.keyPath) {
		if err := s.generate(); err != nil {
			return nil, nil, fmt.Errorf("failed to generate CA: %w", err)
		}
	}
	return s.load()
}

// generate creates a new 2048-bit RSA root and a self-signed X.509v3
// certificate valid for 10 years, backdated one day for clock skew.
func (s *Store) generate() error {
	if err := os.MkdirAll(filepath.Dir(s.certPath), 0755); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   caCommonName,
			Organization: []string{"Loggy Proxy"},
		},
		NotBefore:             time.Now().AddDate(0, 0, -1),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            2,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := writePEM(s.certPath, "CERTIFICATE", der, 0644); err != nil {
		return fmt.Errorf("failed to write CA cert: %w", err)
	}
	if err := writePEM(s.keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}

	s.logger.Info("Generated root CA", s.logger.Args("cert", s.certPath))
	return nil
}

// load parses the persisted pair. Parse failures are surfaced to the caller
// and are fatal at proxy start.
func (s *Store) load() (*x509.Certificate, *rsa.PrivateKey, error) {
	certDER, err := readPEM(s.certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA cert: %w", err)
	}

	keyDER, err := readPEM(s.keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyDER)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return cert, key, nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}

func readPEM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	return block.Bytes, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
