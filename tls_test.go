package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	"github.com/pkg/errors"
)

// CertificateSet is a self-signed CA plus a server and a client leaf, used
// to run mutually authenticated TLS in tests
type CertificateSet struct {
	CAKey  *ecdsa.PrivateKey
	CACert *x509.Certificate

	ServerKey  *ecdsa.PrivateKey
	ServerCert *x509.Certificate

	ClientKey  *ecdsa.PrivateKey
	ClientCert *x509.Certificate

	CAPool *x509.CertPool
}

func (set *CertificateSet) Generate(hostnames []string, ips []net.IP) error {
	var err error

	if set.CAKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader); err != nil {
		return errors.Wrap(err, "error generating CA key")
	}

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	if set.CACert, err = createCertificate(caTemplate, caTemplate, &set.CAKey.PublicKey, set.CAKey); err != nil {
		return errors.Wrap(err, "error generating CA certificate")
	}

	if set.ServerKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader); err != nil {
		return errors.Wrap(err, "error generating server key")
	}

	serverTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Server"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     hostnames,
		IPAddresses:  ips,
	}

	if set.ServerCert, err = createCertificate(serverTemplate, set.CACert, &set.ServerKey.PublicKey, set.CAKey); err != nil {
		return errors.Wrap(err, "error generating server certificate")
	}

	if set.ClientKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader); err != nil {
		return errors.Wrap(err, "error generating client key")
	}

	clientTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "Test Client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	if set.ClientCert, err = createCertificate(clientTemplate, set.CACert, &set.ClientKey.PublicKey, set.CAKey); err != nil {
		return errors.Wrap(err, "error generating client certificate")
	}

	set.CAPool = x509.NewCertPool()
	set.CAPool.AddCert(set.CACert)

	return nil
}

func createCertificate(template, parent *x509.Certificate, pub *ecdsa.PublicKey, priv *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, priv)
	if err != nil {
		return nil, err
	}

	return x509.ParseCertificate(der)
}

// ServerTLSConfig requires and verifies client certificates against the CA
func (set *CertificateSet) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{
			{
				Certificate: [][]byte{set.ServerCert.Raw},
				PrivateKey:  set.ServerKey,
			},
		},
		ClientCAs:  set.CAPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
	}
}

// ClientTLSConfig presents the client certificate and trusts the CA
func (set *CertificateSet) ClientTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{
			{
				Certificate: [][]byte{set.ClientCert.Raw},
				PrivateKey:  set.ClientKey,
			},
		},
		RootCAs: set.CAPool,
	}
}
