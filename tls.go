package blip

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// TLSOptions holds the client credentials (PKCS#12) and the trust material
// (PEM or DER certificates) of an encrypted connection. Each can be given as
// a file or as an in-memory blob.
type TLSOptions struct {
	ClientCredentials     string
	ClientCredentialsBlob []byte
	Password              string
	TrustMaterial         string
	TrustMaterialBlob     []byte
}

func TLSFromFiles(credentials, password, trust string) TLSOptions {
	return TLSOptions{ClientCredentials: credentials, Password: password, TrustMaterial: trust}
}

func TLSFromBlobs(credentials []byte, password string, trust []byte) TLSOptions {
	return TLSOptions{ClientCredentialsBlob: credentials, Password: password, TrustMaterialBlob: trust}
}

func (o TLSOptions) hasCredentials() bool {
	return o.ClientCredentials != "" || len(o.ClientCredentialsBlob) > 0
}

func (o TLSOptions) hasTrust() bool {
	return o.TrustMaterial != "" || len(o.TrustMaterialBlob) > 0
}

func (o TLSOptions) IsZero() bool {
	return !o.hasCredentials() && !o.hasTrust() && o.Password == ""
}

// Complete reports whether credentials, password and trust material are all set.
func (o TLSOptions) Complete() bool {
	return o.hasCredentials() && o.hasTrust() && o.Password != ""
}

func (o TLSOptions) validate(e *ConfigError) {
	if o.IsZero() || o.Complete() {
		return
	}
	if !o.hasCredentials() {
		e.add("tls: client credentials are missing")
	}
	if o.Password == "" {
		e.add("tls: client credentials password is missing")
	}
	if !o.hasTrust() {
		e.add("tls: trust material is missing")
	}
}

func readMaterial(path string, blob []byte) ([]byte, error) {
	if len(blob) > 0 {
		return blob, nil
	}
	return os.ReadFile(path)
}

// Config builds the client TLS configuration.
func (o TLSOptions) Config() (*tls.Config, error) {
	if !o.Complete() {
		return nil, errors.New("tls: incomplete options")
	}

	p12, err := readMaterial(o.ClientCredentials, o.ClientCredentialsBlob)
	if err != nil {
		return nil, fmt.Errorf("tls: read client credentials: %w", err)
	}
	key, cert, err := pkcs12.Decode(p12, o.Password)
	if err != nil {
		return nil, fmt.Errorf("tls: decode client credentials: %w", err)
	}

	trust, err := readMaterial(o.TrustMaterial, o.TrustMaterialBlob)
	if err != nil {
		return nil, fmt.Errorf("tls: read trust material: %w", err)
	}
	pool, err := certPool(trust)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}},
		RootCAs: pool,
	}, nil
}

func certPool(material []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if pool.AppendCertsFromPEM(material) {
		return pool, nil
	}
	certs, err := x509.ParseCertificates(material)
	if err != nil {
		return nil, fmt.Errorf("tls: parse trust material: %w", err)
	}
	if len(certs) == 0 {
		return nil, errors.New("tls: trust material holds no certificates")
	}
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}
