package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig holds PEM paths for mutual TLS between peers.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// Load builds a mutual-TLS config. A nil or empty TLSConfig yields
// (nil, nil) and peers talk plain TCP; a partially filled one is an error.
func (c *TLSConfig) Load() (*tls.Config, error) {
	if c == nil || (c.CACert == "" && c.NodeCert == "" && c.NodeKey == "") {
		return nil, nil
	}
	if c.CACert == "" || c.NodeCert == "" || c.NodeKey == "" {
		return nil, errors.New("tls: ca_cert, node_cert and node_key must all be set")
	}

	cert, err := tls.LoadX509KeyPair(c.NodeCert, c.NodeKey)
	if err != nil {
		return nil, fmt.Errorf("tls: load node key pair: %w", err)
	}
	caPEM, err := os.ReadFile(c.CACert)
	if err != nil {
		return nil, fmt.Errorf("tls: read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("tls: no certificates in %s", c.CACert)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		RootCAs:      pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
