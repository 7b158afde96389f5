package worker

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

// Descriptor numbers of the listeners handed down by the master.
const (
	PlainListenerFD = 3
	TLSListenerFD   = 4
)

// ServerTLSConfig loads the server key pair and the client CA. Client
// certificates are requested but optional: a caller without one is served
// anonymously.
func ServerTLSConfig(certFile, keyFile, clientCAFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	pem, err := os.ReadFile(clientCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("client CA file contains no certificates")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.VerifyClientCertIfGiven,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// InheritedListeners rebuilds the listeners passed as extra files. The TLS
// listener is only present when withTLS is set.
func InheritedListeners(withTLS bool) (plain, secure net.Listener, err error) {
	plain, err = fileListener(PlainListenerFD, "plain")
	if err != nil {
		return nil, nil, err
	}
	if !withTLS {
		return plain, nil, nil
	}
	secure, err = fileListener(TLSListenerFD, "tls")
	if err != nil {
		plain.Close()
		return nil, nil, err
	}
	return plain, secure, nil
}

func fileListener(fd uintptr, name string) (net.Listener, error) {
	f := os.NewFile(fd, name)
	if f == nil {
		return nil, fmt.Errorf("listener descriptor %d is not open", fd)
	}
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("failed to inherit %s listener: %w", name, err)
	}
	return l, nil
}
