package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Options задаёт параметры TLS и таймаута исходящих запросов.
type Options struct {
	// Insecure отключает проверку сертификата. Только для локальной отладки.
	Insecure bool
	// CABundle — путь к PEM-файлу с дополнительными корневыми сертификатами.
	CABundle string
	Timeout  time.Duration
}

// New создаёт HTTP клиента с учётом настроек TLS.
func New(opts Options) (*http.Client, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.CABundle != "" {
		pem, err := os.ReadFile(opts.CABundle)
		if err != nil {
			return nil, fmt.Errorf("httpclient: read ca bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("httpclient: no certificates in %s", opts.CABundle)
		}
		tlsCfg.RootCAs = pool
	}
	if opts.Insecure {
		tlsCfg.InsecureSkipVerify = true
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
