package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// certRecheckInterval bounds how often the key pair files are stat'ed.
const certRecheckInterval = time.Minute

// certLoader serves the TLS key pair for the daemon's listener and picks up
// a renewed certificate without a restart.
type certLoader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	cert      *tls.Certificate
	modTime   time.Time
	lastCheck time.Time
}

func newCertLoader(certFile, keyFile string, logger *slog.Logger) (*certLoader, error) {
	l := &certLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
		now:      time.Now,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	l.lastCheck = l.now()
	return l, nil
}

// tlsConfig returns a tls.Config that asks the loader for each handshake.
func (l *certLoader) tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: l.getCertificate,
	}
}

// getCertificate returns the current key pair, reloading it if either file
// changed since it was loaded. A failed reload keeps serving the old pair.
func (l *certLoader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now().Sub(l.lastCheck) < certRecheckInterval {
		return l.cert, nil
	}
	l.lastCheck = l.now()

	modTime, err := l.latestModTime()
	if err != nil {
		l.logger.Error("failed to stat tls key pair", "error", err)
		return l.cert, nil
	}
	if modTime.After(l.modTime) {
		if err := l.load(); err != nil {
			l.logger.Error("failed to reload tls certificate", "error", err)
		}
	}
	return l.cert, nil
}

func (l *certLoader) latestModTime() (time.Time, error) {
	var latest time.Time
	for _, path := range []string{l.certFile, l.keyFile} {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

func (l *certLoader) load() error {
	modTime, err := l.latestModTime()
	if err != nil {
		return fmt.Errorf("failed to stat tls key pair: %w", err)
	}
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load tls key pair: %w", err)
	}
	l.cert = &cert
	l.modTime = modTime
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
