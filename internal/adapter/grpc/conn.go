package grpcadapter

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ConnPool caches one *grpc.ClientConn per upstream target, dialing lazily
// and reusing the connection across requests.
type ConnPool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewConnPool builds an empty ConnPool.
func NewConnPool() *ConnPool {
	return &ConnPool{conns: make(map[string]*grpc.ClientConn)}
}

// Get returns a connection to server, dialing it on first use. The channel
// is TLS-secured when server carries the "grpcs://" scheme, insecure
// otherwise (including bare "grpc://" or no scheme at all).
func (p *ConnPool) Get(server string) (*grpc.ClientConn, error) {
	target, secure := splitScheme(server)

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[server]; ok {
		return conn, nil
	}

	var creds credentials.TransportCredentials
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("grpcadapter: dial %s: %w", target, err)
	}
	p.conns[server] = conn
	return conn, nil
}

// Close tears down every pooled connection.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func splitScheme(server string) (target string, secure bool) {
	switch {
	case strings.HasPrefix(server, "grpcs://"):
		return strings.TrimPrefix(server, "grpcs://"), true
	case strings.HasPrefix(server, "grpc://"):
		return strings.TrimPrefix(server, "grpc://"), false
	default:
		return server, false
	}
}
