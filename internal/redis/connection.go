// Package redis holds the redigo pool and dialing shared by Redis backed
// statistics.
package redis

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	brokerErrors "github.com/BranchIntl/gobroker/errors"
	"github.com/gomodule/redigo/redis"
)

var (
	// ErrInvalidScheme is returned when the Redis URI scheme is invalid
	ErrInvalidScheme = errors.New("invalid Redis database URI scheme")
)

// Options configure dialing and pooling
type Options struct {
	URI            string
	MaxConnections int
	MaxIdle        int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// TLS options
	UseTLS        bool
	TLSSkipVerify bool
	TLSCertPath   string
}

// DefaultOptions returns default connection options
func DefaultOptions() Options {
	return Options{
		URI:            "redis://localhost:6379/",
		MaxConnections: 10,
		MaxIdle:        2,
		IdleTimeout:    240 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// NewPool creates a Redis connection pool. Connections are dialed lazily.
func NewPool(options Options) *redis.Pool {
	return &redis.Pool{
		MaxActive:   options.MaxConnections,
		MaxIdle:     options.MaxIdle,
		IdleTimeout: options.IdleTimeout,
		Dial: func() (redis.Conn, error) {
			return Dial(options)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Ping borrows a connection and checks the server answers
func Ping(pool *redis.Pool, uri string) error {
	conn := pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return brokerErrors.NewConnectionError(Redact(uri), fmt.Errorf("ping failed: %w", err))
	}
	return nil
}

// Dial establishes a Redis connection: redis://, rediss:// (TLS) or unix://
func Dial(options Options) (redis.Conn, error) {
	safeURI := Redact(options.URI)
	uri, err := url.Parse(options.URI)
	if err != nil {
		return nil, brokerErrors.NewConnectionError(safeURI,
			fmt.Errorf("invalid URI: %w", err))
	}

	var (
		network  string
		host     string
		password string
		db       string
	)
	dialOptions := []redis.DialOption{
		redis.DialConnectTimeout(options.ConnectTimeout),
		redis.DialReadTimeout(options.ReadTimeout),
		redis.DialWriteTimeout(options.WriteTimeout),
	}

	switch uri.Scheme {
	case "redis", "rediss":
		network = "tcp"
		host = uri.Host
		if uri.User != nil {
			password, _ = uri.User.Password()
		}
		if len(uri.Path) > 1 {
			db = uri.Path[1:]
		}

		if uri.Scheme == "rediss" || options.UseTLS {
			tlsConfig := &tls.Config{
				InsecureSkipVerify: options.TLSSkipVerify,
			}
			if options.TLSCertPath != "" {
				pool, err := LoadCertPool(options.TLSCertPath)
				if err != nil {
					return nil, err
				}
				tlsConfig.RootCAs = pool
			}
			dialOptions = append(dialOptions,
				redis.DialUseTLS(true),
				redis.DialTLSConfig(tlsConfig),
			)
		}
	case "unix":
		network = "unix"
		host = uri.Path
	default:
		return nil, brokerErrors.NewConnectionError(safeURI, ErrInvalidScheme)
	}

	conn, err := redis.Dial(network, host, dialOptions...)
	if err != nil {
		return nil, brokerErrors.NewConnectionError(safeURI,
			fmt.Errorf("failed to connect: %w", err))
	}

	if password != "" {
		if _, err := conn.Do("AUTH", password); err != nil {
			conn.Close()
			return nil, brokerErrors.NewConnectionError(safeURI,
				fmt.Errorf("authentication failed: %w", err))
		}
	}

	if db != "" {
		if _, err := conn.Do("SELECT", db); err != nil {
			conn.Close()
			return nil, brokerErrors.NewConnectionError(safeURI,
				fmt.Errorf("failed to select database: %w", err))
		}
	}

	return conn, nil
}

// Redact hides the password in a connection URI
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}

// LoadCertPool loads a certificate pool from a file
func LoadCertPool(certPath string) (*x509.CertPool, error) {
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}

	certs, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cert file %q: %w", certPath, err)
	}

	if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
		return nil, fmt.Errorf("failed to append certs from %q", certPath)
	}

	return rootCAs, nil
}
