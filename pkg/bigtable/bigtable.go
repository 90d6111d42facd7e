// Package bigtable opens Cloud Bigtable clients and bootstraps tables.
package bigtable

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigtable"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type settings struct {
	appProfile   string
	emulatorHost string
	clientOpts   []option.ClientOption
}

type Option func(*settings)

// WithAppProfile routes requests through the given app profile.
func WithAppProfile(profile string) Option {
	return func(s *settings) {
		s.appProfile = profile
	}
}

// WithEmulator connects to a Bigtable emulator (or bttest server) listening on host
// over a plaintext gRPC connection without credentials.
func WithEmulator(host string) Option {
	return func(s *settings) {
		s.emulatorHost = host
	}
}

// WithClientOptions appends raw client options, e.g. explicit credentials.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

func newSettings(opts []Option) (*settings, error) {
	const op = "bigtable.newSettings"

	s := new(settings)
	for _, opt := range opts {
		opt(s)
	}

	if s.emulatorHost != "" {
		conn, err := grpc.NewClient(s.emulatorHost, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("%s: failed to dial emulator: %w", op, err)
		}
		s.clientOpts = append(s.clientOpts, option.WithGRPCConn(conn))
	}

	return s, nil
}

func (s *settings) clientConfig() bigtable.ClientConfig {
	cfg := bigtable.ClientConfig{AppProfile: s.appProfile}
	if s.emulatorHost != "" {
		cfg.MetricsProvider = bigtable.NoopMetricsProvider{}
	}
	return cfg
}

// New opens a data client for the given project and instance.
// The caller owns the client and must Close it on shutdown.
func New(ctx context.Context, project, instance string, opts ...Option) (*bigtable.Client, error) {
	const op = "bigtable.New"

	s, err := newSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client, err := bigtable.NewClientWithConfig(ctx, project, instance, s.clientConfig(), s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create client: %w", op, err)
	}

	return client, nil
}
