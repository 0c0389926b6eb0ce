package options

import (
	"log/slog"
	"time"

	"github.com/medvault/passkey/pkg/config"
)

type Options struct {
	Logger               *slog.Logger
	Clock                func() time.Time
	RelyingParty         *config.RelyingPartyConfig
	AuthenticatorOptions config.AuthenticatorOptions
	StorageKeys          config.StorageKeys
	ChallengeSize        int
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithClock overrides the time source used to stamp credential records.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

func WithRelyingParty(rp config.RelyingPartyConfig) Option {
	return func(opts *Options) {
		opts.RelyingParty = &rp
	}
}

func WithAuthenticatorOptions(ao config.AuthenticatorOptions) Option {
	return func(opts *Options) {
		opts.AuthenticatorOptions = ao
	}
}

func WithStorageKeys(keys config.StorageKeys) Option {
	return func(opts *Options) {
		opts.StorageKeys = keys
	}
}

func WithChallengeSize(size int) Option {
	return func(opts *Options) {
		opts.ChallengeSize = size
	}
}

func NewOptions(opts ...Option) *Options {
	oo := &Options{
		Logger:               slog.Default(),
		Clock:                time.Now,
		AuthenticatorOptions: config.DefaultAuthenticatorOptions(),
		StorageKeys:          config.DefaultStorageKeys(),
		ChallengeSize:        config.ChallengeSize,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
