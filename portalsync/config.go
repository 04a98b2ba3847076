package portalsync

import "time"

func DefaultConfig() Config {
	return Config{
		BatchThreshold:   1,
		SubmitTimeout:    30 * time.Second,
		MaxRetries:       3,
		RetryBackoff:     5 * time.Second,
		RestoreOnFailure: true,
		FetchTimeout:     30 * time.Second,
	}
}

type Config struct {
	// BatchThreshold is the minimum number of pending records that triggers a submission.
	// Values below 1 are treated as 1.
	BatchThreshold int `mapstructure:"batch-threshold"`

	// MaxBatchSize caps the number of records in a single submission. Zero means unbounded.
	MaxBatchSize int `mapstructure:"max-batch-size"`

	// SubmitTimeout is how long a submission may stay in flight before it is
	// abandoned as stuck. Zero disables the check.
	SubmitTimeout time.Duration `mapstructure:"submit-timeout"`

	// MaxRetries is the number of consecutive failed submissions retried by a single
	// flush loop before it gives up and waits for the next observation.
	MaxRetries int `mapstructure:"max-retries"`

	// RetryBackoff is the pause between failed submissions, and between attempts of the initial sync.
	RetryBackoff time.Duration `mapstructure:"retry-backoff"`

	// SubmitRate limits submissions per second. Zero disables pacing.
	SubmitRate float64 `mapstructure:"submit-rate"`

	// SubmitBurst is the number of submissions allowed back to back when SubmitRate is set.
	SubmitBurst int `mapstructure:"submit-burst"`

	// RestoreOnFailure puts the records of a failed submission back into the pending set.
	// When false a failed batch is dropped.
	RestoreOnFailure bool `mapstructure:"restore-on-failure"`

	// RefreshInterval is the period of index refreshes done by Run. Zero means
	// only the initial sync.
	RefreshInterval time.Duration `mapstructure:"refresh-interval"`

	// FetchTimeout bounds a single index fetch.
	FetchTimeout time.Duration `mapstructure:"fetch-timeout"`

	// AdoptRemoteRegion replaces the local region with the one published by the
	// index service, when the client exposes it.
	AdoptRemoteRegion bool `mapstructure:"adopt-remote-region"`
}
