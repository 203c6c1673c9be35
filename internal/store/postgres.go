package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/logging"
	"github.com/justestif/vibestream/internal/metrics"
)

const (
	defaultCallTimeout      = 5 * time.Second
	defaultMaxRetries       = 2
	defaultRetryBackoff     = 100 * time.Millisecond
	defaultFailureThreshold = 5
)

// Postgres is a Store backed by the db package. Every call runs under a
// per-call timeout and a circuit breaker; transient failures outside a
// transaction are retried a bounded number of times.
type Postgres struct {
	db      *db.DB
	breaker *gobreaker.CircuitBreaker[any]
	inTx    bool

	callTimeout      time.Duration
	maxRetries       int
	retryBackoff     time.Duration
	failureThreshold uint32
}

// Option configures a Postgres store.
type Option func(*Postgres)

// WithCallTimeout bounds every store call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Postgres) {
		p.callTimeout = d
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(p *Postgres) {
		p.maxRetries = n
	}
}

// WithRetryBackoff sets the base delay between retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Postgres) {
		p.retryBackoff = d
	}
}

// WithFailureThreshold sets the consecutive failures that open the breaker.
func WithFailureThreshold(n uint32) Option {
	return func(p *Postgres) {
		p.failureThreshold = n
	}
}

// NewPostgres creates a Store over an open database.
func NewPostgres(database *db.DB, opts ...Option) *Postgres {
	p := &Postgres{
		db:               database,
		callTimeout:      defaultCallTimeout,
		maxRetries:       defaultMaxRetries,
		retryBackoff:     defaultRetryBackoff,
		failureThreshold: defaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}

	log := logging.WithComponent("store")
	p.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.StoreBreakerState.Set(float64(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		IsSuccessful: isSuccessful,
	})
	return p
}

// isSuccessful reports whether err says nothing about database health.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, context.Canceled)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

// classify passes domain errors through and wraps everything else.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var ve *ValidationError
	var pe *PersistenceError
	if errors.As(err, &ve) || errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// call runs fn under the timeout, breaker and retry policy.
func call[T any](ctx context.Context, p *Postgres, op string, fn func(context.Context, *db.DB) (T, error)) (T, error) {
	start := time.Now()

	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}

	// A failed statement aborts the whole transaction, so retrying inside one is pointless.
	attempts := 1
	if !p.inTx && p.maxRetries > 0 {
		attempts += p.maxRetries
	}

	var (
		result T
		err    error
	)
retry:
	for attempt := 0; attempt < attempts; attempt++ {
		var res any
		res, err = p.breaker.Execute(func() (any, error) {
			return fn(ctx, p.db)
		})
		if err == nil {
			result, _ = res.(T)
			break
		}
		if !pgconn.SafeToRetry(err) || attempt == attempts-1 {
			break
		}

		metrics.RecordStoreRetry(op)
		logging.Ctx(ctx).Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("retrying store call")
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(p.retryBackoff * time.Duration(attempt+1)):
		}
	}

	metrics.RecordStoreCall(op, outcome(err), time.Since(start))
	if err != nil {
		return result, classify(op, err)
	}
	return result, nil
}

func exec(ctx context.Context, p *Postgres, op string, fn func(context.Context, *db.DB) error) error {
	_, err := call(ctx, p, op, func(ctx context.Context, d *db.DB) (struct{}, error) {
		return struct{}{}, fn(ctx, d)
	})
	return err
}

// InTx implements Store.
func (p *Postgres) InTx(ctx context.Context, fn func(Store) error) error {
	if p.inTx {
		return fn(p)
	}
	if p.breaker.State() == gobreaker.StateOpen {
		return &PersistenceError{Op: "InTx", Err: gobreaker.ErrOpenState}
	}

	var fnErr error
	err := p.db.InTx(ctx, func(tx *db.DB) error {
		fnErr = fn(&Postgres{
			db:               tx,
			breaker:          p.breaker,
			inTx:             true,
			callTimeout:      p.callTimeout,
			maxRetries:       p.maxRetries,
			retryBackoff:     p.retryBackoff,
			failureThreshold: p.failureThreshold,
		})
		return fnErr
	})
	if err != nil && errors.Is(err, fnErr) {
		return err
	}
	return classify("InTx", err)
}

// GetUser implements Store.
func (p *Postgres) GetUser(ctx context.Context, id string) (*db.User, error) {
	return call(ctx, p, "GetUser", func(ctx context.Context, d *db.DB) (*db.User, error) {
		return d.Users().Get(ctx, id)
	})
}

// UpsertUser implements Store.
func (p *Postgres) UpsertUser(ctx context.Context, u *db.User) error {
	return exec(ctx, p, "UpsertUser", func(ctx context.Context, d *db.DB) error {
		return d.Users().Upsert(ctx, u)
	})
}

// ListPlaylists implements Store.
func (p *Postgres) ListPlaylists(ctx context.Context, userID string) ([]db.Playlist, error) {
	return call(ctx, p, "ListPlaylists", func(ctx context.Context, d *db.DB) ([]db.Playlist, error) {
		return d.Playlists().ListForUser(ctx, userID)
	})
}

// GetPlaylist implements Store.
func (p *Postgres) GetPlaylist(ctx context.Context, id int64) (*db.Playlist, error) {
	return call(ctx, p, "GetPlaylist", func(ctx context.Context, d *db.DB) (*db.Playlist, error) {
		return d.Playlists().Get(ctx, id)
	})
}

// CreatePlaylist implements Store.
func (p *Postgres) CreatePlaylist(ctx context.Context, pl *db.Playlist) error {
	return exec(ctx, p, "CreatePlaylist", func(ctx context.Context, d *db.DB) error {
		return d.Playlists().Create(ctx, pl)
	})
}

// UpdatePlaylist implements Store.
func (p *Postgres) UpdatePlaylist(ctx context.Context, id int64, u db.PlaylistUpdate) (*db.Playlist, error) {
	return call(ctx, p, "UpdatePlaylist", func(ctx context.Context, d *db.DB) (*db.Playlist, error) {
		return d.Playlists().Update(ctx, id, u)
	})
}

// DeletePlaylist implements Store.
func (p *Postgres) DeletePlaylist(ctx context.Context, id int64) error {
	return exec(ctx, p, "DeletePlaylist", func(ctx context.Context, d *db.DB) error {
		return d.Playlists().Delete(ctx, id)
	})
}

// ReconcileTrackCount implements Store.
func (p *Postgres) ReconcileTrackCount(ctx context.Context, playlistID int64) (*db.Playlist, error) {
	return call(ctx, p, "ReconcileTrackCount", func(ctx context.Context, d *db.DB) (*db.Playlist, error) {
		return d.Playlists().ReconcileTrackCount(ctx, playlistID)
	})
}

// ReconcileAllTrackCounts implements Store.
func (p *Postgres) ReconcileAllTrackCounts(ctx context.Context) (int64, error) {
	return call(ctx, p, "ReconcileAllTrackCounts", func(ctx context.Context, d *db.DB) (int64, error) {
		return d.Playlists().ReconcileAllTrackCounts(ctx)
	})
}

// CreateTrack implements Store.
func (p *Postgres) CreateTrack(ctx context.Context, t *db.Track) error {
	return exec(ctx, p, "CreateTrack", func(ctx context.Context, d *db.DB) error {
		return d.Tracks().Create(ctx, t)
	})
}

// GetTrack implements Store.
func (p *Postgres) GetTrack(ctx context.Context, id int64) (*db.Track, error) {
	return call(ctx, p, "GetTrack", func(ctx context.Context, d *db.DB) (*db.Track, error) {
		return d.Tracks().Get(ctx, id)
	})
}

// GetTrackByExternalID implements Store.
func (p *Postgres) GetTrackByExternalID(ctx context.Context, externalID string) (*db.Track, error) {
	return call(ctx, p, "GetTrackByExternalID", func(ctx context.Context, d *db.DB) (*db.Track, error) {
		return d.Tracks().GetByExternalID(ctx, externalID)
	})
}

// ListTracks implements Store.
func (p *Postgres) ListTracks(ctx context.Context, limit int) ([]db.Track, error) {
	return call(ctx, p, "ListTracks", func(ctx context.Context, d *db.DB) ([]db.Track, error) {
		return d.Tracks().List(ctx, limit)
	})
}

// MatchTracksByGenre implements Store.
func (p *Postgres) MatchTracksByGenre(ctx context.Context, favorites []string, limit int) ([]db.Track, error) {
	return call(ctx, p, "MatchTracksByGenre", func(ctx context.Context, d *db.DB) ([]db.Track, error) {
		return d.Tracks().MatchGenres(ctx, favorites, limit)
	})
}

// GetPlaylistTracks implements Store.
func (p *Postgres) GetPlaylistTracks(ctx context.Context, playlistID int64) ([]db.Track, error) {
	return call(ctx, p, "GetPlaylistTracks", func(ctx context.Context, d *db.DB) ([]db.Track, error) {
		return d.Playlists().Tracks(ctx, playlistID)
	})
}

// ListMemberships implements Store.
func (p *Postgres) ListMemberships(ctx context.Context, playlistID int64) ([]db.PlaylistTrack, error) {
	return call(ctx, p, "ListMemberships", func(ctx context.Context, d *db.DB) ([]db.PlaylistTrack, error) {
		return d.Playlists().Memberships(ctx, playlistID)
	})
}

// AddTrackToPlaylist implements Store.
func (p *Postgres) AddTrackToPlaylist(ctx context.Context, playlistID, trackID int64, position int) (*db.PlaylistTrack, error) {
	return call(ctx, p, "AddTrackToPlaylist", func(ctx context.Context, d *db.DB) (*db.PlaylistTrack, error) {
		return d.Playlists().AddTrack(ctx, playlistID, trackID, position)
	})
}

// RemoveTrackFromPlaylist implements Store.
func (p *Postgres) RemoveTrackFromPlaylist(ctx context.Context, playlistID, trackID int64) error {
	return exec(ctx, p, "RemoveTrackFromPlaylist", func(ctx context.Context, d *db.DB) error {
		return d.Playlists().RemoveTrack(ctx, playlistID, trackID)
	})
}

// GetUserPreferences implements Store.
func (p *Postgres) GetUserPreferences(ctx context.Context, userID string) (*db.UserPreferences, error) {
	return call(ctx, p, "GetUserPreferences", func(ctx context.Context, d *db.DB) (*db.UserPreferences, error) {
		return d.Preferences().Get(ctx, userID)
	})
}

// UpsertUserPreferences implements Store.
func (p *Postgres) UpsertUserPreferences(ctx context.Context, prefs *db.UserPreferences) error {
	return exec(ctx, p, "UpsertUserPreferences", func(ctx context.Context, d *db.DB) error {
		return d.Preferences().Upsert(ctx, prefs)
	})
}

var _ Store = (*Postgres)(nil)
