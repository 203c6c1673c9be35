package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/justestif/vibestream/internal/catalog"
	"github.com/justestif/vibestream/internal/config"
	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/logging"
	"github.com/justestif/vibestream/internal/playlists"
	"github.com/justestif/vibestream/internal/recommend"
	"github.com/justestif/vibestream/internal/store"
	"github.com/justestif/vibestream/internal/web"
)

// backend is an opened Store plus the database behind it, if any.
type backend struct {
	cfg      *config.Config
	store    store.Store
	database *db.DB
}

func (b *backend) Close() {
	if b.database != nil {
		b.database.Close()
	}
}

func (b *backend) playlists() *playlists.Service {
	var opts []playlists.Option
	if b.cfg.BestEffort() {
		opts = append(opts, playlists.WithBestEffort())
	}
	return playlists.New(b.store, opts...)
}

// bootstrap loads configuration, configures logging, and opens the
// configured store. Postgres schemas are migrated before use.
func bootstrap(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if cfg.Storage.Driver == config.DriverMemory {
		logging.Logger().Warn().Msg("using in-memory store; data is lost on exit")
		return &backend{cfg: cfg, store: store.NewMemory()}, nil
	}

	database, err := db.New(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	applied, err := database.Migrate(ctx)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	for _, name := range applied {
		logging.Logger().Info().Str("migration", name).Msg("migration applied")
	}

	st := store.NewPostgres(database,
		store.WithCallTimeout(cfg.Storage.CallTimeout),
		store.WithMaxRetries(cfg.Storage.MaxRetries),
	)
	return &backend{cfg: cfg, store: st, database: database}, nil
}

func serve(ctx context.Context, _ *cli.Command) error {
	b, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.cfg.RequireSpotify(); err != nil {
		return err
	}

	var sessions web.SessionManager = web.NewSessionStore()
	if b.database != nil {
		sessions = web.NewDBSessionStore(b.database)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:              b.cfg.Server.Addr,
		ClientID:          b.cfg.Spotify.ClientID,
		ClientSecret:      b.cfg.Spotify.ClientSecret,
		RedirectURL:       b.cfg.Spotify.RedirectURL,
		Store:             b.store,
		Sessions:          sessions,
		Playlists:         b.playlists(),
		Recommender:       recommend.New(b.store),
		CORSOrigins:       b.cfg.Server.CORSOrigins,
		RateLimitRequests: b.cfg.Server.RateLimitRequests,
		RateLimitWindow:   b.cfg.Server.RateLimitWindow,
		MaxLimit:          b.cfg.API.MaxLimit,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

func migrate(ctx context.Context, _ *cli.Command) error {
	b, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.database == nil {
		return errors.New("migrate requires the postgres storage driver")
	}
	fmt.Println("Database schema is up to date")
	return nil
}

func reconcile(ctx context.Context, _ *cli.Command) error {
	b, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	n, err := b.playlists().ReconcileAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Repaired %d playlist(s)\n", n)
	return nil
}

func generate(ctx context.Context, cmd *cli.Command) error {
	b, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	userID := cmd.String("user")
	if err := ensureUser(ctx, b.store, userID); err != nil {
		return err
	}

	p, err := b.playlists().Generate(ctx, userID, cmd.String("mood"), cmd.StringSlice("genre"))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding playlist: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// ensureUser creates a bare user row so playlists can reference it.
func ensureUser(ctx context.Context, st store.Store, userID string) error {
	_, err := st.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		if err := st.UpsertUser(ctx, &db.User{ID: userID}); err != nil {
			return fmt.Errorf("creating user %s: %w", userID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up user %s: %w", userID, err)
	}
	return nil
}

func moods(_ context.Context, _ *cli.Command) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MOOD\tPLAYLIST\tTRACKS")
	for _, m := range catalog.Moods() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", m, catalog.PlaylistName(string(m)), len(catalog.Tracks(string(m))))
	}
	return w.Flush()
}
