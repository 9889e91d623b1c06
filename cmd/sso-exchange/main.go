// Command sso-exchange submits an authorization code to a running exchange
// server and prints the outcome panel
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wrale/sso-code-exchange/internal/exchangeclient"
	"github.com/wrale/sso-code-exchange/internal/querycache"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	server    string
	code      string
	staleTime time.Duration
	redisURL  string
	verbose   bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return options{}, fmt.Errorf("loading .env: %w", err)
	}

	fset := flag.NewFlagSet("sso-exchange", flag.ContinueOnError)
	fset.SetOutput(stderr)

	var opts options
	fset.StringVar(&opts.server, "server", envOr("EXCHANGE_SERVER_URL", "http://localhost:3000"), "base URL of the exchange server")
	fset.StringVar(&opts.code, "code", "", "authorization code to exchange")
	fset.DurationVar(&opts.staleTime, "stale", 0, "how long a settled exchange is reused")
	fset.StringVar(&opts.redisURL, "redis", os.Getenv("REDIS_URL"), "optional Redis URL for sharing settled exchanges")
	fset.BoolVar(&opts.verbose, "v", false, "log cache activity")

	if err := fset.Parse(args); err != nil {
		return options{}, err
	}
	if opts.code == "" && fset.NArg() > 0 {
		opts.code = fset.Arg(0)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).Level(level).With().Timestamp().Logger()

	clientOpts := []exchangeclient.Option{
		exchangeclient.WithStaleTime(opts.staleTime),
		exchangeclient.WithLogger(logger),
	}
	if opts.redisURL != "" {
		redisOpts, err := redis.ParseURL(opts.redisURL)
		if err != nil {
			logger.Error().Err(err).Msg("parsing Redis URL")
			return 2
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		clientOpts = append(clientOpts, exchangeclient.WithCache(querycache.NewRedisCache(rdb)))
	}

	client, err := exchangeclient.New(opts.server, clientOpts...)
	if err != nil {
		logger.Error().Err(err).Msg("creating exchange client")
		return 2
	}

	if err := printState(stdout, exchangeclient.Pending()); err != nil {
		return 1
	}

	// an empty code is still submitted so the server reports it
	state := client.Exchange(ctx, opts.code)
	if err := printState(stdout, state); err != nil {
		logger.Error().Err(err).Msg("writing result")
		return 1
	}

	if state.IsSucceeded() {
		tok := state.Data.OAuth2Token(time.Now())
		fmt.Fprintf(stderr, "token cookie expires %s\n", tok.Expiry.Format(time.RFC3339))
		return 0
	}
	return 1
}

// printState writes the panel for st the way the authorization page shows it
func printState(w io.Writer, st exchangeclient.State) error {
	var (
		title   string
		payload any
	)
	switch {
	case st.IsPending():
		_, err := fmt.Fprintln(w, "Loading...\nFetching OAuth response...")
		return err
	case st.IsFailed():
		title, payload = "Error", st.Error
	default:
		title, payload = "Success", st.Data
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s panel: %w", title, err)
	}
	_, err = fmt.Fprintf(w, "%s\n%s\n", title, data)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
