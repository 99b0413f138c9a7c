package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pennytrack/apperrors"
	"pennytrack/config"
	"pennytrack/handlers"
	"pennytrack/logger"
	"pennytrack/models"
	"pennytrack/scheduler"
	"pennytrack/scraper"

	"github.com/joho/godotenv"
)

const usage = `Usage: pennytrack [command] [args]

Commands:
  serve              run the HTTP API and the sync scheduler (default)
  sync               update every tracked SKU once
  discover           scan clearance categories and track new SKUs
  check <sku>        fetch and classify one SKU without saving it
  add <sku> [name]   start tracking a SKU
  classify <price>   score a price against the markdown policy
  extract <file>     run the price extractors over a saved page
                     (-listing runs the listing extractors instead)
`

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	logger.Init()
	log := logger.Default

	listing := flag.Bool("listing", false, "extract: treat the page as a category listing")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg)
	case "sync":
		err = withApp(ctx, cfg, func(a *app) error {
			result, err := a.tracker.SyncAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	case "discover":
		err = withApp(ctx, cfg, func(a *app) error {
			report, err := a.tracker.DiscoverAndTrack(ctx)
			if report != nil {
				if perr := printJSON(report); perr != nil {
					return perr
				}
			}
			return err
		})
	case "check":
		if len(args) != 1 {
			err = errUsage
			break
		}
		err = withApp(ctx, cfg, func(a *app) error {
			res, err := a.prices.FetchPrice(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(scheduler.CheckResult{Fetch: res, Classification: a.tracker.Classifier().Classify(res.Price)})
		})
	case "add":
		if len(args) < 1 {
			err = errUsage
			break
		}
		err = withApp(ctx, cfg, func(a *app) error {
			req := models.AddItemRequest{SKU: args[0], Name: strings.Join(args[1:], " ")}
			item, added, err := a.tracker.AddItem(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"item": item, "added": added})
		})
	case "classify":
		if len(args) != 1 {
			err = errUsage
			break
		}
		err = classify(cfg, args[0])
	case "extract":
		if len(args) != 1 {
			err = errUsage
			break
		}
		err = extract(ctx, cfg, args[0], *listing)
	default:
		err = errUsage
	}

	if errors.Is(err, errUsage) {
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Str("kind", string(apperrors.KindOf(err))).Msg("Command failed")
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func withApp(ctx context.Context, cfg *config.Config, fn func(a *app) error) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// serve runs the API and scheduled jobs until ctx is cancelled
func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.ForComponent("server")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks := scheduler.NewTaskManager(cfg.API.MaxWorkers)
	defer tasks.Stop()

	checker := scheduler.NewPriceChecker(a.tracker, cfg.Sync)
	if err := checker.Start(); err != nil {
		return apperrors.NewConfiguration("schedule jobs", err)
	}
	defer checker.Stop()

	retry := scheduler.NewRetryService(&scheduler.RetryServiceFuncs{
		FailedKeys: a.tracker.LastFailures,
		Retry:      a.tracker.SyncSKUs,
	}, cfg.Sync.RetryInterval)
	retry.Start(ctx)
	defer retry.Stop()

	srv := &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           handlers.NewRouter(handlers.NewHandlers(a.tracker, tasks), cfg.API),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.API.RequestTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.StoreID).
			Str("backend", cfg.Store.Backend).
			Bool("api_key", cfg.API.RequireAPIKey()).
			Msg("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func classify(cfg *config.Config, raw string) error {
	c, err := loadClassifier(cfg.PolicyFile)
	if err != nil {
		return err
	}
	price, err := scraper.ParsePrice(raw)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"price":          models.FormatPrice(price),
		"classification": c.Classify(price),
	})
}

// extract runs the extraction chain over a saved HTML page without a browser
func extract(ctx context.Context, cfg *config.Config, path string, listing bool) error {
	html, err := os.ReadFile(path)
	if err != nil {
		return apperrors.NewValidation("extract", err.Error())
	}
	page, err := scraper.NewStaticPage(string(html))
	if err != nil {
		return apperrors.NewValidation("extract", err.Error())
	}

	if listing {
		found := scraper.NewListingChain().ExtractListing(ctx, page, cfg.Discovery.MaxPerCategory, cfg.StoreID)
		return printJSON(found)
	}

	price, method, ok := scraper.NewPriceChain(cfg.Browser.SelectorTimeout).ExtractPrice(ctx, page)
	if !ok {
		return apperrors.NewNotFound("extract", path, "all extraction strategies exhausted")
	}
	return printJSON(map[string]string{"price": models.FormatPrice(price), "method": method})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
