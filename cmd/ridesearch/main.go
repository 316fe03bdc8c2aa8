package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/ride-search/internal/config"
	"github.com/example/ride-search/internal/logging"
	"github.com/example/ride-search/internal/models"
	"github.com/example/ride-search/internal/ridesapi"
	"github.com/example/ride-search/internal/search"
	"github.com/example/ride-search/internal/session"
)

// errSearchFailed makes the process exit non-zero after printing a Failed
// snapshot.
var errSearchFailed = errors.New("search failed")

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errSearchFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:          "ridesearch",
		Short:        "Query a rides search API",
		SilenceUsage: true,
		// errors are printed by main
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, toml or json)")
	root.PersistentFlags().String("api", "", "rides API base URL")
	root.PersistentFlags().String("token", "", "bearer token for the rides API")
	root.PersistentFlags().Bool("fallback", true, "show placeholder rides when the API is unreachable")

	loadConfig := func(cmd *cobra.Command) (config.ClientConfig, error) {
		v, err := config.New(configFile)
		if err != nil {
			return config.ClientConfig{}, err
		}
		if err := bindFlags(v, cmd); err != nil {
			return config.ClientConfig{}, err
		}
		return config.LoadClientConfig(v)
	}
	root.AddCommand(newSearchCmd(loadConfig))
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for key, flag := range map[string]string{
		"api.base_url":    "api",
		"api.token":       "token",
		"search.fallback": "fallback",
	} {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

type searchFlags struct {
	origin      string
	destination string
	date        string
	seats       string
	maxPrice    string
	page        int
}

func newSearchCmd(loadConfig func(*cobra.Command) (config.ClientConfig, error)) *cobra.Command {
	var sf searchFlags
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one search and print the settled result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := ridesapi.NewClient(cfg.BaseURL, cfg.Token, ridesapi.WithLogger(logger))
			c := search.New(client,
				search.WithDebounce(cfg.Debounce),
				search.WithRequestTimeout(cfg.RequestTimeout),
				search.WithFallback(cfg.Fallback),
				search.WithLogger(logger))
			defer c.Close()
			return runSearch(cmd.Context(), c, sf, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sf.origin, "origin", "", "departure place")
	cmd.Flags().StringVar(&sf.destination, "destination", "", "arrival place")
	cmd.Flags().StringVar(&sf.date, "date", "", "departure date, YYYY-MM-DD")
	cmd.Flags().StringVar(&sf.seats, "seats", "1", "minimum free seats")
	cmd.Flags().StringVar(&sf.maxPrice, "max-price", "", "maximum price per seat")
	cmd.Flags().IntVar(&sf.page, "page", 1, "result page")
	return cmd
}

// runSearch applies the flags, fires the search at once and prints the
// settled snapshot.
func runSearch(ctx context.Context, c *search.Coordinator, sf searchFlags, out io.Writer) error {
	for _, set := range []struct {
		field models.Field
		value string
	}{
		{models.FieldOrigin, sf.origin},
		{models.FieldDestination, sf.destination},
		{models.FieldDate, sf.date},
		{models.FieldSeats, sf.seats},
		{models.FieldMaxPrice, sf.maxPrice},
	} {
		if err := c.SetFilter(set.field, set.value); err != nil {
			return err
		}
	}

	c.TriggerSearchNow()
	snap, err := c.Await(ctx)
	if err != nil {
		return err
	}
	if sf.page > 1 && snap.Request.Status == search.StatusSucceeded {
		c.SetPage(sf.page)
		if snap, err = c.Await(ctx); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(session.FrameOf(snap)); err != nil {
		return err
	}
	if snap.Request.Status == search.StatusFailed {
		return fmt.Errorf("%w: %s", errSearchFailed, strconv.Quote(snap.Request.Message))
	}
	return nil
}
