// Command rsqlworker is a demo CLI driving one Connection Manager through a
// reserve → list-databases → release → shutdown cycle end to end, enough to
// exercise the whole runtime against an in-memory driver without a real
// database endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rabidsql/rsqlworker/connmanager"
	"github.com/rabidsql/rsqlworker/connworker"
	"github.com/rabidsql/rsqlworker/driver"
	"github.com/rabidsql/rsqlworker/driver/memdriver"
	"github.com/rabidsql/rsqlworker/internal/obslog"
	"github.com/rabidsql/rsqlworker/internal/rsqlconfig"
	"github.com/rabidsql/rsqlworker/objectbus"
	"github.com/rabidsql/rsqlworker/variant"
)

var (
	hostFlag     string
	userFlag     string
	databaseFlag string
	rootCmd      = &cobra.Command{
		Use:   "rsqlworker",
		Short: "Demo driver for the connection worker pool",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&hostFlag, "host", "H", "demo-host", "Endpoint host")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "demo-user", "Endpoint user")
	rootCmd.PersistentFlags().StringVarP(&databaseFlag, "database", "d", "demo", "Database the demo driver holds and ListDatabases filters on")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Reserve a worker, list its databases, release, shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(os.Stdout)
		},
	}
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDemo(out *os.File) error {
	log := obslog.New("rsqlworker")
	cfg, err := rsqlconfig.New()
	if err != nil {
		cfg = rsqlconfig.NewForTesting()
	}
	zerolog.SetGlobalLevel(obslog.ParseLevel(cfg.LogLevel))

	pump := objectbus.NewPump()
	var factory driver.Factory = memdriver.NewFactory(databaseFlag, []string{"accounts", "orders", "sessions"})
	if cfg.TableCacheRedisAddr != "" {
		cached, err := memdriver.NewRemoteTableCache(factory.(*memdriver.Factory), cfg.TableCacheRedisAddr)
		if err != nil {
			return fmt.Errorf("table cache: %w", err)
		}
		defer cached.Close()
		factory = cached
		log.Info().Str("addr", cfg.TableCacheRedisAddr).Msg("ListTables cache enabled")
	}

	var manager *connmanager.Manager
	manager = connmanager.New(pump, func(p *objectbus.Pump) *connworker.Worker {
		w := connworker.New(p, factory, hostFlag, userFlag, "")
		w.SetSessionKiller(manager)
		return w
	}, cfg.MaxConnections)

	receiver := pump.NewObject()
	var results []connworker.QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(connworker.QueryResult))
	})

	ctx := context.Background()
	reservation := manager.Reserve(ctx, 0, receiver)
	log.Info().Str("reservation", reservation).Msg("worker reserved")

	manager.Call(reservation, variant.NewString("demo-list"), connworker.ListDatabases,
		[]variant.Variant{variant.NewStringSlice([]string{databaseFlag})}, false)

	deadline := time.Now().Add(5 * time.Second)
	for len(results) == 0 && time.Now().Before(deadline) {
		pump.ProcessEvents()
		time.Sleep(10 * time.Millisecond)
	}
	if len(results) == 0 {
		return fmt.Errorf("timed out waiting for ListDatabases result")
	}
	fmt.Fprintf(out, "databases: %v\n", rowValues(results[0]))

	manager.Release(reservation)
	manager.Close()
	log.Info().Msg("manager closed")
	return nil
}

func rowValues(r connworker.QueryResult) []string {
	var out []string
	for _, row := range r.Rows {
		if len(row) > 0 {
			out = append(out, row[0].String())
		}
	}
	return out
}
