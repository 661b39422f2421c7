package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boxer/boxer"
	"boxer/core"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the driver on stdin/stdout",
	RunE:  runDriver,
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	runCmd.Flags().Bool("no-stdin", false, "do not read commands; announce blocks until interrupted")
	runCmd.Flags().String("import-dir", "", "also import raw block files dropped in this directory")
	runCmd.Flags().Duration("import-interval", time.Second, "import directory scan interval")
}

func runDriver(cmd *cobra.Command, _ []string) (err error) {
	consensus, err := consensusFromConfig()
	if err != nil {
		return err
	}
	node, err := boxer.OpenNode(boxer.NodeConfig{
		DataDir:   viper.GetString("data-dir"),
		Consensus: consensus,
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := boxer.NewMetrics(reg)

	var server *http.Server
	if addr := viper.GetString("metrics-addr"); addr != "" {
		server = &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", addr).Msg("serving metrics")
	}

	if dir := viper.GetString("import-dir"); dir != "" {
		importer, err := core.NewDirImporter(dir, node.Chain, log)
		if err != nil {
			node.Close()
			return err
		}
		go importer.Run(ctx, viper.GetDuration("import-interval"))
	}

	driver := boxer.New(node.Shared, node.Chain, os.Stdout, metrics, log)
	defer func() {
		var result *multierror.Error
		if cerr := driver.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if cerr := server.Shutdown(shutdownCtx); cerr != nil {
				result = multierror.Append(result, fmt.Errorf("stop metrics server: %w", cerr))
			}
		}
		if cerr := node.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if result != nil {
			err = multierror.Append(err, result.Errors...).ErrorOrNil()
		}
	}()

	if viper.GetBool("no-stdin") {
		if err := driver.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		log.Info().Msg("interrupted, shutting down")
		return nil
	}

	served := make(chan error, 1)
	go func() { served <- driver.Run(os.Stdin) }()
	select {
	case err := <-served:
		return err
	case <-ctx.Done():
		log.Info().Msg("interrupted, shutting down")
		return nil
	}
}
