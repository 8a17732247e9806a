// Command registryctl is the operator's administrative tool: running
// migrations and dispatching one-off jobs by hand, the same
// flag.FlagSet-driven subcommand shape the teacher's cmd/cctool uses for
// its own "report" subcommand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/crates-registry/core/cdn"
	"github.com/crates-registry/core/internal/config"
	"github.com/crates-registry/core/internal/postgres"
	"github.com/crates-registry/core/jobqueue"
)

type commonConfig struct {
	cfg *config.Config
}

type subcmd func(context.Context, *commonConfig, []string) error

func main() {
	var exit int
	defer func() {
		if exit != 0 {
			os.Exit(exit)
		}
	}()

	ctx, done := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		<-ch
		done()
	}()

	fs := flag.NewFlagSet("registryctl", flag.ExitOnError)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nSubcommands\n\n")
		fmt.Fprintln(out, "migrate")
		fmt.Fprintln(out, "\trun every pending schema migration and exit")
		fmt.Fprintln(out, "enqueue <job-type> <json-payload>")
		fmt.Fprintln(out, "\tinsert one job onto the queue by hand")
		fmt.Fprintln(out, "flush-cdn")
		fmt.Fprintln(out, "\tdrain the durable CloudFront invalidation queue once")
		fmt.Fprintln(out)
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.FromEnv(nil)
	if err != nil {
		log.Fatal(err)
	}
	cc := &commonConfig{cfg: cfg}

	var cmd subcmd
	switch n := fs.Arg(0); n {
	case "migrate":
		cmd = runMigrate
	case "enqueue":
		cmd = runEnqueue
	case "flush-cdn":
		cmd = runFlushCDN
	case "":
		fs.Usage()
		os.Exit(99)
	default:
		fs.Usage()
		fmt.Fprintf(os.Stderr, "\nunknown subcommand %q\n", n)
		os.Exit(99)
	}

	var cmdErr error
	cmdctx, cmddone := context.WithCancel(ctx)
	go func() {
		defer cmddone()
		cmdErr = cmd(cmdctx, cc, fs.Args()[1:])
	}()

	select {
	case <-ctx.Done():
		log.Print(ctx.Err())
		exit = 1
	case <-cmdctx.Done():
		if cmdErr != nil {
			log.Print(cmdErr)
			exit = 2
		}
	}
}

func openStore(ctx context.Context, cc *commonConfig) (*postgres.Store, error) {
	return postgres.Open(ctx, cc.cfg.DatabaseURL)
}

func runMigrate(ctx context.Context, cc *commonConfig, _ []string) error {
	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	log.Print("migrations applied")
	return nil
}

func runEnqueue(ctx context.Context, cc *commonConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("registryctl: enqueue requires <job-type> <json-payload>")
	}
	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	var payload any
	if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
		return fmt.Errorf("registryctl: parsing payload: %w", err)
	}
	if err := jobqueue.Enqueue(ctx, store.Pool(), args[0], payload, "default"); err != nil {
		return err
	}
	log.Printf("enqueued %s", args[0])
	return nil
}

func runFlushCDN(ctx context.Context, cc *commonConfig, _ []string) error {
	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	var providers []cdn.Provider
	if cc.cfg.CloudFrontDistribution != "" {
		providers = append(providers, cdn.NewCloudFront(cc.cfg.CloudFrontDistribution, cc.cfg.AWSAccessKey, cc.cfg.AWSSecretKey))
	}
	if cc.cfg.FastlyAPIToken != "" {
		providers = append(providers, cdn.NewFastly(cc.cfg.FastlyAPIToken, cc.cfg.S3CDN))
	}
	invalidator := cdn.New(4, providers...)

	n, err := cdn.Flush(ctx, postgres.CDNQueue{Store: store}, invalidator, 3000)
	if err != nil {
		return err
	}
	log.Printf("flushed %d queued paths", n)
	return nil
}
