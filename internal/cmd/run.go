package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	pojie "github.com/Pojie/pojie-go"
	"github.com/Pojie/pojie-go/internal/config"
	transport "github.com/Pojie/pojie-go/internal/transport/http"
	"github.com/Pojie/pojie-go/source"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	runTargets  []string
	runWordlist string
	runStartAt  int
	runProgress time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Attack the given targets with a wordlist",
	Long: `Start the engine with the configured event sources and connector, submit
every --target with the candidates of --wordlist and print progress until all
targets finished. With http.enabled the command keeps serving the API until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runTargets, "target", "t", nil, "network to attack (repeatable)")
	runCmd.Flags().StringVarP(&runWordlist, "wordlist", "w", "", "candidate file (text, or JSON array with .json)")
	runCmd.Flags().IntVar(&runStartAt, "start-at", 0, "index of the first candidate to try")
	runCmd.Flags().DurationVar(&runProgress, "progress", 2*time.Second, "progress print interval, 0 disables")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(runTargets) > 0 && runWordlist == "" {
		return errors.New("--wordlist is required with --target")
	}

	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if len(runTargets) == 0 && !cfg.HTTP.Enabled {
		return errors.New("nothing to do: pass --target or enable http")
	}

	log, err := pojie.NewZapLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := pojie.NewExecConnector(cfg.Connector.ExecConnector(log))
	if err != nil {
		return fmt.Errorf("failed to build connector: %w", err)
	}

	var (
		sources []pojie.Source
		mws     []pojie.ConnectorMiddleware
	)
	if c := cfg.Sources.LogCommand; len(c) > 0 {
		ls := source.NewLogStream(log)
		defer ls.Close()
		sources = append(sources, ls)
		go follow(ctx, log, "log", func() error { return ls.RunCommand(ctx, c[0], c[1:]...) })
	}
	if c := cfg.Sources.StateCommand; len(c) > 0 {
		cs := source.NewConnState(cfg.Sources.WatchdogTimeout, log)
		defer cs.Close()
		sources = append(sources, cs)
		mws = append(mws, cs.Announce())
		go follow(ctx, log, "state", func() error { return cs.RunCommand(ctx, c[0], c[1:]...) })
	}
	if len(sources) == 0 {
		log.Warnf("no event sources configured; only timeouts and connector exit codes decide attempts")
	}

	engine, err := pojie.NewEngine(pojie.EngineConfig{
		Connector: conn,
		Sources:   sources,
		Attempt:   cfg.Attempt,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	engine.Use(pojie.LogAttempts(log))
	if cfg.Connector.MinInterval > 0 {
		engine.Use(pojie.Throttle(cfg.Connector.MinInterval))
	}
	for _, mw := range mws {
		engine.Use(mw)
	}

	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			log.Warnf("config reload rejected: err=%v", err)
			return
		}
		if err := engine.SetAttemptConfig(next.Attempt); err != nil {
			log.Warnf("attempt config reload rejected: err=%v", err)
			return
		}
		log.Infof("attempt config reloaded: failure_mode=%s retry_limit=%d", next.Attempt.FailureMode, next.Attempt.RetryLimit)
	})

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		pub := pojie.NewPublisher(rdb, engine, pojie.PublisherConfig{
			Session:     cfg.Redis.Session,
			TTL:         cfg.Redis.TTL,
			MinInterval: cfg.Redis.MinInterval,
			Logger:      log,
		})
		go follow(ctx, log, "redis publisher", func() error { return pub.Run(ctx) })
	}

	if cfg.HTTP.Enabled {
		app := transport.NewApp(transport.AppConfig{
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
			Logger:       log,
		})
		transport.SetupRoutes(app, transport.RouterConfig{Engine: engine, Logger: log, APIKey: cfg.HTTP.APIKey})
		go func() {
			log.Infof("http listening: addr=%s", cfg.HTTP.Address())
			if err := app.Listen(cfg.HTTP.Address()); err != nil {
				log.Errorf("http server stopped: err=%v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(sctx); err != nil {
				log.Warnf("http shutdown: err=%v", err)
			}
		}()
	}

	if len(runTargets) > 0 {
		candidates, err := loadWordlist(runWordlist)
		if err != nil {
			return err
		}
		for _, target := range runTargets {
			if err := engine.Client().Submit(target, candidates, pojie.StartAt(runStartAt)); err != nil {
				return fmt.Errorf("failed to submit %s: %w", target, err)
			}
		}
	}

	engine.Start()
	defer engine.Stop()

	if runProgress > 0 {
		go printProgress(ctx, cmd.OutOrStdout(), engine.Client(), runProgress)
	}

	if cfg.HTTP.Enabled {
		<-ctx.Done()
	} else if err := engine.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	printResults(cmd.OutOrStdout(), engine.Client().Results())
	return nil
}

func follow(ctx context.Context, log pojie.Logger, name string, fn func() error) {
	if err := fn(); err != nil && ctx.Err() == nil {
		log.Errorf("%s source stopped: err=%v", name, err)
	}
}

func printProgress(ctx context.Context, w io.Writer, client *pojie.Client, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, p := range client.ListProgress() {
				fmt.Fprintf(w, "%-24s %d/%d retry=%d %-9s %s\n", p.Target, p.Cursor, p.Total, p.Retry, p.Status, p.Tip)
			}
		}
	}
}

func printResults(w io.Writer, results []pojie.Result) {
	if len(results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tOUTCOME\tCREDENTIAL\tTIP")
	for _, r := range results {
		cred := r.Credential
		if cred == "" {
			cred = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Target, r.Outcome, cred, r.Tip)
	}
	_ = tw.Flush()
}
