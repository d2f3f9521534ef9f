package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/darkglass/darkglass"
	"github.com/darkglass/darkglass/data"
	"github.com/darkglass/darkglass/internal"
	"github.com/darkglass/darkglass/lib"
	"github.com/darkglass/darkglass/lib/policy"
	"github.com/darkglass/darkglass/lib/store"
	_ "github.com/darkglass/darkglass/lib/store/all"
)

var (
	bind          = flag.String("bind", ":8923", "network address to bind HTTP to")
	metricsBind   = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	slogLevel     = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	hmacSecret    = flag.String("hmac-secret", "", "secret for challenge signatures and pass tokens, required")
	oracleToken   = flag.String("oracle-token", "", "bearer token for the remote oracle endpoint named in the policy")
	policyFname   = flag.String("policy-fname", "", "path to a policy YAML file, uses the built-in policy if empty")
	versionFlag   = flag.Bool("version", false, "print version information and exit")
	shutdownGrace = flag.Duration("shutdown-grace", 5*time.Second, "how long to wait for in-flight requests on shutdown")
)

func main() {
	godotenv.Load()
	flagenv.Prefix = "DARKGLASS_"
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("darkglass", darkglass.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	if *hmacSecret == "" {
		slog.Error("no signing secret set, refusing to start", "hint", "set --hmac-secret or DARKGLASS_HMAC_SECRET")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pol, err := loadPolicy(*policyFname)
	if err != nil {
		slog.Error("can't load policy", "fname", *policyFname, "err", err)
		os.Exit(1)
	}

	factory, ok := store.Get(pol.Store.Backend)
	if !ok {
		slog.Error("unknown store backend", "backend", pol.Store.Backend, "have", store.Methods())
		os.Exit(1)
	}

	backing, err := factory.Build(ctx, pol.Store.Parameters)
	if err != nil {
		slog.Error("can't construct store backend", "backend", pol.Store.Backend, "err", err)
		os.Exit(1)
	}

	srv, err := lib.New(lib.Options{
		HMACSecret:  []byte(*hmacSecret),
		Policy:      pol,
		Store:       backing,
		OracleToken: *oracleToken,
	})
	if err != nil {
		slog.Error("can't construct server", "err", err)
		os.Exit(1)
	}

	go metricsServer(ctx)

	hs := &http.Server{
		Addr:     *bind,
		Handler:  srv,
		ErrorLog: internal.GetFilteredHTTPLogger(),
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownGrace)
		defer cancel()

		if err := hs.Shutdown(shutdownCtx); err != nil {
			slog.Error("can't shut down cleanly", "err", err)
			hs.Close()
		}
	}()

	slog.Info(
		"darkglass verify is ready",
		"version", darkglass.Version,
		"bind", *bind,
		"backend", pol.Store.Backend,
		"kinds", pol.ChallengeKinds,
		"remoteOracle", pol.Oracle.Endpoint != "" && *oracleToken != "",
	)

	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server died", "err", err)
		os.Exit(1)
	}
}

func loadPolicy(fname string) (*policy.Config, error) {
	if fname == "" {
		fin, err := data.Assets.Open(data.DefaultPolicyName)
		if err != nil {
			return nil, err
		}
		defer fin.Close()
		return policy.Parse(fin)
	}

	return policy.Load(fname)
}

func metricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	hs := &http.Server{
		Addr:     *metricsBind,
		Handler:  mux,
		ErrorLog: internal.GetFilteredHTTPLogger(),
	}

	go func() {
		<-ctx.Done()
		hs.Close()
	}()

	slog.Debug("metrics ready", "bind", *metricsBind)

	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server died", "err", err)
	}
}
