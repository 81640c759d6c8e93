package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/gridlabs/quadgrid/featureflag"
	qghttp "github.com/gridlabs/quadgrid/http"
	"github.com/gridlabs/quadgrid/models"
	"github.com/gridlabs/quadgrid/quadtree"
	qgwebsocket "github.com/gridlabs/quadgrid/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Quadgrid version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "quadgrid_info",
		Help:        "Quadgrid information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

type config struct {
	Addr               string        `cli:""        env:"QUADGRID_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"QUADGRID_ADMIN_ADDR"           help:"Admin listening address."`
	LogLevel           string        `cli:""        env:"QUADGRID_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"QUADGRID_LOG_INDENT"           help:"Indent logs."`
	GridWidth          int           `cli:""        env:"QUADGRID_GRID_WIDTH"           help:"Width of the default grid (number of cells)."`
	GridHeight         int           `cli:""        env:"QUADGRID_GRID_HEIGHT"          help:"Height of the default grid (number of cells)."`
	MaxLeafObjects     int           `cli:""        env:"QUADGRID_MAX_LEAF_OBJECTS"     help:"Max number of objects inside a leaf node."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"QUADGRID_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"QUADGRID_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	FeatureFlags       []string      `cli:",hidden" env:"QUADGRID_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	Version            bool          `cli:""        env:"-"                             help:"Show version."`
	Help               bool          `cli:""        env:"-"                             help:"Show help."`
}

func main() {
	conf := config{
		Addr:               ":4100",
		AdminAddr:          ":18200",
		LogLevel:           logs.InfoLevel.String(),
		GridWidth:          10,
		GridHeight:         10,
		MaxLeafObjects:     1,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts a Quadgrid server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	var grids models.GridStore
	defaultGrid := models.NewGrid(grids.NewID(),
		conf.GridWidth,
		conf.GridHeight,
		conf.MaxLeafObjects,
	)
	grids.Add(defaultGrid)

	flags := featureflag.New(conf.FeatureFlags)

	var service http.ServeMux
	service.Handle("/health", qghttp.HandleWithCORS(http.HandlerFunc(qghttp.HandleHealthCheck)))
	service.Handle("/ready", qghttp.HandleWithCORS(http.HandlerFunc(qghttp.HandleReadyCheck(func() bool {
		return true
	}))))
	service.Handle("/version", qghttp.HandleWithCORS(http.HandlerFunc(qghttp.HandleVersion(version))))
	service.Handle("/grids", qghttp.HandleWithCORS(qghttp.HandleGrids(&grids)))

	service.Handle("/", qghttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh qgwebsocket.Handler = &qgwebsocket.RealtimeHandler{
				ClientIdleTimeout:     conf.ClientIdleTimeout,
				Grids:                 &grids,
				DefaultGridWidth:      conf.GridWidth,
				DefaultGridHeight:     conf.GridHeight,
				DefaultMaxLeafObjects: conf.MaxLeafObjects,
				FeatureFlags:          flags,
			}
			h := qgwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			defer h.Close()

			qgwebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", qghttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("grid_w", conf.GridWidth).
		WithTag("grid_h", conf.GridHeight).
		WithTag("max_leaf_objects", conf.MaxLeafObjects).
		WithTag("default_grid_uuid", defaultGrid.GridUUID).
		Info("starting quadgrid server")

	qghttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			qghttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if conf.GridWidth < 1 || conf.GridWidth > quadtree.MaxSide {
		return errors.New("invalid grid width").
			WithTag("grid_width", conf.GridWidth)
	}

	if conf.GridHeight < 1 || conf.GridHeight > quadtree.MaxSide {
		return errors.New("invalid grid height").
			WithTag("grid_height", conf.GridHeight)
	}

	if conf.MaxLeafObjects < 0 {
		return errors.New("invalid max leaf objects").
			WithTag("max_leaf_objects", conf.MaxLeafObjects)
	}

	return nil
}
