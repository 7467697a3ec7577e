package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoyee/regiontiles/internal/calculator"
	"github.com/geoyee/regiontiles/internal/download"
	"github.com/geoyee/regiontiles/internal/geometry"
	"github.com/geoyee/regiontiles/internal/logger"
	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/planner"
	"github.com/geoyee/regiontiles/internal/provider"
	"github.com/geoyee/regiontiles/internal/region"
)

const VERSION = "v0.1.0"

type CLI struct {
	Regions     string      `arg:"" type:"existingfile" placeholder:"<regions-file>" help:"Geometry file with points and paths (.kml, .geojson, .json, .osm, .osm.pbf)."`
	APIKey      string      `name:"apikey" short:"k" env:"THUNDERFOREST_API_KEY" help:"Tile server api key."`
	Style       string      `short:"s" default:"outdoors" enum:"${styles}" env:"REGIONTILES_STYLE" help:"Map style (${enum})."`
	Host        string      `default:"${default_host}" env:"REGIONTILES_HOST" help:"Tile server host, optionally with scheme."`
	MaxTiles    int         `name:"maxtiles" short:"m" default:"1000" help:"Fetch strictly fewer than this many tiles."`
	MinZoom     int         `name:"minzoom" default:"1" help:"Minimum zoom level."`
	MaxZoom     int         `name:"maxzoom" default:"15" help:"Maximum zoom level."`
	LatMargin   float64     `name:"latrgn" default:"0.1" help:"Latitude half-width of the box around each point, in degrees."`
	LonMargin   float64     `name:"lonrgn" default:"0.1" help:"Longitude half-width of the box around each point, in degrees."`
	OutDir      string      `name:"outdir" short:"o" type:"path" default:"${default_outdir}" env:"REGIONTILES_OUTDIR" help:"Output directory."`
	Threads     int         `short:"t" default:"4" help:"Concurrent downloads."`
	Timeout     int         `default:"30" help:"Per-request timeout in seconds."`
	Rate        int         `default:"0" help:"Requests per second, 0 for unlimited."`
	UserAgent   string      `name:"user-agent" default:"regiontiles/${version}" help:"User-Agent header."`
	HTTP2       bool        `name:"http2" default:"true" negatable:"" help:"Enable HTTP/2."`
	Proxy       string      `env:"REGIONTILES_PROXY" help:"Proxy URL (e.g. http://127.0.0.1:7890)."`
	Report      string      `help:"Write a JSON run report; relative paths are placed in the output directory."`
	DryRun      bool        `name:"dry-run" help:"Print the plan without downloading."`
	MetricsAddr string      `name:"metrics-addr" env:"REGIONTILES_METRICS_ADDR" help:"Serve Prometheus metrics on this address while running."`
	Logging     string      `short:"l" default:"info" enum:"debug,info,warn,error" help:"Logging verbosity."`
	Version     VersionFlag `name:"version" short:"v" help:"Print version information and quit."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

// Validate is called by kong after parsing.
func (c *CLI) Validate() error {
	if c.APIKey == "" && !c.DryRun {
		return errors.New("an api key is required (--apikey or THUNDERFOREST_API_KEY)")
	}
	if c.Threads <= 0 {
		return errors.New("--threads must be positive")
	}
	return nil
}

func (c *CLI) Config() *model.Config {
	return &model.Config{
		APIKey:     c.APIKey,
		Style:      c.Style,
		Host:       c.Host,
		MaxTiles:   c.MaxTiles,
		MinZoom:    c.MinZoom,
		MaxZoom:    c.MaxZoom,
		LatMargin:  c.LatMargin,
		LonMargin:  c.LonMargin,
		OutputDir:  c.OutDir,
		Threads:    c.Threads,
		Timeout:    c.Timeout,
		RateLimit:  c.Rate,
		UserAgent:  c.UserAgent,
		UseHTTP2:   c.HTTP2,
		ProxyURL:   c.Proxy,
		ReportFile: c.Report,
		DryRun:     c.DryRun,
	}
}

func kongOptions() []kong.Option {
	outdir := "maps"
	if home, err := os.UserHomeDir(); err == nil {
		outdir = filepath.Join(home, "maps")
	}
	return []kong.Option{
		kong.Name("tile-downloader"),
		kong.Description("Download slippy-map tiles around the points and paths of a geometry file, within a tile budget."),
		kong.Vars{
			"version":        VERSION,
			"styles":         strings.Join(provider.Styles, ","),
			"default_host":   provider.DefaultHost,
			"default_outdir": outdir,
		},
	}
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cli CLI
	kong.Parse(&cli, kongOptions()...)

	l := logger.NewZapLogger(cli.Logging)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cli.MetricsAddr != "" {
		srv := serveMetrics(cli.MetricsAddr, l)
		defer srv.Shutdown(context.Background())
	}

	if err := run(ctx, &cli, l, os.Stderr); err != nil {
		l.Fatal("download failed", "error", err)
	}
}

func run(ctx context.Context, cli *CLI, l logger.Logger, progress io.Writer) error {
	cfg := cli.Config()
	if err := calculator.ValidateMargin(cfg.Margin()); err != nil {
		return err
	}

	placemarks, err := geometry.ReadFile(cli.Regions)
	if err != nil {
		return err
	}
	regions := region.FromPlacemarks(placemarks, cfg.Margin(), l)
	l.Info("regions loaded", "file", cli.Regions, "placemarks", len(placemarks), "regions", regions.Len())

	d := download.NewDownloader(cfg, l)
	d.Progress = progress

	plan, err := d.Run(ctx, regions)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			l.Warn("interrupted")
			return nil
		}
		return err
	}

	if cfg.DryRun {
		printPlan(progress, plan)
	}
	return nil
}

func printPlan(w io.Writer, plan *model.TilePlan) {
	fmt.Fprintf(w, "%-6s %10s %10s\n", "zoom", "fetch", "skipped")
	for _, s := range planner.Summarize(plan) {
		fmt.Fprintf(w, "%-6d %10d %10d\n", s.Zoom, s.Fetch, s.Skipped)
	}
}

func serveMetrics(addr string, l logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server failed", "error", err)
		}
	}()
	l.Info("serving metrics", "addr", addr)
	return srv
}
