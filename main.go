package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cortex-data/focus.report/api"
	"github.com/cortex-data/focus.report/internal/analysis"
	"github.com/cortex-data/focus.report/internal/config"
	"github.com/cortex-data/focus.report/internal/monitoring"
	"github.com/cortex-data/focus.report/internal/mqttstream"
	"github.com/cortex-data/focus.report/internal/stream"
	"github.com/cortex-data/focus.report/internal/version"
)

var (
	broker      = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topicPrefix = flag.String("prefix", mqttstream.DefaultTopicPrefix, "MQTT topic prefix")
	listen      = flag.String("listen", ":8080", "Listen address")
	configPath  = flag.String("config", "", "Path to tuning config JSON (optional)")
	debugMode   = flag.Bool("debug", false, "Enable debug logging")

	calibrationWindow = flag.Float64("calibration-window", analysis.DefaultCalibrationWindowSeconds, "Calibration window in seconds")
	analysisWindow    = flag.Float64("analysis-window", analysis.DefaultAnalysisWindowSeconds, "Analysis window in seconds")
	scaleFactor       = flag.Float64("scale", analysis.DefaultScaleFactor, "Band power scale factor")
	referenceMode     = flag.String("reference", string(analysis.ReferenceCommonAverage), "Re-referencing mode: none or common_average")
)

// Main
func main() {
	flag.Parse()
	monitoring.SetDebug(*debugMode)
	log.Printf("focus.report %s (%s)", version.Version, version.GitSHA)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	client, err := mqttstream.Connect(mqttstream.Options{
		BrokerURL:   *broker,
		ClientID:    "focus-report",
		TopicPrefix: *topicPrefix,
	})
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer client.Close()

	resolver, err := mqttstream.NewResolver(client)
	if err != nil {
		log.Fatalf("Failed to start stream discovery: %v", err)
	}
	defer resolver.Close()

	cache := stream.NewCache(resolver,
		stream.WithTTL(cfg.GetDiscoveryTTL()),
		stream.WithMaxWait(cfg.GetDiscoveryMaxWait()),
	)
	defer cache.Close()

	pipeline := analysis.PipelineConfig{
		BandpassLow:    cfg.GetBandpassLow(),
		BandpassHigh:   cfg.GetBandpassHigh(),
		NotchFreq:      cfg.GetNotchFreq(),
		NotchBandwidth: cfg.GetNotchBandwidth(),
		LineNoiseLow:   45,
		LineNoiseHigh:  55,
		LineNoiseMax:   cfg.GetLineNoiseMax(),
		AmplitudeMin:   cfg.GetAmplitudeMin(),
		AmplitudeMax:   cfg.GetAmplitudeMax(),
		MinSamples:     100,
	}

	var worker *analysis.Worker

	apiServer := api.NewServer(cfg, resolver.Known, func() string {
		return worker.State().String()
	})

	logSink := analysis.SinkFuncs{
		Status: func(status string) { log.Printf("worker: %s", status) },
		Metrics: func(frame analysis.MetricFrame) {
			monitoring.Debugf("frame %s: aggregate=%.4f movement=%.3f", frame.ID, frame.Aggregate, frame.Movement)
		},
	}

	worker = analysis.NewWorker(analysis.WorkerConfig{
		Cache: cache,
		Open: func(d stream.Descriptor) (stream.Source, error) {
			return mqttstream.OpenSource(client, d)
		},
		Sink:              analysis.MultiSink{logSink, apiServer},
		Pipeline:          pipeline,
		TickPeriod:        cfg.GetTickPeriod(),
		ResolveAttempts:   cfg.GetResolveAttempts(),
		ResolveTimeout:    cfg.GetResolveTimeout(),
		MinChunkFraction:  cfg.GetMinChunkFraction(),
		OverRequestFactor: cfg.GetOverRequestFactor(),
		MotionNorm:        cfg.GetMotionNorm(),
		MotionImpact:      cfg.GetMotionImpact(),
		SmoothingAlpha:    cfg.GetSmoothingAlpha(),
	})

	settings := analysis.Settings{
		CalibrationWindowSeconds: *calibrationWindow,
		AnalysisWindowSeconds:    *analysisWindow,
		ScaleFactor:              *scaleFactor,
		ReferenceMode:            analysis.ReferenceMode(*referenceMode),
	}
	if err := worker.Start(settings); err != nil {
		log.Fatalf("Failed to start analysis worker: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Watch the worker so a failed resolve is visible in the logs without
	// taking the HTTP server down; /api/status keeps reporting the state.
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-worker.Done():
			if err := worker.Err(); err != nil {
				log.Printf("analysis worker stopped: %v", err)
			}
		case <-ctx.Done():
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := apiServer.ServeMux()
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			monitoring.Debugf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	worker.Stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
