package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-bodkin/internal/batched"
	"github.com/23skdu/longbow-bodkin/internal/device"
)

var (
	rowsA      = flag.Int("rows", 128, "Rows of each A matrix")
	colsB      = flag.Int("cols", 128, "Columns of each B matrix")
	inner      = flag.Int("inner", 128, "Inner (shared) dimension")
	batchSize  = flag.Int("batch", 32, "Number of matrices per batch")
	iters      = flag.Int("iters", 100, "Benchmark iterations")
	seed       = flag.Int64("seed", 42, "RNG seed for input matrices")
	cpuProfile = flag.String("cpuprofile", "", "Write cpu profile to file")
	listenAddr = flag.String("listen", "", "Address to serve /metrics on (e.g. :8080)")
	enableOTel = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	reportPath = flag.String("report", "", "Write CBOR-encoded benchmark report to file")
)

// benchReport is the CBOR document written with -report.
type benchReport struct {
	Backend    string  `cbor:"backend"`
	Rows       int     `cbor:"rows"`
	Cols       int     `cbor:"cols"`
	Inner      int     `cbor:"inner"`
	BatchSize  int     `cbor:"batch_size"`
	Iterations int     `cbor:"iterations"`
	Seconds    float64 `cbor:"seconds"`
	GemmPerSec float64 `cbor:"gemm_per_sec"`
	GFLOPS     float64 `cbor:"gflops"`
}

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *listenAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", *listenAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(*listenAddr, nil); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	backend := device.NewCPUBackend()
	defer backend.Close()

	log.Info().
		Str("backend", backend.Name()).
		Int("rows", *rowsA).Int("inner", *inner).Int("cols", *colsB).
		Int("batch", *batchSize).
		Msg("Preparing batches")

	rng := rand.New(rand.NewSource(*seed))
	a, err := batched.FromSlices(backend, randomBatch(rng, *batchSize, *rowsA, *inner), *rowsA, *inner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build A batch")
	}
	defer a.Release()

	b, err := batched.FromSlices(backend, randomBatch(rng, *batchSize, *inner, *colsB), *inner, *colsB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build B batch")
	}
	defer b.Release()

	tracer := otel.Tracer("bodkin")
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < *iters; i++ {
		_, span := tracer.Start(ctx, "bench-iteration")
		span.SetAttributes(
			attribute.Int("iteration", i),
			attribute.Int("batch_size", *batchSize),
		)

		c, err := a.Mul(b)
		if err != nil {
			log.Fatal().Err(err).Msg("Batched multiply failed")
		}

		d, err := a.Gemm(a, false, true, 1, 0) // A @ A^T
		if err != nil {
			log.Fatal().Err(err).Msg("Batched gemm failed")
		}

		if err := backend.Synchronize(); err != nil {
			log.Fatal().Err(err).Msg("Backend reported kernel failure")
		}

		c.Release()
		d.Release()
		span.End()
	}
	elapsed := time.Since(start)

	gemms := float64(2 * *iters * *batchSize)
	flops := gemms * 2 * float64(*rowsA) * float64(*inner) * float64(*colsB)
	report := benchReport{
		Backend:    backend.Name(),
		Rows:       *rowsA,
		Cols:       *colsB,
		Inner:      *inner,
		BatchSize:  *batchSize,
		Iterations: *iters,
		Seconds:    elapsed.Seconds(),
		GemmPerSec: gemms / elapsed.Seconds(),
		GFLOPS:     flops / elapsed.Seconds() / 1e9,
	}

	log.Info().
		Float64("gemm_per_sec", report.GemmPerSec).
		Float64("gflops", report.GFLOPS).
		Str("elapsed", elapsed.String()).
		Msg("Benchmark complete")

	if *reportPath != "" {
		blob, err := cbor.Marshal(report)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode report")
		}
		if err := os.WriteFile(*reportPath, blob, 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report")
		}
		log.Info().Str("path", *reportPath).Msg("Wrote benchmark report")
	}
}

// randomBatch generates batchSize r x c matrices with entries in [-0.5, 0.5).
func randomBatch(rng *rand.Rand, batchSize, r, c int) [][]float32 {
	out := make([][]float32, batchSize)
	for i := range out {
		m := make([]float32, r*c)
		for j := range m {
			m[j] = rng.Float32() - 0.5
		}
		out[i] = m
	}
	return out
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bodkin"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
