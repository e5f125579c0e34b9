package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	persistlog "endlessterrain.io/internal/persistence/log"
	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/stream"
	"endlessterrain.io/internal/sim/terrain/provider"
	"endlessterrain.io/internal/sim/tuning"
	"endlessterrain.io/internal/transport/observer"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		listen     = flag.String("observer", "127.0.0.1:8081", "http listen address for health, metrics and the observer feed (empty to disable)")
		pathKind   = flag.String("path", "circle", "scripted viewer path: circle|line")
		speed      = flag.Float64("speed", 40, "viewer speed in world units per second")
		radius     = flag.Float64("radius", 800, "circle path radius in world units")
		duration   = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite event index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	path, err := newViewerPath(*pathKind, float32(*speed), float32(*radius))
	if err != nil {
		logger.Fatalf("viewer path: %v", err)
	}

	jobs := dispatch.New(tune.Workers, provider.NewMapProvider(tune), provider.NewMeshProvider(tune), log.New(os.Stdout, "[dispatch] ", log.LstdFlags|log.Lmicroseconds))
	s := stream.New(tune, jobs, nil, logger)
	runID := s.RunID()
	runDir := filepath.Join(*dataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("create run dir: %v", err)
	}

	// Optional: read-model index backend (does not affect streaming).
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(runID, tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	eventLog := persistlog.NewEventLogger(runDir, logger)
	defer eventLog.Close()

	obsSrv := observer.NewServer(runID, tune, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))

	sinks := stream.MultiSink{eventLog, obsSrv}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	s.Context().Events = sinks

	ctx, cancel := signalContext()
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	// The consumer goroutine publishes a stats snapshot for the http side.
	var snap atomic.Pointer[stream.Stats]
	s.OnTick(func(res stream.TickResult) {
		st := s.Stats()
		snap.Store(&st)
		if res.Swept && res.Sweep.Created > 0 {
			logger.Printf("tick=%d chunks=%d visible=%d jobs_pending=%d", res.Tick, st.Chunks, st.Visible, st.Jobs.Pending)
		}
	})

	var srv *http.Server
	if addr := strings.TrimSpace(*listen); addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
			m := metrics{
				Sessions:  obsSrv.Sessions(),
				EventLogs: eventLog.Lines(),
			}
			if st := snap.Load(); st != nil {
				m.Stream = *st
			} else {
				m.Stream = stream.Stats{RunID: runID}
			}
			m.EventLogFailures, _ = eventLog.Failures()
			if idx != nil {
				st := idx.Stats()
				m.Index = &st
			}
			writeMetrics(rw, m)
		})
		obsSrv.Routes(mux)
		if envBool("ET_ENABLE_PPROF_HTTP", false) {
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		} else {
			logger.Printf("pprof endpoints disabled (ET_ENABLE_PPROF_HTTP=false)")
		}

		srv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Fatalf("listen: %v", err)
		}
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Printf("http: %v", err)
				cancel()
			}
		}()
		logger.Printf("listening on %s", ln.Addr())
	}

	positions := make(chan mgl32.Vec3, 1)
	go driveViewer(ctx, path, tune.TickRateHz, positions)

	logger.Printf("run=%s chunk_size=%d max_view_dst=%.0f lods=%d workers=%d path=%s", runID, tune.ChunkSize(), tune.MaxViewDst(), len(tune.LODs), tune.Workers, *pathKind)
	if err := s.Run(ctx, positions); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		logger.Printf("streamer stopped: %v", err)
	}

	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}
	jobs.Close()

	st := s.Stats()
	logger.Printf("stopped run=%s tick=%d sweeps=%d chunks=%d visible=%d jobs submitted=%d completed=%d failed=%d events=%d",
		st.RunID, st.Tick, st.Sweeps, st.Chunks, st.Visible, st.Jobs.Submitted, st.Jobs.Completed, st.Jobs.Failed, eventLog.Lines())
}

// driveViewer feeds the scripted path into the streamer at the tick rate,
// replacing a position the streamer has not picked up yet.
func driveViewer(ctx context.Context, path viewerPath, tickRate int, out chan mgl32.Vec3) {
	if tickRate <= 0 {
		tickRate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	start := time.Now()
	for {
		p := path(time.Since(start))
		select {
		case out <- p:
		default:
			select {
			case <-out:
			default:
			}
			select {
			case out <- p:
			default:
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
