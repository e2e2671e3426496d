package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/streaming.yaml", "path to streaming.yaml (defaults apply when missing)")
		dataDir    = flag.String("data", "./data", "runtime data directory (shift log + index)")
		disableDB  = flag.Bool("disable_db", false, "disable the shift index")
		resume     = flag.Bool("resume", true, "resume the observer position saved by the previous run")
		walk       = flag.String("walk", "12,0", "simulated observer velocity x,z in world units per second")
		startAt    = flag.String("start", "0,0", "simulated observer start position x,z")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *configPath)
		tune = tuning.Defaults()
		tune.Normalize()
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	vel, err := parseXZ(*walk)
	if err != nil {
		logger.Fatalf("bad -walk: %v", err)
	}
	start, err := parseXZ(*startAt)
	if err != nil {
		logger.Fatalf("bad -start: %v", err)
	}

	rt, err := buildRuntime(serverRuntimeConfig{
		DataDir:   *dataDir,
		DisableDB: *disableDB,
		Resume:    *resume,
		Start:     start,
		Walk:      vel,
	}, tune, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer rt.Close()
		if err := rt.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("streaming stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metricsHandler())

	enableAdminHTTP := envBool("TS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("TS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		mux.HandleFunc("/admin/v1/state", rt.stateHandler())
		mux.HandleFunc("/admin/v1/observer/bootstrap", rt.obs.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", rt.obs.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (TS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (region_size=%d limit=%d shift_limit=%d cache=%s disk=%v)",
		*addr, tune.RegionSize, tune.RegionLimit, tune.RegionShiftLimit, tune.Cache.Mode, tune.Disk.Enabled)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cancel()
		<-done
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-done
}

func (rt *streamRuntime) stateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		type stateResp struct {
			Status   any           `json:"status"`
			Position [3]float64    `json:"position"`
			Height   *float32      `json:"height,omitempty"`
			Ticks    uint64        `json:"ticks"`
			Tuning   tuning.Tuning `json:"tuning"`
		}
		var resp stateResp
		rt.ctrl.View(func() {
			p := rt.body.Position()
			resp.Status = rt.ctrl.Status()
			resp.Position = [3]float64{p.X(), p.Y(), p.Z()}
			if h, ok := rt.grid.HeightAt(p); ok {
				resp.Height = &h
			}
		})
		resp.Ticks = rt.ticks.Load()
		resp.Tuning = rt.tune
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
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

func parseXZ(s string) (mgl64.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return mgl64.Vec3{}, fmt.Errorf("expected x,z")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return mgl64.Vec3{x, 0, z}, nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
