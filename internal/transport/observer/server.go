package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/observerproto"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/streaming"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/grid"
)

// Server streams committed shifts to websocket observers. It is a
// streaming.Reporter.
type Server struct {
	ctrl       *streaming.Controller
	grid       *grid.Grid
	pos        streaming.Observer
	tickRateHz int
	log        *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session

	dropped atomic.Uint64
}

type session struct {
	out           chan []byte
	includeWindow atomic.Bool
}

func NewServer(ctrl *streaming.Controller, g *grid.Grid, pos streaming.Observer, tickRateHz int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		ctrl:       ctrl,
		grid:       g,
		pos:        pos,
		tickRateHz: tickRateHz,
		log:        logger,
		sessions:   map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions is the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Dropped counts messages not delivered because a session fell behind.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		var resp observerproto.BootstrapResponse
		s.ctrl.View(func() {
			cfg := s.ctrl.Config()
			st := s.ctrl.Status()
			resp = observerproto.BootstrapResponse{
				ProtocolVersion: observerproto.Version,
				Params: observerproto.StreamParams{
					TickRateHz:       s.tickRateHz,
					RegionSize:       cfg.Geometry.RegionSize,
					VertexSpacing:    cfg.Geometry.VertexSpacing,
					RegionLimit:      cfg.RegionLimit,
					RegionShiftLimit: cfg.RegionShiftLimit,
					CacheMode:        string(st.CacheMode),
				},
				Origin:     [2]int{st.Origin.X, st.Origin.Y},
				Shifts:     st.Shifts,
				InProgress: st.InProgress,
				Window:     s.window(),
			}
		})

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// ReportShift fans a committed shift out to every session. Slow sessions
// lose messages rather than stalling the host loop.
func (s *Server) ReportShift(rep streaming.Report) {
	s.mu.Lock()
	if len(s.sessions) == 0 {
		s.mu.Unlock()
		return
	}
	targets := make([]*session, 0, len(s.sessions))
	wantWindow := false
	for _, sess := range s.sessions {
		targets = append(targets, sess)
		wantWindow = wantWindow || sess.includeWindow.Load()
	}
	s.mu.Unlock()

	msg := shiftMsg(rep)
	p := s.pos.Position()
	msg.Position = [3]float64{p.X(), p.Y(), p.Z()}
	plain, err := json.Marshal(msg)
	if err != nil {
		s.log.Printf("observer: marshal shift: %v", err)
		return
	}
	var withWindow []byte
	if wantWindow {
		msg.Window = s.window()
		withWindow, _ = json.Marshal(msg)
	}

	for _, sess := range targets {
		b := plain
		if sess.includeWindow.Load() && withWindow != nil {
			b = withWindow
		}
		select {
		case sess.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func shiftMsg(rep streaming.Report) observerproto.ShiftMsg {
	return observerproto.ShiftMsg{
		Type:            observerproto.TypeShift,
		ProtocolVersion: observerproto.Version,
		ID:              rep.ID,
		Seq:             rep.Seq,
		Shift:           [2]int{rep.Shift.X, rep.Shift.Y},
		Origin:          [2]int{rep.Origin.X, rep.Origin.Y},
		DurationMS:      rep.DurationMS,
		Generated:       rep.Generated,
		Loaded:          rep.Loaded,
		Cached:          rep.Cached,
		Evicted:         rep.Evicted,
		LoadFallbacks:   rep.LoadFallbacks,
		CacheMisses:     rep.CacheMisses,
		SaveErrors:      rep.SaveErrors,
	}
}

func (s *Server) window() []observerproto.RegionInfo {
	regions := s.grid.Regions()
	out := make([]observerproto.RegionInfo, 0, len(regions))
	for _, p := range regions {
		lo, hi := p.Raster.MinMax()
		out = append(out, observerproto.RegionInfo{
			Real:    [2]int{p.Real.X, p.Real.Y},
			Virtual: [2]int{p.Virtual.X, p.Virtual.Y},
			Min:     lo,
			Max:     hi,
		})
	}
	return out
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sess := &session{out: make(chan []byte, 64)}
		sess.includeWindow.Store(sub.IncludeWindow)
		s.mu.Lock()
		s.sessions[sid] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sid)
			s.mu.Unlock()
		}()
		s.log.Printf("observer %s connected from %s", sid, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				sess.includeWindow.Store(sub.IncludeWindow)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("observer %s disconnected", sid)
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
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
