// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"html/template"
	"image"
	"image/png"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/maruel/go-seek/agc"
	"github.com/maruel/go-seek/seek"
	"golang.org/x/net/websocket"
)

// measured is the JSON representation of a measurement.
type measured struct {
	Session       string    `json:"session"`
	MeasurementID uint64    `json:"measurement_id"`
	Time          time.Time `json:"time"`
	Img           [][]int32 `json:"img"`
	Shape         [2]int    `json:"shape"`
	Unit          string    `json:"unit"`
	Busy          bool      `json:"busy"` // Only set by /api/measured.
}

// toMeasured converts m. A nil m has ID 0 and an empty image of the shape of
// r.
func toMeasured(session string, m *seek.Measurement, r image.Rectangle) *measured {
	out := &measured{
		Session: session,
		Shape:   [2]int{r.Dy(), r.Dx()},
		Unit:    "counts",
		Img:     [][]int32{},
	}
	if m != nil {
		c := m.Frame.Channel()
		out.MeasurementID = m.ID
		out.Time = m.Time
		out.Img = m.Frame.Rows()
		out.Shape = c.Shape
		out.Unit = c.Unit
	}
	return out
}

type WebServer struct {
	ctx     context.Context
	session string
	m       *measurer
	pub     *Publisher // nil when MQTT is disabled.
	started time.Time

	cond *sync.Cond
	last *seek.Measurement
}

func newWebServer(ctx context.Context, session string, m *measurer, pub *Publisher) *WebServer {
	s := &WebServer{
		ctx:     ctx,
		session: session,
		m:       m,
		pub:     pub,
		started: time.Now(),
		cond:    sync.NewCond(&sync.Mutex{}),
	}
	m.OnMeasurement(s.add)
	go func() {
		<-ctx.Done()
		s.cond.L.Lock()
		s.cond.Broadcast()
		s.cond.L.Unlock()
	}()
	return s
}

func (s *WebServer) add(m *seek.Measurement) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.last = m
	s.cond.Broadcast()
}

// Handler returns the HTTP handler serving all the routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.root)
	mux.HandleFunc("/api/measure", s.measure)
	mux.HandleFunc("/api/measured", s.measured)
	mux.HandleFunc("/api/channels", s.channels)
	mux.HandleFunc("/still.png", s.still)
	mux.HandleFunc("/still16.png", s.still16)
	mux.Handle("/stream", websocket.Handler(s.stream))
	return loggingHandler{mux}
}

func (s *WebServer) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	data := map[string]interface{}{
		"Device":   s.m.dev.String(),
		"Session":  s.session,
		"Uptime":   time.Since(s.started).Round(time.Second),
		"Stats":    s.m.dev.Stats(),
		"Failures": s.m.Failures(),
		"Busy":     s.m.Busy(),
		"MQTT":     s.pub != nil,
	}
	if s.pub != nil {
		data["Published"] = s.pub.Stats()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := rootTmpl.Execute(w, data); err != nil {
		log.Printf("root: %s", err)
	}
}

// measure triggers a measurement and returns its future ID.
func (s *WebServer) measure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	id := s.m.Trigger()
	writeJSON(w, map[string]interface{}{"session": s.session, "measurement_id": id})
}

func (s *WebServer) measured(w http.ResponseWriter, r *http.Request) {
	out := toMeasured(s.session, s.m.dev.Last(), s.m.dev.Bounds())
	out.Busy = s.m.Busy()
	writeJSON(w, out)
}

type channel struct {
	Unit  string `json:"unit"`
	Shape [2]int `json:"shape"`
}

// channels describes the channels of a measurement, keyed by name.
func (s *WebServer) channels(w http.ResponseWriter, r *http.Request) {
	b := s.m.dev.Bounds()
	c := seek.Channel{Name: "img", Unit: "counts", Shape: [2]int{b.Dy(), b.Dx()}}
	writeJSON(w, map[string]channel{c.Name: {Unit: c.Unit, Shape: c.Shape}})
}

// still returns the last measurement as a 8 bit PNG.
func (s *WebServer) still(w http.ResponseWriter, r *http.Request) {
	rotate := 0
	if v := r.FormValue("rotate"); v != "" {
		var err error
		if rotate, err = strconv.Atoi(v); err != nil {
			http.Error(w, "invalid rotate", http.StatusBadRequest)
			return
		}
	}
	m := s.m.dev.Last()
	if m == nil {
		http.Error(w, "no measurement yet", http.StatusServiceUnavailable)
		return
	}
	img, err := agc.Rotate(agc.Linear(m.Frame), rotate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		log.Printf("still: %s", err)
	}
}

// still16 returns the last measurement as a 16 bit PNG offset by its minimum.
func (s *WebServer) still16(w http.ResponseWriter, r *http.Request) {
	m := s.m.dev.Last()
	if m == nil {
		http.Error(w, "no measurement yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, agc.Gray16(m.Frame)); err != nil {
		log.Printf("still16: %s", err)
	}
}

// stream sends each new measurement as a JSON websocket frame.
func (s *WebServer) stream(w *websocket.Conn) {
	log.Printf("websocket from %s", w.Request().RemoteAddr)
	defer w.Close()
	var sent uint64
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for s.ctx.Err() == nil {
		if s.last == nil || s.last.ID == sent {
			s.cond.Wait()
			continue
		}
		m := s.last
		s.cond.L.Unlock()
		// Do the actual I/O without the lock.
		err := websocket.JSON.Send(w, toMeasured(s.session, m, m.Frame.Bounds()))
		s.cond.L.Lock()
		// To break out of the loop, the lock must be held.
		if err != nil {
			log.Printf("websocket err: %s", err)
			break
		}
		sent = m.ID
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json: %s", err)
	}
}

var rootTmpl = template.Must(template.New("root").Parse(`<!DOCTYPE HTML>
<html>
<head>
<meta charset="utf-8">
<title>{{.Device}}</title>
<style>
img { image-rendering: pixelated; width: 624px; }
</style>
</head>
<body>
<img id="still" src="/still.png">
<pre>
Session:      {{.Session}}
Uptime:       {{.Uptime}}
Measurements: {{.Stats.Measurements}} ({{.Failures}} failed){{if .Busy}}, measuring{{end}}
Frames:       {{.Stats.Frames}} ({{.Stats.CalibrationFrames}} calibration, {{.Stats.OtherFrames}} other)
Fails:        {{.Stats.ControlFails}} control, {{.Stats.BulkFails}} bulk, {{.Stats.ProcessFails}} process
{{if .MQTT}}MQTT:         {{.Published.Sent}} sent, {{.Published.Failed}} failed
{{end}}</pre>
<button onclick="fetch('/api/measure', {method: 'POST'})">Measure</button>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/stream");
ws.onmessage = () => {
  document.getElementById("still").src = "/still.png?" + Date.now();
};
</script>
</body>
</html>
`))

// Private details.

type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (size int, err error) {
	if l.status == 0 {
		l.status = http.StatusOK
	}
	size, err = l.ResponseWriter.Write(data)
	l.length += size
	return
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack is needed for websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h := l.ResponseWriter.(http.Hijacker)
	return h.Hijack()
}

// ServeHTTP logs each HTTP request if -v is passed.
func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w}
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s\n", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI)
}
