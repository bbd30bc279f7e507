package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mocap/config"
	"mocap/detector"
	"mocap/notify"
	"mocap/record"
	"mocap/render"
	"mocap/serve"
	"mocap/session"
	"mocap/video/capture"
	"mocap/video/sink"
	"mocap/video/source"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Capture, detect and stream the smoothed skeleton",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "Port to host the web endpoints, overrides the configuration")
	rootCmd.AddCommand(serveCmd)
}

func newDevice(c *config.Config, pool *source.BufferPool) (source.Device, error) {
	facing, err := source.ParseFacing(c.Capture.Facing)
	if err != nil {
		return nil, err
	}
	opts := source.Options{
		URI:       c.Capture.URI,
		DeviceID:  c.Capture.DeviceID,
		Width:     c.Capture.Width,
		Height:    c.Capture.Height,
		FPS:       c.Capture.FPS,
		Facing:    facing,
		AutoFocus: c.Capture.AutoFocus,
	}
	if c.Capture.Synthetic && c.Capture.URI == "" {
		log.Infof("Using synthetic capture source")
		return source.NewSynthetic(opts, pool), nil
	}
	vc := capture.NewVideoCapture(opts, pool)
	vc.SensorOrientation = c.Capture.SensorOrientation
	vc.DisplayDegrees = c.Capture.DisplayDegrees
	vc.OnNegotiated = func(caps source.Capabilities) {
		log.Infof("Capture negotiated %v, %d-%d mfps, frame rotation %d, display rotation %d",
			caps.PreviewSize, caps.FPS.Min, caps.FPS.Max, caps.Rotation, caps.DisplayRotation)
	}
	return vc, nil
}

func newBackend(c *config.Config, store *record.Store) (detector.Backend, error) {
	switch {
	case c.Detector.URL != "":
		log.Infof("Using remote detector at %v", c.Detector.URL)
		return detector.NewRemote(c.Detector.URL), nil
	case c.Detector.ReplaySession != "":
		samples, err := store.Samples(c.Detector.ReplaySession)
		if err != nil {
			return nil, err
		}
		log.Infof("Replaying %d samples from session %v", len(samples), c.Detector.ReplaySession)
		return detector.NewReplay(samples)
	}
	return nil, errors.New("no detector configured, set Detector.URL or Detector.ReplaySession")
}

func applyReload(old, new *config.Config, sess *session.Session, r *render.Renderer) {
	if !old.Reloadable(new) {
		log.Warnf("Configuration change needs a restart to take effect")
	}
	if lvl, err := log.ParseLevel(new.LogLevel); err == nil && logLevel == "" {
		log.SetLevel(lvl)
	}
	r.SetSmoothing(new.Render.Smoothing)
	if p, err := session.ParseEmptyPolicy(new.Render.EmptyPolicy); err == nil {
		sess.SetEmptyPolicy(p)
	}
	log.Infof("Applied configuration: smoothing %v, empty policy %v", new.Render.Smoothing, new.Render.EmptyPolicy)
}

func runServe(ctx context.Context) error {
	c := config.Get()
	if port == 0 {
		port = c.Port
	}

	var store *record.Store
	if c.RecordDSN != "" {
		var err error
		if store, err = record.Open(c.RecordDSN); err != nil {
			return err
		}
	}

	pool := source.NewBufferPool(c.Capture.Buffers)
	dev, err := newDevice(c, pool)
	if err != nil {
		return err
	}
	backend, err := newBackend(c, store)
	if err != nil {
		return err
	}
	policy, err := session.ParseEmptyPolicy(c.Render.EmptyPolicy)
	if err != nil {
		return err
	}
	renderer := render.NewRenderer(c.Render.Smoothing)
	sess := session.New(dev, pool, backend, renderer, session.Options{
		Detector:    detector.Options{Timeout: time.Duration(c.Detector.TimeoutMs) * time.Millisecond},
		EmptyPolicy: policy,
	})
	defer func() {
		if err := sess.Release(); err != nil {
			log.Errorf("Failed to release session: %v", err)
		}
	}()

	mux := http.NewServeMux()

	mjpegServer := sink.NewMJPEGServer()
	sinks := []sink.Sink{mjpegServer.NewStream("skeleton")}
	if c.Render.Window {
		sinks = append(sinks, sink.NewWindow("mocap"))
	}
	canvas := sink.NewCanvas(sinks...)
	canvas.Label = func() string {
		st := sess.Status()
		return fmt.Sprintf("%v  frames %d  dropped %d", time.Now().Format("15:04:05"), st.Frames.Processed, st.Frames.Dropped)
	}

	joints := serve.NewJointStream()
	defer joints.Close()
	sess.Listeners = append(sess.Listeners, joints)

	if store != nil {
		rs, err := store.NewSession(c.Capture.Width, c.Capture.Height, c.Capture.Facing)
		if err != nil {
			return err
		}
		log.Infof("Recording to session %v", rs.UUID)
		rec := record.NewRecorder(store, rs.ID, record.RecorderOptions{})
		defer rec.Close()
		sess.Listeners = append(sess.Listeners, rec)
		mux.Handle("/recordings", &serve.RecordingsServer{Store: store})

		if c.Notify.Enabled {
			wp, err := notify.NewWebPush(store.DB(), c.Notify.Subscriber)
			if err != nil {
				return err
			}
			wp.RegisterHandlers(mux)
			sess.Presence = append(sess.Presence, &notify.Notifier{
				Listeners: []notify.NotifyListener{wp},
				Session:   rs.UUID,
				Options: notify.Options{
					AbsentFor:  time.Duration(c.Notify.AbsentSec) * time.Second,
					HoursStart: c.Notify.NotificationHoursStart,
					HoursEnd:   c.Notify.NotificationHoursEnd,
				},
			})
		}
	}

	mux.Handle("/mjpeg", mjpegServer)
	mux.Handle("/joints", joints)
	mux.Handle("/status", &serve.StatusServer{Status: func() interface{} { return sess.Status() }})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	accessLog := log.StandardLogger().WriterLevel(log.DebugLevel)
	defer accessLog.Close()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handlers.CORS(handlers.AllowedOrigins([]string{"*"}))(handlers.LoggingHandler(accessLog, mux)),
	}
	go func() {
		log.Infof("Hosting web endpoints on port %d", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Web server failed: %v", err)
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan bool)
	go func() {
		loop := &render.Loop{
			Renderer: renderer,
			Surface:  canvas,
			Width:    c.Render.Width,
			Height:   c.Render.Height,
			FPS:      c.Render.FPS,
		}
		loop.Run(loopCtx)
		close(loopDone)
	}()
	defer func() {
		stopLoop()
		<-loopDone
		canvas.Close()
	}()

	if err := sess.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case n := <-reloads:
			applyReload(c, n, sess, renderer)
			c = n
		case <-ctx.Done():
			log.Infof("Shutting down")
			return sess.Stop()
		}
	}
}
