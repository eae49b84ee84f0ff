package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.jpl.nasa.gov/bdube/daqsync/acquire"
	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/generichttp"
	ghdaq "github.jpl.nasa.gov/bdube/daqsync/generichttp/daq"
	"github.jpl.nasa.gov/bdube/daqsync/livesink"
	"github.jpl.nasa.gov/bdube/daqsync/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
	"github.jpl.nasa.gov/bdube/daqsync/shotrun"
	"github.jpl.nasa.gov/bdube/daqsync/waitmon"
)

// ChannelSetup names one manual-mode input channel and its voltage range
type ChannelSetup struct {
	Name string  `yaml:"Name"`
	Min  float64 `yaml:"Min"`
	Max  float64 `yaml:"Max"`
}

// DeviceSetup holds the initialization parameters for one acquisition device
type DeviceSetup struct {
	// Name is the device's name as shot descriptions refer to it
	Name string `yaml:"Name"`

	// Endpoint is the full path the routes from this device will be served
	// on, ex. Endpoint="/lab/daq" will produce routes of /lab/daq/mode, etc.
	Endpoint string `yaml:"Endpoint"`

	// ManualRate is the free-running sample rate between shots, in Hz
	ManualRate float64 `yaml:"ManualRate"`

	// ManualChannels is the channel set sampled between shots
	ManualChannels []ChannelSetup `yaml:"ManualChannels"`
}

// Config is a struct that holds the initialization parameters for the
// server.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// LiveHz caps how many sample frames per second are relayed to live
	// display clients
	LiveHz float64 `yaml:"LiveHz"`

	// Nodes is the list of devices to set up
	Nodes []DeviceSetup `yaml:"Nodes"`
}

func resultPath(shotPath string) string {
	ext := filepath.Ext(shotPath)
	return strings.TrimSuffix(shotPath, ext) + ".fits"
}

// BuildMux constructs a chi mux with one submux per configured device, a
// /live websocket for manual-mode frames, and /endpoints, the route graph
// as JSON.  The returned function stops every device's sampling
func BuildMux(c Config) (chi.Router, func(), error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	broadcaster := livesink.NewBroadcaster(c.LiveHz)
	notifier := waitmon.NewNotifier()
	var engines []*acquire.Engine

	shutdown := func() {
		for _, e := range engines {
			if err := e.Shutdown(); err != nil {
				log.Printf("engine shutdown: %v", err)
			}
		}
	}

	if len(c.Nodes) == 0 {
		return nil, nil, fmt.Errorf("no devices configured")
	}
	for _, node := range c.Nodes {
		chans := make([]daq.Channel, len(node.ManualChannels))
		for i, cs := range node.ManualChannels {
			chans[i] = daq.Channel{Name: cs.Name, Kind: daq.AnalogIn, VMin: cs.Min, VMax: cs.Max}
		}
		if len(chans) == 0 {
			chans = []daq.Channel{{Name: "ai0", Kind: daq.AnalogIn, VMin: -10, VMax: 10}}
		}
		rate := node.ManualRate
		if rate == 0 {
			rate = 1000
		}

		sim := daq.NewSim()
		engine := acquire.New(sim, chans, rate)
		engine.SetLiveSink(broadcaster)
		if err := engine.Init(); err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("device %s: %w", node.Name, err)
		}
		engines = append(engines, engine)

		ctl := &shotrun.Controller{
			DeviceName: node.Name,
			Engine:     engine,
			Monitor:    waitmon.New(sim, sim, notifier),
			Notifier:   notifier,
			NewWriter: func(shotPath string) (shot.ResultWriter, error) {
				return shot.NewFITSWriter(resultPath(shotPath))
			},
		}
		httper := ghdaq.NewHTTPDAQ(ctl)

		// prepare the URL, "lab/daq" => "/lab/daq/*"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)

		// add a lock interface for this node
		lock := locker.New()
		locker.Inject(httper, lock)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		// bind to the mux
		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(strings.TrimSuffix(hndlS, "*"), r)
	}
	root.Get("/live", broadcaster.Handler())
	root.Post("/live-hz", generichttp.SetInt(broadcaster.SetMaxHz))
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, shutdown, nil
}
