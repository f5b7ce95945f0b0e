package media

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/neuroexpert/site/internal/api"
	"github.com/neuroexpert/site/internal/playback"
)

const maxPlanBodyBytes = 4 << 10

// Hints are the capability signals a page reports about its visitor.
type Hints struct {
	EffectiveType string          `json:"effective_type"`
	SaveData      *bool           `json:"save_data"`
	Battery       *BatteryHint    `json:"battery"`
	Mobile        *bool           `json:"mobile"`
	ViewportWidth int             `json:"viewport_width"`
	Codecs        map[string]bool `json:"codecs"`
}

// BatteryHint is the Battery Status API reading.
type BatteryHint struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// Plan tells the page what to render.
type Plan struct {
	LoadVideo bool     `json:"load_video"`
	Device    Device   `json:"device"`
	Sources   []Source `json:"sources"`
	Poster    string   `json:"poster"`
	Fallback  Fallback `json:"fallback"`
}

// mergeHeaders fills hints the body left out from client hint headers.
func (h *Hints) mergeHeaders(r *http.Request) {
	if h.EffectiveType == "" {
		h.EffectiveType = strings.TrimSpace(r.Header.Get("ECT"))
	}
	if h.SaveData == nil {
		if v := strings.TrimSpace(r.Header.Get("Save-Data")); v != "" {
			on := strings.EqualFold(v, "on")
			h.SaveData = &on
		}
	}
	if h.Mobile == nil {
		switch strings.TrimSpace(r.Header.Get("Sec-CH-UA-Mobile")) {
		case "?1":
			m := true
			h.Mobile = &m
		case "?0":
			m := false
			h.Mobile = &m
		}
	}
}

// Sensor exposes the hints to the load-condition evaluation.
func (h *Hints) Sensor() playback.StaticSensor {
	var p playback.StaticSensor
	if h.EffectiveType != "" || h.SaveData != nil {
		n := playback.NetworkInfo{EffectiveType: h.EffectiveType}
		if h.SaveData != nil {
			n.SaveData = *h.SaveData
		}
		p.NetworkInfo = &n
	}
	if h.Battery != nil {
		p.BatteryStatus = &playback.BatteryStatus{Level: h.Battery.Level, Charging: h.Battery.Charging}
	}
	return p
}

// Handler serves the media plan endpoint.
type Handler struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewHandler creates a media plan handler over catalog.
func NewHandler(catalog *Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers media routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/media/plan", h.HandlePlan)
	r.Get("/api/media/plan", h.HandlePlan)
}

// HandlePlan handles POST /api/media/plan. The body is optional; headers
// alone produce a plan.
func (h *Handler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var hints Hints
	if r.Method == http.MethodPost {
		if err := api.DecodeJSON(w, r, maxPlanBodyBytes, &hints); err != nil {
			switch {
			case errors.Is(err, api.ErrEmptyBody):
			case errors.Is(err, api.ErrBodyTooLarge):
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			default:
				api.Error(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
	}
	hints.mergeHeaders(r)

	api.JSON(w, http.StatusOK, h.Plan(r, &hints))
}

// Plan computes the plan for hints.
func (h *Handler) Plan(r *http.Request, hints *Hints) Plan {
	device := DetectDevice(hints.ViewportWidth, r.UserAgent())
	if hints.Mobile != nil {
		// An explicit hint wins over viewport and user agent sniffing.
		device = DeviceDesktop
		if *hints.Mobile {
			device = DeviceMobile
		}
	}

	plan := Plan{
		LoadVideo: playback.EvaluateLoadConditions(r.Context(), hints.Sensor()),
		Device:    device,
		Poster:    h.catalog.Poster,
		Fallback:  h.catalog.Fallback,
		Sources:   []Source{},
	}
	if plan.LoadVideo {
		plan.Sources = h.catalog.Select(device, hints.Codecs)
		if len(plan.Sources) == 0 {
			plan.LoadVideo = false
		}
	}

	h.logger.Debug("Media plan",
		"load_video", plan.LoadVideo,
		"device", device,
		"effective_type", hints.EffectiveType,
		"sources", len(plan.Sources),
	)
	return plan
}
