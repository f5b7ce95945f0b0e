package media

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15"

func TestDefaultCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	assert.Equal(t, "/video-poster.svg", c.Poster)
	assert.Equal(t, "#0b0f17", c.Fallback.Background)
	require.Len(t, c.Sources, 3)
	assert.Equal(t, "/background.webm", c.Sources[0].Src)
}

func TestSelect(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	mobile := c.Select(DeviceMobile, nil)
	require.Len(t, mobile, 2)
	assert.Equal(t, "video/webm", mobile[0].Type)
	assert.Contains(t, mobile[1].Src, "w_720,h_405")

	desktop := c.Select(DeviceDesktop, nil)
	require.Len(t, desktop, 2)
	assert.Contains(t, desktop[1].Src, "w_1280,h_720")

	noWebM := c.Select(DeviceDesktop, map[string]bool{"video/webm": false})
	require.Len(t, noWebM, 1)
	assert.Equal(t, "video/mp4", noWebM[0].Type)
}

func TestDetectDevice(t *testing.T) {
	assert.Equal(t, DeviceMobile, DetectDevice(767, ""))
	assert.Equal(t, DeviceDesktop, DetectDevice(768, ""))
	assert.Equal(t, DeviceMobile, DetectDevice(0, iphoneUA))
	assert.Equal(t, DeviceDesktop, DetectDevice(0, "Mozilla/5.0 (X11; Linux x86_64)"))
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"no sources":   "poster: /p.svg\n",
		"missing src":  "sources:\n  - type: video/mp4\n",
		"not video":    "sources:\n  - src: /a.mp3\n    type: audio/mpeg\n",
		"bad device":   "sources:\n  - src: /a.mp4\n    type: video/mp4\n    device: tv\n",
		"invalid yaml": "sources: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poster: /x.svg\nsources:\n  - src: /x.mp4\n    type: video/mp4\n"), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "/x.svg", c.Poster)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func planFor(t *testing.T, body string, headers map[string]string) (int, Plan) {
	t.Helper()
	c, err := LoadCatalog("")
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(c, nil).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/media/plan", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var plan Plan
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&plan))
	}
	return w.Code, plan
}

func TestHandlePlan(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		wantCode   int
		wantLoad   bool
		wantDevice Device
	}{
		{"fast desktop", `{"effective_type":"4g","viewport_width":1440}`, nil, http.StatusOK, true, DeviceDesktop},
		{"2g from body", `{"effective_type":"2g"}`, nil, http.StatusOK, false, DeviceDesktop},
		{"ect header", ``, map[string]string{"ECT": "slow-2g"}, http.StatusOK, false, DeviceDesktop},
		{"save-data header", ``, map[string]string{"Save-Data": "on"}, http.StatusOK, false, DeviceDesktop},
		{"body overrides header", `{"save_data":false}`, map[string]string{"Save-Data": "on"}, http.StatusOK, true, DeviceDesktop},
		{"low battery", `{"battery":{"level":0.1,"charging":false}}`, nil, http.StatusOK, false, DeviceDesktop},
		{"low battery charging", `{"battery":{"level":0.1,"charging":true}}`, nil, http.StatusOK, true, DeviceDesktop},
		{"mobile client hint", ``, map[string]string{"Sec-CH-UA-Mobile": "?1"}, http.StatusOK, true, DeviceMobile},
		{"mobile user agent", `{}`, map[string]string{"User-Agent": iphoneUA}, http.StatusOK, true, DeviceMobile},
		{"body mobile false beats user agent", `{"mobile":false}`, map[string]string{"User-Agent": iphoneUA}, http.StatusOK, true, DeviceDesktop},
		{"body mobile false beats narrow viewport", `{"mobile":false,"viewport_width":390}`, nil, http.StatusOK, true, DeviceDesktop},
		{"desktop client hint beats user agent", ``, map[string]string{"Sec-CH-UA-Mobile": "?0", "User-Agent": iphoneUA}, http.StatusOK, true, DeviceDesktop},
		{"body mobile false beats mobile client hint", `{"mobile":false}`, map[string]string{"Sec-CH-UA-Mobile": "?1"}, http.StatusOK, true, DeviceDesktop},
		{"no hints", ``, nil, http.StatusOK, true, DeviceDesktop},
		{"invalid body", `{`, nil, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, plan := planFor(t, tt.body, tt.headers)
			require.Equal(t, tt.wantCode, code)
			if code != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantLoad, plan.LoadVideo)
			assert.Equal(t, tt.wantDevice, plan.Device)
			assert.Equal(t, "/video-poster.svg", plan.Poster)
			if plan.LoadVideo {
				assert.Len(t, plan.Sources, 2)
			} else {
				assert.Empty(t, plan.Sources)
			}
		})
	}
}
