package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wegman-software/osmpoi-go/internal/dataset"
	"github.com/wegman-software/osmpoi-go/internal/query"
)

// QueryRequest is the body of POST /datasets/{name}/query.
type QueryRequest struct {
	RadiusKm float64       `json:"radius"`
	Strict   bool          `json:"strict"`
	Points   []query.Point `json:"points"`
}

// Row is one result in the JSON response.
type Row struct {
	ReferID  int64           `json:"refer_id"`
	POIType  string          `json:"poi_type"`
	Lat      float64         `json:"lat"`
	Lon      float64         `json:"lon"`
	DeltaLat float64         `json:"delta_lat"`
	DeltaLon float64         `json:"delta_lon"`
	Distance float64         `json:"distance"`
	Tags     json.RawMessage `json:"tags"`
}

func rows(results []query.Result) []Row {
	out := make([]Row, len(results))
	for i, r := range results {
		lat, lon, dLat, dLon := r.POI.Degrees()
		out[i] = Row{
			ReferID:  r.ReferID,
			POIType:  r.POI.Kind.String(),
			Lat:      lat,
			Lon:      lon,
			DeltaLat: dLat,
			DeltaLon: dLon,
			Distance: r.Distance,
			Tags:     json.RawMessage(r.POI.Tags),
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dataset.ErrInvalidName), errors.Is(err, query.ErrQueryInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	list, err := s.dir.List()
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []dataset.Info{}
	}
	writeJSON(w, http.StatusOK, list)
}

func floatParam(r *http.Request, name string, required bool, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		if required {
			return 0, fmt.Errorf("%w: missing parameter %q", query.ErrQueryInput, name)
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %q: %v", query.ErrQueryInput, name, err)
	}
	return f, nil
}

// handleQueryGet answers a single point given as lat, lon and radius query
// parameters. format=geojson switches the response to a FeatureCollection.
func (s *Server) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, "lat", true, 0)
	if err != nil {
		s.fail(w, err)
		return
	}
	lon, err := floatParam(r, "lon", true, 0)
	if err != nil {
		s.fail(w, err)
		return
	}
	radius, err := floatParam(r, "radius", false, 1)
	if err != nil {
		s.fail(w, err)
		return
	}
	strict := false
	if v := r.URL.Query().Get("strict"); v != "" {
		if strict, err = strconv.ParseBool(v); err != nil {
			s.fail(w, fmt.Errorf("%w: parameter \"strict\": %v", query.ErrQueryInput, err))
			return
		}
	}
	req := QueryRequest{RadiusKm: radius, Strict: strict, Points: []query.Point{{Lat: lat, Lon: lon}}}
	s.serveQuery(w, r, req, r.URL.Query().Get("format") == "geojson")
}

func (s *Server) handleQueryPost(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: decoding body: %v", query.ErrQueryInput, err))
		return
	}
	s.serveQuery(w, r, req, r.URL.Query().Get("format") == "geojson")
}

func (s *Server) serveQuery(w http.ResponseWriter, r *http.Request, req QueryRequest, geo bool) {
	if req.RadiusKm > s.opts.MaxRadiusKm {
		s.fail(w, fmt.Errorf("%w: radius %v exceeds the limit of %v km", query.ErrQueryInput, req.RadiusKm, s.opts.MaxRadiusKm))
		return
	}
	if len(req.Points) > s.opts.MaxPoints {
		s.fail(w, fmt.Errorf("%w: %d points exceed the limit of %d", query.ErrQueryInput, len(req.Points), s.opts.MaxPoints))
		return
	}

	idx, err := s.index(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, err)
		return
	}
	engine, err := query.NewEngine(idx, query.Options{
		RadiusKm: req.RadiusKm,
		Strict:   req.Strict,
		Workers:  s.opts.Workers,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	results, err := engine.Run(r.Context(), req.Points)
	if err != nil {
		s.fail(w, err)
		return
	}

	if geo {
		w.Header().Set("Content-Type", "application/geo+json")
		if err := query.WriteGeoJSON(w, results); err != nil {
			s.log.Warn("Writing response failed", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, rows(results))
}
