package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
	"github.com/jackc/pgx/v5/pgconn"
)

type apiReply struct {
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func doAPI(t *testing.T, h http.Handler, method, path, body string) (int, apiReply) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var reply apiReply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, reply
}

func wkbRow(t *testing.T, g geom.Geometry) []any {
	t.Helper()
	b, err := wkb.EncodeBytes(g)
	if err != nil {
		t.Fatal(err)
	}
	return []any{b}
}

func TestAPI_Layers(t *testing.T) {
	store := newFakeStore()
	store.listed = [][]any{{"public", "wells"}}
	app, _ := newTestApp(t, store)
	if _, err := app.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	code, reply := doAPI(t, newAPIRouter(app), http.MethodGet, "/layers", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var views []layerView
	if err := json.Unmarshal(reply.Result, &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %+v", views)
	}
	v := views[0]
	if v.Table != "wells" || v.Kind != KindPoint || v.Features != 2 || v.Tiles != "/map/public.wells/{z}/{x}/{y}.png" {
		t.Fatalf("view = %+v", v)
	}
	if v.Bounds[0] >= v.Bounds[2] || v.Bounds[3] >= v.Bounds[1] {
		t.Fatalf("bounds = %v", v.Bounds)
	}
}

func TestAPI_WKT(t *testing.T) {
	store := newFakeStore()
	store.listed = [][]any{
		wkbRow(t, geom.Point{1, 2}),
		{nil},
		wkbRow(t, geom.LineString{{0, 0}, {1, 1}}),
	}
	app, _ := newTestApp(t, store)

	code, reply := doAPI(t, newAPIRouter(app), http.MethodPost, "/wkt", `{"table":"roads","bb":[[2,2],[0,0]]}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, reply.Message)
	}
	var texts []string
	if err := json.Unmarshal(reply.Result, &texts); err != nil {
		t.Fatal(err)
	}
	if len(texts) != 2 || !strings.HasPrefix(texts[0], "POINT") || !strings.HasPrefix(texts[1], "LINESTRING") {
		t.Fatalf("wkt = %v", texts)
	}
	if e := (BBoxQuery{BB: [2][2]float64{{2, 2}, {0, 0}}}).envelope(); e != (Envelope{0, 0, 2, 2}) {
		t.Fatalf("envelope = %+v", e)
	}
}

func TestAPI_Geometry(t *testing.T) {
	store := newFakeStore()
	store.listed = [][]any{wkbRow(t, geom.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})}
	app, _ := newTestApp(t, store)

	code, reply := doAPI(t, newAPIRouter(app), http.MethodPost, "/geometry", `{"table":"public.parks","bb":[[0,0],[1,1]]}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, reply.Message)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Type     string `json:"type"`
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(reply.Result, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 || fc.Features[0].Geometry.Type != "Polygon" {
		t.Fatalf("collection = %+v", fc)
	}
}

func TestAPI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(app *App, store *fakeStore)
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", nil, http.MethodPost, "/wkt", `{"table":`, http.StatusBadRequest},
		{"unknown field", nil, http.MethodPost, "/wkt", `{"table":"t","bbox":[]}`, http.StatusBadRequest},
		{"not connected", func(app *App, _ *fakeStore) { app.conn = ConnectionConfig{} },
			http.MethodPost, "/wkt", `{"table":"t","bb":[[0,0],[1,1]]}`, http.StatusConflict},
		{"bad table name", nil, http.MethodPost, "/geometry", `{"table":"a.b.c","bb":[[0,0],[1,1]]}`, http.StatusBadRequest},
		{"store unreachable", func(_ *App, store *fakeStore) { store.dialErr = errors.New("refused") },
			http.MethodPost, "/wkt", `{"table":"t","bb":[[0,0],[1,1]]}`, http.StatusBadGateway},
		{"connect unreachable", func(_ *App, store *fakeStore) { store.dialErr = errors.New("refused") },
			http.MethodPost, "/connect", `{"host":"10.0.0.1","port":5432}`, http.StatusBadGateway},
		{"import without locator", nil, http.MethodPost, "/import", `{}`, http.StatusBadRequest},
		{"import not connected", func(app *App, _ *fakeStore) { app.conn = ConnectionConfig{} },
			http.MethodPost, "/import", `{"locator":"x.geojson"}`, http.StatusConflict},
		{"import unopenable", nil, http.MethodPost, "/import", `{"locator":"x.geojson"}`, http.StatusUnprocessableEntity},
		{"sync not connected", func(app *App, _ *fakeStore) { app.conn = ConnectionConfig{} },
			http.MethodPost, "/sync", ``, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			app, _ := newTestApp(t, store)
			app.openDataset = func(_ context.Context, locator string) (*Dataset, error) {
				return nil, fmt.Errorf("%s: %w", locator, ErrOpenFailed)
			}
			if tt.setup != nil {
				tt.setup(app, store)
			}
			code, reply := doAPI(t, newAPIRouter(app), tt.method, tt.path, tt.body)
			if code != tt.want {
				t.Fatalf("status = %d (%s), want %d", code, reply.Message, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotConnected, http.StatusConflict},
		{fmt.Errorf("public.x: %w", ErrUnknownTable), http.StatusNotFound},
		{classifyQueryError(TableIdentity{"public", "x"}, &pgconn.PgError{Code: "42P01"}), http.StatusNotFound},
		{fmt.Errorf("a.txt: %w", ErrUnknownDriver), http.StatusUnprocessableEntity},
		{&ConnectError{Target: "db", Err: errors.New("refused")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
