package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"name-redaction-service/internal/config"
	"name-redaction-service/internal/redact"
)

const classroomNote = "Jimmy John and Chucky Cheese were playing. Jimmy had been warned. Chucky got a warning."

func surface(text string, d redact.Detection) string {
	return string([]rune(text)[d.Start:d.End])
}

func surfaces(text string, ds []redact.Detection) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, surface(text, d))
	}
	return out
}

// --- New ---

func TestNew_SelectsByKind(t *testing.T) {
	cases := []struct {
		kind string
		want any
	}{
		{config.DetectorRules, &Rules{}},
		{"", &Rules{}},
		{config.DetectorPresidio, &Presidio{}},
		{config.DetectorOllama, &Ollama{}},
	}
	for _, c := range cases {
		cfg := config.Config{Detector: c.kind, DetectorTimeoutSecs: 1}
		d, err := New(&cfg, nil)
		require.NoError(t, err, "kind %q", c.kind)
		assert.IsType(t, c.want, d, "kind %q", c.kind)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(&config.Config{Detector: "spacy"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, redact.ErrDetectorUnavailable)
}

// --- helpers ---

func TestRuneIndex_MultiByte(t *testing.T) {
	text := "Zoë 👋 Jimmy"
	ri := newRuneIndex(text)

	start := len("Zoë 👋 ")
	d := ri.span(start, len(text), 1)
	assert.Equal(t, 6, d.Start)
	assert.Equal(t, 11, d.End)
	assert.Equal(t, "Jimmy", surface(text, d))
}

func TestStandsAlone(t *testing.T) {
	assert.True(t, standsAlone("Ann left", 0, 3))
	assert.False(t, standsAlone("Annie left", 0, 3))
	assert.False(t, standsAlone("JoAnn", 2, 5))
	assert.True(t, standsAlone("(Ann)", 1, 4))
}

func TestDropOverlaps_KeepsFirstReported(t *testing.T) {
	ds := []redact.Detection{
		{Start: 5, End: 10, Score: 0.9},
		{Start: 0, End: 7, Score: 0.8},
		{Start: 12, End: 14, Score: 0.5},
	}
	got := dropOverlaps(ds)
	assert.Equal(t, []redact.Detection{ds[0], ds[2]}, got)
}

func TestWantsPerson(t *testing.T) {
	assert.True(t, wantsPerson(nil))
	assert.True(t, wantsPerson([]string{"LOCATION", "PERSON"}))
	assert.False(t, wantsPerson([]string{"LOCATION"}))
}

// --- Rules ---

func TestRules_ClassroomNote(t *testing.T) {
	r, err := NewRules()
	require.NoError(t, err)

	ds, err := r.Analyze(context.Background(), classroomNote, []string{redact.LabelPerson}, "en")
	require.NoError(t, err)

	assert.Equal(t, []string{"Jimmy John", "Chucky Cheese", "Jimmy", "Chucky"}, surfaces(classroomNote, ds))
	for _, d := range ds {
		assert.Equal(t, redact.LabelPerson, d.Label)
	}
	assert.Equal(t, 0.85, ds[0].Score)
	assert.Equal(t, 0.6, ds[2].Score)
	assert.NoError(t, redact.ValidateDetections(classroomNote, ds))
}

func TestRules_Honorific(t *testing.T) {
	r, err := NewRules()
	require.NoError(t, err)

	for _, text := range []string{"Mr. Smith called.", "Coach Kowalski called."} {
		ds, err := r.Analyze(context.Background(), text, nil, "en")
		require.NoError(t, err)
		require.Len(t, ds, 1, text)
		assert.NotContains(t, surface(text, ds[0]), "Mr")
		assert.NotContains(t, surface(text, ds[0]), "Coach")
	}
}

func TestRules_TrimsLeadingNonNames(t *testing.T) {
	r, err := NewRules()
	require.NoError(t, err)

	text := "Yesterday Jimmy cried. Boston Maria Lopez laughed."
	ds, err := r.Analyze(context.Background(), text, nil, "en")
	require.NoError(t, err)

	assert.Equal(t, []string{"Jimmy", "Maria Lopez"}, surfaces(text, ds))
}

func TestRules_TrimsTrailingDays(t *testing.T) {
	r, err := NewRules()
	require.NoError(t, err)

	text := "Anna Monday was quiet."
	ds, err := r.Analyze(context.Background(), text, nil, "en")
	require.NoError(t, err)

	assert.Equal(t, []string{"Anna"}, surfaces(text, ds))
}

func TestRules_CodepointOffsets(t *testing.T) {
	r, err := NewRules()
	require.NoError(t, err)

	text := "👋 Héllo, Jimmy!"
	ds, err := r.Analyze(context.Background(), text, nil, "en")
	require.NoError(t, err)

	require.Len(t, ds, 1)
	assert.Equal(t, 9, ds[0].Start)
	assert.Equal(t, 14, ds[0].End)
}

func TestRules_OtherCategoriesOnly(t *testing.T) {
	r, err := NewRules()
	require.NoError(t, err)

	ds, err := r.Analyze(context.Background(), classroomNote, []string{"LOCATION"}, "en")
	require.NoError(t, err)
	assert.Empty(t, ds)
}

// --- Presidio ---

func TestPresidio_Analyze(t *testing.T) {
	var got presidioRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		// ranked by score, not position
		_, _ = w.Write([]byte(`[
			{"entity_type":"PERSON","start":15,"end":28,"score":0.85},
			{"entity_type":"PERSON","start":0,"end":10,"score":0.85},
			{"entity_type":"PERSON","start":15,"end":21,"score":0.6},
			{"entity_type":"LOCATION","start":50,"end":55,"score":0.9},
			{"entity_type":"PERSON","start":43,"end":48,"score":0.2}
		]`))
	}))
	defer srv.Close()

	p := NewPresidio(srv.URL+"/", 0.35, srv.Client(), nil)
	ds, err := p.Analyze(context.Background(), classroomNote, []string{redact.LabelPerson}, "en")
	require.NoError(t, err)

	assert.Equal(t, classroomNote, got.Text)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, []string{"PERSON"}, got.Entities)
	assert.Equal(t, 0.35, got.ScoreThreshold)

	require.Len(t, ds, 2)
	assert.Equal(t, redact.Detection{Start: 15, End: 28, Label: "PERSON", Score: 0.85}, ds[0])
	assert.Equal(t, redact.Detection{Start: 0, End: 10, Label: "PERSON", Score: 0.85}, ds[1])
}

func TestPresidio_NoThresholdKeepsLowScores(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`[{"entity_type":"PERSON","start":43,"end":48,"score":0.2}]`))
	}))
	defer srv.Close()

	p := NewPresidio(srv.URL, 0, srv.Client(), nil)
	ds, err := p.Analyze(context.Background(), classroomNote, nil, "en")
	require.NoError(t, err)

	assert.NotContains(t, raw, "score_threshold")
	require.Len(t, ds, 1)
	assert.Equal(t, "Jimmy", surface(classroomNote, ds[0]))
}

func TestPresidio_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPresidio(srv.URL, 0, srv.Client(), nil)
	_, err := p.Analyze(context.Background(), "Jimmy", nil, "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, redact.ErrDetectorUnavailable)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestPresidio_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"oops":`))
	}))
	defer srv.Close()

	p := NewPresidio(srv.URL, 0, srv.Client(), nil)
	_, err := p.Analyze(context.Background(), "Jimmy", nil, "en")
	assert.ErrorIs(t, err, redact.ErrDetectorUnavailable)
}

func TestPresidio_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewPresidio(url, 0, nil, nil)
	_, err := p.Analyze(context.Background(), "Jimmy", nil, "en")
	assert.ErrorIs(t, err, redact.ErrDetectorUnavailable)
	assert.ErrorIs(t, p.Ping(context.Background()), redact.ErrDetectorUnavailable)
}

func TestPresidio_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("Presidio Analyzer service is up"))
	}))
	defer srv.Close()

	p := NewPresidio(srv.URL, 0, srv.Client(), nil)
	assert.NoError(t, p.Ping(context.Background()))
}

// --- Ollama ---

func ollamaServer(t *testing.T, modelOutput string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			var req ollamaRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			assert.False(t, req.Stream)
			assert.Contains(t, req.Prompt, classroomNote)
			_ = json.NewEncoder(w).Encode(ollamaResponse{Response: modelOutput})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllama_Analyze(t *testing.T) {
	out := "Here you go:\n" + `[
		{"original":"Jimmy John","type":"name","confidence":0.95},
		{"original":"Chucky Cheese","type":"name","confidence":0.9},
		{"original":"Jimmy","type":"name","confidence":0.8},
		{"original":"Chucky","type":"name","confidence":0.8},
		{"original":"warning","type":"name","confidence":0.1},
		{"original":"playing","type":"location","confidence":0.99}
	]` + "\nDone."
	srv := ollamaServer(t, out)
	defer srv.Close()

	o := NewOllama(srv.URL, "test-model", 0.7, srv.Client(), nil)
	require.NoError(t, o.Ping(context.Background()))

	ds, err := o.Analyze(context.Background(), classroomNote, nil, "en")
	require.NoError(t, err)

	assert.Equal(t, []string{"Jimmy John", "Chucky Cheese", "Jimmy", "Chucky"}, surfaces(classroomNote, ds))
}

func TestOllama_NoArray(t *testing.T) {
	srv := ollamaServer(t, "I could not find any names.")
	defer srv.Close()

	o := NewOllama(srv.URL, "test-model", 0.7, srv.Client(), nil)
	_, err := o.Analyze(context.Background(), classroomNote, nil, "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, redact.ErrDetectorUnavailable)
}

func TestLocateNames(t *testing.T) {
	text := "Ann met Annie and Ann Lee. Ann left."
	ds := locateNames(text, []string{"Ann", "Ann Lee"})

	assert.Equal(t, []string{"Ann", "Ann Lee", "Ann"}, surfaces(text, ds))
	assert.Equal(t, 0, ds[0].Start)
	assert.Equal(t, 27, ds[2].Start)
}

func TestLocateNames_Empty(t *testing.T) {
	assert.Empty(t, locateNames("Ann", nil))
	assert.Empty(t, locateNames("", []string{"Ann"}))
}
