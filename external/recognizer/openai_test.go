package recognizer

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/stretchr/testify/require"
)

func TestOpenAIRecognizerPostsWAV(t *testing.T) {
	var (
		gotPath     string
		gotModel    string
		gotLanguage string
		gotFilename string
		gotWAV      []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotWAV, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  hello from whisper  "}`))
	}))
	defer server.Close()

	r := NewOpenAIRecognizer(OpenAIConfig{BaseURL: server.URL + "/v1/", APIKey: "test", Model: "whisper-tiny"})
	text, err := r.Recognize(context.Background(), recognizer.Request{
		Samples:    make([]float32, 1600),
		SampleRate: 16000,
		BeamWidth:  4,
		Language:   "en",
	})
	require.NoError(t, err)
	require.Equal(t, "hello from whisper", text)
	require.Equal(t, "/v1/audio/transcriptions", gotPath)
	require.Equal(t, "whisper-tiny", gotModel)
	require.Equal(t, "en", gotLanguage)
	require.Equal(t, "window.wav", gotFilename)
	require.Len(t, gotWAV, 44+1600*2)
	require.Equal(t, "RIFF", string(gotWAV[:4]))
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(gotWAV[24:28]))
}

func TestOpenAIRecognizerSkipsEmptyInput(t *testing.T) {
	r := NewOpenAIRecognizer(OpenAIConfig{BaseURL: "http://127.0.0.1:1/v1", Model: "m"})
	text, err := r.Recognize(context.Background(), recognizer.Request{})
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestOpenAIRecognizerClassifiesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model loading","type":"server_error"}}`))
	}))
	defer server.Close()

	r := NewOpenAIRecognizer(OpenAIConfig{BaseURL: server.URL + "/v1", Model: "m"})
	_, err := r.Recognize(context.Background(), recognizer.Request{Samples: []float32{0.1}, SampleRate: 16000})
	require.Error(t, err)
	require.Equal(t, "http_503", recognizer.Kind(err))
}
