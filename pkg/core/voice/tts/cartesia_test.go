package tts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

func TestNewCartesia_ConstructorsAndName(t *testing.T) {
	client := &http.Client{}
	p := NewCartesiaWithClient("api-key", "", client)
	if p.httpClient != client {
		t.Fatal("expected custom http client to be set")
	}
	if p.Name() != "cartesia" {
		t.Fatalf("name = %q, want cartesia", p.Name())
	}
	if p.voiceID != defaultVoiceID {
		t.Fatalf("voiceID = %q, want default", p.voiceID)
	}
}

func TestBuildOutputFormat(t *testing.T) {
	p := &CartesiaProvider{}

	mp3 := p.buildOutputFormat(SynthesizeOptions{Format: "mp3"})
	if mp3.Container != "mp3" || mp3.BitRate == 0 {
		t.Fatalf("mp3 format = %#v, want mp3 with non-zero bitrate", mp3)
	}

	pcm := p.buildOutputFormat(SynthesizeOptions{Format: "pcm", SampleRate: 16000})
	if pcm.Container != "raw" || pcm.Encoding != "pcm_s16le" || pcm.SampleRate != 16000 {
		t.Fatalf("pcm format = %#v, want raw/pcm_s16le/16000", pcm)
	}

	wav := p.buildOutputFormat(SynthesizeOptions{Format: "wav"})
	if wav.Container != "wav" || wav.SampleRate != 24000 {
		t.Fatalf("wav format = %#v, want wav/24000", wav)
	}

	if def := p.buildOutputFormat(SynthesizeOptions{}); def.Container != "mp3" {
		t.Fatalf("default format = %#v, want mp3", def)
	}
}

func TestCartesiaSynthesize_SendsLanguageAndReturnsAudio(t *testing.T) {
	var got cartesiaTTSRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Cartesia-Version") != cartesiaVersion {
			t.Errorf("missing Cartesia-Version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte("ID3audio"))
	}))
	defer server.Close()

	p := NewCartesia("key", "voice-1").WithBaseURL(server.URL)
	syn, err := p.Synthesize(t.Context(), "Paani dena band karein", SynthesizeOptions{Language: types.LangHindi})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(syn.Audio) != "ID3audio" || syn.Provider != "cartesia" || syn.ContentType() != "audio/mpeg" {
		t.Fatalf("synthesis = %+v", syn)
	}
	if got.Language == nil || *got.Language != "hi" {
		t.Errorf("language = %v, want hi", got.Language)
	}
	if got.Voice.ID != "voice-1" {
		t.Errorf("voice = %q, want voice-1", got.Voice.ID)
	}
}

func TestCartesiaSynthesize_MapsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payment required", http.StatusPaymentRequired)
	}))
	defer server.Close()

	p := NewCartesia("key", "").WithBaseURL(server.URL)
	_, err := p.Synthesize(t.Context(), "hello", SynthesizeOptions{})
	if core.TypeOf(err) != core.ErrPermission {
		t.Fatalf("TypeOf(err) = %v, want %v", core.TypeOf(err), core.ErrPermission)
	}
}
