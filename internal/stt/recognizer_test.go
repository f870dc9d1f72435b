package stt

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMockRecognizerEmitsFinalEveryN(t *testing.T) {
	rec, err := NewMockFactory(3).NewRecognizer(context.Background(), Model{Dir: t.TempDir(), SampleRate: 16000})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	defer rec.Close()

	frame := make([]byte, 64)
	var kinds []Kind
	for i := 0; i < 6; i++ {
		ev, err := rec.Feed(context.Background(), frame)
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		kinds = append(kinds, ev.Kind)
	}
	want := []Kind{Partial, Partial, Final, Partial, Partial, Final}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}

	_ = rec.Close()
	if _, err := rec.Feed(context.Background(), frame); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestParseResult(t *testing.T) {
	ev, err := parseResult([]byte(`{"text":"hello world"}`))
	if err != nil || ev.Kind != Final || ev.Text != "hello world" {
		t.Fatalf("unexpected final parse %+v %v", ev, err)
	}
	ev, err = parseResult([]byte(`{"text":""}`))
	if err != nil || ev.Kind != Final || ev.Text != "" {
		t.Fatalf("empty final should stay final: %+v %v", ev, err)
	}
	ev, err = parseResult([]byte(`{"partial":"hel"}`))
	if err != nil || ev.Kind != Partial || ev.Text != "hel" {
		t.Fatalf("unexpected partial parse %+v %v", ev, err)
	}
	if _, err := parseResult([]byte("nope")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExecFactoryRejectsMissingModel(t *testing.T) {
	factory, err := NewExecFactory("decoder --flag", newLogger())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	_, err = factory.NewRecognizer(context.Background(), Model{Dir: filepath.Join(t.TempDir(), "absent"), SampleRate: 16000})
	if !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing, got %v", err)
	}
}

func TestMockFactoryRejectsMissingModel(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	_, err := NewMockFactory(3).NewRecognizer(context.Background(), Model{Dir: missing, SampleRate: 16000})
	if !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing, got %v", err)
	}

	file := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = NewMockFactory(3).NewRecognizer(context.Background(), Model{Dir: file, SampleRate: 16000})
	if !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing for a regular file, got %v", err)
	}
}

func TestExecFactoryRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecFactory("  ", newLogger()); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecRecognizerRoundTrip(t *testing.T) {
	t.Setenv("LOQA_STT_HELPER", "1")
	factory, err := NewExecFactory(os.Args[0]+" -test.run=TestHelperDecoder --", newLogger())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	rec, err := factory.NewRecognizer(context.Background(), Model{Dir: t.TempDir(), SampleRate: 16000})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}

	frame := make([]byte, 320)
	for i := 1; i <= 4; i++ {
		ev, err := rec.Feed(context.Background(), frame)
		if err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
		if i == 2 {
			if ev.Kind != Final || ev.Text != "frames 2" {
				t.Fatalf("frame 2 = %+v, want final", ev)
			}
		} else if ev.Kind != Partial {
			t.Fatalf("frame %d = %+v, want partial", i, ev)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := rec.Feed(context.Background(), frame); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// TestHelperDecoder acts as the decoder process for TestExecRecognizerRoundTrip.
func TestHelperDecoder(t *testing.T) {
	if os.Getenv("LOQA_STT_HELPER") != "1" {
		return
	}
	in := bufio.NewReader(os.Stdin)
	out := json.NewEncoder(os.Stdout)
	frames := 0
	for {
		var header [4]byte
		if _, err := io.ReadFull(in, header[:]); err != nil {
			os.Exit(0)
		}
		if _, err := io.CopyN(io.Discard, in, int64(binary.LittleEndian.Uint32(header[:]))); err != nil {
			os.Exit(0)
		}
		frames++
		if frames == 2 {
			_ = out.Encode(map[string]string{"text": fmt.Sprintf("frames %d", frames)})
			continue
		}
		_ = out.Encode(map[string]string{"partial": fmt.Sprintf("frames %d", frames)})
	}
}
