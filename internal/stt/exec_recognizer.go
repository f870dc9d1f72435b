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
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-shellwords"
)

// execFactory starts one decoder process per session. The process reads
// length-prefixed PCM frames on stdin and answers each with one JSON line:
// {"text": "..."} for a final utterance or {"partial": "..."} otherwise.
type execFactory struct {
	cmd []string
	log *slog.Logger
}

type execResult struct {
	Text    *string `json:"text"`
	Partial string  `json:"partial"`
}

func NewExecFactory(command string, log *slog.Logger) (Factory, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execFactory{cmd: args, log: log.With(slog.String("component", "stt.exec"))}, nil
}

func (f *execFactory) NewRecognizer(ctx context.Context, model Model) (Recognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(model.Dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrModelMissing, model.Dir)
	}
	if model.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", model.SampleRate)
	}

	args := append([]string{}, f.cmd[1:]...)
	args = append(args, "--model", model.Dir, "--sample-rate", strconv.Itoa(model.SampleRate))
	// lives for the whole session, not the start request
	command := exec.Command(f.cmd[0], args...)
	command.Stderr = os.Stderr
	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stt stdin: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stt stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("start stt command: %w", err)
	}
	f.log.Info("recognizer process started", slog.String("model", model.Dir), slog.Int("sample_rate", model.SampleRate), slog.Int("pid", command.Process.Pid))
	return &execRecognizer{
		cmd:    command,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		log:    f.log,
	}, nil
}

type execRecognizer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	log    *slog.Logger

	mu     sync.Mutex
	closed atomic.Bool
	once   sync.Once
}

func (r *execRecognizer) Feed(ctx context.Context, pcm []byte) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return Event{}, ErrClosed
	}

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(pcm)))
	if _, err := r.stdin.Write(header[:]); err != nil {
		return Event{}, fmt.Errorf("write stt frame: %w", err)
	}
	if _, err := r.stdin.Write(pcm); err != nil {
		return Event{}, fmt.Errorf("write stt frame: %w", err)
	}

	line, err := r.stdout.ReadBytes('\n')
	if err != nil {
		if r.closed.Load() {
			return Event{}, ErrClosed
		}
		return Event{}, fmt.Errorf("read stt result: %w", err)
	}
	return parseResult(line)
}

func parseResult(line []byte) (Event, error) {
	var resp execResult
	if err := json.Unmarshal(line, &resp); err != nil {
		return Event{}, fmt.Errorf("decode stt response: %w", err)
	}
	if resp.Text != nil {
		return Event{Kind: Final, Text: *resp.Text}, nil
	}
	return Event{Kind: Partial, Text: resp.Partial}, nil
}

// Close ends the decoder process. It does not wait for an in-flight Feed.
func (r *execRecognizer) Close() error {
	var err error
	r.once.Do(func() {
		r.closed.Store(true)
		err = r.stdin.Close()
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		if waitErr := r.cmd.Wait(); waitErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(waitErr, &exitErr) {
				err = errors.Join(err, waitErr)
			}
		}
		r.log.Info("recognizer process stopped")
	})
	return err
}
