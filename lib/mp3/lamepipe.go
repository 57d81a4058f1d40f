// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package mp3

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/go-audio/audio"
)

// DefaultLameBinary is the encoder binary resolved from PATH when no
// explicit path is configured.
const DefaultLameBinary = "lame"

// LamePipe is a FrameEncoder backed by an external lame process fed
// raw PCM over stdin. Frame bytes are drained from stdout as they
// become available.
//
// A pipe cannot seek, so lame cannot rewrite the stream header after
// the fact: VBR (which needs exactly that for its summary frame) is
// rejected at Init.
type LamePipe struct {
	// Binary overrides the lame executable path.
	Binary string

	// Logger receives lame's stderr output at debug level. Nil
	// discards it.
	Logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	params StreamParams

	mu      sync.Mutex
	pending []byte
	readErr error

	// done and stderrDone close when the stdout and stderr relay
	// goroutines exit; both pipes must be drained before Wait.
	done       chan struct{}
	stderrDone chan struct{}
}

var _ FrameEncoder = (*LamePipe)(nil)

func (l *LamePipe) Init(p StreamParams) error {
	if p.VBR {
		return fmt.Errorf("lame pipe backend cannot produce VBR output (non-seekable stream)")
	}
	if p.Channels < 1 || p.Channels > 2 {
		return fmt.Errorf("unsupported channel count %d", p.Channels)
	}

	bin := l.Binary
	if bin == "" {
		bin = DefaultLameBinary
	}

	args := []string{
		"-r", "--signed", "--bitwidth", "16", "--little-endian",
		"-s", sampleRateKHz(p.SampleRate),
		"--cbr", "-b", strconv.Itoa(p.Bitrate),
		"-q", strconv.Itoa(p.Quality),
		"--quiet",
	}
	if p.Channels == 1 {
		args = append(args, "-m", "m")
	}
	if p.Scale != 1 {
		args = append(args, "--scale", strconv.FormatFloat(p.Scale, 'f', 4, 64))
	}
	args = append(args, "-", "-")

	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", bin, err)
	}

	l.cmd = cmd
	l.stdin = stdin
	l.params = p
	l.done = make(chan struct{})
	l.stderrDone = make(chan struct{})
	go l.drain(stdout)
	go l.relayStderr(stderr)
	return nil
}

// drain collects encoded bytes from the process as they appear.
func (l *LamePipe) drain(stdout io.Reader) {
	defer close(l.done)
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		l.mu.Lock()
		if n > 0 {
			l.pending = append(l.pending, buf[:n]...)
		}
		if err != nil {
			if err != io.EOF {
				l.readErr = err
			}
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
	}
}

// relayStderr forwards encoder diagnostics to the logger.
func (l *LamePipe) relayStderr(stderr io.Reader) {
	defer close(l.stderrDone)
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if l.Logger != nil {
			l.Logger.Debug("lame", "message", scanner.Text())
		}
	}
}

func (l *LamePipe) OutputSampleRate() int {
	// No resampling is requested, so the output rate follows the
	// input.
	return l.params.SampleRate
}

func (l *LamePipe) EncodeBlock(block *audio.IntBuffer) ([]byte, error) {
	raw := make([]byte, 2*len(block.Data))
	for i, sample := range block.Data {
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(int16(sample)))
	}
	if _, err := l.stdin.Write(raw); err != nil {
		return nil, fmt.Errorf("writing PCM to lame: %w", err)
	}
	return l.takePending(), nil
}

func (l *LamePipe) Flush() ([]byte, error) {
	if err := l.stdin.Close(); err != nil {
		return nil, fmt.Errorf("closing lame stdin: %w", err)
	}
	<-l.done
	<-l.stderrDone
	if err := l.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("lame exited: %w", err)
	}
	l.mu.Lock()
	readErr := l.readErr
	l.mu.Unlock()
	if readErr != nil {
		return nil, fmt.Errorf("reading lame output: %w", readErr)
	}
	return l.takePending(), nil
}

func (l *LamePipe) takePending() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}

// SummaryFrame always returns nil: the pipe backend is CBR only.
func (l *LamePipe) SummaryFrame() []byte { return nil }

func (l *LamePipe) Close() error {
	if l.cmd == nil || l.cmd.ProcessState != nil {
		return nil
	}
	// Abnormal shutdown: the process is still running. Kill it and
	// reap.
	l.stdin.Close()
	if err := l.cmd.Process.Kill(); err != nil {
		return err
	}
	<-l.done
	<-l.stderrDone
	l.cmd.Wait()
	return nil
}

// sampleRateKHz formats a sample rate for lame's -s flag, which takes
// kHz.
func sampleRateKHz(rate int) string {
	return strconv.FormatFloat(float64(rate)/1000, 'f', -1, 64)
}
