// MIT License
//
// Copyright (c) 2026 jnakagawa
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package nativehost

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/config"
)

// maxFrame bounds incoming native-messaging frames; the host browser caps
// extension-to-host messages well below this.
const maxFrame = 4 << 20

// Message is a request from the extension.
type Message struct {
	Action string `json:"action"`
}

// Response is the reply frame. Success is always present; the rest is
// action-specific.
type Response struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
	Running      *bool  `json:"running,omitempty"`
	PID          int    `json:"pid,omitempty"`
	AutoLaunched bool   `json:"autoLaunched,omitempty"`
}

// Host services the length-prefixed stdio protocol the browser uses to
// supervise the proxy. Messages are handled strictly sequentially; the
// loop ends on stdin EOF.
type Host struct {
	cfg    config.Config
	logger *pterm.Logger
	in     io.Reader
	out    io.Writer
}

// New creates a host bound to stdin/stdout. The logger must already point
// at stderr: stdout belongs to the wire protocol.
func New(cfg config.Config, logger *pterm.Logger) *Host {
	return &Host{cfg: cfg, logger: logger, in: os.Stdin, out: os.Stdout}
}

// Run reads frames until EOF. Malformed frames get an error response where
// possible; they never crash the supervisor.
func (h *Host) Run() {
	for {
		msg, err := ReadMessage(h.in)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			h.logger.Warn("Failed to read message", h.logger.Args("error", err))
			h.respond(Response{Success: false, Error: "Failed to read message"})
			continue
		}

		h.respond(h.handle(msg))
	}
}

func (h *Host) respond(resp Response) {
	if err := WriteMessage(h.out, resp); err != nil {
		h.logger.Warn("Failed to write response", h.logger.Args("error", err))
	}
}

// ReadMessage decodes one native-messaging frame: a 4-byte little-endian
// length followed by that many bytes of UTF-8 JSON.
func ReadMessage(r io.Reader) (Message, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return Message{}, err
	}
	if length > maxFrame {
		return Message{}, errors.New("frame too large")
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// WriteMessage encodes one frame in the same format.
func WriteMessage(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func boolPtr(b bool) *bool { return &b }
