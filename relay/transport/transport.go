// Package transport gives the relay an opaque "open streaming connection,
// read chunk, close" capability. Decoders depend only on byte delivery order,
// never on a specific HTTP client, so sessions are also constructible from
// in-memory chunk sequences.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"

	"claude-relay/common/config"
)

// StreamSession yields upstream bytes one chunk at a time. Recv returns
// io.EOF at normal end of stream. Close is idempotent and releases the
// underlying connection.
type StreamSession interface {
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Response is the outcome of opening an upstream call. For non-2xx statuses
// the body is drained into ErrorBody and Session is nil.
type Response struct {
	StatusCode int
	Header     http.Header
	ErrorBody  []byte
	Session    StreamSession
}

var httpClient = &http.Client{
	Timeout: func() time.Duration {
		if config.RelayTimeout <= 0 {
			return 0
		}
		return time.Second * time.Duration(config.RelayTimeout)
	}(),
}

// Open performs the HTTP exchange and hands back a streaming session for 2xx
// responses. Transport-level failures (dial, reset, DNS) come back as errors;
// HTTP-level failures come back as a Response with ErrorBody.
func Open(ctx context.Context, method, url string, header http.Header, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "build upstream request")
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "open upstream connection")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			ErrorBody:  errorBody,
		}, nil
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Session:    &httpSession{body: resp.Body},
	}, nil
}

// httpSession streams chunks from an HTTP response body.
type httpSession struct {
	body   io.ReadCloser
	closed bool
	buf    [16 * 1024]byte
}

func (s *httpSession) Recv(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	n, err := s.body.Read(s.buf[:])
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		return chunk, err
	}
	if err == io.EOF {
		return nil, io.EOF
	}
	return nil, errors.Wrap(err, "read upstream chunk")
}

func (s *httpSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// ChunkSession replays a fixed chunk sequence. It backs tests and any code
// path that already holds the full upstream body in memory.
type ChunkSession struct {
	chunks [][]byte
	pos    int
}

// NewChunkSession builds a session over pre-split chunks.
func NewChunkSession(chunks ...[]byte) *ChunkSession {
	return &ChunkSession{chunks: chunks}
}

func (s *ChunkSession) Recv(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *ChunkSession) Close() error { return nil }
