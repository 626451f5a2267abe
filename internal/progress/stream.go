package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/Veraticus/the-receipts-must-flow/internal/api"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

const readChunkSize = 4 << 10

// Client starts extraction jobs on the backend and follows their progress streams.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a stream client. httpClient must not carry an overall timeout; the
// stream stays open for as long as the backend keeps extracting.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Handler receives stream events in order. It is called from the stream's goroutine and
// sees exactly one terminal event.
type Handler func(Event)

// Stream is one running extraction.
type Stream struct {
	handler    Handler
	cancel     context.CancelFunc
	done       chan struct{}
	result     *model.ExtractionResult
	err        error
	cancelOnce sync.Once
	finishOnce sync.Once
}

// Start initiates extraction of receiptID into bankAccountID and begins reading progress.
// The returned Stream is already running.
func (c *Client) Start(ctx context.Context, receiptID, bankAccountID string, handler Handler) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	if handler == nil {
		handler = func(Event) {}
	}
	s := &Stream{
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, c, receiptID, bankAccountID)
	return s
}

// Cancel aborts the request and releases its connection. Calling it more than once, or
// after the stream finished, does nothing.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() {
		slog.Debug("Cancelling extraction stream")
		s.cancel()
	})
}

// Done is closed once the terminal event has been delivered.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the stream ends and returns its result or terminal error.
func (s *Stream) Wait() (*model.ExtractionResult, error) {
	<-s.done
	return s.result, s.err
}

type initiateRequest struct {
	UserBankAccountID string `json:"userBankAccountId"`
}

func (s *Stream) run(ctx context.Context, c *Client, receiptID, bankAccountID string) {
	defer s.cancel()

	body, err := json.Marshal(initiateRequest{UserBankAccountID: bankAccountID})
	if err != nil {
		s.fail(fmt.Errorf("failed to marshal request: %w", err))
		return
	}

	endpoint := c.baseURL + "/transaction/sequential/initiate-with-progress/" + url.PathEscape(receiptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		s.fail(fmt.Errorf("failed to create request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		s.fail(s.classify(ctx, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		message := api.ErrorMessage(raw)
		if message == "" {
			message = fmt.Sprintf("failed to start extraction (status %d)", resp.StatusCode)
		}
		s.fail(&common.APIError{StatusCode: resp.StatusCode, Message: message})
		return
	}

	var (
		tok LineTokenizer
		buf = make([]byte, readChunkSize)
	)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range tok.Push(buf[:n]) {
				if s.dispatch(ctx, line) {
					return
				}
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			if line, ok := tok.Flush(); ok && s.dispatch(ctx, line) {
				return
			}
			if ctx.Err() != nil {
				s.fail(s.classify(ctx, ctx.Err()))
				return
			}
			s.fail(fmt.Errorf("%w: stream ended before extraction completed", common.ErrTransport))
			return
		}
		s.fail(s.classify(ctx, readErr))
		return
	}
}

// dispatch delivers one line and reports whether the stream has ended.
func (s *Stream) dispatch(ctx context.Context, line string) bool {
	ev, ok := ParseLine(line)
	if !ok {
		return false
	}

	if ctx.Err() != nil {
		s.fail(s.classify(ctx, ctx.Err()))
		return true
	}

	switch ev.Type {
	case EventComplete:
		if ev.Data == nil {
			s.fail(fmt.Errorf("%w: extraction completed without a result", common.ErrTransport))
			return true
		}
		s.finish(ev, ev.Data, nil)
		return true
	case EventError:
		message := ev.Message
		if message == "" {
			message = "extraction failed"
		}
		ev.Err = &common.APIError{StatusCode: http.StatusOK, Message: message}
		ev.Message = message
		s.finish(ev, nil, ev.Err)
		return true
	default:
		s.handler(ev)
		return false
	}
}

func (s *Stream) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: extraction stream", common.ErrCancelled)
	}
	if errors.Is(err, common.ErrUnauthorized) {
		return err
	}
	return common.Transport(err)
}

func (s *Stream) fail(err error) {
	s.finish(Event{Type: EventError, Message: err.Error(), Err: err}, nil, err)
}

// finish delivers the single terminal event.
func (s *Stream) finish(ev Event, result *model.ExtractionResult, err error) {
	s.finishOnce.Do(func() {
		s.result = result
		s.err = err
		if err != nil {
			slog.Debug("Extraction stream ended", "error", err)
		}
		s.handler(ev)
		close(s.done)
	})
}
