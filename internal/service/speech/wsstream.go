package speech

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// frameDecoder turns one websocket frame into an audio chunk. final marks the backend's end marker.
type frameDecoder func(messageType int, data []byte) (chunk []byte, final bool, err error)

// wsStream adapts a synthesis websocket into an AudioStream. The context closes the
// connection, which unblocks a pending Recv.
type wsStream struct {
	ctx         context.Context
	conn        *websocket.Conn
	readTimeout time.Duration
	decode      frameDecoder
	stop        func() bool

	done      bool
	closeOnce sync.Once
}

func newWSStream(ctx context.Context, conn *websocket.Conn, readTimeout time.Duration, decode frameDecoder) *wsStream {
	return &wsStream{
		ctx:         ctx,
		conn:        conn,
		readTimeout: readTimeout,
		decode:      decode,
		stop:        context.AfterFunc(ctx, func() { _ = conn.Close() }),
	}
}

func (s *wsStream) Recv() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		if s.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}

		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.done = true
				return nil, io.EOF
			}
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrStreamInterrupted, ctxErr)
			}
			return nil, fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
		}

		chunk, final, err := s.decode(messageType, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
		}
		if final {
			s.done = true
			if len(chunk) > 0 {
				return chunk, nil
			}
			return nil, io.EOF
		}
		if len(chunk) == 0 {
			continue
		}
		return chunk, nil
	}
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stop()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
