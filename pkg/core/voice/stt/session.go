package stt

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSessionClosed is returned when writing to a closed session.
var ErrSessionClosed = errors.New("stt: session closed")

// wsSession is the websocket plumbing shared by the streaming providers.
// parse turns one server message into zero or one result; done=true ends
// the stream.
type wsSession struct {
	conn    *websocket.Conn
	results chan Result
	closing chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex

	closeSendMsg []byte
	parse        func(data []byte) (r Result, ok bool, done bool, err error)

	errMu sync.Mutex
	err   error
}

func newWSSession(conn *websocket.Conn, closeSendMsg []byte, parse func([]byte) (Result, bool, bool, error)) *wsSession {
	s := &wsSession{
		conn:         conn,
		results:      make(chan Result, 64),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		closeSendMsg: closeSendMsg,
		parse:        parse,
	}
	go s.readLoop()
	return s
}

func (s *wsSession) readLoop() {
	defer func() {
		close(s.results)
		close(s.done)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setErr(err)
			}
			return
		}

		r, ok, done, err := s.parse(data)
		if err != nil {
			s.setErr(err)
			return
		}
		if ok {
			select {
			case s.results <- r:
			case <-s.closing:
				return
			}
		}
		if done {
			return
		}
	}
}

func (s *wsSession) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *wsSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *wsSession) Results() <-chan Result {
	return s.results
}

func (s *wsSession) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *wsSession) CloseSend() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, s.closeSendMsg); err != nil {
		return fmt.Errorf("send close message: %w", err)
	}
	return nil
}

func (s *wsSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.closing)

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}
