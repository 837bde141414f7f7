// Package sshtest implements a minimal in-process SSH server for exercising the client
// facade without a real host. It accepts 'session' channels, ACKs 'exec'
// requests, relays stdin lines back to the test and reports exit status 0
// for every command (individual commands can be failed via FailCommands).
package sshtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type (
	// Server is constructed by NewServer, started with ListenAndServe and
	// stopped with Shutdown.
	Server struct {
		// The SSH server configuration. Modifications after ListenAndServe
		// have no effect.
		Config *ssh.ServerConfig

		cancel context.CancelFunc
		port   uint16
		active *atomic.Int32

		// failPatterns marks command substrings which should report a
		// non-zero exit status.
		failPatterns []string
	}

	// ReqChannel produces all *ssh.Requests (out-of-band, well-known
	// marshaled structures) received on any session channel.
	ReqChannel <-chan *ssh.Request

	// MsgChannel produces the raw lines written by the client over the
	// session channel (think stdin writes).
	MsgChannel <-chan string
)

func NewServer(t *testing.T, port uint16, signer ssh.Signer, allowed ...ssh.PublicKey) *Server {
	t.Helper()
	require.NotNil(t, signer, "a non-nil ssh.Signer is required")
	config := &ssh.ServerConfig{
		PublicKeyCallback: publicKeyCallback(allowed...),
	}
	config.AddHostKey(signer)
	return &Server{
		Config: config,
		port:   port,
		active: new(atomic.Int32),
	}
}

var ErrUnauthorized = fmt.Errorf("public key is not authorized")

// publicKeyCallback validates offered public keys against 'allowed'.
func publicKeyCallback(allowed ...ssh.PublicKey) func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
	marshaled := make([][]byte, len(allowed))
	for i := range allowed {
		marshaled[i] = allowed[i].Marshal()
	}
	return func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
		offered := key.Marshal()
		for _, want := range marshaled {
			if bytes.Equal(want, offered) {
				return nil, nil
			}
		}
		return nil, ErrUnauthorized
	}
}

// FailCommands makes any 'exec' request whose payload contains one of the
// provided substrings report exit status 1.
func (s *Server) FailCommands(patterns ...string) {
	s.failPatterns = append(s.failPatterns, patterns...)
}

func (s *Server) ListenAndServe(t *testing.T, ctx context.Context) (ReqChannel, MsgChannel, error) {
	ctx, s.cancel = context.WithCancel(ctx)
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: int(s.port),
	})
	require.NoError(t, err, "failed to listen on TCP/%d", s.port)
	outReqChan := make(chan *ssh.Request, 64)
	outMsgChan := make(chan string, 64)
	s.active.Add(1)
	go s.serve(t, ctx, listener, outReqChan, outMsgChan)
	return outReqChan, outMsgChan, nil
}

func (s *Server) serve(
	t *testing.T,
	ctx context.Context,
	listener *net.TCPListener,
	outReqChan chan<- *ssh.Request,
	outMsgChan chan<- string,
) {
	defer s.active.Add(-1)
	for {
		select {
		case <-ctx.Done():
			close(outReqChan)
			close(outMsgChan)
			require.NoError(t, listener.Close())
			return
		default:
			// Don't block forever on Accept.
			require.NoError(t, listener.SetDeadline(time.Now().Add(100*time.Millisecond)))
			conn, err := listener.AcceptTCP()
			if err != nil {
				var operr *net.OpError
				if errors.As(err, &operr) && operr.Timeout() {
					continue
				}
			}
			require.NoError(t, err)
			s.active.Add(1)
			go s.handleTCPConn(t, ctx, conn, outReqChan, outMsgChan)
		}
	}
}

func (s *Server) handleTCPConn(
	t *testing.T,
	ctx context.Context,
	conn *net.TCPConn,
	outReqChan chan<- *ssh.Request,
	outMsgChan chan<- string,
) {
	defer s.active.Add(-1)
	sshConn, inChanReqChan, inReqChan, err := ssh.NewServerConn(conn, s.Config)
	if err != nil {
		// The client aborted the handshake (bad host key, bad credentials).
		// That is a legitimate scenario for the tests, not a server bug.
		return
	}
	defer sshConn.Close()
	// ACK every global request, nothing in there matters to these tests.
	go ssh.DiscardRequests(inReqChan)
	for {
		select {
		case <-ctx.Done():
			return
		case newChannelRequest, ok := <-inChanReqChan:
			if !ok {
				return
			}
			if newChannelRequest.ChannelType() != "session" {
				_ = newChannelRequest.Reject(ssh.UnknownChannelType, "unknown channel type")
				continue
			}
			channel, chanReqChan, err := newChannelRequest.Accept()
			require.NoError(t, err)
			inMsgChan := asyncRead(t, channel)
			s.active.Add(1)
			go s.handleChannel(t, ctx, channel, inMsgChan, chanReqChan, outReqChan, outMsgChan)
		}
	}
}

// handleChannel fields 'exec' requests (ACK + exit-status reply) and relays
// stdin lines to the test. It exits when the context is done or the client
// disconnects (inMsgChan closed).
func (s *Server) handleChannel(
	t *testing.T,
	ctx context.Context,
	channel ssh.Channel,
	inMsgChan <-chan string,
	inReqChan <-chan *ssh.Request,
	outReqChan chan<- *ssh.Request,
	outMsgChan chan<- string,
) {
	defer func() {
		s.active.Add(-1)
		_ = channel.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case channelRequest := <-inReqChan:
			if channelRequest == nil {
				continue
			}
			switch channelRequest.Type {
			case "exec":
				if channelRequest.WantReply {
					require.NoError(t, channelRequest.Reply(true, nil))
				}
				// Strip the length-prefix control bytes for the consumer.
				channelRequest.Payload = bytes.TrimLeftFunc(channelRequest.Payload, func(r rune) bool {
					return r < 0x20
				})
				status := uint32(0)
				for _, pattern := range s.failPatterns {
					if strings.Contains(string(channelRequest.Payload), pattern) {
						status = 1
					}
				}
				_, err := channel.SendRequest("exit-status", false, marshalExitStatus(status))
				require.NoError(t, err)
				outReqChan <- channelRequest
			default:
				// 'shell', 'env' and friends are not needed by these tests.
				if channelRequest.WantReply {
					require.NoError(t, channelRequest.Reply(false, nil))
				}
			}
		case channelMessage, more := <-inMsgChan:
			// Raw stdin data. Relay it line by line with control characters
			// trimmed, skipping blanks.
			for line := range strings.SplitSeq(strings.TrimSpace(channelMessage), "\n") {
				line = strings.TrimFunc(line, func(r rune) bool {
					return r < 0x20
				})
				if line == "" {
					continue
				}
				outMsgChan <- line
			}
			if !more {
				return
			}
		}
	}
}

var ErrServerNotStarted = fmt.Errorf(
	"shutdown called without a call to 'ListenAndServe' first",
)

// Shutdown cancels the serve loop and waits for all goroutines to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel == nil {
		return ErrServerNotStarted
	}
	s.cancel()
	for {
		select {
		case <-ctx.Done():
			return context.DeadlineExceeded
		case <-time.After(time.Millisecond):
			if s.active.Load() == 0 {
				return nil
			}
		}
	}
}

// asyncRead continuously reads from 'r', string-converting any read data and
// passing it through the returned channel. The channel closes on EOF.
func asyncRead(t *testing.T, r io.Reader) <-chan string {
	ch := make(chan string, 64)
	go func(ch chan<- string) {
		buf := make([]byte, 1024)
		defer close(ch)
		for {
			n, err := r.Read(buf)
			if err != nil {
				require.ErrorIs(t, err, io.EOF)
				return
			}
			if n == 0 {
				continue
			}
			ch <- string(buf[:n])
		}
	}(ch)
	return ch
}

// marshalExitStatus marshals the standard 'exit-status' message body.
func marshalExitStatus(exitCode uint32) []byte {
	return ssh.Marshal(struct {
		Status uint32
	}{exitCode})
}
