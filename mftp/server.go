package mftp

import (
	"fmt"
	"net"
	"sync"

	"github.com/lestrrat/go-server-starter/listener"
	proxyproto "github.com/pires/go-proxyproto"
	"github.com/sirupsen/logrus"
	"github.com/tevino/abool"
)

// FtpServer owns the control listener, the live-session set and the passive
// port pool shared by all sessions.
type FtpServer struct {
	config        *ftpdConfig
	listener      net.Listener
	store         FileStore
	auditLog      Log
	pool          *portPool
	clientCounter int
	sessions      map[int]*clientHandler
	mutex         sync.Mutex
	shutdown      *abool.AtomicBool
}

func NewFtpServer(confFile string, store FileStore, auditLog Log) (*FtpServer, error) {
	c, err := loadConfig(confFile)
	if err != nil {
		return nil, err
	}
	if auditLog == nil {
		auditLog = &logrusLog{}
	}

	return &FtpServer{
		config:   &c.Mongoftpd,
		store:    store,
		auditLog: auditLog,
		pool:     newPortPool(c.Mongoftpd.PassivePortRange),
		sessions: make(map[int]*clientHandler),
		shutdown: abool.New(),
	}, nil
}

func (server *FtpServer) Listen() error {
	if server.config.UseServerStarter {
		listeners, err := listener.ListenAll()
		if err != nil || len(listeners) < 1 {
			return fmt.Errorf("could not get listener from server-starter: %v", err)
		}
		server.listener = listeners[0]
	} else {
		l, err := net.Listen("tcp", server.config.ListenAddr)
		if err != nil {
			return err
		}
		server.listener = l
	}

	if server.config.ProxyProtocol {
		server.listener = &proxyproto.Listener{Listener: server.listener}
	}

	logrus.Infof("listening on %s", server.listener.Addr())
	return nil
}

// Serve accepts until Stop. Accept errors are logged and the loop keeps
// going; a transient failure (EMFILE under many open data sockets) must not
// take down the live sessions.
func (server *FtpServer) Serve() error {
	for {
		conn, err := server.listener.Accept()
		if err != nil {
			if server.shutdown.IsSet() {
				return nil
			}
			server.auditLog.Write(fmt.Sprintf("unable to accept incoming connection: %s", err))
			continue
		}

		server.handleConnection(conn)
	}
}

func (server *FtpServer) ListenAndServe() error {
	if err := server.Listen(); err != nil {
		return err
	}
	return server.Serve()
}

// handleConnection runs admission control and session registration as one
// critical section, so concurrent accepts cannot over-admit.
func (server *FtpServer) handleConnection(conn net.Conn) {
	peer, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	server.mutex.Lock()

	if int32(len(server.sessions))+1 > server.config.MaxConnections {
		server.mutex.Unlock()
		server.reject(conn, "Maximum user count reached.")
		return
	}

	fromPeer := int32(0)
	for _, session := range server.sessions {
		if session.peerAddr == peer {
			fromPeer++
		}
	}
	if fromPeer+1 > server.config.MaxConnectionsPerIP {
		server.mutex.Unlock()
		server.reject(conn, "Too many connections from this IP.")
		return
	}

	server.clientCounter++
	id := server.clientCounter
	handler := newClientHandler(conn, server.config, server.store, server.auditLog, server.pool, id, func() {
		server.mutex.Lock()
		delete(server.sessions, id)
		server.mutex.Unlock()
	})
	server.sessions[id] = handler

	server.mutex.Unlock()

	go func() {
		if err := handler.HandleCommands(); err != nil {
			handler.log.err("session ended: %s", err)
		}
	}()
}

func (server *FtpServer) reject(conn net.Conn, msg string) {
	// the reject reply is best effort, the connection is going away either way
	fmt.Fprintf(conn, "421 %s\r\n", msg)
	conn.Close()
	server.auditLog.Write(fmt.Sprintf("rejected connection from %s: %s", conn.RemoteAddr(), msg))
}

// Stop closes the control listener and drops every live session; each session
// goroutine releases its own resources on the way out.
func (server *FtpServer) Stop() {
	server.shutdown.Set()
	if server.listener != nil {
		connectionCloser(server.listener, nil)
	}

	server.mutex.Lock()
	sessions := make([]*clientHandler, 0, len(server.sessions))
	for _, session := range server.sessions {
		sessions = append(sessions, session)
	}
	server.mutex.Unlock()

	for _, session := range sessions {
		connectionCloser(session.conn, session.log)
	}
}
