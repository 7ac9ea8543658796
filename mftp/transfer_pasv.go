package mftp

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type passiveTransferHandler struct {
	listener      *net.TCPListener
	port          int
	pool          *portPool
	conn          net.Conn
	acceptTimeout time.Duration
	log           *logger
}

func (c *clientHandler) handlePASV() *result {
	// a reissued PASV drops the previous channel and its reservation
	c.closeTransfer()

	listener, port, err := c.pool.allocate(c.config.PublicAddr)
	if err != nil {
		// 452 when the range is used up, 425 when binding a free port failed
		code := 425
		if errors.Is(err, errNoDataPort) {
			code = 452
		}
		return &result{
			code: code,
			msg:  "Can't open data connection.",
			err:  err,
			log:  c.log,
		}
	}

	c.transfer = &passiveTransferHandler{
		listener:      listener,
		port:          port,
		pool:          c.pool,
		acceptTimeout: passiveAcceptTimeout,
		log:           c.log,
	}

	p1 := port >> 8
	p2 := port & 0xff
	quads := strings.Replace(c.config.PublicAddr, ".", ",", -1)

	return &result{
		code: 227,
		msg:  fmt.Sprintf("Entering Passive Mode (%s,%d,%d).", quads, p1, p2),
	}
}

func (p *passiveTransferHandler) Open() (net.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	if p.listener == nil {
		return nil, errors.New("passive listener already closed")
	}

	// bounded wait so an absent client cannot pin the reserved port forever
	p.listener.SetDeadline(time.Now().Add(p.acceptTimeout))
	conn, err := p.listener.Accept()
	if err != nil {
		return nil, err
	}

	p.conn = conn
	return p.conn, nil
}

func (p *passiveTransferHandler) Close() error {
	if p.conn != nil {
		connectionCloser(p.conn, p.log)
		p.conn = nil
	}
	if p.listener != nil {
		connectionCloser(p.listener, p.log)
		p.listener = nil
		p.pool.release(p.port)
	}
	return nil
}

func (p *passiveTransferHandler) Mode() string {
	return "PASV"
}
