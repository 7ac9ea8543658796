package mftp

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

type activeTransferHandler struct {
	target       *net.TCPAddr
	conn         net.Conn
	standardPort bool
	log          *logger
}

func (c *clientHandler) handlePORT() *result {
	target, res := parseActiveTarget(c.param)
	if res != nil {
		res.log = c.log
		return res
	}

	// the later of PASV/PORT wins for the next transfer
	c.closeTransfer()
	c.transfer = &activeTransferHandler{
		target:       target,
		standardPort: c.config.StandardActivePort,
		log:          c.log,
	}

	return &result{
		code: 200,
		msg:  "PORT command successful.",
	}
}

// parseActiveTarget validates "h1,h2,h3,h4,p1,p2" and resolves it to the
// client-advertised data address.
func parseActiveTarget(param string) (*net.TCPAddr, *result) {
	fields := strings.Split(param, ",")
	if len(fields) != 6 {
		return nil, &result{code: 500, msg: "Wrong number of Parameters."}
	}

	octets := fields[0:4]
	for _, seg := range octets {
		n, err := strconv.Atoi(strings.TrimSpace(seg))
		if err != nil || n < 0 || n > 255 {
			return nil, &result{code: 500, msg: fmt.Sprintf("Bad IP address %s.", strings.Join(octets, "."))}
		}
	}
	ip := strings.Join(octets, ".")

	p1, err1 := strconv.Atoi(strings.TrimSpace(fields[4]))
	p2, err2 := strconv.Atoi(strings.TrimSpace(fields[5]))
	port := p1<<8 + p2
	if err1 != nil || err2 != nil || port <= 0 || port > 65535 {
		return nil, &result{code: 500, msg: "Bad Port number."}
	}

	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}, nil
}

func (a *activeTransferHandler) Open() (net.Conn, error) {
	if a.conn != nil {
		return a.conn, nil
	}

	dialer := net.Dialer{Timeout: dataConnectionTimeout}
	if a.standardPort {
		// dial from port 20, shared across sessions via SO_REUSEPORT
		laddr, err := net.ResolveTCPAddr("tcp4", ":20")
		if err != nil {
			return nil, err
		}
		dialer.LocalAddr = laddr
		dialer.Control = setReuseIPPort
	}

	conn, err := dialer.Dial("tcp4", a.target.String())
	if err != nil {
		return nil, err
	}

	a.conn = conn
	return a.conn, nil
}

func (a *activeTransferHandler) Close() error {
	if a.conn != nil {
		connectionCloser(a.conn, a.log)
		a.conn = nil
	}
	return nil
}

func (a *activeTransferHandler) Mode() string {
	return "PORT"
}
