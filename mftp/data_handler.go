package mftp

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"
)

const (
	dataTransferBufferSize = 512
	activeReadBufferSize   = 16384
	dataConnectionTimeout  = 30 * time.Second
	passiveAcceptTimeout   = 60 * time.Second
)

// transferHandler is the session's data channel for one transfer. Open blocks
// until the second connection is established (accept in passive mode, dial in
// active mode); Close tears down the connection and any listener exactly once.
type transferHandler interface {
	Open() (net.Conn, error)
	Close() error
	Mode() string
}

// dataOpen establishes the data connection for the pending transfer, or fails
// when neither PASV nor PORT was issued first.
func (c *clientHandler) dataOpen() (net.Conn, error) {
	if c.transfer == nil {
		return nil, errors.New("no data connection set up (use PASV or PORT first)")
	}
	return c.transfer.Open()
}

// dataClose ends the transfer; channels are never reused across commands, a
// fresh PASV or PORT is required for the next one.
func (c *clientHandler) dataClose() {
	c.closeTransfer()
}

// receiveData drains the data connection into w until EOF. Passive mode reads
// fixed-size chunks off the accepted socket, active mode reads line-sized
// chunks off the outbound stream.
func receiveData(conn net.Conn, mode string, w io.Writer) error {
	if mode == "PORT" {
		reader := bufio.NewReaderSize(conn, activeReadBufferSize)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				if _, werr := w.Write(line); werr != nil {
					return werr
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	buffer := make([]byte, dataTransferBufferSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			if _, werr := w.Write(buffer[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
