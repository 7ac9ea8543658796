package mftp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

type handleFunc struct {
	f        func(*clientHandler) *result
	needAuth bool
}

var handlers map[string]*handleFunc

func init() {
	handlers = make(map[string]*handleFunc)
	handlers["USER"] = &handleFunc{(*clientHandler).handleUSER, false}
	handlers["PASS"] = &handleFunc{(*clientHandler).handlePASS, false}
	handlers["QUIT"] = &handleFunc{(*clientHandler).handleQUIT, false}
	handlers["SYST"] = &handleFunc{(*clientHandler).handleSYST, false}
	handlers["NOOP"] = &handleFunc{(*clientHandler).handleNOOP, false}
	handlers["HELP"] = &handleFunc{(*clientHandler).handleHELP, false}
	handlers["TYPE"] = &handleFunc{(*clientHandler).handleTYPE, true}
	handlers["PASV"] = &handleFunc{(*clientHandler).handlePASV, true}
	handlers["PORT"] = &handleFunc{(*clientHandler).handlePORT, true}
	handlers["LIST"] = &handleFunc{(*clientHandler).handleLIST, true}
	// the verb is cut at 4 characters, so NLIST arrives as NLIS
	handlers["NLIS"] = &handleFunc{(*clientHandler).handleLIST, true}
	handlers["RETR"] = &handleFunc{(*clientHandler).handleRETR, true}
	handlers["STOR"] = &handleFunc{(*clientHandler).handleSTOR, true}
	handlers["APPE"] = &handleFunc{(*clientHandler).handleAPPE, true}
	handlers["SIZE"] = &handleFunc{(*clientHandler).handleSIZE, true}
	handlers["DELE"] = &handleFunc{(*clientHandler).handleDELE, true}
	handlers["RNFR"] = &handleFunc{(*clientHandler).handleRNFR, true}
	handlers["RNTO"] = &handleFunc{(*clientHandler).handleRNTO, true}
}

type clientHandler struct {
	id            int
	conn          net.Conn
	config        *ftpdConfig
	store         FileStore
	auditLog      Log
	pool          *portPool
	writer        *bufio.Writer
	reader        *bufio.Reader
	line          string
	command       string
	param         string
	username      string
	user          *User
	loggedIn      bool
	transferType  string
	transfer      transferHandler
	renamePending string
	peerAddr      string
	log           *logger
	mutex         *sync.Mutex
	deregister    func()
}

func newClientHandler(connection net.Conn, c *ftpdConfig, store FileStore, auditLog Log, pool *portPool, id int, deregister func()) *clientHandler {
	addr, _, _ := net.SplitHostPort(connection.RemoteAddr().String())
	p := &clientHandler{
		id:           id,
		conn:         connection,
		config:       c,
		store:        store,
		auditLog:     auditLog,
		pool:         pool,
		writer:       bufio.NewWriter(connection),
		reader:       bufio.NewReader(connection),
		transferType: "A",
		peerAddr:     addr,
		log:          &logger{fromip: addr, id: id},
		mutex:        &sync.Mutex{},
		deregister:   deregister,
	}

	return p
}

// end releases everything the session owns: the data channel (and with it any
// pool reservation), the pending-rename marker and the control socket.
func (c *clientHandler) end() {
	c.closeTransfer()
	c.clearPendingRename()
	connectionCloser(c.conn, c.log)
	if c.deregister != nil {
		c.deregister()
	}
}

func (c *clientHandler) HandleCommands() error {
	defer c.end()

	if err := c.writeMessage(220, c.config.ServerName); err != nil {
		return err
	}
	c.auditLog.Write(fmt.Sprintf("client %d connected from %s", c.id, c.peerAddr))

	for {
		if c.config.IdleTimeout > 0 {
			c.conn.SetDeadline(time.Now().Add(time.Duration(c.config.IdleTimeout) * time.Second))
		}

		line, err := c.reader.ReadString('\n')

		if err != nil {
			if err == io.EOF {
				c.log.info("client disconnect")
				return nil
			}
			switch err := err.(type) {
			case net.Error:
				if err.Timeout() {
					c.conn.SetDeadline(time.Now().Add(time.Minute))
					c.log.info("IDLE timeout")
					r := result{
						code: 421,
						msg:  fmt.Sprintf("command timeout (%d seconds): closing control connection", c.config.IdleTimeout),
						err:  err,
						log:  c.log,
					}
					if err := r.Response(c); err != nil {
						return err
					}
					return errors.New("idle timeout")
				}
				return err
			default:
				return err
			}
		}

		c.log.debug("read from client: %s", line)
		commandResponse := c.handleCommand(line)
		if commandResponse != nil {
			if err := commandResponse.Response(c); err != nil {
				return err
			}
			if commandResponse.disconnect {
				return nil
			}
		}
	}
}

func (c *clientHandler) writeLine(line string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, err := c.writer.Write([]byte(line)); err != nil {
		return err
	}
	if _, err := c.writer.Write([]byte("\r\n")); err != nil {
		return err
	}
	if err := c.writer.Flush(); err != nil {
		return err
	}
	c.log.debug("send to client:%s", line)
	return nil
}

func (c *clientHandler) writeMessage(code int, message string) error {
	line := fmt.Sprintf("%d %s", code, message)
	return c.writeLine(line)
}

func (c *clientHandler) handleCommand(line string) (r *result) {
	c.parseLine(line)
	defer func() {
		if rec := recover(); rec != nil {
			r = &result{
				code: 500,
				msg:  fmt.Sprintf("Internal error: %s", rec),
			}
		}
	}()

	cmd := handlers[c.command]
	if cmd == nil {
		return &result{
			code: 502,
			msg:  "Command not implemented.",
		}
	}

	if cmd.needAuth && !c.loggedIn {
		return &result{
			code: 530,
			msg:  "Not logged in.",
		}
	}

	return cmd.f(c)
}

// the verb is the first 4 characters of the line, the rest is the parameter
func (c *clientHandler) parseLine(line string) {
	trimmed := strings.TrimSpace(line)
	c.line = trimmed
	if len(trimmed) > 4 {
		c.command = strings.ToUpper(strings.TrimSpace(trimmed[:4]))
		c.param = strings.TrimSpace(trimmed[4:])
	} else {
		c.command = strings.ToUpper(trimmed)
		c.param = ""
	}
}

func (c *clientHandler) closeTransfer() {
	if c.transfer != nil {
		c.transfer.Close()
		c.transfer = nil
	}
}

// a pending rename marker must not outlive the session that set it
func (c *clientHandler) clearPendingRename() {
	if !c.loggedIn || c.renamePending == "" {
		return
	}

	record, err := c.store.FindPendingRename(c.user.Username)
	if err != nil || record == nil {
		return
	}

	if err := c.store.ClearPendingRename(record.ID); err != nil {
		c.log.err("could not clear pending rename: %s", err)
	}
	c.renamePending = ""
}

func (c *clientHandler) transferText() string {
	if c.transferType == "A" {
		return "ASCII mode"
	}
	return "Binary mode"
}

func (c *clientHandler) dataEOL() string {
	if c.transferType == "A" {
		return "\r\n"
	}
	return "\n"
}
