package mftp

import "fmt"

func (c *clientHandler) handleQUIT() *result {
	return &result{
		code:       221,
		msg:        fmt.Sprintf("Disconnected from %s FTP Server. Have a nice day.", c.config.ServerName),
		disconnect: true,
	}
}

func (c *clientHandler) handleSYST() *result {
	return &result{code: 215, msg: "UNIX Type: L8"}
}

func (c *clientHandler) handleNOOP() *result {
	return &result{code: 200, msg: "Nothing Done."}
}

func (c *clientHandler) handleTYPE() *result {
	if len(c.param) != 1 || (c.param != "A" && c.param != "I") {
		return &result{code: 501, msg: "Syntax error in parameters or arguments."}
	}

	c.transferType = c.param
	return &result{code: 200, msg: "type set."}
}

var helpLines = []string{
	"Commands available:",
	"APPE",
	"DELE",
	"HELP",
	"LIST",
	"NLIST",
	"NOOP",
	"PASS",
	"PASV",
	"PORT",
	"QUIT",
	"RETR",
	"RNFR",
	"RNTO",
	"SIZE",
	"STOR",
	"SYST",
	"TYPE",
	"USER",
}

func (c *clientHandler) handleHELP() *result {
	if err := c.writeLine("214-" + c.config.ServerName); err != nil {
		return &result{err: err, log: c.log}
	}
	for _, line := range helpLines {
		if err := c.writeLine("214-" + line); err != nil {
			return &result{err: err, log: c.log}
		}
	}
	return &result{code: 214, msg: "HELP command successful."}
}
