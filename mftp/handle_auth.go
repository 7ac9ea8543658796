package mftp

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

func (c *clientHandler) handleUSER() *result {
	c.username = c.param
	c.loggedIn = false
	c.user = nil

	return &result{
		code: 331,
		msg:  fmt.Sprintf("Password required for %s.", c.username),
	}
}

func (c *clientHandler) handlePASS() *result {
	if c.username == "" {
		return &result{code: 530, msg: "Not logged in."}
	}

	user, err := c.store.LookupUser(c.username)
	if err != nil {
		return &result{code: 530, msg: "Not logged in.", err: err, log: c.log}
	}
	if user == nil {
		return &result{code: 530, msg: "Not logged in."}
	}

	sum := md5.Sum([]byte(c.param))
	if hex.EncodeToString(sum[:]) != user.PasswordHash {
		return &result{code: 530, msg: "Not logged in."}
	}

	c.user = user
	c.loggedIn = true
	c.auditLog.Write(fmt.Sprintf("user %s logged in from %s", user.Username, c.peerAddr))

	return &result{
		code: 230,
		msg:  fmt.Sprintf("User %s logged in from %s.", user.Username, c.peerAddr),
	}
}
