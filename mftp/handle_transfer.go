package mftp

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

func (c *clientHandler) handleLIST() *result {
	conn, err := c.dataOpen()
	if err != nil {
		c.dataClose()
		return &result{code: 425, msg: "Can't open data connection.", err: err, log: c.log}
	}
	defer c.dataClose()

	if err := c.writeMessage(150, fmt.Sprintf("Opening %s data connection.", c.transferText())); err != nil {
		return &result{err: err, log: c.log}
	}

	records, err := c.store.FindByOwner(c.user.Username)
	if err != nil {
		return &result{code: 550, msg: "Requested action not taken.", err: err, log: c.log}
	}

	eol := c.dataEOL()
	for i := range records {
		if _, err := conn.Write([]byte(formatListLine(&records[i]) + eol)); err != nil {
			return &result{code: 426, msg: "Connection closed; transfer aborted.", err: err, log: c.log}
		}
	}

	return &result{code: 226, msg: "Transfer complete."}
}

// one fixed-width line per record; the permission string and link count are
// placeholders, the store has no notion of either
func formatListLine(record *FileRecord) string {
	return fmt.Sprintf("%-11s%-2s%-15s%-15s%-10s%-13s%s",
		"-rwx------",
		"1",
		record.Owner,
		record.Group,
		strconv.FormatInt(record.Size, 10),
		record.ModifiedAt.Format("Jan 02 15:04"),
		record.Filename)
}

func (c *clientHandler) handleRETR() *result {
	record, err := c.store.FindByNameAndOwner(c.param, c.user.Username)
	if err != nil {
		return &result{code: 550, msg: "Requested action not taken.", err: err, log: c.log}
	}
	if record == nil {
		return &result{code: 553, msg: "Requested action not taken."}
	}

	conn, err := c.dataOpen()
	if err != nil {
		c.dataClose()
		return &result{code: 425, msg: "Can't open data connection.", err: err, log: c.log}
	}
	defer c.dataClose()

	if err := c.writeMessage(150, fmt.Sprintf("%s connection for %s (%d bytes).", c.transferText(), record.Filename, record.Size)); err != nil {
		return &result{err: err, log: c.log}
	}

	if _, err := conn.Write(record.Content); err != nil {
		return &result{code: 426, msg: "Connection closed; transfer aborted.", err: err, log: c.log}
	}

	return &result{code: 226, msg: "transfer complete."}
}

func (c *clientHandler) handleSIZE() *result {
	record, err := c.store.FindByNameAndOwner(c.param, c.user.Username)
	if err != nil {
		return &result{code: 550, msg: "Requested action not taken.", err: err, log: c.log}
	}
	if record == nil {
		return &result{code: 553, msg: "Requested action not taken."}
	}

	return &result{code: 213, msg: strconv.FormatInt(record.Size, 10)}
}

func (c *clientHandler) handleDELE() *result {
	removed, err := c.store.Remove(c.param, c.user.Username)
	if err != nil || removed != 1 {
		return &result{code: 550, msg: "Delete operation failed", err: err, log: c.log}
	}

	c.auditLog.Write(fmt.Sprintf("user %s removed %s", c.user.Username, c.param))
	return &result{code: 250, msg: "Delete command successful."}
}

func (c *clientHandler) handleRNFR() *result {
	record, err := c.store.FindByNameAndOwner(c.param, c.user.Username)
	if err != nil {
		return &result{code: 553, msg: "Requested action not taken.", err: err, log: c.log}
	}
	if record == nil {
		return &result{code: 553, msg: "Requested action not taken."}
	}

	// a new RNFR supersedes any marker left by an earlier one
	c.clearPendingRename()

	if err := c.store.MarkPendingRename(record.ID); err != nil {
		return &result{code: 553, msg: "Requested action not taken.", err: err, log: c.log}
	}

	c.renamePending = c.param
	return &result{code: 350, msg: "RNFR command successful."}
}

func (c *clientHandler) handleRNTO() *result {
	record, err := c.store.FindPendingRename(c.user.Username)
	if err != nil {
		return &result{code: 553, msg: "Requested action not taken.", err: err, log: c.log}
	}
	if record == nil {
		return &result{code: 550, msg: "Requested file action not taken (need an RNFR command)."}
	}

	if err := c.store.RenameTo(record.ID, c.param, true); err != nil {
		return &result{code: 553, msg: "Requested action not taken.", err: err, log: c.log}
	}

	c.auditLog.Write(fmt.Sprintf("user %s renamed %s to %s", c.user.Username, record.Filename, c.param))
	c.renamePending = ""
	return &result{code: 250, msg: "RNTO command successful."}
}

func (c *clientHandler) handleSTOR() *result {
	return c.storeIncoming(false)
}

func (c *clientHandler) handleAPPE() *result {
	return c.storeIncoming(true)
}

// storeIncoming stages the incoming stream in a temp file and commits it to
// the store only once fully received. An existing record under the target
// name is renamed aside first and removed only after the commit; any failure
// before the commit renames it back, so a failed upload never loses data.
func (c *clientHandler) storeIncoming(appendExisting bool) *result {
	filename := c.param

	existing, err := c.store.FindByNameAndOwner(filename, c.user.Username)
	if err != nil {
		return &result{code: 550, msg: "Requested action not taken.", err: err, log: c.log}
	}

	supersededID := ""
	if existing != nil {
		if err := c.store.RenameTo(existing.ID, holdingName(), false); err != nil {
			msg := "Unable to overwrite existing file."
			if appendExisting {
				msg = "Unable to open file for appending."
			}
			return &result{code: 550, msg: msg, err: err, log: c.log}
		}
		supersededID = existing.ID
	}

	restore := func() {
		if supersededID == "" {
			return
		}
		if err := c.store.RenameTo(supersededID, filename, false); err != nil {
			c.log.err("could not restore superseded record %s: %s", supersededID, err)
		}
	}

	tempFile, err := os.CreateTemp("", "ftpUpload")
	if err != nil {
		restore()
		return &result{code: 451, msg: "Requested action aborted: local error in processing.", err: err, log: c.log}
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if appendExisting && existing != nil {
		if _, err := tempFile.Write(existing.Content); err != nil {
			restore()
			return &result{code: 451, msg: "Requested action aborted: local error in processing.", err: err, log: c.log}
		}
	}

	conn, err := c.dataOpen()
	if err != nil {
		c.dataClose()
		restore()
		return &result{code: 425, msg: "Can't open data connection.", err: err, log: c.log}
	}
	defer c.dataClose()

	if err := c.writeMessage(150, fmt.Sprintf("File status okay; opening %s connection.", c.transferText())); err != nil {
		restore()
		return &result{err: err, log: c.log}
	}

	if err := receiveData(conn, c.transfer.Mode(), tempFile); err != nil {
		restore()
		return &result{code: 426, msg: "Connection closed; transfer aborted.", err: err, log: c.log}
	}
	c.dataClose()

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		restore()
		return &result{code: 451, msg: "Requested action aborted: local error in processing.", err: err, log: c.log}
	}
	content, err := io.ReadAll(tempFile)
	if err != nil {
		restore()
		return &result{code: 451, msg: "Requested action aborted: local error in processing.", err: err, log: c.log}
	}

	if _, err := c.store.Store(content, FileMeta{
		Filename:   filename,
		Owner:      c.user.Username,
		Group:      "ftp",
		ModifiedAt: time.Now(),
	}); err != nil {
		restore()
		return &result{code: 451, msg: "Requested action aborted: local error in processing.", err: err, log: c.log}
	}

	if supersededID != "" {
		if err := c.store.RemoveID(supersededID); err != nil {
			c.log.err("could not remove superseded record %s: %s", supersededID, err)
		}
	}

	c.auditLog.Write(fmt.Sprintf("user %s stored %s (%d bytes)", c.user.Username, filename, len(content)))
	return &result{code: 226, msg: "transfer complete."}
}

// holdingName generates the throwaway filename an overwritten record hides
// under until the replacement is committed.
func holdingName() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}
