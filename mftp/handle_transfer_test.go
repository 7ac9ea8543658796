package mftp

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

// fakeTransferHandler hands out a pre-connected pipe so transfer commands can
// be tested without PASV or PORT plumbing.
type fakeTransferHandler struct {
	conn net.Conn
	mode string
}

func (f *fakeTransferHandler) Open() (net.Conn, error) {
	return f.conn, nil
}

func (f *fakeTransferHandler) Close() error {
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	return nil
}

func (f *fakeTransferHandler) Mode() string {
	return f.mode
}

func newLoggedInHandler(store FileStore) *clientHandler {
	c := newTestHandler(store)
	c.loggedIn = true
	c.user = &User{Username: "mongo"}
	return c
}

func Test_clientHandler_handleSTOR(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)
	_, cleanup := newTestConn(c)
	defer cleanup()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 100)

	dataServer, dataClient := net.Pipe()
	c.transfer = &fakeTransferHandler{conn: dataServer, mode: "PASV"}
	go func() {
		dataClient.Write(payload)
		dataClient.Close()
	}()

	c.param = "a.txt"
	r := c.handleSTOR()
	if r.code != 226 {
		t.Fatalf("clientHandler.handleSTOR() = %d %q, err %v", r.code, r.msg, r.err)
	}

	record, err := store.FindByNameAndOwner("a.txt", "mongo")
	if err != nil {
		t.Fatal(err)
	}
	if record == nil {
		t.Fatal("stored record not found")
	}
	if !bytes.Equal(record.Content, payload) {
		t.Errorf("stored content differs from sent payload (%d vs %d bytes)", len(record.Content), len(payload))
	}
	if record.Size != int64(len(payload)) {
		t.Errorf("record.Size = %d, want %d", record.Size, len(payload))
	}
}

func Test_clientHandler_handleSTOR_overwrite(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)
	_, cleanup := newTestConn(c)
	defer cleanup()

	if _, err := store.Store([]byte("old content"), FileMeta{Filename: "a.txt", Owner: "mongo", ModifiedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	dataServer, dataClient := net.Pipe()
	c.transfer = &fakeTransferHandler{conn: dataServer, mode: "PASV"}
	go func() {
		dataClient.Write([]byte("new content"))
		dataClient.Close()
	}()

	c.param = "a.txt"
	r := c.handleSTOR()
	if r.code != 226 {
		t.Fatalf("clientHandler.handleSTOR() = %d %q, err %v", r.code, r.msg, r.err)
	}

	// the superseded record is gone, not just renamed aside
	records, err := store.FindByOwner("mongo")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("owner has %d records after overwrite, want 1", len(records))
	}
	if records[0].Filename != "a.txt" || string(records[0].Content) != "new content" {
		t.Errorf("record after overwrite = %s %q", records[0].Filename, records[0].Content)
	}
}

func Test_clientHandler_handleAPPE(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)
	_, cleanup := newTestConn(c)
	defer cleanup()

	if _, err := store.Store([]byte("hello "), FileMeta{Filename: "a.txt", Owner: "mongo", ModifiedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	dataServer, dataClient := net.Pipe()
	c.transfer = &fakeTransferHandler{conn: dataServer, mode: "PASV"}
	go func() {
		dataClient.Write([]byte("world"))
		dataClient.Close()
	}()

	c.param = "a.txt"
	r := c.handleAPPE()
	if r.code != 226 {
		t.Fatalf("clientHandler.handleAPPE() = %d %q, err %v", r.code, r.msg, r.err)
	}

	record, err := store.FindByNameAndOwner("a.txt", "mongo")
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || string(record.Content) != "hello world" {
		t.Errorf("appended content = %q, want hello world", record.Content)
	}
}

func Test_clientHandler_handleSTOR_noDataChannel(t *testing.T) {
	c := newLoggedInHandler(NewMemStore())
	_, cleanup := newTestConn(c)
	defer cleanup()

	c.param = "a.txt"
	r := c.handleSTOR()
	if r.code != 425 || r.msg != "Can't open data connection." {
		t.Errorf("clientHandler.handleSTOR() without PASV/PORT = %d %q", r.code, r.msg)
	}
}

func Test_clientHandler_handleRETR(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)
	_, cleanup := newTestConn(c)
	defer cleanup()

	payload := []byte("file body bytes")
	if _, err := store.Store(payload, FileMeta{Filename: "a.txt", Owner: "mongo", ModifiedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	dataServer, dataClient := net.Pipe()
	c.transfer = &fakeTransferHandler{conn: dataServer, mode: "PASV"}
	received := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(dataClient)
		received <- b
	}()

	c.param = "a.txt"
	r := c.handleRETR()
	if r.code != 226 || r.msg != "transfer complete." {
		t.Fatalf("clientHandler.handleRETR() = %d %q, err %v", r.code, r.msg, r.err)
	}

	if got := <-received; !bytes.Equal(got, payload) {
		t.Errorf("received %q, want %q", got, payload)
	}
}

func Test_clientHandler_handleRETR_otherOwner(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)

	if _, err := store.Store([]byte("not yours"), FileMeta{Filename: "a.txt", Owner: "someoneelse"}); err != nil {
		t.Fatal(err)
	}

	c.param = "a.txt"
	r := c.handleRETR()
	if r.code != 553 || r.msg != "Requested action not taken." {
		t.Errorf("clientHandler.handleRETR() for foreign record = %d %q", r.code, r.msg)
	}
}

func Test_clientHandler_handleSIZE(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)

	if _, err := store.Store([]byte("12345"), FileMeta{Filename: "a.txt", Owner: "mongo"}); err != nil {
		t.Fatal(err)
	}

	c.param = "a.txt"
	if r := c.handleSIZE(); r.code != 213 || r.msg != "5" {
		t.Errorf("clientHandler.handleSIZE() = %d %q, want 213 5", r.code, r.msg)
	}

	c.param = "missing.txt"
	if r := c.handleSIZE(); r.code != 553 {
		t.Errorf("clientHandler.handleSIZE() for missing record = %d, want 553", r.code)
	}
}

func Test_clientHandler_handleDELE(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)

	if _, err := store.Store([]byte("x"), FileMeta{Filename: "a.txt", Owner: "mongo"}); err != nil {
		t.Fatal(err)
	}

	c.param = "missing.txt"
	if r := c.handleDELE(); r.code != 550 || r.msg != "Delete operation failed" {
		t.Errorf("clientHandler.handleDELE() for missing record = %d %q", r.code, r.msg)
	}

	c.param = "a.txt"
	if r := c.handleDELE(); r.code != 250 || r.msg != "Delete command successful." {
		t.Errorf("clientHandler.handleDELE() = %d %q", r.code, r.msg)
	}

	record, err := store.FindByNameAndOwner("a.txt", "mongo")
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Errorf("record survived DELE")
	}
}

func Test_clientHandler_rename(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)

	if _, err := store.Store([]byte("x"), FileMeta{Filename: "old.txt", Owner: "mongo"}); err != nil {
		t.Fatal(err)
	}

	// RNTO without RNFR
	c.param = "new.txt"
	if r := c.handleRNTO(); r.code != 550 || r.msg != "Requested file action not taken (need an RNFR command)." {
		t.Errorf("clientHandler.handleRNTO() without RNFR = %d %q", r.code, r.msg)
	}

	c.param = "old.txt"
	if r := c.handleRNFR(); r.code != 350 || r.msg != "RNFR command successful." {
		t.Fatalf("clientHandler.handleRNFR() = %d %q", r.code, r.msg)
	}

	c.param = "new.txt"
	if r := c.handleRNTO(); r.code != 250 || r.msg != "RNTO command successful." {
		t.Fatalf("clientHandler.handleRNTO() = %d %q", r.code, r.msg)
	}

	old, err := store.FindByNameAndOwner("old.txt", "mongo")
	if err != nil {
		t.Fatal(err)
	}
	if old != nil {
		t.Errorf("record still reachable under old name")
	}
	renamed, err := store.FindByNameAndOwner("new.txt", "mongo")
	if err != nil {
		t.Fatal(err)
	}
	if renamed == nil {
		t.Errorf("record not reachable under new name")
	}

	// the marker is consumed, a second RNTO must fail again
	c.param = "other.txt"
	if r := c.handleRNTO(); r.code != 550 {
		t.Errorf("clientHandler.handleRNTO() after completed rename = %d, want 550", r.code)
	}
}

func Test_clientHandler_handleRNFR_missing(t *testing.T) {
	c := newLoggedInHandler(NewMemStore())

	c.param = "missing.txt"
	if r := c.handleRNFR(); r.code != 553 {
		t.Errorf("clientHandler.handleRNFR() for missing record = %d, want 553", r.code)
	}
}

func Test_clientHandler_handleLIST(t *testing.T) {
	store := NewMemStore()
	c := newLoggedInHandler(store)
	_, cleanup := newTestConn(c)
	defer cleanup()

	mtime := time.Date(2020, time.May, 7, 9, 30, 0, 0, time.UTC)
	if _, err := store.Store([]byte("abc"), FileMeta{Filename: "b.txt", Owner: "mongo", Group: "ftp", ModifiedAt: mtime}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Store([]byte("ab"), FileMeta{Filename: "a.txt", Owner: "mongo", Group: "ftp", ModifiedAt: mtime}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Store([]byte("x"), FileMeta{Filename: "c.txt", Owner: "other", Group: "ftp", ModifiedAt: mtime}); err != nil {
		t.Fatal(err)
	}

	dataServer, dataClient := net.Pipe()
	c.transfer = &fakeTransferHandler{conn: dataServer, mode: "PASV"}
	received := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(dataClient)
		received <- b
	}()

	r := c.handleLIST()
	if r.code != 226 || r.msg != "Transfer complete." {
		t.Fatalf("clientHandler.handleLIST() = %d %q, err %v", r.code, r.msg, r.err)
	}

	listing := string(<-received)
	lines := bytes.Split([]byte(listing), []byte("\r\n"))
	if len(lines) != 3 || len(lines[2]) != 0 {
		t.Fatalf("listing has %d lines: %q", len(lines), listing)
	}
	// sorted by filename, other owners excluded
	if !bytes.HasSuffix(lines[0], []byte("a.txt")) || !bytes.HasSuffix(lines[1], []byte("b.txt")) {
		t.Errorf("listing order wrong: %q", listing)
	}
}

func Test_formatListLine(t *testing.T) {
	record := &FileRecord{
		Filename:   "a.txt",
		Owner:      "mongo",
		Group:      "ftp",
		Size:       42,
		ModifiedAt: time.Date(2020, time.May, 7, 9, 30, 0, 0, time.UTC),
	}

	want := "-rwx------ 1 mongo          ftp            42        May 07 09:30 a.txt"
	if got := formatListLine(record); got != want {
		t.Errorf("formatListLine() = %q, want %q", got, want)
	}
}
