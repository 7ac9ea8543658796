// Command useradmin exposes a small HTTP API for managing FTP accounts and
// inspecting per-owner listings in the content store.
package main

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"flag"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/mongoftp/mongoftpd/mongostore"
)

type server struct {
	store *mongostore.Store
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func main() {
	confFile := flag.String("config", "../../example.toml", "path to configuration file")
	listen := flag.String("listen", "127.0.0.1:8021", "address to listen on")
	flag.Parse()

	store, err := mongostore.NewFromConfig(*confFile)
	if err != nil {
		logrus.Fatal(err)
	}

	s := &server{store: store}

	router := httprouter.New()
	router.POST("/users", s.createUser)
	router.GET("/files/:owner", s.listFiles)

	logrus.Infof("useradmin listening on %s", *listen)
	logrus.Fatal(http.ListenAndServe(*listen, router))
}

func (s *server) createUser(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeResponse(rw, http.StatusBadRequest, "username and password are required")
		return
	}

	sum := md5.Sum([]byte(req.Password))
	if err := s.store.AddUser(req.Username, hex.EncodeToString(sum[:])); err != nil {
		logrus.Errorf("could not add user %s: %s", req.Username, err)
		writeResponse(rw, http.StatusInternalServerError, "could not add user")
		return
	}

	writeResponse(rw, http.StatusOK, "user "+req.Username+" saved")
}

func (s *server) listFiles(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	records, err := s.store.FindByOwner(ps.ByName("owner"))
	if err != nil {
		logrus.Errorf("could not list files: %s", err)
		writeResponse(rw, http.StatusInternalServerError, "could not list files")
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(records)
}

func writeResponse(rw http.ResponseWriter, code int, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(response{Code: code, Message: message})
}
