package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"basket-booking/internal/util"
)

const (
	adminCookie = "bb_admin"
	adminTTL    = 12 * time.Hour
)

func (s *Server) checkPassword(given string) bool {
	// Hashing first keeps the comparison length independent.
	a := util.HMACSHA256Hex(s.cfg.SigningSecret, given)
	b := util.HMACSHA256Hex(s.cfg.SigningSecret, s.cfg.AdminPass)
	return s.cfg.AdminPass != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) adminToken(expires time.Time) string {
	return util.SignToken(s.cfg.SigningSecret, []byte("admin:"+strconv.FormatInt(expires.Unix(), 10)))
}

func (s *Server) isAdmin(r *http.Request) bool {
	c, err := r.Cookie(adminCookie)
	if err != nil {
		return false
	}
	raw, err := util.OpenToken(s.cfg.SigningSecret, c.Value)
	if err != nil {
		return false
	}
	ts, ok := strings.CutPrefix(string(raw), "admin:")
	if !ok {
		return false
	}
	exp, err := strconv.ParseInt(ts, 10, 64)
	return err == nil && s.now().Unix() < exp
}

func (s *Server) setAdminCookie(w http.ResponseWriter) {
	exp := s.now().Add(adminTTL)
	http.SetCookie(w, &http.Cookie{
		Name: adminCookie, Value: s.adminToken(exp), Path: "/",
		Expires: exp, HttpOnly: true, Secure: s.cfg.CSRFSecure, SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearAdminCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: adminCookie, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, Secure: s.cfg.CSRFSecure, SameSite: http.SameSiteStrictMode,
	})
}
