package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"insightquest/models"
	"insightquest/progression"
	"insightquest/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 4 << 10

type userResponse struct {
	Address     string  `json:"address"`
	Username    string  `json:"username"`
	AvatarURL   string  `json:"avatarUrl"`
	XP          int64   `json:"xp"`
	Level       int     `json:"level"`
	Stage       string  `json:"stage"`
	StageGlyph  string  `json:"stageGlyph"`
	LastLogin   *string `json:"lastLogin"`
	LoginStreak int     `json:"loginStreak"`
}

func newUserResponse(user *models.User) userResponse {
	resp := userResponse{
		Address:     user.Address,
		Username:    user.Username,
		AvatarURL:   user.AvatarURL,
		XP:          user.XP,
		Level:       user.Level,
		Stage:       user.Stage,
		StageGlyph:  progression.StageGlyph(progression.Stage(user.Stage)),
		LoginStreak: user.LoginStreak,
	}
	if user.LastLogin != nil {
		day := user.LastLogin.Format(time.DateOnly)
		resp.LastLogin = &day
	}
	return resp
}

type balanceResponse struct {
	Amount        decimal.Decimal `json:"amount"`
	LastRefreshed *time.Time      `json:"lastRefreshed"`
}

func newBalanceResponse(cache models.BalanceCache) balanceResponse {
	resp := balanceResponse{Amount: cache.Amount}
	if !cache.IsZero() {
		refreshed := cache.LastRefreshed
		resp.LastRefreshed = &refreshed
	}
	return resp
}

type sessionResponse struct {
	State   models.SessionState `json:"state"`
	Session *models.Session     `json:"session,omitempty"`
}

type awardXPRequest struct {
	Amount int64 `json:"amount"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps the session error taxonomy onto HTTP status codes
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"path":   r.URL.Path,
			"status": status,
			"error":  err,
		}).Error("Request failed")
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoRememberedSession):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoActiveSession),
		errors.Is(err, service.ErrConnectInProgress),
		errors.Is(err, service.ErrConnectAborted):
		return http.StatusConflict
	case errors.Is(err, service.ErrWalletUnavailable),
		errors.Is(err, service.ErrNoAccount),
		errors.Is(err, service.ErrNetworkSetupFailed):
		return http.StatusFailedDependency
	case errors.Is(err, service.ErrRecordStoreFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
