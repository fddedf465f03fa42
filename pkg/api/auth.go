package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"db-monitor/pkg/auth"
	"db-monitor/pkg/model"
)

type AuthHandler struct {
	DB     *gorm.DB
	Signer *auth.Signer
	Log    logrus.FieldLogger
}

type authRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Email           string `json:"email"`
	RealName        string `json:"realName"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	RealName string `json:"realName,omitempty"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"isAdmin"`
}

type registerResponse struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	RealName string `json:"realName,omitempty"`
	IsAdmin  bool   `json:"isAdmin"`
}

// RegisterRoutes wires account routes; guard protects the user list.
func (a *AuthHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/users/list", guard(a.handleListUsers))
}

// handleRegister is open registration; the first account becomes admin.
func (a *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, valid := decodeAuth(r)
	if !valid {
		fail(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		fail(w, http.StatusBadRequest, "passwords do not match")
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	taken, err := a.exists("username = ?", req.Username)
	if err != nil {
		a.internal(w, err, "check username")
		return
	}
	if taken {
		fail(w, http.StatusBadRequest, "username already exists")
		return
	}
	if req.Email != "" {
		if taken, err = a.exists("email = ?", req.Email); err != nil {
			a.internal(w, err, "check email")
			return
		}
		if taken {
			fail(w, http.StatusBadRequest, "email already registered")
			return
		}
	}
	var total int64
	if err := a.DB.Model(&model.User{}).Count(&total).Error; err != nil {
		a.internal(w, err, "count users")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid password")
		return
	}
	user := model.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Email:        req.Email,
		RealName:     req.RealName,
		IsAdmin:      total == 0,
		Status:       1,
	}
	if err := a.DB.Create(&user).Error; err != nil {
		a.internal(w, err, "create user")
		return
	}
	a.Log.WithFields(logrus.Fields{"username": user.Username, "admin": user.IsAdmin}).Info("user registered")
	ok(w, registerResponse{Username: user.Username, Email: user.Email, RealName: user.RealName, IsAdmin: user.IsAdmin})
}

func (a *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, valid := decodeAuth(r)
	if !valid {
		fail(w, http.StatusBadRequest, "username and password are required")
		return
	}
	var user model.User
	if err := a.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.Status != 1 || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := a.Signer.Generate(user.ID, user.Username, user.IsAdmin, auth.TokenTTL)
	if err != nil {
		a.internal(w, err, "sign token")
		return
	}
	ok(w, tokenResponse{Token: token, Username: user.Username, RealName: user.RealName, Email: user.Email, IsAdmin: user.IsAdmin})
}

// handleLogout has nothing to revoke; tokens are stateless and the client drops its copy.
func (a *AuthHandler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	ok(w, nil)
}

func (a *AuthHandler) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	var users []model.User
	if err := a.DB.Order("id").Find(&users).Error; err != nil {
		a.internal(w, err, "list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	ok(w, users)
}

func (a *AuthHandler) exists(cond string, arg string) (bool, error) {
	var n int64
	err := a.DB.Model(&model.User{}).Where(cond, arg).Count(&n).Error
	return n > 0, err
}

func (a *AuthHandler) internal(w http.ResponseWriter, err error, op string) {
	a.Log.WithError(err).Error(op)
	fail(w, http.StatusInternalServerError, "internal server error")
}

func decodeAuth(r *http.Request) (authRequest, bool) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	return req, req.Username != "" && req.Password != ""
}

func AuthMiddleware(next http.HandlerFunc, signer *auth.Signer, requireJWT bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireJWT {
			next(w, r)
			return
		}
		token, found := auth.BearerToken(r.Header.Get("Authorization"))
		if !found {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := signer.Parse(token); err != nil {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
