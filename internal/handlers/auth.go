package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/diewo77/go-sheets/internal/auth"
	"github.com/diewo77/go-sheets/internal/httpx"
	"github.com/diewo77/go-sheets/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	db *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, httpx.CodeInvalidJSON, nil)
		return
	}
	var user models.User
	if err := h.db.Where("email = ?", creds.Email).First(&user).Error; err != nil {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	auth.CreateSession(w, user.ID)
	httpx.JSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, httpx.CodeInvalidJSON, nil)
		return
	}
	if creds.Email == "" || creds.Password == "" {
		httpx.ValidationError(w, map[string]string{"email": "required", "password": "required"})
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "hash_failed", nil)
		return
	}
	// New accounts start on the default user profile when seeded.
	var profile models.Profile
	var profileID *uint
	if err := h.db.Where("name = ?", "user").First(&profile).Error; err == nil {
		profileID = &profile.ID
	}
	user := models.User{Email: creds.Email, Name: creds.Name, Password: string(hashed), ProfileID: profileID}
	if err := h.db.Create(&user).Error; err != nil {
		httpx.JSONError(w, http.StatusConflict, "email_taken", nil)
		return
	}
	auth.CreateSession(w, user.ID)
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
