package handlers

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"nexusstore/internal/apperr"
	"nexusstore/internal/auth"
	"nexusstore/internal/models"
)

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"` // defaults to developer
}

type authResp struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
	Token   string       `json:"token"`
}

const badCredentials = "invalid email or password"

func Register(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		var req registerReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		role := models.RoleDeveloper
		if req.Role != "" {
			role = models.Role(req.Role)
		}
		if role == models.RoleAdmin || !role.Valid() {
			d.Resp.Error(w, r, apperr.Validation("invalid role"))
			return
		}

		var count int64
		if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if count > 0 {
			d.Resp.Error(w, r, apperr.Conflict("an account with this email already exists"))
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		u := models.User{Email: email, PasswordHash: hash, Name: strings.TrimSpace(req.Name), Role: role}
		if err := db.Create(&u).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		tok, err := d.Tokens.Sign(u.ID)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Log.Infow("user registered", "user_id", u.ID, "role", u.Role)
		d.Resp.JSON(w, http.StatusCreated, authResp{Message: "account created", User: &u, Token: tok})
	}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login answers unknown emails and wrong passwords identically.
func Login(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		var req loginReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		var u models.User
		err := db.First(&u, "email = ?", strings.ToLower(strings.TrimSpace(req.Email))).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d.Resp.Error(w, r, apperr.Validation(badCredentials))
			return
		}
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
			d.Resp.Error(w, r, apperr.Validation(badCredentials))
			return
		}
		tok, err := d.Tokens.Sign(u.ID)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, authResp{Message: "login successful", User: &u, Token: tok})
	}
}

func Me(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Resp.OK(w, map[string]interface{}{"user": auth.FromContext(r.Context())})
	}
}

type updateProfileReq struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func UpdateProfile(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		u := auth.FromContext(r.Context())
		var req updateProfileReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		updates := map[string]interface{}{}
		if name := trimmed(req.Name); name != nil && *name != "" {
			updates["name"] = *name
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email != "" && email != u.Email {
				var count int64
				if err := db.Model(&models.User{}).
					Where("email = ? AND id <> ?", email, u.ID).Count(&count).Error; err != nil {
					d.Resp.Error(w, r, err)
					return
				}
				if count > 0 {
					d.Resp.Error(w, r, apperr.Conflict("this email is already in use"))
					return
				}
				updates["email"] = email
			}
		}
		if len(updates) > 0 {
			if err := db.Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
				d.Resp.Error(w, r, err)
				return
			}
		}
		var fresh models.User
		if err := db.First(&fresh, "id = ?", u.ID).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"message": "profile updated", "user": &fresh})
	}
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func ChangePassword(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		u := auth.FromContext(r.Context())
		var req changePasswordReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if len(req.NewPassword) < 8 {
			d.Resp.Error(w, r, apperr.Validation("new password must be at least 8 characters"))
			return
		}
		if err := auth.CheckPassword(u.PasswordHash, req.CurrentPassword); err != nil {
			d.Resp.Error(w, r, apperr.Validation("current password is incorrect"))
			return
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if err := db.Model(&models.User{}).Where("id = ?", u.ID).
			Update("password_hash", hash).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, message{"password changed"})
	}
}

// Logout is a no-op for stateless tokens; clients drop the token.
func Logout(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Resp.OK(w, message{"logged out"})
	}
}
