package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"

	"paydesk/internal/handlers"
	"paydesk/utils"
)

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.infoLog.Printf("%s - %s %s %s", r.RemoteAddr, r.Proto, r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, fmt.Errorf("%s", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (app *application) serverError(w http.ResponseWriter, err error) {
	app.errorLog.Output(2, err.Error())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"message": "Something went wrong. Please reload the page."},
	})
}

// consoleSession resolves the workspace from the signed console cookie,
// issuing a new one when the cookie is missing, invalid or close to expiry.
func (app *application) consoleSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, renew := app.workspaceID(r)
		if id == "" {
			id = uuid.NewString()
			renew = true
		}
		if renew {
			if err := app.setSessionCookie(w, id); err != nil {
				app.serverError(w, err)
				return
			}
		}

		ws, err := app.registry.Get(id)
		if err != nil {
			app.serverError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(handlers.WithWorkspace(r.Context(), ws)))
	})
}

func (app *application) workspaceID(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	claims, err := app.cookies.Parse(c.Value)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", false
	}
	renew := time.Until(time.Unix(claims.ExpiresAt, 0)) < app.cfg.Session.TTL/2
	return claims.Subject, renew
}

func (app *application) setSessionCookie(w http.ResponseWriter, id string) error {
	ttl := app.cfg.Session.TTL
	token, err := app.cookies.NewJWT(utils.Claims{
		TokenUse:       "console",
		StandardClaims: jwt.StandardClaims{Subject: id},
	}, ttl)
	if err != nil {
		return fmt.Errorf("sign console cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   app.cfg.Server.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
