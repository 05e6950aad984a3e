package middlewares

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spacearena/lead-pipeline/utils"
)

type contextKey string

const UserContextKey = contextKey("laravel_user")

const LARAVEL_AUTH_TIMEOUT = 10 * time.Second

type LaravelUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ActorID is the id recorded on manual stage transitions.
func (u LaravelUser) ActorID() string {
	return strconv.Itoa(u.ID)
}

func UserFromContext(ctx context.Context) (LaravelUser, bool) {
	user, ok := ctx.Value(UserContextKey).(LaravelUser)
	return user, ok
}

// LaravelAuth validates the bearer token against the Laravel session endpoint
// and stores the resolved user in the request context.
func LaravelAuth(laravelURL string, client *http.Client) func(http.Handler) http.Handler {
	if laravelURL == "" {
		laravelURL = "http://localhost:8000"
	}
	if client == nil {
		client = &http.Client{Timeout: LARAVEL_AUTH_TIMEOUT}
	}
	userURL := fmt.Sprintf("%s/api/user", laravelURL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Authorization")
			if token == "" {
				utils.SendResponse(w, http.StatusUnauthorized, "Token não informado", nil, 0)
				return
			}

			req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, userURL, nil)
			if err != nil {
				utils.SendResponse(w, http.StatusInternalServerError, "Erro ao criar requisição de autenticação", nil, 0)
				return
			}
			req.Header.Set("Authorization", token)
			req.Header.Set("Accept", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				utils.SendResponse(w, http.StatusBadGateway, "Erro ao conectar na API de autenticação", nil, 0)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				utils.SendResponse(w, http.StatusUnauthorized, "Token inválido ou usuário não autenticado", nil, 0)
				return
			}

			user := LaravelUser{}
			err = json.NewDecoder(resp.Body).Decode(&user)
			if err != nil || user.ID == 0 || user.Name == "" || user.Email == "" {
				utils.SendResponse(w, http.StatusUnauthorized, "Usuário inválido retornado pela autenticação", nil, 0)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
