package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/guildgate/internal/model"
)

// actorContextKey はコンソールAPI呼び出し元の識別子を格納するキー。
var actorContextKey = contextKey("console_actor")

// NewSuperAdminMiddleware はコンソールAPIのBearerトークン認証ミドルウェアを返す。
//
// 許可リストは起動時の設定値として渡される静的なトークン集合で、
// 比較は一定時間比較で行う。認証に成功した場合、トークンのSHA-256
// フィンガープリント（先頭8文字）を呼び出し元識別子として
// コンテキストに注入する。監査ログにトークンそのものは残さない。
func NewSuperAdminMiddleware(tokens []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			matched := false
			for _, token := range tokens {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
					matched = true
					// breakしないことで比較回数を一定に保つ。
				}
			}
			if !matched {
				slog.Warn("console API authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey, tokenFingerprint(presented))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// tokenFingerprint はトークンのSHA-256ハッシュの先頭8文字を返す。
// 監査ログで呼び出し元を区別するための識別子であり、トークンの復元はできない。
func tokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "console-" + hex.EncodeToString(sum[:])[:8]
}

// ActorFromContext はリクエストコンテキストからコンソールAPI呼び出し元の
// 識別子を取得する。未認証の場合は空文字列を返す。
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey).(string)
	return actor
}

// ContextWithActor は呼び出し元識別子を格納したコンテキストを返す。
// ハンドラー単体テストでの注入用。
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}
