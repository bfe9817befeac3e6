package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const defaultDiscordAPIBase = "https://discord.com/api"

// プロバイダー呼び出しの失敗ステップを区別するためのセンチネルエラー。
// 呼び出し元はerrors.Isでリダイレクト理由コードにマッピングする。
var (
	// ErrTokenExchange はトークンエンドポイントが非2xxを返したことを示す。
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrUserFetch はユーザー情報エンドポイントが非2xxを返したことを示す。
	ErrUserFetch = errors.New("user fetch failed")
	// ErrNotInGuild はギルドメンバー取得が非2xxを返したことを示す。
	// 典型的には対象ギルドに参加していないユーザー。
	ErrNotInGuild = errors.New("not a guild member")
)

// ClientCredentials はテナントごとのDiscordアプリケーション資格情報。
// プロバイダーはプロセス全体の資格情報を持たず、呼び出しごとに受け取る。
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// DiscordUser はDiscordのユーザー情報エンドポイントのレスポンス。
type DiscordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

// DisplayName は表示名を返す。global_nameが未設定の場合はusernameを使う。
func (u *DiscordUser) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// AvatarURL はCDN上のアバター画像の絶対URLを返す。
// アバター未設定の場合は空文字列を返す。
func (u *DiscordUser) AvatarURL() string {
	if u.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", u.ID, u.Avatar)
}

// DiscordGuildMember はギルドメンバーエンドポイントのレスポンス。
type DiscordGuildMember struct {
	Roles []string `json:"roles"`
	Nick  string   `json:"nick"`
}

// discordTokenResponse はトークンエンドポイントのレスポンス。
type discordTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// DiscordOAuthConfig はDiscord OAuthプロバイダーの設定。
type DiscordOAuthConfig struct {
	// APIBase はDiscord APIのベースURL。テスト用にオーバーライド可能。
	APIBase string

	HTTPClient *http.Client
}

// DiscordOAuthProvider はDiscord OAuth 2.0による認証を提供する。
// 資格情報はテナントごとに異なるため、各呼び出しで受け取る。
type DiscordOAuthProvider struct {
	apiBase    string
	httpClient *http.Client
}

// NewDiscordOAuthProvider はDiscordOAuthProviderを生成する。
func NewDiscordOAuthProvider(config DiscordOAuthConfig) *DiscordOAuthProvider {
	if config.APIBase == "" {
		config.APIBase = defaultDiscordAPIBase
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &DiscordOAuthProvider{
		apiBase:    strings.TrimSuffix(config.APIBase, "/"),
		httpClient: config.HTTPClient,
	}
}

// AuthorizeURL はDiscord OAuthの認証URLを生成する。
// スコープはidentityとギルドメンバー読み取り。stateにはテナントスラッグを
// そのまま載せ、コールバック時のテナント取り違えを防ぐ。
func (p *DiscordOAuthProvider) AuthorizeURL(clientID, redirectURI, state string) string {
	params := url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {"identify guilds.members.read"},
		"state":         {state},
	}
	return p.apiBase + "/oauth2/authorize?" + params.Encode()
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// client_secretを含むリクエストボディは絶対にログに出力しない。
// レスポンスの診断情報はサーバーログにのみ記録する。
func (p *DiscordOAuthProvider) ExchangeCode(ctx context.Context, creds ClientCredentials, code, redirectURI string) (string, error) {
	data := url.Values{
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/oauth2/token", strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrTokenExchange, err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("discord token exchange returned non-2xx",
			slog.Int("http_status", resp.StatusCode),
			slog.String("response", string(body)),
		)
		return "", fmt.Errorf("%w: status %d", ErrTokenExchange, resp.StatusCode)
	}

	var tokenResp discordTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrTokenExchange, err)
	}

	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token in response", ErrTokenExchange)
	}

	return tokenResp.AccessToken, nil
}

// FetchUser はアクセストークンで認証済みユーザーの情報を取得する。
func (p *DiscordOAuthProvider) FetchUser(ctx context.Context, accessToken string) (*DiscordUser, error) {
	body, err := p.getWithToken(ctx, p.apiBase+"/users/@me", accessToken, ErrUserFetch)
	if err != nil {
		return nil, err
	}

	var user DiscordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrUserFetch, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: empty user id in response", ErrUserFetch)
	}

	return &user, nil
}

// FetchGuildMember は指定ギルドにおける認証済みユーザーのメンバー情報
// （ロールIDの集合）を取得する。ロールはログインごとに必ず再取得し、
// キャッシュしない。ギルド非参加のユーザーには非2xxが返る。
func (p *DiscordOAuthProvider) FetchGuildMember(ctx context.Context, accessToken, guildID string) (*DiscordGuildMember, error) {
	endpoint := fmt.Sprintf("%s/users/@me/guilds/%s/member", p.apiBase, url.PathEscape(guildID))
	body, err := p.getWithToken(ctx, endpoint, accessToken, ErrNotInGuild)
	if err != nil {
		return nil, err
	}

	var member DiscordGuildMember
	if err := json.Unmarshal(body, &member); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrNotInGuild, err)
	}

	return &member, nil
}

// getWithToken はBearerトークン付きGETを実行し、非2xxをsentinelにラップする。
func (p *DiscordOAuthProvider) getWithToken(ctx context.Context, endpoint, accessToken string, sentinel error) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", sentinel, err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("discord API returned non-2xx",
			slog.String("endpoint", req.URL.Path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
	}

	return body, nil
}

// compile-time interface check
var _ OAuthProvider = (*DiscordOAuthProvider)(nil)
