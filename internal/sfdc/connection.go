// internal/sfdc/connection.go
package sfdc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/oauth2"

	"qcpsync/internal/config"
	"qcpsync/internal/domain/script"
)

const (
	// Публичный client_id connected app, client_secret не требуется
	clientID = "3MVG9KsVczVNcM8yH1pNeimwzaNciPgPq5lCmYI32we9ERWVHCx.vFaFRs9ejsGSHDoWyb8RGInzZJjAHJsQa"

	apiVersion  = "v45.0"
	oauthScope  = "api refresh_token web"
	redirectURI = "http://localhost:1717/auth_callback"
)

// AuthInfo - токены OAuth, получаемые при авторизации.
// Поле id содержит URL identity-эндпоинта пользователя.
type AuthInfo struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	InstanceURL  string `json:"instance_url"`
	ID           string `json:"id"`
	IssuedAt     string `json:"issued_at,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Signature    string `json:"signature,omitempty"`
	Scope        string `json:"scope,omitempty"`
	State        string `json:"state,omitempty"`
}

// OrgInfo - сведения о подключённой организации. AuthInfo на диске
// хранится в зашифрованном виде, в памяти всегда открытым текстом.
type OrgInfo struct {
	OrgID    string         `json:"orgId,omitempty"`
	OrgType  script.OrgType `json:"orgType,omitempty"`
	LoginURL string         `json:"loginUrl,omitempty"`
	Username string         `json:"username,omitempty"`
	AuthInfo *AuthInfo      `json:"authInfo,omitempty"`
}

// Connection - подключение к организации Salesforce поверх REST API.
// При обновлении access-токена вызывает onTokenRefresh, чтобы владелец
// конфигурационного документа сохранил новый токен.
type Connection struct {
	client  *http.Client
	log     *slog.Logger
	oauth   *oauth2.Config
	orgInfo *OrgInfo

	onTokenRefresh func(accessToken string)
}

// AuthorizeURL строит URL user-agent-авторизации для открытия в браузере
func AuthorizeURL(loginURL string) string {
	params := url.Values{}
	params.Set("response_type", "token")
	params.Set("client_id", clientID)
	params.Set("scope", oauthScope)
	params.Set("redirect_uri", redirectURI)
	params.Set("prompt", "login")
	return loginURL + "/services/oauth2/authorize?" + params.Encode()
}

// ParseAuthCallback разбирает fragment редиректа OAuth в набор токенов
func ParseAuthCallback(fragment string) (*AuthInfo, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if i := strings.Index(fragment, "#"); i >= 0 {
		fragment = fragment[i+1:]
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа авторизации: %w", err)
	}
	if errCode := values.Get("error"); errCode != "" {
		return nil, fmt.Errorf("ошибка авторизации: %s: %s", errCode, values.Get("error_description"))
	}
	if values.Get("access_token") == "" {
		return nil, fmt.Errorf("ответ авторизации не содержит access_token")
	}

	return &AuthInfo{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
		InstanceURL:  values.Get("instance_url"),
		ID:           values.Get("id"),
		IssuedAt:     values.Get("issued_at"),
		TokenType:    values.Get("token_type"),
		Signature:    values.Get("sig"),
		Scope:        values.Get("scope"),
		State:        values.Get("state"),
	}, nil
}

// NewConnection создает подключение по сохранённым токенам.
// Без токенов подключение невозможно - требуется повторная авторизация.
func NewConnection(orgInfo *OrgInfo, cfg *config.Config, log *slog.Logger) (*Connection, error) {
	if orgInfo == nil || orgInfo.AuthInfo == nil {
		return nil, script.ErrNotAuthenticated
	}

	loginURL := orgInfo.LoginURL
	if loginURL == "" {
		loginURL = orgInfo.OrgType.LoginURL()
	}

	return &Connection{
		client: &http.Client{
			Timeout: time.Duration(cfg.HTTPTimeout) * time.Second,
		},
		log:     log,
		orgInfo: orgInfo,
		oauth: &oauth2.Config{
			ClientID: clientID,
			Scopes:   strings.Split(oauthScope, " "),
			Endpoint: oauth2.Endpoint{
				AuthURL:  loginURL + "/services/oauth2/authorize",
				TokenURL: loginURL + "/services/oauth2/token",
			},
		},
	}, nil
}

// OnTokenRefresh регистрирует единственного получателя обновлённого
// access-токена
func (c *Connection) OnTokenRefresh(fn func(accessToken string)) {
	c.onTokenRefresh = fn
}

// OrgInfo возвращает сведения об организации подключения
func (c *Connection) OrgInfo() *OrgInfo {
	return c.orgInfo
}

// CheckCredentials принудительно обновляет access-токен и подтягивает
// имя пользователя с identity-эндпоинта, если оно ещё не известно
func (c *Connection) CheckCredentials(ctx context.Context) error {
	if err := c.refreshToken(ctx); err != nil {
		return script.ErrNotAuthenticated
	}

	if c.orgInfo.Username == "" {
		identity, err := c.Identity(ctx)
		if err != nil {
			return script.ErrNotAuthenticated
		}
		c.orgInfo.Username = identity.Username
		c.orgInfo.OrgID = identity.OrganizationID
	}

	return nil
}

// refreshToken обменивает refresh-токен на новый access-токен
// и уведомляет подписчика
func (c *Connection) refreshToken(ctx context.Context) error {
	auth := c.orgInfo.AuthInfo
	if auth.RefreshToken == "" {
		return script.ErrNotAuthenticated
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	token, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: auth.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("ошибка обновления токена: %w", err)
	}

	auth.AccessToken = token.AccessToken
	c.log.Debug("Access-токен обновлён")

	if c.onTokenRefresh != nil {
		c.onTokenRefresh(token.AccessToken)
	}
	return nil
}

// Identity - ответ identity-эндпоинта, используется только username и
// идентификатор организации
type Identity struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
}

func (c *Connection) Identity(ctx context.Context) (*Identity, error) {
	auth := c.orgInfo.AuthInfo
	if auth.ID == "" {
		return nil, &script.RemoteOperationError{Op: "identity", Err: fmt.Errorf("identity URL не задан")}
	}

	var identity Identity
	if err := c.getJSON(ctx, auth.ID, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// doRequest выполняет авторизованный запрос. На 401 однократно
// обновляет токен и повторяет запрос.
func (c *Connection) doRequest(ctx context.Context, method, rawURL string, body io.Reader, retried bool) (*http.Response, error) {
	var bodyData []byte
	if body != nil {
		var err error
		bodyData, err = io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения тела запроса: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytesReader(bodyData))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.orgInfo.AuthInfo.AccessToken)
	if bodyData != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("Отправка запроса",
		"method", method,
		"url", rawURL,
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		resp.Body.Close()
		if err := c.refreshToken(ctx); err != nil {
			return nil, err
		}
		return c.doRequest(ctx, method, rawURL, bytesReader(bodyData), true)
	}

	return resp, nil
}

func bytesReader(data []byte) io.Reader {
	if data == nil {
		return nil
	}
	return strings.NewReader(string(data))
}

// restURL строит абсолютный URL для server-relative пути REST API
func (c *Connection) restURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.orgInfo.AuthInfo.InstanceURL + path
}

func (c *Connection) getJSON(ctx context.Context, rawURL string, result interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, c.restURL(rawURL), nil, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &script.RemoteOperationError{Op: "GET " + rawURL, Err: apiError(resp.StatusCode, data)}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}
	return nil
}

// apiError извлекает сообщение из массива ошибок Salesforce
func apiError(status int, body []byte) error {
	var apiErrs []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(body, &apiErrs); err == nil && len(apiErrs) > 0 {
		return fmt.Errorf("%s: %s", apiErrs[0].ErrorCode, apiErrs[0].Message)
	}
	return fmt.Errorf("сервер вернул статус: %d", status)
}
