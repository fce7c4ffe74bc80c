package services

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plushkinv/YadrenoVPN/internal/db"
)

// XUIClient — клиент панели 3X-UI. Авторизация по сессионной cookie,
// все ответы API имеют форму {"success": bool, "msg": "...", "obj": ...}.
type XUIClient struct {
	baseURL  string
	login    string
	password string
	http     *http.Client
	authed   bool
}

type panelResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

type Inbound struct {
	ID       int    `json:"id"`
	Remark   string `json:"remark"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Enable   bool   `json:"enable"`
}

// NewXUIClient создаёт клиента для сервера из БД
func NewXUIClient(srv *db.Server) *XUIClient {
	jar, _ := cookiejar.New(nil)
	basePath := "/" + strings.Trim(srv.WebBasePath, "/")
	if basePath == "/" {
		basePath = ""
	}
	return &XUIClient{
		baseURL:  fmt.Sprintf("https://%s:%d%s", srv.Host, srv.Port, basePath),
		login:    srv.Login,
		password: srv.Password,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				// Панели почти всегда за самоподписанным сертификатом
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// Login авторизуется в панели и сохраняет сессионную cookie
func (c *XUIClient) Login() error {
	form := url.Values{"username": {c.login}, "password": {c.password}}
	resp, err := c.http.PostForm(c.baseURL+"/login", form)
	if err != nil {
		return fmt.Errorf("panel login request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("panel login: HTTP %d", resp.StatusCode)
	}
	var pr panelResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return fmt.Errorf("panel login: bad response: %w", err)
	}
	if !pr.Success {
		return fmt.Errorf("panel login rejected: %s", pr.Msg)
	}
	c.authed = true
	return nil
}

// request выполняет запрос к API панели, при протухшей сессии
// переавторизуется и повторяет запрос один раз
func (c *XUIClient) request(method, endpoint string, body interface{}) (*panelResponse, error) {
	if !c.authed {
		if err := c.Login(); err != nil {
			return nil, err
		}
	}
	pr, err := c.do(method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if !pr.Success && strings.Contains(strings.ToLower(pr.Msg), "login") {
		c.authed = false
		if err := c.Login(); err != nil {
			return nil, err
		}
		pr, err = c.do(method, endpoint, body)
		if err != nil {
			return nil, err
		}
	}
	if !pr.Success {
		return nil, fmt.Errorf("panel %s %s: %s", method, endpoint, pr.Msg)
	}
	return pr, nil
}

func (c *XUIClient) do(method, endpoint string, body interface{}) (*panelResponse, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("panel request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("panel %s %s: HTTP %d", method, endpoint, resp.StatusCode)
	}
	var pr panelResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("panel response decode: %w", err)
	}
	return &pr, nil
}

// GetInbounds возвращает список inbound-подключений панели
func (c *XUIClient) GetInbounds() ([]Inbound, error) {
	pr, err := c.request(http.MethodGet, "/panel/api/inbounds/list", nil)
	if err != nil {
		return nil, err
	}
	var inbounds []Inbound
	if err := json.Unmarshal(pr.Obj, &inbounds); err != nil {
		return nil, fmt.Errorf("inbounds decode: %w", err)
	}
	active := inbounds[:0]
	for _, ib := range inbounds {
		if ib.Enable {
			active = append(active, ib)
		}
	}
	return active, nil
}

type panelClientSettings struct {
	Clients []panelClient `json:"clients"`
}

type panelClient struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

// AddClientResult — данные созданного на панели клиента
type AddClientResult struct {
	UUID      string
	Email     string
	InboundID int
	ExpiresAt time.Time
}

// AddClient добавляет клиента в inbound. Срок передаётся панели как
// expiryTime в миллисекундах, лимит трафика — в байтах (0 = без лимита).
func (c *XUIClient) AddClient(inboundID int, email string, totalGB int, expiresAt time.Time, limitIP int, tgID string) (*AddClientResult, error) {
	if !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("client expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}
	clientUUID := uuid.NewString()

	settings, err := json.Marshal(panelClientSettings{Clients: []panelClient{{
		ID:         clientUUID,
		Email:      email,
		LimitIP:    limitIP,
		TotalGB:    int64(totalGB) * 1024 * 1024 * 1024,
		ExpiryTime: expiresAt.UnixMilli(),
		Enable:     true,
		TgID:       tgID,
		SubID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
	}}})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"id":       inboundID,
		"settings": string(settings),
	}
	if _, err := c.request(http.MethodPost, "/panel/api/inbounds/addClient", payload); err != nil {
		return nil, err
	}
	return &AddClientResult{
		UUID:      clientUUID,
		Email:     email,
		InboundID: inboundID,
		ExpiresAt: expiresAt,
	}, nil
}

// UpdateClientExpiry передвигает срок действия клиента на панели.
// Вызывается после продления ключа, чтобы панель и БД не разъезжались.
func (c *XUIClient) UpdateClientExpiry(inboundID int, clientUUID, email string, expiresAt time.Time, limitIP int, tgID string) error {
	settings, err := json.Marshal(panelClientSettings{Clients: []panelClient{{
		ID:         clientUUID,
		Email:      email,
		LimitIP:    limitIP,
		ExpiryTime: expiresAt.UnixMilli(),
		Enable:     true,
		TgID:       tgID,
	}}})
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"id":       inboundID,
		"settings": string(settings),
	}
	_, err = c.request(http.MethodPost, "/panel/api/inbounds/updateClient/"+clientUUID, payload)
	return err
}

// DeleteClient удаляет клиента с панели
func (c *XUIClient) DeleteClient(inboundID int, clientUUID string) error {
	endpoint := fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, clientUUID)
	_, err := c.request(http.MethodPost, endpoint, nil)
	return err
}

// Ping проверяет доступность панели без побочных эффектов
func (c *XUIClient) Ping() error {
	_, err := c.request(http.MethodGet, "/panel/api/inbounds/list", nil)
	return err
}
