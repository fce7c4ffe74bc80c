package services

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"
)

// testXUIClient — клиент, смотрящий на httptest-сервер вместо реальной панели
func testXUIClient(srvURL string) *XUIClient {
	jar, _ := cookiejar.New(nil)
	return &XUIClient{
		baseURL:  srvURL,
		login:    "admin",
		password: "secret",
		http:     &http.Client{Jar: jar},
	}
}

func panelOK(w http.ResponseWriter, obj interface{}) {
	raw, _ := json.Marshal(obj)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"msg":     "",
		"obj":     json.RawMessage(raw),
	})
}

func TestXUIClientLoginAndInbounds(t *testing.T) {
	var loginCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		if r.FormValue("username") != "admin" || r.FormValue("password") != "secret" {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "msg": "bad credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "session"})
		panelOK(w, nil)
	})
	mux.HandleFunc("/panel/api/inbounds/list", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("3x-ui"); err != nil || c.Value != "session" {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "msg": "please login first"})
			return
		}
		panelOK(w, []Inbound{
			{ID: 1, Remark: "vless-main", Protocol: "vless", Port: 443, Enable: true},
			{ID: 2, Remark: "disabled", Protocol: "vless", Port: 8443, Enable: false},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testXUIClient(srv.URL)
	inbounds, err := c.GetInbounds()
	if err != nil {
		t.Fatalf("GetInbounds: %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("login calls = %d, want 1", loginCalls)
	}
	// Выключенные inbound отфильтровываются
	if len(inbounds) != 1 || inbounds[0].ID != 1 {
		t.Errorf("inbounds = %+v", inbounds)
	}

	// Повторный запрос идёт по живой сессии без нового логина
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("login calls after ping = %d, want 1", loginCalls)
	}
}

func TestXUIClientReloginOnExpiredSession(t *testing.T) {
	var loginCalls, listCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		panelOK(w, nil)
	})
	mux.HandleFunc("/panel/api/inbounds/list", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		if listCalls == 1 {
			// Первый запрос попадает на протухшую сессию
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "msg": "please login first"})
			return
		}
		panelOK(w, []Inbound{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testXUIClient(srv.URL)
	c.authed = true // сессия "была", но панель её уже не признаёт

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if loginCalls != 1 || listCalls != 2 {
		t.Errorf("login=%d list=%d, want relogin and one retry", loginCalls, listCalls)
	}
}

func TestXUIClientAddClient(t *testing.T) {
	expiresAt := time.Now().AddDate(0, 0, 30)
	var gotPayload struct {
		ID       int    `json:"id"`
		Settings string `json:"settings"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		panelOK(w, nil)
	})
	mux.HandleFunc("/panel/api/inbounds/addClient", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("bad addClient payload: %v", err)
		}
		panelOK(w, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testXUIClient(srv.URL)
	res, err := c.AddClient(5, "user_42_k7", 0, expiresAt, 3, "42")
	if err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	if res.UUID == "" || res.InboundID != 5 || res.Email != "user_42_k7" {
		t.Errorf("bad result: %+v", res)
	}
	if gotPayload.ID != 5 {
		t.Errorf("inbound id = %d, want 5", gotPayload.ID)
	}

	// settings — это JSON-строка внутри JSON, как того требует панель
	var settings panelClientSettings
	if err := json.Unmarshal([]byte(gotPayload.Settings), &settings); err != nil {
		t.Fatalf("settings decode: %v", err)
	}
	if len(settings.Clients) != 1 {
		t.Fatalf("clients = %d, want 1", len(settings.Clients))
	}
	client := settings.Clients[0]
	if client.ID != res.UUID || client.Email != "user_42_k7" || !client.Enable {
		t.Errorf("bad client: %+v", client)
	}
	if client.ExpiryTime != expiresAt.UnixMilli() {
		t.Errorf("expiryTime = %d, want %d", client.ExpiryTime, expiresAt.UnixMilli())
	}
	if client.LimitIP != 3 || client.TgID != "42" {
		t.Errorf("bad limits: %+v", client)
	}
}

func TestXUIClientAddClientRejectsPastExpiry(t *testing.T) {
	c := testXUIClient("http://127.0.0.1:1") // до сети дойти не должно
	if _, err := c.AddClient(1, "x", 0, time.Now().Add(-time.Hour), 0, ""); err == nil {
		t.Fatal("past expiry accepted")
	}
}
