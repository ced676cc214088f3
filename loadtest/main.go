package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL       = "http://localhost:8080"
	WSURL         = "ws://localhost:8080/ws/tickets"
	CustomerCount = 200 // ⚠️ Start small. Database might choke on 1000 immediately.
	MsgCount      = 8   // Messages per conversation (cap is 10/min per user)
)

type loginResponse struct {
	Token   string `json:"access_token"`
	Profile struct {
		ID string `json:"id"`
	} `json:"profile"`
}

type createTicketResponse struct {
	TicketID string `json:"ticket_id"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d customers, %d messages each...", CustomerCount, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < CustomerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runCustomer(id)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runCustomer(id int) {
	email := fmt.Sprintf("loadtest_%d@example.com", id)
	pass := "password123"

	token := authenticate(email, pass)
	if token == "" {
		return
	}

	ticketID := createTicket(token, id)
	if ticketID == "" {
		return
	}

	spamConversation(token, ticketID, email)
}

// authenticate registers (ignores error if exists) and logs in
func authenticate(email, password string) string {
	postJSON("/register", map[string]string{
		"email":     email,
		"full_name": "Load Tester",
		"password":  password,
	})

	resp, err := postJSON("/login", map[string]string{"email": email, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", email, err)
		return ""
	}
	defer resp.Body.Close()

	var data loginResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func createTicket(token string, id int) string {
	body := map[string]string{
		"subject":  fmt.Sprintf("Load test ticket %d", id),
		"message":  "My order never arrived, please help.",
		"priority": "medium",
	}
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", BaseURL+"/api/tickets", bytes.NewBuffer(jsonBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Create Ticket Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data createTicketResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.TicketID
}

// spamConversation opens the conversation websocket and drives it the way
// the widget does: typing signals, then a message frame.
func spamConversation(token, ticketID, user string) {
	url := fmt.Sprintf("%s/%s?token=%s", WSURL, ticketID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the write side never stalls.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		conn.WriteJSON(map[string]any{"type": "typing"})
		time.Sleep(50 * time.Millisecond)

		msg := map[string]any{
			"type":    "message",
			"content": fmt.Sprintf("LoadTest msg %d from %s", i, user),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(100 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
