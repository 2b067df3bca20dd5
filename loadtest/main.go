package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"talkative/internal/chat"
)

var (
	wsURL     = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	pairCount = flag.Int("pairs", 500, "number of user pairs") // ⚠️ Start small, the store may choke on 1000 immediately.
	msgCount  = flag.Int("messages", 20, "messages per user")
)

var delivered atomic.Int64

func main() {
	flag.Parse()
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	log := logger.Sugar()

	log.Infof("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *pairCount*2, *msgCount)
	start := time.Now()
	var wg sync.WaitGroup

	// We will create pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(log, pairID)
		}(i)
	}

	wg.Wait()
	log.Infof("✅ LOAD TEST COMPLETE: %d deliveries in %s", delivered.Load(), time.Since(start))
}

func runPair(log *zap.SugaredLogger, pairID int) {
	userA := chat.UserID(fmt.Sprintf("u_%d_a", pairID))
	userB := chat.UserID(fmt.Sprintf("u_%d_b", pairID))

	connA, err := connect(userA)
	if err != nil {
		log.Warnf("❌ WS Connect Fail [%s]: %v", userA, err)
		return
	}
	defer connA.Close()
	connB, err := connect(userB)
	if err != nil {
		log.Warnf("❌ WS Connect Fail [%s]: %v", userB, err)
		return
	}
	defer connB.Close()

	// Each side sees its own copies and the peer's messages
	expected := 2 * *msgCount
	var wsWg sync.WaitGroup
	wsWg.Add(4)
	go drain(&wsWg, connA, expected)
	go drain(&wsWg, connB, expected)
	go spamChat(log, &wsWg, connA, userA, userB)
	go spamChat(log, &wsWg, connB, userB, userA)
	wsWg.Wait()
}

// connect dials and identifies, waiting for the server to confirm.
func connect(user chat.UserID) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, chat.EventIdentify, chat.IdentifyPayload{UserID: user}); err != nil {
		conn.Close()
		return nil, err
	}
	var env chat.Envelope
	if err := conn.ReadJSON(&env); err != nil || env.Type != chat.EventIdentified {
		conn.Close()
		return nil, fmt.Errorf("identify %s: %v (got %q)", user, err, env.Type)
	}
	return conn, nil
}

func spamChat(log *zap.SugaredLogger, wg *sync.WaitGroup, conn *websocket.Conn, from, to chat.UserID) {
	defer wg.Done()
	for i := 0; i < *msgCount; i++ {
		payload := chat.SendPayload{To: string(to), From: from, Text: fmt.Sprintf("LoadTest Msg %d from %s", i, from)}
		if err := writeFrame(conn, chat.EventSend, payload); err != nil {
			log.Warnf("❌ Send Fail [%s]: %v", from, err)
			return
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Debugf("✅ %s finished sending %d msgs", from, *msgCount)
}

func drain(wg *sync.WaitGroup, conn *websocket.Conn, expected int) {
	defer wg.Done()
	for n := 0; n < expected; n++ {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Type == chat.EventDeliver {
			delivered.Add(1)
		}
	}
}

// Only spamChat writes after connect returns: gorilla allows one writer per conn.
func writeFrame(conn *websocket.Conn, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chat.Envelope{Type: eventType, Payload: raw})
}
