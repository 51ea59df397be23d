package services

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresenceHub_ClientManagement(t *testing.T) {
	hub := NewPresenceHub()
	go hub.Run()

	client1 := &PresenceClient{
		ID:           "presence-1",
		Tenant:       "acme",
		TechnicianID: 11,
		Send:         make(chan PresenceMessage, 256),
		Hub:          hub,
	}
	client2 := &PresenceClient{
		ID:           "presence-2",
		Tenant:       "acme",
		TechnicianID: 12,
		Send:         make(chan PresenceMessage, 256),
		Hub:          hub,
	}

	hub.register <- client1
	hub.register <- client2
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2, hub.GetClientCount())

	hub.unregister <- client1
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, hub.GetClientCount())

	hub.unregister <- client2
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestPresenceHub_TenantBroadcast(t *testing.T) {
	hub := NewPresenceHub()
	go hub.Run()

	acme := &PresenceClient{
		ID:           "presence-acme",
		Tenant:       "acme",
		TechnicianID: 11,
		Send:         make(chan PresenceMessage, 256),
		Hub:          hub,
	}
	globex := &PresenceClient{
		ID:           "presence-globex",
		Tenant:       "globex",
		TechnicianID: 21,
		Send:         make(chan PresenceMessage, 256),
		Hub:          hub,
	}

	hub.register <- acme
	hub.register <- globex
	time.Sleep(100 * time.Millisecond)

	// 注册时会产生 technician-online 广播，先清空
	drain := func(c *PresenceClient) {
		for {
			select {
			case <-c.Send:
			case <-time.After(100 * time.Millisecond):
				return
			}
		}
	}
	drain(acme)
	drain(globex)

	hub.broadcast <- PresenceMessage{
		Type:      "shift-change",
		Tenant:    "acme",
		Timestamp: time.Now(),
	}

	select {
	case msg := <-acme.Send:
		assert.Equal(t, "shift-change", msg.Type)
		assert.Equal(t, "acme", msg.Tenant)
	case <-time.After(1 * time.Second):
		t.Fatal("acme client should have received the message")
	}

	select {
	case <-globex.Send:
		t.Fatal("globex client should not have received the message")
	case <-time.After(100 * time.Millisecond):
	}

	hub.unregister <- acme
	hub.unregister <- globex
}

func TestPresenceHub_EvictsSlowClientUnderConcurrentReads(t *testing.T) {
	hub := NewPresenceHub()
	go hub.Run()

	// 缓冲为 1 的慢客户端，填满后广播会将其摘除
	slow := &PresenceClient{
		ID:           "presence-slow",
		Tenant:       "acme",
		TechnicianID: 11,
		Send:         make(chan PresenceMessage, 1),
		Hub:          hub,
	}
	hub.register <- slow
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			hub.OnlineTechnicians("acme")
			hub.GetClientCount()
		}
	}()

	for i := 0; i < 20; i++ {
		hub.broadcast <- PresenceMessage{Type: "shift-change", Tenant: "acme", Timestamp: time.Now()}
	}
	<-done

	deadline := time.After(1 * time.Second)
	for hub.GetClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("slow client not evicted, %d clients remain", hub.GetClientCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.Empty(t, hub.OnlineTechnicians("acme"))
}

func TestPresenceHub_OnlineTechnicians(t *testing.T) {
	hub := NewPresenceHub()
	go hub.Run()

	clients := []*PresenceClient{
		{ID: "p-1", Tenant: "acme", TechnicianID: 11, Send: make(chan PresenceMessage, 256), Hub: hub},
		{ID: "p-2", Tenant: "acme", TechnicianID: 11, Send: make(chan PresenceMessage, 256), Hub: hub}, // 同一技术员的第二个连接
		{ID: "p-3", Tenant: "acme", TechnicianID: 12, Send: make(chan PresenceMessage, 256), Hub: hub},
		{ID: "p-4", Tenant: "globex", TechnicianID: 99, Send: make(chan PresenceMessage, 256), Hub: hub},
		{ID: "p-5", Tenant: "acme", TechnicianID: 0, Send: make(chan PresenceMessage, 256), Hub: hub}, // 匿名连接不算在线
	}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(100 * time.Millisecond)

	ids := hub.OnlineTechnicians("acme")
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []uint{11, 12}, ids)

	assert.Empty(t, hub.OnlineTechnicians("initech"))

	for _, c := range clients {
		hub.unregister <- c
	}
}
