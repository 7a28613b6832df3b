package ws

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/models"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestClient(userID, analyte string) *Client {
	return &Client{
		userID:  userID,
		analyte: analyte,
		send:    make(chan Message, sendBuffer),
		logger:  testLogger(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())
	if hub.clients == nil {
		t.Error("hub.clients map is nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("user-1", "")

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("client.send channel is not closed")
	}

	// A second unregister must not close the channel again.
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Unregister() panicked: %v", r)
		}
	}()
	hub.Unregister(client)
}

func TestBroadcast_AnalyteFilter(t *testing.T) {
	hub := NewHub(testLogger())
	all := newTestClient("user-1", "")
	glucose := newTestClient("user-2", "glucose")
	sodium := newTestClient("user-3", "sodium")
	for _, c := range []*Client{all, glucose, sodium} {
		hub.Register(c)
	}

	tests := []struct {
		name    string
		msg     Message
		receive map[*Client]bool
	}{
		{
			name:    "glucose measurement",
			msg:     Message{Type: MessageMeasurementClassified, analytes: []string{"glucose"}},
			receive: map[*Client]bool{all: true, glucose: true, sodium: false},
		},
		{
			name:    "mixed violations",
			msg:     Message{Type: MessageViolationsDetected, analytes: []string{"glucose", "sodium"}},
			receive: map[*Client]bool{all: true, glucose: true, sodium: true},
		},
		{
			name:    "report without analytes",
			msg:     Message{Type: MessageReportGenerated},
			receive: map[*Client]bool{all: true, glucose: true, sodium: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub.Broadcast(tt.msg)
			for c, want := range tt.receive {
				select {
				case got := <-c.send:
					if !want {
						t.Errorf("%s received %s, want nothing", c.userID, got.Type)
					} else if got.Type != tt.msg.Type {
						t.Errorf("%s received %s, want %s", c.userID, got.Type, tt.msg.Type)
					}
				case <-time.After(50 * time.Millisecond):
					if want {
						t.Errorf("%s did not receive %s", c.userID, tt.msg.Type)
					}
				}
			}
		})
	}
}

func TestBroadcast_NarrowsMixedViolations(t *testing.T) {
	hub := NewHub(testLogger())
	all := newTestClient("user-1", "")
	sodium := newTestClient("user-2", "sodium")
	hub.Register(all)
	hub.Register(sodium)

	records := []models.ControlRecord{
		{ID: "m1", Analyte: "glucose", RuleCode: "+3s"},
		{ID: "m2", Analyte: "sodium", RuleCode: "-2s"},
		{ID: "m3", Analyte: "glucose", RuleCode: "-3s"},
	}
	hub.Broadcast(Message{
		Type:     MessageViolationsDetected,
		Data:     ViolationsData{Count: len(records), Records: records},
		analytes: []string{"glucose", "sodium"},
		narrow:   func(analyte string) any { return violationsFor(records, analyte) },
	})

	tests := []struct {
		client  *Client
		wantIDs []string
	}{
		{all, []string{"m1", "m2", "m3"}},
		{sodium, []string{"m2"}},
	}
	for _, tt := range tests {
		t.Run(tt.client.userID, func(t *testing.T) {
			got := <-tt.client.send
			data, ok := got.Data.(ViolationsData)
			if !ok {
				t.Fatalf("Data = %T, want ViolationsData", got.Data)
			}
			if data.Count != len(tt.wantIDs) || len(data.Records) != len(tt.wantIDs) {
				t.Fatalf("Count = %d with %d records, want %d", data.Count, len(data.Records), len(tt.wantIDs))
			}
			for i, r := range data.Records {
				if r.ID != tt.wantIDs[i] {
					t.Errorf("Records[%d].ID = %s, want %s", i, r.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestBroadcastDropsMessagesWhenBufferFull(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("user-1", "")
	hub.Register(client)

	for i := 0; i < sendBuffer; i++ {
		client.send <- Message{Type: MessageMeasurementClassified}
	}
	hub.Broadcast(Message{Type: MessageReportGenerated})

	if len(client.send) != sendBuffer {
		t.Fatalf("client.send length = %d, want %d", len(client.send), sendBuffer)
	}
	for i := 0; i < sendBuffer; i++ {
		if msg := <-client.send; msg.Type == MessageReportGenerated {
			t.Fatal("dropped message was delivered")
		}
	}
}

func TestConcurrentRegisterUnregisterBroadcast(t *testing.T) {
	hub := NewHub(testLogger())
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			client := newTestClient(string(rune('a'+id)), "")
			hub.Register(client)
			go func() {
				for range client.send {
				}
			}()
			time.Sleep(10 * time.Millisecond)
			hub.Unregister(client)
		}(i)
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(Message{Type: MessageMeasurementClassified, Timestamp: time.Now()})
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 after all clients left", hub.ClientCount())
	}
}

func TestConcurrentClientCount(t *testing.T) {
	hub := NewHub(testLogger())
	for i := 0; i < 10; i++ {
		hub.Register(newTestClient(string(rune('a'+i)), ""))
	}

	var wg sync.WaitGroup
	var sum int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&sum, int64(hub.ClientCount()))
		}()
	}
	wg.Wait()

	if sum != 1000 {
		t.Errorf("sum of ClientCount() = %d, want 1000", sum)
	}
}
