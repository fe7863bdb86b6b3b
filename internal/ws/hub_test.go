package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/pubsub"
	"petadopt/internal/service"
	"petadopt/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	st      *memory.Store
	hub     *Hub
	orgID   string
	staff   model.Session
	adopter model.Session
	request model.AdoptionRequest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	st := memory.New()

	f := &fixture{
		st:      st,
		orgID:   "org-1",
		staff:   model.Session{UserID: "staff-1", Role: model.RoleProtetor, ActiveOrganizationID: "org-1"},
		adopter: model.Session{UserID: "adopter-1", Role: model.RoleAdotante},
	}
	require.NoError(t, st.CreateOrganization(ctx, model.Organization{
		ID: f.orgID, Name: "Patas", MemberIDs: []string{"staff-1"}, CreatedBy: "staff-1", CreatedAt: now, UpdatedAt: now,
	}))
	orgID := f.orgID
	require.NoError(t, st.CreateAnimal(ctx, model.Animal{
		ID: "a-1", Name: "Rex", Species: "cão", Sex: model.SexMale, Status: model.AnimalForAdoption,
		OrganizationID: &orgID, CreatedAt: now, UpdatedAt: now,
	}))
	f.request = model.AdoptionRequest{
		ID: "r-1", AdopterID: "adopter-1", OrganizationID: f.orgID, AnimalID: "a-1",
		OrganizationName: "Patas", AnimalName: "Rex", PhotoURLs: []string{"1", "2", "3"},
		Declaration: true, Status: model.RequestPending, SubmittedAt: now,
	}
	require.NoError(t, st.CreateAdoptionRequest(ctx, f.request))

	svc := service.NewAdoptionService(st, nil, nil, nil, service.AdoptionConfig{}, zap.NewNop())

	f.hub = NewHub(zap.NewNop())
	f.hub.SetAuthorizer(NewChannelAuthorizer(st))
	f.hub.SetCommandHandler(NewCommandHandler(svc, zap.NewNop()))
	return f
}

func (f *fixture) connect(sess model.Session) *Conn {
	c := NewConn(nil, f.hub, sess)
	f.hub.Register(c)
	return c
}

// send feeds msg to c as if the peer had written it.
func send(t *testing.T, c *Conn, msg map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	c.dispatch(raw)
}

func next(t *testing.T, c *Conn) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestSubscribe_Authorization(t *testing.T) {
	f := newFixture(t)
	adopter := f.connect(f.adopter)
	staff := f.connect(f.staff)

	cases := []struct {
		name string
		conn *Conn
		ch   string
		ok   bool
	}{
		{"adopter own channel", adopter, pubsub.AdopterPrefix + "adopter-1", true},
		{"adopter other adopter", adopter, pubsub.AdopterPrefix + "adopter-2", false},
		{"adopter organization", adopter, pubsub.OrganizationPrefix + f.orgID, false},
		{"adopter own request", adopter, pubsub.AdoptionPrefix + "r-1", true},
		{"staff organization", staff, pubsub.OrganizationPrefix + f.orgID, true},
		{"staff foreign organization", staff, pubsub.OrganizationPrefix + "org-2", false},
		{"staff org request", staff, pubsub.AdoptionPrefix + "r-1", true},
		{"unknown prefix", staff, "entity:x", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			send(t, tc.conn, map[string]interface{}{"type": "subscribe", "channel": tc.ch})
			msg := next(t, tc.conn)
			if tc.ok {
				assert.Equal(t, "ack", msg["type"])
				assert.Equal(t, "subscribed", msg["ack"])
			} else {
				assert.Equal(t, "error", msg["type"])
				assert.Equal(t, "forbidden", msg["code"])
			}
		})
	}
}

func TestRun_FansOutToSubscribers(t *testing.T) {
	f := newFixture(t)
	go f.hub.Run()
	defer f.hub.Close()

	staff := f.connect(f.staff)
	adopter := f.connect(f.adopter)
	send(t, staff, map[string]interface{}{"type": "subscribe", "channel": pubsub.OrganizationPrefix + f.orgID})
	next(t, staff)

	f.hub.Publish(pubsub.OrganizationPrefix+f.orgID, map[string]interface{}{"type": "adoption.submitted", "seq": 4})

	msg := next(t, staff)
	assert.Equal(t, "event", msg["type"])
	assert.Equal(t, float64(4), msg["seq"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "adoption.submitted", data["type"])

	select {
	case <-adopter.send:
		t.Fatal("unsubscribed connection received an event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregister_ClosesOnce(t *testing.T) {
	f := newFixture(t)
	c := f.connect(f.staff)
	f.hub.unregister(c)
	f.hub.unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
	// messages to a closed connection are dropped, not panicking
	c.enqueue(ackFrame("pong", ""))
}

func TestCommand_ListAndDecide(t *testing.T) {
	f := newFixture(t)
	adopter := f.connect(f.adopter)
	staff := f.connect(f.staff)

	send(t, adopter, map[string]interface{}{"type": "cmd", "op": "listMyRequests", "id": "m1"})
	msg := next(t, adopter)
	assert.Equal(t, "response", msg["type"])
	assert.Equal(t, "m1", msg["id"])
	assert.Len(t, msg["data"], 1)

	send(t, staff, map[string]interface{}{
		"type": "cmd", "op": "decideRequest", "id": "m2",
		"data": map[string]interface{}{"requestId": "r-1", "status": "approved"},
	})
	msg = next(t, staff)
	require.Equal(t, "response", msg["type"], msg)
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "approved", data["status"])
	assert.Equal(t, service.DefaultApprovalMessage, data["responseMessage"])

	animal, err := f.st.GetAnimal(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, model.AnimalAdopted, animal.Status)

	// second decision loses
	send(t, staff, map[string]interface{}{
		"type": "cmd", "op": "decideRequest", "id": "m3",
		"data": map[string]interface{}{"requestId": "r-1", "status": "rejected", "responseMessage": "no"},
	})
	msg = next(t, staff)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, service.CodeConflict, msg["code"])
}

func TestCommand_AdopterCannotDecide(t *testing.T) {
	f := newFixture(t)
	adopter := f.connect(f.adopter)

	send(t, adopter, map[string]interface{}{
		"type": "cmd", "op": "decideRequest",
		"data": map[string]interface{}{"requestId": "r-1", "status": "approved", "organizationId": f.orgID},
	})
	msg := next(t, adopter)
	assert.Equal(t, service.CodeForbidden, msg["code"])

	req, err := f.st.GetAdoptionRequest(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)
}

func TestCommand_Withdraw(t *testing.T) {
	f := newFixture(t)
	adopter := f.connect(f.adopter)

	send(t, adopter, map[string]interface{}{
		"type": "cmd", "op": "withdrawRequest", "data": map[string]interface{}{"requestId": "r-1"},
	})
	msg := next(t, adopter)
	assert.Equal(t, "response", msg["type"])

	req, err := f.st.GetAdoptionRequest(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestCancelled, req.Status)
}

func TestCommand_Unknown(t *testing.T) {
	f := newFixture(t)
	c := f.connect(f.staff)
	send(t, c, map[string]interface{}{"type": "cmd", "op": "createFlow"})
	assert.Equal(t, "unknown_command", next(t, c)["code"])
}

func TestDispatch_MalformedFrames(t *testing.T) {
	f := newFixture(t)
	c := f.connect(f.staff)

	c.dispatch([]byte("{not json"))
	assert.Equal(t, "invalid_input", next(t, c)["code"])

	send(t, c, map[string]interface{}{"type": "cmd", "op": "getRequest", "id": "m9", "data": "r-1"})
	msg := next(t, c)
	assert.Equal(t, "invalid_input", msg["code"])
	assert.Equal(t, "m9", msg["id"])

	send(t, c, map[string]interface{}{"type": "ping"})
	assert.Equal(t, "pong", next(t, c)["ack"])
}

type fakeStreams struct {
	acked map[string]int64
}

func (s *fakeStreams) GetLastSequence(_ context.Context, channel, conn string) (int64, error) {
	return s.acked[channel+"|"+conn], nil
}

func (s *fakeStreams) AcknowledgeSequence(_ context.Context, channel, conn string, seq int64) error {
	s.acked[channel+"|"+conn] = seq
	return nil
}

func (s *fakeStreams) ReplayEvents(_ context.Context, channel string, since, limit int64) ([]StreamEvent, error) {
	var out []StreamEvent
	for seq := since + 1; seq <= 3; seq++ {
		out = append(out, StreamEvent{Channel: channel, Sequence: seq, Event: map[string]interface{}{"n": seq}})
	}
	return out, nil
}

func TestAckAndResume(t *testing.T) {
	f := newFixture(t)
	streams := &fakeStreams{acked: map[string]int64{}}
	f.hub.SetStreamsProvider(streams)

	ch := pubsub.AdopterPrefix + "adopter-1"
	c := f.connect(f.adopter)

	// resume before subscribing is refused
	send(t, c, map[string]interface{}{"type": "resume", "channel": ch, "since": float64(0)})
	assert.Equal(t, "error", next(t, c)["type"])

	send(t, c, map[string]interface{}{"type": "subscribe", "channel": ch})
	next(t, c)
	send(t, c, map[string]interface{}{"type": "ack", "channel": ch, "seq": float64(1)})
	assert.Equal(t, int64(1), streams.acked[ch+"|adopter-1"])

	// no "since": resume from last ack
	send(t, c, map[string]interface{}{"type": "resume", "channel": ch})
	first := next(t, c)
	assert.Equal(t, float64(2), first["seq"])
	second := next(t, c)
	assert.Equal(t, float64(3), second["seq"])
}
