package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// Signaling message types.
const (
	MsgJoin            = "join"
	MsgAuth            = "auth"
	MsgJoined          = "joined"
	MsgAuthRequired    = "auth-required"
	MsgError           = "error"
	MsgSessionInitiate = "session-initiate"
	MsgOffer           = "offer"
	MsgAnswer          = "answer"
	MsgMembers         = "members"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 32
)

// Message is the JSON envelope exchanged over the signaling socket.
type Message struct {
	Type string `json:"type"`

	// join
	Room      string `json:"room,omitempty"`
	Session   string `json:"session,omitempty"`
	Name      string `json:"name,omitempty"`
	VideoType string `json:"videoType,omitempty"`

	// auth
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	ID      string                     `json:"id,omitempty"`
	Reason  string                     `json:"reason,omitempty"`
	SDP     *webrtc.SessionDescription `json:"sdp,omitempty"`
	Members []Member                   `json:"members,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// peer is one signaling connection.
type peer struct {
	srv  *Server
	ws   *websocket.Conn
	log  logrus.FieldLogger
	send chan Message

	closeOnce sync.Once
	closed    chan struct{}

	// owned by the read loop
	pending *Message
	host    bool
	room    string
	member  *Member
	media   *Media
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	p := &peer{
		srv:    s,
		ws:     ws,
		log:    s.log.WithField("remote", r.RemoteAddr),
		send:   make(chan Message, sendBacklog),
		closed: make(chan struct{}),
	}
	s.peersMu.Lock()
	s.peers[p] = struct{}{}
	s.peersMu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		p.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		p.readLoop()
	}()
}

func (p *peer) writeLoop() {
	for {
		select {
		case <-p.closed:
			return
		case msg := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteJSON(msg); err != nil {
				p.log.WithError(err).Debug("write failed")
				p.close()
				return
			}
		}
	}
}

// enqueue never blocks; a peer that cannot keep up is disconnected.
func (p *peer) enqueue(msg Message) {
	select {
	case <-p.closed:
	case p.send <- msg:
	default:
		p.log.Warn("send backlog full, dropping peer")
		p.close()
	}
}

func (p *peer) fail(reason string) {
	p.enqueue(Message{Type: MsgError, Reason: reason})
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.ws.Close()
	})
}

func (p *peer) readLoop() {
	defer p.cleanup()
	for {
		var msg Message
		if err := p.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.WithError(err).Debug("read ended")
			}
			return
		}
		p.handle(msg)
	}
}

func (p *peer) cleanup() {
	if p.member != nil {
		p.srv.rooms.Leave(p.room, p.member.ID)
		p.log.Info("participant left")
	}
	if p.media != nil {
		p.media.Close()
	}
	p.close()

	p.srv.peersMu.Lock()
	delete(p.srv.peers, p)
	p.srv.peersMu.Unlock()
}

func (p *peer) handle(msg Message) {
	switch msg.Type {
	case MsgJoin:
		p.join(msg)
	case MsgAuth:
		p.auth(msg)
	case MsgAnswer:
		if p.media == nil || msg.SDP == nil {
			p.fail(ReasonBadRequest)
			return
		}
		if err := p.media.Accept(*msg.SDP); err != nil {
			p.log.WithError(err).Warn("failed to accept answer")
			p.fail(ReasonBadRequest)
		}
	case MsgOffer:
		if p.media == nil || msg.SDP == nil {
			p.fail(ReasonBadRequest)
			return
		}
		answer, err := p.media.Answer(*msg.SDP)
		if err != nil {
			p.log.WithError(err).Warn("failed to answer offer")
			p.fail(ReasonBadRequest)
			return
		}
		p.enqueue(Message{Type: MsgAnswer, SDP: answer})
	default:
		p.log.WithField("type", msg.Type).Debug("ignoring message")
	}
}

func (p *peer) join(msg Message) {
	if p.member != nil || msg.Room == "" {
		p.fail(ReasonBadRequest)
		return
	}
	if msg.Session != "" && !p.srv.sessions.consume(msg.Session) {
		p.fail(ReasonBadSession)
		return
	}
	msg.Session = ""
	msg.Room = strings.ToLower(msg.Room)

	if !p.host && p.srv.rooms.NeedsHost(msg.Room) {
		p.pending = &msg
		p.enqueue(Message{Type: MsgAuthRequired, Room: msg.Room})
		return
	}

	m, err := p.srv.rooms.Join(msg.Room, msg.Name, msg.VideoType, p.host, func(members []Member) {
		p.enqueue(Message{Type: MsgMembers, Members: members})
	})
	switch {
	case errors.Is(err, ErrRoomFull):
		p.log.WithField("room", msg.Room).Info("rejecting join, room full")
		p.fail(ReasonMaxUsers)
		return
	case errors.Is(err, ErrAuthRequired):
		p.pending = &msg
		p.enqueue(Message{Type: MsgAuthRequired, Room: msg.Room})
		return
	case err != nil:
		p.fail(ReasonInternal)
		return
	}

	p.room = msg.Room
	p.member = m
	p.log = p.log.WithFields(logrus.Fields{"room": msg.Room, "participant": m.ID})
	p.log.Info("participant joined")
	p.enqueue(Message{Type: MsgJoined, ID: m.ID, Room: msg.Room, Members: p.srv.rooms.Members(msg.Room)})

	p.startMedia()
}

func (p *peer) auth(msg Message) {
	creds := p.srv.cfg.Auth
	if creds == nil {
		p.fail(ReasonNotAllowed)
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(msg.Username), []byte(creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(msg.Password), []byte(creds.Password)) == 1
	if !userOK || !passOK {
		p.log.WithField("username", msg.Username).Warn("authentication failed")
		p.fail(ReasonNotAllowed)
		return
	}
	p.host = true
	p.log.WithField("username", msg.Username).Info("host authenticated")
	if p.pending != nil {
		pending := *p.pending
		p.pending = nil
		p.join(pending)
	}
}

func (p *peer) startMedia() {
	room, id := p.room, p.member.ID
	md, err := NewMedia(p.srv.api, p.log, func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			p.srv.rooms.SetMedia(room, id, true)
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			p.srv.rooms.SetMedia(room, id, false)
		}
	})
	if err != nil {
		p.log.WithError(err).Error("failed to create media session")
		p.fail(ReasonInternal)
		return
	}
	p.media = md

	offer, err := md.Offer()
	if err != nil {
		p.log.WithError(err).Error("failed to create session offer")
		p.fail(ReasonInternal)
		return
	}
	p.enqueue(Message{Type: MsgSessionInitiate, SDP: offer})
}
