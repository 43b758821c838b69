package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/util"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 16
	frameBufferSize   = 64
	writeWait         = time.Second
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	socket *websocket.Conn
	send   chan []byte
}

// Room streams encoded frames to websocket clients. Slow clients miss frames.
type Room struct {
	hub     *Hub
	enc     parser.TelemetryEncoder
	frames  chan model.Frame
	join    chan *client
	leave   chan *client
	clients map[*client]bool
}

// NewRoom subscribes a room to the hub under id "ws".
func NewRoom(hub *Hub, enc parser.TelemetryEncoder) (*Room, error) {
	r := &Room{
		hub:     hub,
		enc:     enc,
		frames:  make(chan model.Frame, frameBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
	}
	if err := hub.Subscribe("ws", r.frames); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Room) messageType() int {
	if r.enc.Name() == "json" {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// Run forwards frames to the clients until ctx ends.
func (r *Room) Run(ctx context.Context) {
	defer func() {
		_ = r.hub.Unsubscribe("ws")
		for c := range r.clients {
			close(c.send)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.join:
			r.clients[c] = true
			util.Info("[ws] client joined (%d)", len(r.clients))
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
				util.Info("[ws] client left (%d)", len(r.clients))
			}
		case f := <-r.frames:
			if len(r.clients) == 0 {
				continue
			}
			msg, err := r.enc.Encode(f)
			if err != nil {
				util.Warn("[ws] encode frame %d: %v", f.Seq, err)
				continue
			}
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
		}
	}
}

// ServeHTTP upgrades the connection and registers the client for the stream.
func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		util.Warn("[ws] upgrade: %v", err)
		return
	}
	c := &client{socket: socket, send: make(chan []byte, messageBufferSize)}
	select {
	case r.join <- c:
	case <-req.Context().Done():
		_ = socket.Close()
		return
	}
	go r.write(c)
	r.read(c)
}

// read discards client messages and detects the disconnect.
func (r *Room) read(c *client) {
	defer func() {
		select {
		case r.leave <- c:
		case <-time.After(writeWait):
		}
		_ = c.socket.Close()
	}()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Room) write(c *client) {
	mt := r.messageType()
	for msg := range c.send {
		_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteMessage(mt, msg); err != nil {
			return
		}
	}
	_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}
